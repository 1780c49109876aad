package pipeline

import "strings"

// BankUnknown is returned when no known bank marker appears in the text.
const BankUnknown = "Desconocido"

// knownBanks lists the bank name markers scanned for, in priority order.
// The label is what gets stored on the statement record.
var knownBanks = []struct {
	marker string
	label  string
}{
	{"santander", "Santander"},
	{"galicia", "Galicia"},
	{"bbva", "BBVA"},
	{"macro", "Macro"},
	{"hsbc", "HSBC"},
	{"icbc", "ICBC"},
	{"brubank", "Brubank"},
	{"naranja", "Naranja X"},
	{"mercado pago", "Mercado Pago"},
	{"banco nación", "Banco Nación"},
	{"banco nacion", "Banco Nación"},
	{"banco provincia", "Banco Provincia"},
	{"banco ciudad", "Banco Ciudad"},
}

// IdentifyBank scans normalized statement text case-insensitively for known
// bank markers and returns the first matching label, or BankUnknown.
func IdentifyBank(normalizedText string) string {
	lower := strings.ToLower(normalizedText)
	for _, bank := range knownBanks {
		if strings.Contains(lower, bank.marker) {
			return bank.label
		}
	}
	return BankUnknown
}
