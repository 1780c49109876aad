package pipeline

import (
	"strconv"
	"strings"
	"time"
)

// Currencies accepted by the transaction schema.
const (
	CurrencyARS = "ARS"
	CurrencyUSD = "USD"
)

// Categories is the closed set of spending categories. The extraction
// service is instructed to pick from this list; the validator clamps
// anything else to CategoryOther.
var Categories = []string{
	"Comida",
	"Transporte",
	"Salud",
	"Entretenimiento",
	"Servicios",
	"Compras",
	"Viajes",
	"Mascotas",
	"Supermercado",
	"Otros",
}

// CategoryOther is the fallback category for unresolvable spends.
const CategoryOther = "Otros"

// UnvalidatedRecord is one element of the extraction service's JSON array
// before schema validation. Field types are unknown until validated; never
// use these values directly.
type UnvalidatedRecord struct {
	Date        any `json:"date"`
	Description any `json:"description"`
	Amount      any `json:"amount"`
	Currency    any `json:"currency"`
	Category    any `json:"category"`
}

// Transaction is one validated statement transaction. Amount is the absolute
// magnitude of the charge; payments and previous-balance lines never reach
// this struct because the prompt excludes them.
type Transaction struct {
	Date        string  `json:"date"` // YYYY-MM-DD, checked against the calendar
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency"`
	Category    string  `json:"category"`
}

// CanonicalAmount renders the amount as the decimal string handed to the
// persistence adapter. The representation never contains a comma.
func (t Transaction) CanonicalAmount() string {
	s := strconv.FormatFloat(t.Amount, 'f', -1, 64)
	return strings.ReplaceAll(s, ",", ".")
}

// FileRecord describes an uploaded statement file. (UserID, DataHash) is
// unique per the storage layer's constraint.
type FileRecord struct {
	ID         int64
	UserID     string
	Name       string
	Path       string
	DataHash   string
	Extension  string
	BankName   string
	UploadedAt time.Time
}

// StoredTransaction is the persisted shape of a Transaction, read back for
// dashboards. Amount is the canonical decimal string.
type StoredTransaction struct {
	ID          int64     `json:"id"`
	UserID      string    `json:"user_id"`
	FileID      int64     `json:"file_id"`
	Date        string    `json:"date"`
	Description string    `json:"description"`
	Amount      string    `json:"amount"`
	Currency    string    `json:"currency"`
	Category    string    `json:"category"`
	CreatedAt   time.Time `json:"created_at"`
}
