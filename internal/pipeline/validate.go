package pipeline

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"
)

var dateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// categoryLookup maps the normalized form of each known category back to its
// canonical label.
var categoryLookup = func() map[string]string {
	m := make(map[string]string, len(Categories))
	for _, c := range Categories {
		m[strings.ToLower(c)] = c
	}
	return m
}()

// ValidateRecords checks every parsed record against the transaction schema
// and returns the validated batch. Validation is all-or-nothing: a single
// malformed record rejects the whole batch so partial statements are never
// persisted.
//
// Amounts are stored as absolute values; sign is a presentation concern and
// payments never reach the batch because the prompt excludes them. Categories
// outside the known set are clamped to CategoryOther rather than trusted.
func ValidateRecords(records []UnvalidatedRecord) ([]Transaction, error) {
	txs := make([]Transaction, 0, len(records))

	for i, rec := range records {
		tx, err := validateRecord(rec)
		if err != nil {
			return nil, &Error{
				Kind:  KindValidation,
				Stage: "validate",
				Raw:   recordPayload(rec),
				Err:   fmt.Errorf("record %d: %w", i, err),
			}
		}
		txs = append(txs, tx)
	}

	return txs, nil
}

func validateRecord(rec UnvalidatedRecord) (Transaction, error) {
	date, err := stringField("date", rec.Date)
	if err != nil {
		return Transaction{}, err
	}
	if !dateRe.MatchString(date) {
		return Transaction{}, fmt.Errorf("field \"date\" is %q, want YYYY-MM-DD", date)
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return Transaction{}, fmt.Errorf("field \"date\" %q is not a real calendar date", date)
	}

	desc, err := stringField("description", rec.Description)
	if err != nil {
		return Transaction{}, err
	}

	amount, err := numberField("amount", rec.Amount)
	if err != nil {
		return Transaction{}, err
	}

	currency, err := stringField("currency", rec.Currency)
	if err != nil {
		return Transaction{}, err
	}
	if currency != CurrencyARS && currency != CurrencyUSD {
		return Transaction{}, fmt.Errorf("field \"currency\" is %q, want %q or %q", currency, CurrencyARS, CurrencyUSD)
	}

	category, err := stringField("category", rec.Category)
	if err != nil {
		return Transaction{}, err
	}

	return Transaction{
		Date:        date,
		Description: desc,
		Amount:      math.Abs(amount),
		Currency:    currency,
		Category:    clampCategory(category),
	}, nil
}

// clampCategory maps a category to its canonical label, matching
// case-insensitively after trimming. Anything unknown becomes CategoryOther.
func clampCategory(category string) string {
	if canonical, ok := categoryLookup[strings.ToLower(strings.TrimSpace(category))]; ok {
		return canonical
	}
	return CategoryOther
}

func stringField(name string, v any) (string, error) {
	if v == nil {
		return "", fmt.Errorf("missing required field %q", name)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("field %q has type %T, want string", name, v)
	}
	return s, nil
}

func numberField(name string, v any) (float64, error) {
	if v == nil {
		return 0, fmt.Errorf("missing required field %q", name)
	}
	switch val := v.(type) {
	case float64:
		return val, nil
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return 0, fmt.Errorf("field %q is %q, want a number", name, val.String())
		}
		return f, nil
	default:
		return 0, fmt.Errorf("field %q has type %T, want number", name, v)
	}
}

func recordPayload(rec UnvalidatedRecord) string {
	raw, err := json.Marshal(rec)
	if err != nil {
		return ""
	}
	return string(raw)
}
