package pipeline

import (
	"encoding/json"
	"strings"
)

// ParseResponse recovers the transaction array from the extraction service's
// raw textual response.
//
// The upstream service is a natural-language system that sometimes wraps its
// JSON in commentary or code fences despite instructions, so recovery is
// two-staged: a strict parse of the trimmed response first, then a lenient
// retry on the greedy span from the first '[' to the last ']'. If neither
// yields a JSON array the upload fails with a malformed-response error
// carrying the raw payload for diagnostics.
func ParseResponse(raw string) ([]UnvalidatedRecord, error) {
	trimmed := strings.TrimSpace(raw)

	var records []UnvalidatedRecord
	if err := json.Unmarshal([]byte(trimmed), &records); err == nil {
		return records, nil
	}

	start := strings.Index(trimmed, "[")
	end := strings.LastIndex(trimmed, "]")
	if start == -1 || end <= start {
		return nil, &Error{
			Kind:  KindMalformedResponse,
			Stage: "parse",
			Raw:   raw,
		}
	}

	span := trimmed[start : end+1]
	if err := json.Unmarshal([]byte(span), &records); err != nil {
		return nil, &Error{
			Kind:  KindMalformedResponse,
			Stage: "parse",
			Raw:   raw,
			Err:   err,
		}
	}

	return records, nil
}
