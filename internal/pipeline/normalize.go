package pipeline

import "strings"

// NormalizeText joins per-page extracted text into a single document string.
// Each page is trimmed of surrounding whitespace, empty pages are dropped and
// surviving pages are joined with a single space, preserving page order.
// Returns "" when no page contributes text; callers must treat that as
// "no text extracted" and skip the extraction service entirely.
func NormalizeText(pages []string) string {
	parts := make([]string, 0, len(pages))
	for _, page := range pages {
		trimmed := strings.TrimSpace(page)
		if trimmed == "" {
			continue
		}
		parts = append(parts, trimmed)
	}
	return strings.Join(parts, " ")
}
