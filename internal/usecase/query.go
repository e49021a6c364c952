package usecase

import (
	"regexp"
	"strings"

	"github.com/watchfinder/backend/internal/domain"
)

// Compiled regex patterns for query normalization
var (
	// Characters that break marketplace query strings or land in HTML
	unsafeCharPattern = regexp.MustCompile(`[<>"'&\\{}\x60]`)

	// Control characters some clients smuggle into form fields
	controlCharPattern = regexp.MustCompile(`[\x00-\x1f\x7f]`)

	// Multiple spaces cleanup
	multiSpacePattern = regexp.MustCompile(`\s+`)
)

// normalizeQuery cleans a raw search query before it reaches the scrapers.
// Strips characters that corrupt marketplace query strings, collapses
// whitespace and caps the length; an empty result is ErrInvalidQuery.
func normalizeQuery(raw string) (string, error) {
	cleaned := controlCharPattern.ReplaceAllString(raw, " ")
	cleaned = unsafeCharPattern.ReplaceAllString(cleaned, " ")
	cleaned = multiSpacePattern.ReplaceAllString(cleaned, " ")
	cleaned = strings.TrimSpace(cleaned)

	// Marketplace search boxes reject very long queries anyway
	if len(cleaned) > 100 {
		cleaned = cleaned[:100]
		if lastSpace := strings.LastIndex(cleaned, " "); lastSpace > 50 {
			cleaned = cleaned[:lastSpace]
		}
		cleaned = strings.TrimSpace(cleaned)
	}

	if cleaned == "" {
		return "", domain.ErrInvalidQuery
	}

	return cleaned, nil
}
