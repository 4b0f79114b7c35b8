package search

import (
	"regexp"
	"strings"

	"medialib/searchservice/internal/domain"
)

var allowedQueryPattern = regexp.MustCompile(`^[a-zA-Z0-9\s\-'.,!?]+$`)

// ValidateQuery trims raw and accepts it only when it is non-empty Latin text.
// Unknown media types fall back to movies.
func ValidateQuery(raw string, mediaType domain.MediaType) (domain.SearchQuery, bool) {
	text := strings.TrimSpace(raw)
	if text == "" || !allowedQueryPattern.MatchString(text) {
		return domain.SearchQuery{}, false
	}
	return domain.SearchQuery{
		Text:      text,
		MediaType: domain.NormalizeMediaType(mediaType),
	}, true
}
