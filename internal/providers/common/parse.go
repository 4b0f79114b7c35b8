package common

import (
	"html"
	"regexp"
	"strings"
)

var tagPattern = regexp.MustCompile(`<[^>]+>`)

func CleanHTMLText(raw string) string {
	value := strings.TrimSpace(raw)
	value = html.UnescapeString(value)
	value = tagPattern.ReplaceAllString(value, " ")
	value = strings.Join(strings.Fields(value), " ")
	return value
}

// ParseYear returns the 4-digit year that leads an ISO-like date
// ("2010", "2010-07", "2010-07-16"), or "" when there is none.
func ParseYear(raw string) string {
	value := strings.TrimSpace(raw)
	if len(value) < 4 {
		return ""
	}
	for _, c := range value[:4] {
		if c < '0' || c > '9' {
			return ""
		}
	}
	if len(value) > 4 && value[4] != '-' {
		return ""
	}
	if value[:4] == "0000" {
		return ""
	}
	return value[:4]
}

// JoinNonEmpty joins the trimmed, non-empty values with sep.
func JoinNonEmpty(values []string, sep string) string {
	parts := make([]string, 0, len(values))
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return strings.Join(parts, sep)
}

// CompactStrings trims values and drops empties; nil when nothing is left.
func CompactStrings(values []string) []string {
	var out []string
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
