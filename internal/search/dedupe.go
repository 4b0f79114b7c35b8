package search

import "medialib/searchservice/internal/domain"

// Dedupe keeps the first item seen for every ID and preserves order.
func Dedupe(items []domain.SearchResult) []domain.SearchResult {
	seen := make(map[string]struct{}, len(items))
	out := make([]domain.SearchResult, 0, len(items))
	for _, item := range items {
		if _, exists := seen[item.ID]; exists {
			continue
		}
		seen[item.ID] = struct{}{}
		out = append(out, item)
	}
	return out
}
