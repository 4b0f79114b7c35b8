package search

import (
	"sort"
	"strings"
	"unicode"

	"medialib/searchservice/internal/domain"
)

const (
	scoreExactMatch      = 100
	scoreStartsWith      = 80
	scoreContains        = 60
	scoreWordsInOrder    = 40
	scoreAllWordsPresent = 20
	scoreMatchRatio      = 10

	shortBookQueryLen   = 2
	maxDescriptionWords = 2
)

// Rank runs the relevance pipeline: drop non-Latin items, drop items whose
// title does not match query, then order the rest best-first. The sort is
// stable, so equal items keep their encounter order.
func Rank(items []domain.SearchResult, query string) []domain.SearchResult {
	return sortByRelevance(filterByTitleMatch(filterLatinScript(items), query), query)
}

// normalizeText lowercases value, turns everything except ASCII word
// characters and whitespace into spaces, and collapses runs of whitespace.
func normalizeText(value string) string {
	mapped := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			return r
		case unicode.IsSpace(r):
			return r
		default:
			return ' '
		}
	}, strings.ToLower(value))
	return strings.Join(strings.Fields(mapped), " ")
}

func queryWords(normalized string) []string {
	return strings.Fields(normalized)
}

// containsWordsInOrder reports whether every word occurs in text, each one
// starting after the end of the previous match.
func containsWordsInOrder(text string, words []string) bool {
	switch len(words) {
	case 0:
		return true
	case 1:
		return strings.Contains(text, words[0])
	}
	offset := 0
	for _, word := range words {
		index := strings.Index(text[offset:], word)
		if index < 0 {
			return false
		}
		offset += index + len(word)
	}
	return true
}

func containsCyrillic(value string) bool {
	for _, r := range value {
		if unicode.Is(unicode.Cyrillic, r) {
			return true
		}
	}
	return false
}

func filterLatinScript(items []domain.SearchResult) []domain.SearchResult {
	out := make([]domain.SearchResult, 0, len(items))
	for _, item := range items {
		if containsCyrillic(item.Title + " " + item.Subtitle) {
			continue
		}
		out = append(out, item)
	}
	return out
}

func filterByTitleMatch(items []domain.SearchResult, query string) []domain.SearchResult {
	normalizedQuery := normalizeText(query)
	words := queryWords(normalizedQuery)

	out := make([]domain.SearchResult, 0, len(items))
	for _, item := range items {
		title := normalizeText(item.Title)
		if strings.Contains(title, normalizedQuery) || containsWordsInOrder(title, words) {
			out = append(out, item)
		}
	}
	return out
}

// isBookRelevant is the looser gate applied to book results before dedup.
// Query words here are the raw lowercase whitespace-split query.
func isBookRelevant(item domain.SearchResult, query string) bool {
	if len(query) <= shortBookQueryLen {
		return true
	}
	words := strings.Fields(strings.ToLower(query))

	anyIn := func(text string) bool {
		text = strings.ToLower(text)
		for _, word := range words {
			if strings.Contains(text, word) {
				return true
			}
		}
		return false
	}

	if anyIn(item.Title) || anyIn(item.Subtitle) {
		return true
	}
	return len(words) <= maxDescriptionWords && anyIn(item.Description)
}

func filterRelevantBooks(items []domain.SearchResult, query string) []domain.SearchResult {
	out := make([]domain.SearchResult, 0, len(items))
	for _, item := range items {
		if isBookRelevant(item, query) {
			out = append(out, item)
		}
	}
	return out
}

func relevanceScore(item domain.SearchResult, normalizedQuery string, words []string) float64 {
	title := normalizeText(item.Title)

	var score float64
	switch {
	case title == normalizedQuery:
		score += scoreExactMatch
	case strings.HasPrefix(title, normalizedQuery):
		score += scoreStartsWith
	case strings.Contains(title, normalizedQuery):
		score += scoreContains
	case containsWordsInOrder(title, words):
		score += scoreWordsInOrder
	}

	matching := 0
	for _, word := range words {
		if strings.Contains(title, word) {
			matching++
		}
	}
	if matching == len(words) {
		score += scoreAllWordsPresent
	}
	if len(words) > 0 {
		score += float64(matching) / float64(len(words)) * scoreMatchRatio
	}
	return score
}

func completenessScore(item domain.SearchResult) int {
	score := 0
	if item.Title != "" {
		score += 1
	}
	if item.ImageURL != "" {
		score += 4
	}
	if item.Description != "" || item.Subtitle != "" {
		score += 3
	}
	if item.Rating > 0 {
		score += 2
	}
	if item.Year != "" {
		score += 1
	}
	return score
}

type rankedResult struct {
	item         domain.SearchResult
	relevance    float64
	completeness int
}

func sortByRelevance(items []domain.SearchResult, query string) []domain.SearchResult {
	normalizedQuery := normalizeText(query)
	words := queryWords(normalizedQuery)

	ranked := make([]rankedResult, len(items))
	for i, item := range items {
		ranked[i] = rankedResult{
			item:         item,
			relevance:    relevanceScore(item, normalizedQuery, words),
			completeness: completenessScore(item),
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		left, right := ranked[i], ranked[j]
		if left.relevance != right.relevance {
			return left.relevance > right.relevance
		}
		if left.completeness != right.completeness {
			return left.completeness > right.completeness
		}
		return left.item.Rating > right.item.Rating
	})

	out := make([]domain.SearchResult, len(ranked))
	for i, entry := range ranked {
		out[i] = entry.item
	}
	return out
}
