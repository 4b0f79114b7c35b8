package search

import (
	"reflect"
	"testing"

	"medialib/searchservice/internal/domain"
)

func TestNormalizeText(t *testing.T) {
	tests := []struct{ in, want string }{
		{"The Dark Knight", "the dark knight"},
		{"  Spider-Man: Homecoming", "spider man homecoming"},
		{"WALL·E", "wall e"},
		{"Ocean's   Eleven!", "ocean s eleven"},
		{"snake_case_title", "snake_case_title"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := normalizeText(tt.in); got != tt.want {
			t.Errorf("normalizeText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestContainsWordsInOrder(t *testing.T) {
	tests := []struct {
		text  string
		words []string
		want  bool
	}{
		{"the dark knight rises", []string{"dark", "knight"}, true},
		{"the dark knight rises", []string{"knight", "dark"}, false},
		{"the dark knight rises", []string{"the", "rises"}, true},
		{"the dark knight rises", nil, true},
		{"the dark knight rises", []string{"rise"}, true},
		{"aa", []string{"a", "a"}, true},
		{"a", []string{"a", "a"}, false},
	}
	for _, tt := range tests {
		if got := containsWordsInOrder(tt.text, tt.words); got != tt.want {
			t.Errorf("containsWordsInOrder(%q, %v) = %v, want %v", tt.text, tt.words, got, tt.want)
		}
	}
}

func TestFilterByTitleMatchUsesWordsInOrder(t *testing.T) {
	items := []domain.SearchResult{{ID: "1", Title: "The Dark Knight Rises"}}

	if got := filterByTitleMatch(items, "dark knight"); len(got) != 1 {
		t.Fatalf("expected 'dark knight' to match, got %v", got)
	}
	if got := filterByTitleMatch(items, "knight dark"); len(got) != 0 {
		t.Fatalf("expected 'knight dark' to be filtered out, got %v", got)
	}
}

func TestFilterLatinScriptChecksTitleAndSubtitle(t *testing.T) {
	items := []domain.SearchResult{
		{ID: "1", Title: "Solaris"},
		{ID: "2", Title: "Солярис"},
		{ID: "3", Title: "Solaris", Subtitle: "Станислав Лем"},
		{ID: "4", Title: "Solaris", Description: "Роман"},
	}
	got := filterLatinScript(items)
	if len(got) != 2 || got[0].ID != "1" || got[1].ID != "4" {
		t.Fatalf("unexpected survivors %+v", got)
	}
}

func TestRelevanceScoreTiers(t *testing.T) {
	score := func(title, query string) float64 {
		normalized := normalizeText(query)
		return relevanceScore(domain.SearchResult{Title: title}, normalized, queryWords(normalized))
	}

	if got := score("Inception", "inception"); got != 130 {
		t.Fatalf("exact match: got %v", got)
	}
	if got := score("Inception 2", "inception"); got != 110 {
		t.Fatalf("prefix match: got %v", got)
	}
	if got := score("The Inception", "inception"); got != 90 {
		t.Fatalf("contains match: got %v", got)
	}
	if got := score("The Dark and Stormy Knight", "dark knight"); got != 70 {
		t.Fatalf("words in order: got %v", got)
	}
	if got := score("The Knight is Dark", "dark knight"); got != 30 {
		t.Fatalf("all words out of order: got %v", got)
	}
	if got := score("Dark City", "dark knight"); got != 5 {
		t.Fatalf("half the words: got %v", got)
	}
}

func TestCompletenessScore(t *testing.T) {
	full := domain.SearchResult{Title: "x", ImageURL: "i", Description: "d", Rating: 7, Year: "2000"}
	if got := completenessScore(full); got != 11 {
		t.Fatalf("full item: got %d", got)
	}
	if got := completenessScore(domain.SearchResult{Title: "x", Subtitle: "s"}); got != 4 {
		t.Fatalf("subtitle counts as description: got %d", got)
	}
	if got := completenessScore(domain.SearchResult{Title: "x", Rating: -1}); got != 1 {
		t.Fatalf("non-positive rating ignored: got %d", got)
	}
}

func TestRankPutsExactTitleWithFullDataFirst(t *testing.T) {
	items := []domain.SearchResult{
		{ID: "tmdb_2", Title: "Inception 2", Year: "2023"},
		{ID: "tmdb_1", Title: "Inception", Year: "2010", Rating: 8.8, ImageURL: "https://image.tmdb.org/t/p/w500/a.jpg"},
	}
	got := Rank(items, "inception")
	if len(got) != 2 {
		t.Fatalf("expected both items to pass the filter, got %d", len(got))
	}
	if got[0].ID != "tmdb_1" || got[1].ID != "tmdb_2" {
		t.Fatalf("unexpected order: %s, %s", got[0].ID, got[1].ID)
	}
}

func TestRankBreaksTiesByCompletenessThenRating(t *testing.T) {
	items := []domain.SearchResult{
		{ID: "a", Title: "Dune", Rating: 3},
		{ID: "b", Title: "Dune", Rating: 4.5},
		{ID: "c", Title: "Dune", Rating: 4.5},
		{ID: "d", Title: "Dune", Rating: 1, ImageURL: "img"},
	}
	got := Rank(items, "dune")
	ids := []string{got[0].ID, got[1].ID, got[2].ID, got[3].ID}
	want := []string{"d", "b", "c", "a"}
	if !reflect.DeepEqual(ids, want) {
		t.Fatalf("got %v, want %v", ids, want)
	}
}

func TestRankIsDeterministic(t *testing.T) {
	items := []domain.SearchResult{
		{ID: "1", Title: "Star Wars", Rating: 8},
		{ID: "2", Title: "Star Wars: A New Hope", Rating: 8.6, ImageURL: "x"},
		{ID: "3", Title: "Wars of the Star", Rating: 5},
		{ID: "4", Title: "Star Trek"},
		{ID: "5", Title: "Star Wars", Rating: 8},
	}
	first := Rank(items, "star wars")
	second := Rank(items, "star wars")
	if !reflect.DeepEqual(first, second) {
		t.Fatal("ranking is not deterministic")
	}
	if len(first) != 3 || first[0].ID != "1" || first[1].ID != "5" || first[2].ID != "2" {
		t.Fatalf("unexpected ranking %+v", first)
	}
}

func TestIsBookRelevant(t *testing.T) {
	book := domain.SearchResult{
		Title:       "The Left Hand of Darkness",
		Subtitle:    "Ursula K. Le Guin",
		Description: "A story about an envoy on the winter planet Gethen.",
	}
	tests := []struct {
		query string
		want  bool
	}{
		{"ab", true},
		{"darkness", true},
		{"le guin", true},
		{"gethen", true},
		{"winter planet", true},
		{"gethen winter envoy", false},
		{"foundation", false},
	}
	for _, tt := range tests {
		if got := isBookRelevant(book, tt.query); got != tt.want {
			t.Errorf("isBookRelevant(%q) = %v, want %v", tt.query, got, tt.want)
		}
	}
}
