package search

import (
	"testing"

	"medialib/searchservice/internal/domain"
)

func TestValidateQuery(t *testing.T) {
	tests := []struct {
		raw       string
		mediaType domain.MediaType
		wantOK    bool
		wantText  string
		wantType  domain.MediaType
	}{
		{"  The Matrix  ", domain.MediaTypeMovie, true, "The Matrix", domain.MediaTypeMovie},
		{"Ocean's Eleven, part 2?!", domain.MediaTypeTVShow, true, "Ocean's Eleven, part 2?!", domain.MediaTypeTVShow},
		{"spider-man", "", true, "spider-man", domain.MediaTypeMovie},
		{"dune", "vinyl", true, "dune", domain.MediaTypeMovie},
		{"", domain.MediaTypeBook, false, "", ""},
		{" \t ", domain.MediaTypeBook, false, "", ""},
		{"Матрица", domain.MediaTypeMovie, false, "", ""},
		{"matrix: reloaded", domain.MediaTypeMovie, false, "", ""},
		{"amélie", domain.MediaTypeMovie, false, "", ""},
	}
	for _, tt := range tests {
		got, ok := ValidateQuery(tt.raw, tt.mediaType)
		if ok != tt.wantOK {
			t.Errorf("ValidateQuery(%q) ok = %v, want %v", tt.raw, ok, tt.wantOK)
			continue
		}
		if got.Text != tt.wantText || got.MediaType != tt.wantType {
			t.Errorf("ValidateQuery(%q) = %+v", tt.raw, got)
		}
	}
}
