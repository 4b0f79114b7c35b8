package common

import (
	"reflect"
	"testing"
)

// ---------------------------------------------------------------------------
// ParseYear
// ---------------------------------------------------------------------------

func TestParseYear(t *testing.T) {
	cases := []struct {
		input string
		want  string
	}{
		{"2010-07-16", "2010"},
		{"2004-05", "2004"},
		{"1999", "1999"},
		{"  2023-01-01 ", "2023"},
		{"", ""},
		{"19", ""},
		{"abcd-01-01", ""},
		{"20100716", ""},
		{"0000-00-00", ""},
	}
	for _, tc := range cases {
		if got := ParseYear(tc.input); got != tc.want {
			t.Errorf("ParseYear(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

// ---------------------------------------------------------------------------
// JoinNonEmpty / CompactStrings
// ---------------------------------------------------------------------------

func TestJoinNonEmpty(t *testing.T) {
	got := JoinNonEmpty([]string{" Terry Pratchett ", "", "Neil Gaiman"}, ", ")
	if got != "Terry Pratchett, Neil Gaiman" {
		t.Fatalf("unexpected join: %q", got)
	}
	if JoinNonEmpty(nil, ", ") != "" {
		t.Fatal("expected empty string for nil input")
	}
}

func TestCompactStrings(t *testing.T) {
	got := CompactStrings([]string{" Fiction ", "", "  "})
	if !reflect.DeepEqual(got, []string{"Fiction"}) {
		t.Fatalf("unexpected compact result: %#v", got)
	}
	if CompactStrings([]string{""}) != nil {
		t.Fatal("expected nil when every value is empty")
	}
}

// ---------------------------------------------------------------------------
// CleanHTMLText
// ---------------------------------------------------------------------------

func TestCleanHTMLText(t *testing.T) {
	got := CleanHTMLText("<p>A <b>wizard</b> &amp; his   staff</p>")
	if got != "A wizard & his staff" {
		t.Fatalf("unexpected cleaned text: %q", got)
	}
}
