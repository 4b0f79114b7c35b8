package domain

import "time"

type MediaType string

const (
	MediaTypeMovie  MediaType = "movie"
	MediaTypeTVShow MediaType = "tv_show"
	MediaTypeBook   MediaType = "book"
)

// ParseMediaType reports whether raw names a supported media type.
// An empty value resolves to movies.
func ParseMediaType(raw string) (MediaType, bool) {
	switch MediaType(raw) {
	case "", MediaTypeMovie:
		return MediaTypeMovie, true
	case MediaTypeTVShow:
		return MediaTypeTVShow, true
	case MediaTypeBook:
		return MediaTypeBook, true
	default:
		return "", false
	}
}

func NormalizeMediaType(raw MediaType) MediaType {
	if value, ok := ParseMediaType(string(raw)); ok {
		return value
	}
	return MediaTypeMovie
}

const (
	SourceTMDB        = "tmdb"
	SourceGoogleBooks = "google_books"
)

type SearchQuery struct {
	Text      string
	MediaType MediaType
}

type SearchResult struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Subtitle    string    `json:"subtitle,omitempty"`
	Description string    `json:"description,omitempty"`
	ImageURL    string    `json:"imageUrl,omitempty"`
	Year        string    `json:"year,omitempty"`
	Rating      float64   `json:"rating,omitempty"`
	Genres      []string  `json:"genres,omitempty"`
	Type        MediaType `json:"type"`
	Source      string    `json:"source"`
	ExternalID  string    `json:"externalId,omitempty"`
}

type SearchResponse struct {
	Results      []SearchResult `json:"results"`
	TotalResults int            `json:"totalResults"`
	HasMore      bool           `json:"hasMore"`
}

func EmptySearchResponse() SearchResponse {
	return SearchResponse{Results: []SearchResult{}}
}

// PageRequest addresses one page of a page-paginated catalog.
type PageRequest struct {
	Query     string
	MediaType MediaType
	Page      int
}

type PageResult struct {
	Items        []SearchResult
	Page         int
	TotalPages   int
	TotalResults int
}

type WindowStrategy string

const (
	WindowStrategyTitle   WindowStrategy = "title"
	WindowStrategyGeneral WindowStrategy = "general"
)

// WindowRequest addresses one offset window of an offset-paginated catalog.
type WindowRequest struct {
	Query    string
	Offset   int
	Limit    int
	Strategy WindowStrategy
}

type WindowResult struct {
	Items      []SearchResult
	TotalItems int
}

type ProviderInfo struct {
	Name       string      `json:"name"`
	Label      string      `json:"label"`
	Kind       string      `json:"kind"`
	Enabled    bool        `json:"enabled"`
	MediaTypes []MediaType `json:"mediaTypes"`
}

func (p ProviderInfo) Supports(mediaType MediaType) bool {
	for _, value := range p.MediaTypes {
		if value == mediaType {
			return true
		}
	}
	return false
}

type ProviderDiagnostics struct {
	Name                string      `json:"name"`
	Label               string      `json:"label"`
	Kind                string      `json:"kind"`
	Enabled             bool        `json:"enabled"`
	MediaTypes          []MediaType `json:"mediaTypes,omitempty"`
	ConsecutiveFailures int         `json:"consecutiveFailures"`
	BlockedUntil        *time.Time  `json:"blockedUntil,omitempty"`
	LastError           string      `json:"lastError,omitempty"`
	LastSuccessAt       *time.Time  `json:"lastSuccessAt,omitempty"`
	LastFailureAt       *time.Time  `json:"lastFailureAt,omitempty"`
	LastLatencyMS       int64       `json:"lastLatencyMs,omitempty"`
	LastTimeout         bool        `json:"lastTimeout,omitempty"`
	LastQuery           string      `json:"lastQuery,omitempty"`
	TotalRequests       int64       `json:"totalRequests,omitempty"`
	TotalFailures       int64       `json:"totalFailures,omitempty"`
	TimeoutCount        int64       `json:"timeoutCount,omitempty"`
}

type GenreKind string

const (
	GenreKindMovie GenreKind = "movie"
	GenreKindTV    GenreKind = "tv"
)

// GenreKindFor maps a media type onto the catalog genre list it uses.
func GenreKindFor(mediaType MediaType) GenreKind {
	if mediaType == MediaTypeTVShow {
		return GenreKindTV
	}
	return GenreKindMovie
}
