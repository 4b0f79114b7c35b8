package tmdb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"medialib/searchservice/internal/domain"
	"medialib/searchservice/internal/providers/common"
)

const (
	defaultBaseURL   = "https://api.themoviedb.org/3"
	posterBaseURL    = "https://image.tmdb.org/t/p/w500"
	defaultLanguage  = "en-US"
	defaultUserAgent = "TMDB-Client/1.0"
)

var errMissingAPIKey = errors.New("tmdb api key is not configured")

type Client struct {
	apiKey    string
	baseURL   string
	language  string
	userAgent string
	exec      *common.Executor
	policy    common.RetryPolicy
	genres    *GenreCache
	logger    *slog.Logger
}

type Config struct {
	APIKey     string
	BaseURL    string
	Language   string
	UserAgent  string
	Executor   *common.Executor
	GenreStore GenreStore
	GenreTTL   time.Duration
	Logger     *slog.Logger
}

type mediaItem struct {
	ID           int64   `json:"id"`
	Title        string  `json:"title,omitempty"`
	Name         string  `json:"name,omitempty"`
	Overview     string  `json:"overview,omitempty"`
	PosterPath   string  `json:"poster_path,omitempty"`
	ReleaseDate  string  `json:"release_date,omitempty"`
	FirstAirDate string  `json:"first_air_date,omitempty"`
	GenreIDs     []int   `json:"genre_ids,omitempty"`
	VoteAverage  float64 `json:"vote_average,omitempty"`
}

type searchResponse struct {
	Page         int         `json:"page"`
	Results      []mediaItem `json:"results"`
	TotalPages   int         `json:"total_pages"`
	TotalResults int         `json:"total_results"`
}

type genreListResponse struct {
	Genres []struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	} `json:"genres"`
}

func NewClient(cfg Config) *Client {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	language := strings.TrimSpace(cfg.Language)
	if language == "" {
		language = defaultLanguage
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	exec := cfg.Executor
	if exec == nil {
		exec = common.NewExecutor(&http.Client{}, common.WithLogger(logger))
	}

	client := &Client{
		apiKey:    strings.TrimSpace(cfg.APIKey),
		baseURL:   strings.TrimRight(baseURL, "/"),
		language:  language,
		userAgent: userAgent,
		exec:      exec,
		policy: common.RetryPolicy{
			MaxRetries:         3,
			BaseDelay:          time.Second,
			Timeout:            10 * time.Second,
			ExponentialBackoff: false,
		},
		logger: logger,
	}
	genreOpts := []GenreCacheOption{WithGenreTTL(cfg.GenreTTL), WithGenreLogger(logger)}
	if cfg.GenreStore != nil {
		genreOpts = append(genreOpts, WithGenreStore(cfg.GenreStore))
	}
	client.genres = NewGenreCache(client.fetchGenres, genreOpts...)
	return client
}

func (c *Client) Name() string { return domain.SourceTMDB }

func (c *Client) Info() domain.ProviderInfo {
	return domain.ProviderInfo{
		Name:       c.Name(),
		Label:      "TMDB",
		Kind:       "catalog",
		Enabled:    c.Enabled(),
		MediaTypes: []domain.MediaType{domain.MediaTypeMovie, domain.MediaTypeTVShow},
	}
}

func (c *Client) Enabled() bool {
	return c.apiKey != ""
}

// SearchPage fetches one page of /search/movie or /search/tv and maps it into
// canonical results. Genre names come from whatever snapshot is cached.
func (c *Client) SearchPage(ctx context.Context, req domain.PageRequest) (domain.PageResult, error) {
	if !c.Enabled() {
		return domain.PageResult{}, errMissingAPIKey
	}
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return domain.PageResult{}, errors.New("query parameter is required")
	}
	page := req.Page
	if page < 1 {
		page = 1
	}
	kind := domain.GenreKindFor(req.MediaType)

	params := url.Values{
		"query":         {query},
		"page":          {strconv.Itoa(page)},
		"language":      {c.language},
		"include_adult": {"false"},
	}
	payload, err := common.ExecuteJSON[searchResponse](ctx, c.exec, c.endpoint("/search/"+string(kind), params), c.requestOptions(), c.policy)
	if err != nil {
		return domain.PageResult{}, fmt.Errorf("tmdb search %s page %d: %w", kind, page, err)
	}

	items := make([]domain.SearchResult, 0, len(payload.Results))
	for _, item := range payload.Results {
		items = append(items, toSearchResult(item, kind, c.genres.Names))
	}
	return domain.PageResult{
		Items:        items,
		Page:         page,
		TotalPages:   payload.TotalPages,
		TotalResults: payload.TotalResults,
	}, nil
}

// GenreMap returns a copy of the id -> name map for kind.
func (c *Client) GenreMap(ctx context.Context, kind domain.GenreKind, forceRefresh bool) (map[int]string, error) {
	names, err := c.genres.Get(ctx, kind, forceRefresh)
	if err != nil {
		return nil, err
	}
	return maps.Clone(names), nil
}

// WarmGenres makes sure a genre snapshot exists before pages are mapped.
func (c *Client) WarmGenres(ctx context.Context, mediaType domain.MediaType) error {
	if !c.Enabled() {
		return errMissingAPIKey
	}
	_, err := c.genres.Get(ctx, domain.GenreKindFor(mediaType), false)
	return err
}

func (c *Client) fetchGenres(ctx context.Context, kind domain.GenreKind) (map[int]string, error) {
	params := url.Values{"language": {c.language}}
	payload, err := common.ExecuteJSON[genreListResponse](ctx, c.exec, c.endpoint("/genre/"+string(kind)+"/list", params), c.requestOptions(), c.policy)
	if err != nil {
		return nil, fmt.Errorf("tmdb genre list %s: %w", kind, err)
	}
	names := make(map[int]string, len(payload.Genres))
	for _, genre := range payload.Genres {
		if genre.Name == "" {
			continue
		}
		names[genre.ID] = genre.Name
	}
	return names, nil
}

func (c *Client) endpoint(path string, params url.Values) string {
	params.Set("api_key", c.apiKey)
	return c.baseURL + path + "?" + params.Encode()
}

func (c *Client) requestOptions() common.RequestOptions {
	return common.RequestOptions{
		Header: http.Header{"User-Agent": {c.userAgent}},
	}
}

func toSearchResult(item mediaItem, kind domain.GenreKind, lookup func(domain.GenreKind, []int) []string) domain.SearchResult {
	title, date, mediaType := item.Title, item.ReleaseDate, domain.MediaTypeMovie
	if kind == domain.GenreKindTV {
		title, date, mediaType = item.Name, item.FirstAirDate, domain.MediaTypeTVShow
	}

	externalID := strconv.FormatInt(item.ID, 10)
	result := domain.SearchResult{
		ID:          domain.SourceTMDB + "_" + externalID,
		Title:       strings.TrimSpace(title),
		Subtitle:    item.Overview,
		Description: item.Overview,
		Year:        common.ParseYear(date),
		Rating:      item.VoteAverage,
		Type:        mediaType,
		Source:      domain.SourceTMDB,
		ExternalID:  externalID,
	}
	if item.PosterPath != "" {
		result.ImageURL = posterBaseURL + item.PosterPath
	}
	if lookup != nil {
		result.Genres = lookup(kind, item.GenreIDs)
	}
	return result
}
