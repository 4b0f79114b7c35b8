package googlebooks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"medialib/searchservice/internal/domain"
	"medialib/searchservice/internal/providers/common"
)

const (
	defaultBaseURL    = "https://www.googleapis.com/books/v1"
	defaultLang       = "en"
	defaultPrintType  = "books"
	defaultMaxResults = 40
	maxWindowSize     = 40
)

var errMissingAPIKey = errors.New("google books api key is not configured")

type Provider struct {
	apiKey    string
	baseURL   string
	lang      string
	printType string
	userAgent string
	exec      *common.Executor
	policy    common.RetryPolicy
	logger    *slog.Logger
}

type Config struct {
	APIKey    string
	BaseURL   string
	Lang      string
	PrintType string
	UserAgent string
	Executor  *common.Executor
	Logger    *slog.Logger
}

type volumesResponse struct {
	TotalItems int      `json:"totalItems"`
	Items      []volume `json:"items"`
}

type volume struct {
	ID         string     `json:"id"`
	VolumeInfo volumeInfo `json:"volumeInfo"`
}

type volumeInfo struct {
	Title         string   `json:"title"`
	Authors       []string `json:"authors"`
	Description   string   `json:"description"`
	PublishedDate string   `json:"publishedDate"`
	ImageLinks    struct {
		Thumbnail      string `json:"thumbnail"`
		SmallThumbnail string `json:"smallThumbnail"`
	} `json:"imageLinks"`
	Categories    []string `json:"categories"`
	AverageRating float64  `json:"averageRating"`
}

func NewProvider(cfg Config) *Provider {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	lang := strings.TrimSpace(cfg.Lang)
	if lang == "" {
		lang = defaultLang
	}
	printType := strings.TrimSpace(cfg.PrintType)
	if printType == "" {
		printType = defaultPrintType
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	exec := cfg.Executor
	if exec == nil {
		exec = common.NewExecutor(&http.Client{}, common.WithLogger(logger))
	}
	return &Provider{
		apiKey:    strings.TrimSpace(cfg.APIKey),
		baseURL:   strings.TrimRight(baseURL, "/"),
		lang:      lang,
		printType: printType,
		userAgent: strings.TrimSpace(cfg.UserAgent),
		exec:      exec,
		policy:    common.DefaultRetryPolicy(),
		logger:    logger,
	}
}

func (p *Provider) Name() string { return domain.SourceGoogleBooks }

func (p *Provider) Info() domain.ProviderInfo {
	return domain.ProviderInfo{
		Name:       p.Name(),
		Label:      "Google Books",
		Kind:       "catalog",
		Enabled:    p.apiKey != "",
		MediaTypes: []domain.MediaType{domain.MediaTypeBook},
	}
}

// SearchWindow fetches one startIndex/maxResults window of /volumes. The title
// strategy restricts matching to titles with the intitle: operator.
func (p *Provider) SearchWindow(ctx context.Context, req domain.WindowRequest) (domain.WindowResult, error) {
	if p.apiKey == "" {
		return domain.WindowResult{}, errMissingAPIKey
	}
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return domain.WindowResult{}, errors.New("query parameter is required")
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultMaxResults
	}
	if limit > maxWindowSize {
		limit = maxWindowSize
	}
	offset := max(req.Offset, 0)
	if req.Strategy == domain.WindowStrategyTitle {
		query = "intitle:" + query
	}

	params := url.Values{
		"key":          {p.apiKey},
		"langRestrict": {p.lang},
		"printType":    {p.printType},
		"q":            {query},
		"startIndex":   {strconv.Itoa(offset)},
		"maxResults":   {strconv.Itoa(limit)},
	}
	opts := common.RequestOptions{}
	if p.userAgent != "" {
		opts.Header = http.Header{"User-Agent": {p.userAgent}}
	}

	p.logger.Debug("google books request",
		slog.String("strategy", string(req.Strategy)),
		slog.Int("startIndex", offset),
		slog.Int("maxResults", limit),
	)
	payload, err := common.ExecuteJSON[volumesResponse](ctx, p.exec, p.baseURL+"/volumes?"+params.Encode(), opts, p.policy)
	if err != nil {
		return domain.WindowResult{}, fmt.Errorf("google books %s window at %d: %w", req.Strategy, offset, err)
	}

	items := make([]domain.SearchResult, 0, len(payload.Items))
	for _, item := range payload.Items {
		if strings.TrimSpace(item.ID) == "" {
			continue
		}
		items = append(items, toSearchResult(item))
	}
	return domain.WindowResult{Items: items, TotalItems: payload.TotalItems}, nil
}

func toSearchResult(item volume) domain.SearchResult {
	info := item.VolumeInfo
	return domain.SearchResult{
		ID:          domain.SourceGoogleBooks + "_" + item.ID,
		Title:       strings.TrimSpace(info.Title),
		Subtitle:    common.JoinNonEmpty(info.Authors, ", "),
		Description: common.CleanHTMLText(info.Description),
		ImageURL:    info.ImageLinks.Thumbnail,
		Year:        common.ParseYear(info.PublishedDate),
		Rating:      info.AverageRating,
		Genres:      common.CompactStrings(info.Categories),
		Type:        domain.MediaTypeBook,
		Source:      domain.SourceGoogleBooks,
		ExternalID:  item.ID,
	}
}
