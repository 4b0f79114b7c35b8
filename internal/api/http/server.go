package apihttp

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"medialib/searchservice/internal/domain"
	"medialib/searchservice/internal/search"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type SearchService interface {
	Search(ctx context.Context, query domain.SearchQuery) (domain.SearchResponse, error)
	Providers() []domain.ProviderInfo
	ProviderDiagnostics() []domain.ProviderDiagnostics
	GenreMap(ctx context.Context, kind domain.GenreKind, forceRefresh bool) (map[int]string, error)
}

type Server struct {
	search    SearchService
	logger    *slog.Logger
	rateRPS   float64
	rateBurst int
}

type genreEntry struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

const (
	maxQueryLength   = 500
	defaultRateRPS   = 50
	defaultRateBurst = 100
)

type ServerOption func(*Server)

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithRateLimit sets the global inbound token bucket. Non-positive values
// keep the defaults.
func WithRateLimit(rps float64, burst int) ServerOption {
	return func(s *Server) {
		if rps > 0 {
			s.rateRPS = rps
		}
		if burst > 0 {
			s.rateBurst = burst
		}
	}
}

func NewServer(searchService SearchService, options ...ServerOption) *Server {
	server := &Server{
		search:    searchService,
		logger:    slog.Default(),
		rateRPS:   defaultRateRPS,
		rateBurst: defaultRateBurst,
	}
	for _, option := range options {
		if option != nil {
			option(server)
		}
	}
	if server.logger == nil {
		server.logger = slog.Default()
	}
	return server
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/search/providers", s.handleProviders)
	mux.HandleFunc("/search/providers/health", s.handleProvidersHealth)
	mux.HandleFunc("/search/genres", s.handleGenres)
	mux.HandleFunc("/search", s.handleSearch)
	traced := otelhttp.NewHandler(accessLog(s.logger, mux), "media-search",
		otelhttp.WithFilter(func(r *http.Request) bool {
			p := r.URL.Path
			return p != "/metrics" && p != "/health"
		}),
	)
	return recoveryMiddleware(s.logger, throttle(s.rateRPS, s.rateBurst, instrumentRoutes(traced)))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/search" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.search == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "search service is not configured")
		return
	}

	values := r.URL.Query()
	query := strings.TrimSpace(values.Get("query"))
	if query == "" {
		query = strings.TrimSpace(values.Get("q"))
	}
	if len(query) > maxQueryLength {
		writeError(w, http.StatusBadRequest, "invalid_request", "query is too long")
		return
	}
	mediaType, ok := domain.ParseMediaType(strings.TrimSpace(values.Get("mediaType")))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_request", "mediaType must be one of movie, tv_show, book")
		return
	}

	annotate(r.Context(),
		slog.String("query", truncate(query, 120)),
		slog.String("mediaType", string(mediaType)),
	)
	response, err := s.search.Search(r.Context(), domain.SearchQuery{Text: query, MediaType: mediaType})
	if err != nil {
		annotate(r.Context(), slog.String("error", err.Error()))
		switch {
		case errors.Is(err, search.ErrNoProviders):
			writeError(w, http.StatusServiceUnavailable, "service_unavailable", err.Error())
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			writeError(w, http.StatusGatewayTimeout, "timeout", "search timed out")
		default:
			s.logger.Error("search failed", slog.String("query", query), slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "internal_error", "search failed")
		}
		return
	}
	annotate(r.Context(), slog.Int("results", response.TotalResults))
	writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/search/providers" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.search == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "search service is not configured")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": s.search.Providers(),
	})
}

func (s *Server) handleProvidersHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.search == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "search service is not configured")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": s.search.ProviderDiagnostics(),
	})
}

func (s *Server) handleGenres(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.search == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "search service is not configured")
		return
	}

	var kind domain.GenreKind
	switch strings.ToLower(strings.TrimSpace(r.URL.Query().Get("type"))) {
	case "", "movie":
		kind = domain.GenreKindMovie
	case "tv", "tv_show":
		kind = domain.GenreKindTV
	default:
		writeError(w, http.StatusBadRequest, "invalid_request", "type must be movie or tv")
		return
	}
	force := parseOptionalBool(r.URL.Query().Get("refresh"))
	annotate(r.Context(), slog.String("genreType", string(kind)), slog.Bool("refresh", force))

	genres, err := s.search.GenreMap(r.Context(), kind, force)
	if err != nil {
		if errors.Is(err, search.ErrNoGenreSource) {
			writeError(w, http.StatusServiceUnavailable, "service_unavailable", err.Error())
			return
		}
		s.logger.Warn("genre lookup failed",
			slog.String("kind", string(kind)),
			slog.Bool("refresh", force),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadGateway, "upstream_error", "genre lookup failed")
		return
	}

	items := make([]genreEntry, 0, len(genres))
	for id, name := range genres {
		items = append(items, genreEntry{ID: id, Name: name})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	annotate(r.Context(), slog.Int("genres", len(items)))
	writeJSON(w, http.StatusOK, map[string]any{
		"type":  kind,
		"items": items,
	})
}

func parseOptionalBool(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}
