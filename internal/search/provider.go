package search

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"medialib/searchservice/internal/domain"
)

var (
	ErrNoProviders     = errors.New("no search providers configured")
	ErrNoGenreSource   = errors.New("no provider exposes genre lists")
	errProviderBlocked = errors.New("provider temporarily unhealthy")
)

type Provider interface {
	Name() string
	Info() domain.ProviderInfo
}

// PagedProvider serves catalogs paginated by page number.
type PagedProvider interface {
	Provider
	SearchPage(ctx context.Context, request domain.PageRequest) (domain.PageResult, error)
}

// OffsetProvider serves catalogs paginated by startIndex/maxResults windows.
type OffsetProvider interface {
	Provider
	SearchWindow(ctx context.Context, request domain.WindowRequest) (domain.WindowResult, error)
}

// GenreWarmer is implemented by providers whose mapping needs reference data
// loaded before results are normalized.
type GenreWarmer interface {
	WarmGenres(ctx context.Context, mediaType domain.MediaType) error
}

type GenreSource interface {
	GenreMap(ctx context.Context, kind domain.GenreKind, forceRefresh bool) (map[int]string, error)
}

type Service struct {
	providers       []Provider
	timeout         time.Duration
	logger          *slog.Logger
	now             func() time.Time
	cacheDisabled   bool
	cacheTTL        time.Duration
	cacheMaxEntries int
	cacheMu         sync.Mutex
	cache           map[string]*cachedSearchResponse
	redisCache      *RedisCacheBackend
	rateLimits      *providerLimiters
	healthMu        sync.Mutex
	health          map[string]*providerHealth
}

type ServiceOption func(*Service)

func WithRedisCache(backend *RedisCacheBackend) ServiceOption {
	return func(s *Service) {
		s.redisCache = backend
	}
}

func WithCacheTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

func WithCacheDisabled(disabled bool) ServiceOption {
	return func(s *Service) {
		s.cacheDisabled = disabled
	}
}

func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithProviderRateLimit caps outbound calls per provider. rps <= 0 disables limiting.
func WithProviderRateLimit(rps float64, burst int) ServiceOption {
	return func(s *Service) {
		s.rateLimits = newProviderLimiters(rps, burst)
	}
}

// NewService registers providers in the given order; that order decides which
// provider's items come first when several serve the same media type.
// timeout bounds one aggregation when the caller's context has no deadline;
// zero leaves it unbounded.
func NewService(providers []Provider, timeout time.Duration, opts ...ServiceOption) *Service {
	registry := make([]Provider, 0, len(providers))
	seen := make(map[string]struct{}, len(providers))
	for _, provider := range providers {
		if provider == nil {
			continue
		}
		name := providerKey(provider)
		if name == "" {
			continue
		}
		if _, exists := seen[name]; exists {
			continue
		}
		seen[name] = struct{}{}
		registry = append(registry, provider)
	}

	svc := &Service{
		providers:       registry,
		timeout:         max(timeout, 0),
		logger:          slog.Default(),
		now:             time.Now,
		cacheTTL:        defaultCacheTTL,
		cacheMaxEntries: defaultCacheMaxEntries,
		cache:           make(map[string]*cachedSearchResponse),
		health:          make(map[string]*providerHealth),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

func providerKey(provider Provider) string {
	return strings.ToLower(strings.TrimSpace(provider.Name()))
}

func (s *Service) Providers() []domain.ProviderInfo {
	if len(s.providers) == 0 {
		return nil
	}
	items := make([]domain.ProviderInfo, 0, len(s.providers))
	for _, provider := range s.providers {
		info := provider.Info()
		info.Name = strings.ToLower(strings.TrimSpace(info.Name))
		if info.Name == "" {
			info.Name = providerKey(provider)
		}
		if info.Label == "" {
			info.Label = info.Name
		}
		items = append(items, info)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].Name < items[j].Name
	})
	return items
}

// providersFor returns the enabled providers serving mediaType, in registration order.
func (s *Service) providersFor(mediaType domain.MediaType) []Provider {
	selected := make([]Provider, 0, len(s.providers))
	for _, provider := range s.providers {
		info := provider.Info()
		if !info.Enabled || !info.Supports(mediaType) {
			continue
		}
		switch provider.(type) {
		case PagedProvider, OffsetProvider:
			selected = append(selected, provider)
		}
	}
	return selected
}

// GenreMap returns the genre list of the first provider that publishes one.
func (s *Service) GenreMap(ctx context.Context, kind domain.GenreKind, forceRefresh bool) (map[int]string, error) {
	for _, provider := range s.providers {
		source, ok := provider.(GenreSource)
		if !ok || !provider.Info().Enabled {
			continue
		}
		return source.GenreMap(ctx, kind, forceRefresh)
	}
	return nil, ErrNoGenreSource
}
