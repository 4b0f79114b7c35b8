package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	apihttp "medialib/searchservice/internal/api/http"
	"medialib/searchservice/internal/app"
	"medialib/searchservice/internal/domain"
	"medialib/searchservice/internal/metrics"
	"medialib/searchservice/internal/providers/common"
	"medialib/searchservice/internal/providers/googlebooks"
	"medialib/searchservice/internal/providers/tmdb"
	"medialib/searchservice/internal/search"
	"medialib/searchservice/internal/telemetry"
)

const serviceName = "media-search"

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger := newLogger(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)
	metrics.Register(prometheus.DefaultRegisterer)

	shutdownTracer, err := telemetry.Init(context.Background(), telemetry.Settings{
		ServiceName: serviceName,
		Endpoint:    cfg.Telemetry.Endpoint,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	logger.Info("configuration loaded",
		slog.String("service", serviceName),
		slog.String("httpAddr", cfg.Server.Addr),
		slog.String("logLevel", cfg.Log.Level),
		slog.String("logFormat", cfg.Log.Format),
		slog.Duration("searchTimeout", cfg.Search.Timeout),
		slog.Duration("cacheTTL", cfg.Search.CacheTTL),
		slog.Bool("cacheDisabled", cfg.Search.CacheDisabled),
		slog.Duration("genreTTL", cfg.TMDB.GenreTTL),
		slog.String("tmdbBaseURL", cfg.TMDB.BaseURL),
		slog.String("googleBooksBaseURL", cfg.GoogleBooks.BaseURL),
		slog.Bool("hasRedis", cfg.Redis.URL != ""),
		slog.Bool("tracing", cfg.Telemetry.Endpoint != ""),
	)

	executor := common.NewExecutor(newOutboundClient(cfg.Search), common.WithLogger(logger))
	redisClient := connectRedis(cfg.Redis.URL, logger)

	tmdbCfg := tmdb.Config{
		APIKey:    cfg.TMDB.APIKey,
		BaseURL:   cfg.TMDB.BaseURL,
		Language:  cfg.TMDB.Language,
		UserAgent: cfg.Search.UserAgent,
		Executor:  executor,
		GenreTTL:  cfg.TMDB.GenreTTL,
		Logger:    logger,
	}
	if redisClient != nil {
		tmdbCfg.GenreStore = tmdb.NewRedisGenreStore(redisClient)
	}
	tmdbClient := tmdb.NewClient(tmdbCfg)

	booksProvider := googlebooks.NewProvider(googlebooks.Config{
		APIKey:    cfg.GoogleBooks.APIKey,
		BaseURL:   cfg.GoogleBooks.BaseURL,
		Lang:      cfg.GoogleBooks.Lang,
		PrintType: cfg.GoogleBooks.PrintType,
		UserAgent: cfg.Search.UserAgent,
		Executor:  executor,
		Logger:    logger,
	})

	searchService := search.NewService(
		[]search.Provider{tmdbClient, booksProvider},
		cfg.Search.Timeout,
		buildServiceOptions(cfg, redisClient, logger)...,
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go warmGenres(rootCtx, tmdbClient, logger)

	handler := apihttp.NewServer(searchService,
		apihttp.WithLogger(logger),
		apihttp.WithRateLimit(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst),
	).Handler()
	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// A cold search pages every catalog with retries; leave writes unbounded
		// and rely on per-call timeouts.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	logger.Info("media search service started",
		slog.String("addr", cfg.Server.Addr),
		slog.Int("providers", len(searchService.Providers())),
	)

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", slog.String("error", err.Error()))
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}
	logger.Info("media search service stopped")
}

func newOutboundClient(cfg app.SearchConfig) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ForceAttemptHTTP2 = true
	if cfg.MaxIdleConnsPerHost > 0 {
		transport.MaxIdleConnsPerHost = cfg.MaxIdleConnsPerHost
	}
	// Per-attempt deadlines come from each adapter's retry policy; this only
	// caps a request the executor forgot to bound.
	return &http.Client{
		Timeout:   cfg.OutboundTimeout,
		Transport: otelhttp.NewTransport(transport),
	}
}

// connectRedis returns nil when Redis is not configured or unreachable; every
// cache then stays in process memory.
func connectRedis(rawURL string, logger *slog.Logger) *redis.Client {
	if rawURL == "" {
		return nil
	}
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		logger.Warn("invalid redis url, using in-memory caches only", slog.String("error", err.Error()))
		return nil
	}
	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not reachable, using in-memory caches only", slog.String("error", err.Error()))
		_ = client.Close()
		return nil
	}
	logger.Info("redis connected", slog.String("addr", opts.Addr))
	return client
}

func buildServiceOptions(cfg app.Config, redisClient *redis.Client, logger *slog.Logger) []search.ServiceOption {
	opts := []search.ServiceOption{
		search.WithLogger(logger),
		search.WithProviderRateLimit(cfg.Search.ProviderRateLimit, cfg.Search.ProviderRateBurst),
	}
	if cfg.Search.CacheDisabled {
		return append(opts, search.WithCacheDisabled(true))
	}
	if cfg.Search.CacheTTL > 0 {
		opts = append(opts, search.WithCacheTTL(cfg.Search.CacheTTL))
	}
	if redisClient != nil {
		opts = append(opts, search.WithRedisCache(search.NewRedisCacheBackend(redisClient)))
	}
	return opts
}

// warmGenres loads both genre lists ahead of the first TV or movie search.
func warmGenres(ctx context.Context, client *tmdb.Client, logger *slog.Logger) {
	for _, kind := range []domain.GenreKind{domain.GenreKindMovie, domain.GenreKindTV} {
		if _, err := client.GenreMap(ctx, kind, false); err != nil {
			logger.Warn("genre warmup failed", slog.String("kind", string(kind)), slog.String("error", err.Error()))
		}
	}
}

func newLogger(levelRaw, formatRaw string) *slog.Logger {
	level := parseLogLevel(levelRaw)
	options := &slog.HandlerOptions{Level: level}
	format := strings.ToLower(strings.TrimSpace(formatRaw))
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, options))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, options))
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
