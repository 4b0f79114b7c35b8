package app

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

const configPathEnv = "CONFIG_PATH"

var defaultConfigPaths = []string{"config.yaml", "config.yml"}

type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Log         LogConfig         `koanf:"log"`
	Redis       RedisConfig       `koanf:"redis"`
	Search      SearchConfig      `koanf:"search"`
	TMDB        TMDBConfig        `koanf:"tmdb"`
	GoogleBooks GoogleBooksConfig `koanf:"google_books"`
	Telemetry   TelemetryConfig   `koanf:"telemetry"`
}

type ServerConfig struct {
	Addr           string  `koanf:"addr"`
	RateLimitRPS   float64 `koanf:"rate_limit_rps"`
	RateLimitBurst int     `koanf:"rate_limit_burst"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// RedisConfig is optional; an empty URL keeps every cache in process memory.
type RedisConfig struct {
	URL string `koanf:"url"`
}

type SearchConfig struct {
	// Timeout bounds a whole aggregation. Zero leaves only the caller's context.
	Timeout             time.Duration `koanf:"timeout"`
	CacheTTL            time.Duration `koanf:"cache_ttl"`
	CacheDisabled       bool          `koanf:"cache_disabled"`
	UserAgent           string        `koanf:"user_agent"`
	ProviderRateLimit   float64       `koanf:"provider_rate_limit_rps"`
	ProviderRateBurst   int           `koanf:"provider_rate_limit_burst"`
	OutboundTimeout     time.Duration `koanf:"outbound_timeout"`
	MaxIdleConnsPerHost int           `koanf:"max_idle_conns_per_host"`
}

type TMDBConfig struct {
	APIKey   string        `koanf:"api_key"`
	BaseURL  string        `koanf:"base_url"`
	Language string        `koanf:"language"`
	GenreTTL time.Duration `koanf:"genre_ttl"`
}

type GoogleBooksConfig struct {
	APIKey    string `koanf:"api_key"`
	BaseURL   string `koanf:"base_url"`
	Lang      string `koanf:"lang"`
	PrintType string `koanf:"print_type"`
}

// TelemetryConfig enables OTLP tracing when Endpoint is set.
type TelemetryConfig struct {
	Endpoint    string  `koanf:"endpoint"`
	SampleRatio float64 `koanf:"sample_ratio"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:           ":8090",
			RateLimitRPS:   50,
			RateLimitBurst: 100,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Search: SearchConfig{
			CacheTTL:            10 * time.Minute,
			UserAgent:           "media-search/1.0",
			ProviderRateLimit:   20,
			ProviderRateBurst:   20,
			OutboundTimeout:     30 * time.Second,
			MaxIdleConnsPerHost: 16,
		},
		TMDB: TMDBConfig{
			BaseURL:  "https://api.themoviedb.org/3",
			Language: "en-US",
			GenreTTL: 24 * time.Hour,
		},
		GoogleBooks: GoogleBooksConfig{
			BaseURL:   "https://www.googleapis.com/books/v1",
			Lang:      "en",
			PrintType: "books",
		},
		Telemetry: TelemetryConfig{
			SampleRatio: 1,
		},
	}
}

var envMappings = map[string]string{
	"http_addr":                   "server.addr",
	"http_rate_limit_rps":         "server.rate_limit_rps",
	"http_rate_limit_burst":       "server.rate_limit_burst",
	"log_level":                   "log.level",
	"log_format":                  "log.format",
	"redis_url":                   "redis.url",
	"search_timeout":              "search.timeout",
	"search_cache_ttl":            "search.cache_ttl",
	"search_cache_disabled":       "search.cache_disabled",
	"search_user_agent":           "search.user_agent",
	"provider_rate_limit_rps":     "search.provider_rate_limit_rps",
	"provider_rate_limit_burst":   "search.provider_rate_limit_burst",
	"outbound_timeout":            "search.outbound_timeout",
	"tmdb_api_key":                "tmdb.api_key",
	"tmdb_base_url":               "tmdb.base_url",
	"tmdb_language":               "tmdb.language",
	"genre_cache_ttl":             "tmdb.genre_ttl",
	"google_books_api_key":        "google_books.api_key",
	"google_books_base_url":       "google_books.base_url",
	"google_books_lang":           "google_books.lang",
	"google_books_print_type":     "google_books.print_type",
	"otel_exporter_otlp_endpoint": "telemetry.endpoint",
	"otel_traces_sample_ratio":    "telemetry.sample_ratio",
}

// LoadConfig layers struct defaults, an optional YAML file and the process
// environment, then validates the result.
func LoadConfig() (Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return Config{}, fmt.Errorf("load defaults: %w", err)
	}
	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("load config file %s: %w", path, err)
		}
	}
	if err := k.Load(env.Provider("", ".", envTransform), nil); err != nil {
		return Config{}, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every missing credential at once.
func (c Config) Validate() error {
	var errs []error
	if c.TMDB.APIKey == "" {
		errs = append(errs, errors.New("TMDB_API_KEY is required"))
	}
	if c.GoogleBooks.APIKey == "" {
		errs = append(errs, errors.New("GOOGLE_BOOKS_API_KEY is required"))
	}
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("HTTP_ADDR must not be empty"))
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		errs = append(errs, errors.New("OTEL_TRACES_SAMPLE_RATIO must be within [0, 1]"))
	}
	if c.Search.Timeout < 0 || c.Search.CacheTTL < 0 || c.TMDB.GenreTTL < 0 {
		errs = append(errs, errors.New("durations must not be negative"))
	}
	return errors.Join(errs...)
}

func (c *Config) normalize() {
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
	c.TMDB.APIKey = strings.TrimSpace(c.TMDB.APIKey)
	c.GoogleBooks.APIKey = strings.TrimSpace(c.GoogleBooks.APIKey)
	c.Redis.URL = strings.TrimSpace(c.Redis.URL)
	c.Telemetry.Endpoint = strings.TrimSpace(c.Telemetry.Endpoint)
}

func findConfigFile() string {
	if path := strings.TrimSpace(os.Getenv(configPathEnv)); path != "" {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	for _, path := range defaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envTransform maps known environment names onto koanf paths and drops the rest.
func envTransform(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}
	return ""
}
