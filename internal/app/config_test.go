package app

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func setRequiredKeys(t *testing.T) {
	t.Helper()
	t.Setenv("TMDB_API_KEY", "tmdb-key")
	t.Setenv("GOOGLE_BOOKS_API_KEY", "books-key")
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()
	if cfg.Server.Addr != ":8090" {
		t.Errorf("Server.Addr = %q, want :8090", cfg.Server.Addr)
	}
	if cfg.Search.Timeout != 0 {
		t.Errorf("Search.Timeout = %v, want 0", cfg.Search.Timeout)
	}
	if cfg.Search.CacheTTL != 10*time.Minute {
		t.Errorf("Search.CacheTTL = %v, want 10m", cfg.Search.CacheTTL)
	}
	if cfg.TMDB.GenreTTL != 24*time.Hour {
		t.Errorf("TMDB.GenreTTL = %v, want 24h", cfg.TMDB.GenreTTL)
	}
	if cfg.TMDB.Language != "en-US" || cfg.GoogleBooks.Lang != "en" || cfg.GoogleBooks.PrintType != "books" {
		t.Errorf("unexpected catalog defaults: %+v %+v", cfg.TMDB, cfg.GoogleBooks)
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv(configPathEnv, filepath.Join(t.TempDir(), "missing.yaml"))
	setRequiredKeys(t)
	t.Setenv("HTTP_ADDR", ":9999")
	t.Setenv("LOG_LEVEL", " DEBUG ")
	t.Setenv("SEARCH_CACHE_TTL", "90s")
	t.Setenv("SEARCH_CACHE_DISABLED", "true")
	t.Setenv("SEARCH_TIMEOUT", "20s")
	t.Setenv("PROVIDER_RATE_LIMIT_RPS", "5")
	t.Setenv("GENRE_CACHE_TTL", "2h")
	t.Setenv("REDIS_URL", "redis://localhost:6379/1")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Server.Addr != ":9999" {
		t.Errorf("Server.Addr = %q", cfg.Server.Addr)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}
	if cfg.Search.CacheTTL != 90*time.Second || !cfg.Search.CacheDisabled || cfg.Search.Timeout != 20*time.Second {
		t.Errorf("unexpected search config: %+v", cfg.Search)
	}
	if cfg.Search.ProviderRateLimit != 5 {
		t.Errorf("Search.ProviderRateLimit = %v, want 5", cfg.Search.ProviderRateLimit)
	}
	if cfg.TMDB.GenreTTL != 2*time.Hour || cfg.TMDB.APIKey != "tmdb-key" {
		t.Errorf("unexpected tmdb config: %+v", cfg.TMDB)
	}
	if cfg.Redis.URL != "redis://localhost:6379/1" {
		t.Errorf("Redis.URL = %q", cfg.Redis.URL)
	}
}

func TestLoadConfigFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  addr: ":7000"
google_books:
  lang: "de"
  print_type: "magazines"
tmdb:
  language: "de-DE"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(configPathEnv, path)
	setRequiredKeys(t)
	t.Setenv("TMDB_LANGUAGE", "fr-FR")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Server.Addr != ":7000" {
		t.Errorf("file value not applied: %q", cfg.Server.Addr)
	}
	if cfg.GoogleBooks.Lang != "de" || cfg.GoogleBooks.PrintType != "magazines" {
		t.Errorf("unexpected google books config: %+v", cfg.GoogleBooks)
	}
	if cfg.TMDB.Language != "fr-FR" {
		t.Errorf("env should override file, got %q", cfg.TMDB.Language)
	}
	if cfg.Search.CacheTTL != 10*time.Minute {
		t.Errorf("default lost after file load: %v", cfg.Search.CacheTTL)
	}
}

func TestLoadConfigRequiresAPIKeys(t *testing.T) {
	t.Setenv(configPathEnv, filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("TMDB_API_KEY", "")
	t.Setenv("GOOGLE_BOOKS_API_KEY", "  ")

	_, err := LoadConfig()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, name := range []string{"TMDB_API_KEY", "GOOGLE_BOOKS_API_KEY"} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("error %q does not mention %s", err, name)
		}
	}
}

func TestValidateRejectsNegativeDurations(t *testing.T) {
	cfg := *defaultConfig()
	cfg.TMDB.APIKey = "a"
	cfg.GoogleBooks.APIKey = "b"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg.Search.CacheTTL = -time.Second
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected negative duration to be rejected")
	}
}

func TestEnvTransformDropsUnknownKeys(t *testing.T) {
	if got := envTransform("TMDB_API_KEY"); got != "tmdb.api_key" {
		t.Fatalf("envTransform(TMDB_API_KEY) = %q", got)
	}
	if got := envTransform("HOME"); got != "" {
		t.Fatalf("envTransform(HOME) = %q, want empty", got)
	}
}
