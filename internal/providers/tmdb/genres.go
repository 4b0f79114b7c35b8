package tmdb

import (
	"context"
	"log/slog"
	"maps"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"medialib/searchservice/internal/domain"
	"medialib/searchservice/internal/metrics"
)

const (
	defaultGenreTTL          = 24 * time.Hour
	defaultGenreFetchTimeout = 45 * time.Second
)

// GenreFetcher loads the full id -> name list for one catalog kind from upstream.
type GenreFetcher func(ctx context.Context, kind domain.GenreKind) (map[int]string, error)

// StoredGenres is a genre map as persisted in a GenreStore, stamped with the
// time it was fetched from upstream.
type StoredGenres struct {
	Names     map[int]string `json:"names"`
	FetchedAt time.Time      `json:"fetchedAt"`
}

// GenreStore is an optional shared layer between the in-process snapshots and upstream.
type GenreStore interface {
	Load(ctx context.Context, kind domain.GenreKind) (StoredGenres, bool, error)
	Save(ctx context.Context, kind domain.GenreKind, genres StoredGenres, ttl time.Duration) error
}

type genreSnapshot struct {
	names       map[int]string
	refreshedAt time.Time
}

// GenreCache keeps one immutable snapshot per catalog kind. Readers never wait
// on the network once a snapshot exists: a stale snapshot is served while a
// single background refresh replaces it.
type GenreCache struct {
	fetch        GenreFetcher
	store        GenreStore
	ttl          time.Duration
	fetchTimeout time.Duration
	logger       *slog.Logger
	now          func() time.Time

	group singleflight.Group

	mu         sync.RWMutex
	snapshots  map[domain.GenreKind]genreSnapshot
	refreshing map[domain.GenreKind]bool
}

type GenreCacheOption func(*GenreCache)

func WithGenreStore(store GenreStore) GenreCacheOption {
	return func(c *GenreCache) {
		c.store = store
	}
}

func WithGenreTTL(ttl time.Duration) GenreCacheOption {
	return func(c *GenreCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

func WithGenreLogger(logger *slog.Logger) GenreCacheOption {
	return func(c *GenreCache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func NewGenreCache(fetch GenreFetcher, opts ...GenreCacheOption) *GenreCache {
	cache := &GenreCache{
		fetch:        fetch,
		ttl:          defaultGenreTTL,
		fetchTimeout: defaultGenreFetchTimeout,
		logger:       slog.Default(),
		now:          time.Now,
		snapshots:    make(map[domain.GenreKind]genreSnapshot, 2),
		refreshing:   make(map[domain.GenreKind]bool, 2),
	}
	for _, opt := range opts {
		opt(cache)
	}
	return cache
}

// Get returns the genre map for kind. A missing snapshot or force triggers a
// synchronous fetch; a stale snapshot is returned as-is and refreshed in the
// background.
func (c *GenreCache) Get(ctx context.Context, kind domain.GenreKind, force bool) (map[int]string, error) {
	if !force {
		if snapshot, ok := c.snapshot(kind); ok {
			if c.now().Sub(snapshot.refreshedAt) >= c.ttl {
				c.refreshAsync(kind)
			}
			return snapshot.names, nil
		}
	}

	key := string(kind)
	if force {
		key = "force:" + key
	}
	ch := c.group.DoChan(key, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fetchTimeout)
		defer cancel()
		return c.refresh(fetchCtx, kind, !force)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(map[int]string), nil
	}
}

// Names translates ids using the current snapshot. It never blocks on the
// network and returns nil when nothing resolves.
func (c *GenreCache) Names(kind domain.GenreKind, ids []int) []string {
	if len(ids) == 0 {
		return nil
	}
	snapshot, ok := c.snapshot(kind)
	if !ok {
		return nil
	}
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		if name, found := snapshot.names[id]; found && name != "" {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return nil
	}
	return names
}

func (c *GenreCache) snapshot(kind domain.GenreKind) (genreSnapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snapshot, ok := c.snapshots[kind]
	return snapshot, ok
}

func (c *GenreCache) install(kind domain.GenreKind, names map[int]string, fetchedAt time.Time) {
	c.mu.Lock()
	c.snapshots[kind] = genreSnapshot{names: names, refreshedAt: fetchedAt}
	c.mu.Unlock()
}

func (c *GenreCache) refreshAsync(kind domain.GenreKind) {
	c.mu.Lock()
	if c.refreshing[kind] {
		c.mu.Unlock()
		return
	}
	c.refreshing[kind] = true
	c.mu.Unlock()

	go func() {
		defer func() {
			c.mu.Lock()
			delete(c.refreshing, kind)
			c.mu.Unlock()
		}()
		ctx, cancel := context.WithTimeout(context.Background(), c.fetchTimeout)
		defer cancel()
		_, err, _ := c.group.Do(string(kind), func() (any, error) {
			return c.refresh(ctx, kind, true)
		})
		if err != nil {
			c.logger.Warn("background genre refresh failed, keeping stale map",
				slog.String("kind", string(kind)),
				slog.String("error", err.Error()),
			)
		}
	}()
}

// refresh installs a fresh map for kind. A stored map is taken only while it
// is younger than the TTL, and it keeps its original fetch time.
func (c *GenreCache) refresh(ctx context.Context, kind domain.GenreKind, useStore bool) (map[int]string, error) {
	if useStore && c.store != nil {
		stored, ok, err := c.store.Load(ctx, kind)
		switch {
		case err != nil:
			c.logger.Warn("genre store read failed",
				slog.String("kind", string(kind)),
				slog.String("error", err.Error()),
			)
		case ok && len(stored.Names) > 0 && c.now().Sub(stored.FetchedAt) < c.ttl:
			c.install(kind, stored.Names, stored.FetchedAt)
			metrics.GenreRefreshesTotal.WithLabelValues(string(kind), "store").Inc()
			return stored.Names, nil
		}
	}

	names, err := c.fetch(ctx, kind)
	if err != nil {
		metrics.GenreRefreshesTotal.WithLabelValues(string(kind), "error").Inc()
		return nil, err
	}
	names = maps.Clone(names)
	fetchedAt := c.now()
	c.install(kind, names, fetchedAt)
	metrics.GenreRefreshesTotal.WithLabelValues(string(kind), "ok").Inc()
	c.logger.Debug("genre map refreshed",
		slog.String("kind", string(kind)),
		slog.Int("genres", len(names)),
	)

	if c.store != nil {
		if err := c.store.Save(ctx, kind, StoredGenres{Names: names, FetchedAt: fetchedAt}, c.ttl); err != nil {
			c.logger.Warn("genre store write failed",
				slog.String("kind", string(kind)),
				slog.String("error", err.Error()),
			)
		}
	}
	return names, nil
}
