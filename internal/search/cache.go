package search

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"medialib/searchservice/internal/domain"
	"medialib/searchservice/internal/metrics"
)

const (
	defaultCacheTTL        = 10 * time.Minute
	defaultCacheMaxEntries = 400
	redisCacheTimeout      = 500 * time.Millisecond
)

type cachedSearchResponse struct {
	response  domain.SearchResponse
	storedAt  time.Time
	expiresAt time.Time
}

func buildSearchCacheKey(query domain.SearchQuery) string {
	return string(query.MediaType) + "|" + strings.ToLower(strings.Join(strings.Fields(query.Text), " "))
}

// cacheLookup checks the in-process map first and then Redis. Redis hits are
// copied into the map so repeated lookups stay local.
func (s *Service) cacheLookup(ctx context.Context, key string, now time.Time) (domain.SearchResponse, bool) {
	s.cacheMu.Lock()
	entry, ok := s.cache[key]
	if ok && now.Before(entry.expiresAt) {
		response := cloneSearchResponse(entry.response)
		s.cacheMu.Unlock()
		metrics.CacheHitsTotal.Inc()
		return response, true
	}
	if ok {
		delete(s.cache, key)
	}
	s.cacheMu.Unlock()

	if s.redisCache != nil {
		redisCtx, cancel := context.WithTimeout(ctx, redisCacheTimeout)
		defer cancel()
		response, found, err := s.redisCache.Get(redisCtx, key)
		if err != nil {
			s.logger.Debug("redis cache read failed", slog.String("key", key), slog.String("error", err.Error()))
		}
		if err == nil && found {
			metrics.CacheHitsTotal.Inc()
			s.cacheStoreMemory(key, response, now)
			return response, true
		}
	}

	metrics.CacheMissesTotal.Inc()
	return domain.SearchResponse{}, false
}

func (s *Service) cacheStore(ctx context.Context, key string, response domain.SearchResponse, now time.Time) {
	if s.redisCache != nil {
		redisCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), redisCacheTimeout)
		defer cancel()
		if err := s.redisCache.Set(redisCtx, key, response, s.cacheTTL); err != nil {
			s.logger.Debug("redis cache write failed", slog.String("key", key), slog.String("error", err.Error()))
		}
	}
	s.cacheStoreMemory(key, response, now)
}

func (s *Service) cacheStoreMemory(key string, response domain.SearchResponse, now time.Time) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	s.cache[key] = &cachedSearchResponse{
		response:  cloneSearchResponse(response),
		storedAt:  now,
		expiresAt: now.Add(s.cacheTTL),
	}
	s.trimCacheLocked(now)
}

// trimCacheLocked drops expired entries, then the oldest ones beyond the cap.
func (s *Service) trimCacheLocked(now time.Time) {
	for key, entry := range s.cache {
		if !now.Before(entry.expiresAt) {
			delete(s.cache, key)
		}
	}

	maxEntries := s.cacheMaxEntries
	if maxEntries <= 0 {
		maxEntries = defaultCacheMaxEntries
	}
	if len(s.cache) <= maxEntries {
		return
	}

	keys := make([]string, 0, len(s.cache))
	for key := range s.cache {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		return s.cache[keys[i]].storedAt.Before(s.cache[keys[j]].storedAt)
	})
	for _, key := range keys[:len(keys)-maxEntries] {
		delete(s.cache, key)
	}
}

func cloneSearchResponse(response domain.SearchResponse) domain.SearchResponse {
	cloned := response
	cloned.Results = make([]domain.SearchResult, len(response.Results))
	for i, item := range response.Results {
		copied := item
		copied.Genres = append([]string(nil), item.Genres...)
		cloned.Results[i] = copied
	}
	return cloned
}
