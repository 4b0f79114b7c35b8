package search

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// providerLimiters hands out one token bucket per provider name.
type providerLimiters struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func newProviderLimiters(rps float64, burst int) *providerLimiters {
	if rps <= 0 {
		return nil
	}
	return &providerLimiters{
		limit:    rate.Limit(rps),
		burst:    max(burst, 1),
		limiters: make(map[string]*rate.Limiter),
	}
}

func (l *providerLimiters) get(name string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	limiter, ok := l.limiters[name]
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters[name] = limiter
	}
	return limiter
}

func (s *Service) waitProviderRateLimit(ctx context.Context, name string) error {
	if s.rateLimits == nil {
		return nil
	}
	return s.rateLimits.get(name).Wait(ctx)
}
