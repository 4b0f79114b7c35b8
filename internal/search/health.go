package search

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"medialib/searchservice/internal/domain"
	"medialib/searchservice/internal/metrics"
)

const (
	providerFailureThreshold = 3
	providerBlockBase        = 2 * time.Minute
	providerBlockMax         = 15 * time.Minute
)

// providerHealth tracks one provider across aggregations. A provider fails an
// aggregation only when none of its page or window calls succeeded.
type providerHealth struct {
	consecutiveFailures int
	blockedUntil        time.Time
	lastError           string
	lastSuccessAt       time.Time
	lastFailureAt       time.Time
	lastLatency         time.Duration
	lastTimeout         bool
	lastQuery           string
	totalRequests       int64
	totalFailures       int64
	timeoutCount        int64
}

// providerOutcome summarizes the calls one provider made during one aggregation.
type providerOutcome struct {
	calls    int
	failures int
	lastErr  error
	timeouts int
	latency  time.Duration
}

func (o providerOutcome) failed() bool {
	return o.calls > 0 && o.failures == o.calls
}

func (o providerOutcome) err() error {
	if !o.failed() {
		return nil
	}
	return fmt.Errorf("%d/%d calls failed: %w", o.failures, o.calls, o.lastErr)
}

// checkProviderAvailable returns errProviderBlocked while the circuit is open.
func (s *Service) checkProviderAvailable(name string, now time.Time) error {
	s.healthMu.Lock()
	defer s.healthMu.Unlock()

	state := s.health[name]
	if state == nil || state.blockedUntil.IsZero() || now.After(state.blockedUntil) {
		return nil
	}
	return fmt.Errorf("%w until %s: %s", errProviderBlocked, state.blockedUntil.UTC().Format(time.RFC3339), state.lastError)
}

func (s *Service) recordProviderOutcome(name, query string, outcome providerOutcome, now time.Time) {
	if outcome.calls == 0 {
		return
	}

	s.healthMu.Lock()
	defer s.healthMu.Unlock()

	state := s.health[name]
	if state == nil {
		state = &providerHealth{}
		s.health[name] = state
	}
	state.totalRequests += int64(outcome.calls)
	state.totalFailures += int64(outcome.failures)
	state.timeoutCount += int64(outcome.timeouts)
	state.lastQuery = query
	state.lastLatency = outcome.latency
	state.lastTimeout = outcome.timeouts > 0
	metrics.ProviderRequestDuration.WithLabelValues(name).Observe(outcome.latency.Seconds())
	countProviderCalls(name, outcome)

	if outcome.failures > 0 {
		state.lastFailureAt = now
		state.lastError = outcome.lastErr.Error()
	}
	if !outcome.failed() {
		state.consecutiveFailures = 0
		state.blockedUntil = time.Time{}
		state.lastSuccessAt = now
		if outcome.failures == 0 {
			state.lastError = ""
		}
		metrics.ProviderAvailable.WithLabelValues(name).Set(1)
		return
	}

	state.consecutiveFailures++
	if state.consecutiveFailures >= providerFailureThreshold {
		state.blockedUntil = now.Add(exponentialBlockDuration(state.consecutiveFailures))
		metrics.ProviderAvailable.WithLabelValues(name).Set(0)
	}
}

// countProviderCalls adds one sample per page or window call.
func countProviderCalls(name string, outcome providerOutcome) {
	if ok := outcome.calls - outcome.failures; ok > 0 {
		metrics.ProviderRequestsTotal.WithLabelValues(name, "ok").Add(float64(ok))
	}
	if failed := outcome.failures - outcome.timeouts; failed > 0 {
		metrics.ProviderRequestsTotal.WithLabelValues(name, "error").Add(float64(failed))
	}
	if outcome.timeouts > 0 {
		metrics.ProviderRequestsTotal.WithLabelValues(name, "timeout").Add(float64(outcome.timeouts))
	}
}

// exponentialBlockDuration is providerBlockBase × 2^(failures - threshold),
// capped at providerBlockMax.
func exponentialBlockDuration(consecutiveFailures int) time.Duration {
	exponent := max(consecutiveFailures-providerFailureThreshold, 0)
	d := providerBlockBase
	for range exponent {
		d *= 2
		if d >= providerBlockMax {
			return providerBlockMax
		}
	}
	return d
}

func isTimeoutError(err error) bool {
	return err != nil && errors.Is(err, context.DeadlineExceeded)
}

func (s *Service) ProviderDiagnostics() []domain.ProviderDiagnostics {
	infos := s.Providers()
	if len(infos) == 0 {
		return nil
	}

	s.healthMu.Lock()
	defer s.healthMu.Unlock()

	items := make([]domain.ProviderDiagnostics, 0, len(infos))
	for _, info := range infos {
		item := domain.ProviderDiagnostics{
			Name:       info.Name,
			Label:      info.Label,
			Kind:       info.Kind,
			Enabled:    info.Enabled,
			MediaTypes: info.MediaTypes,
		}
		if state := s.health[info.Name]; state != nil {
			item.ConsecutiveFailures = state.consecutiveFailures
			item.BlockedUntil = timePtr(state.blockedUntil)
			item.LastError = state.lastError
			item.LastSuccessAt = timePtr(state.lastSuccessAt)
			item.LastFailureAt = timePtr(state.lastFailureAt)
			item.LastLatencyMS = state.lastLatency.Milliseconds()
			item.LastTimeout = state.lastTimeout
			item.LastQuery = state.lastQuery
			item.TotalRequests = state.totalRequests
			item.TotalFailures = state.totalFailures
			item.TimeoutCount = state.timeoutCount
		}
		items = append(items, item)
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].Name < items[j].Name
	})
	return items
}

func timePtr(value time.Time) *time.Time {
	if value.IsZero() {
		return nil
	}
	return &value
}
