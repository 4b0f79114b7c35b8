package common

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"medialib/searchservice/internal/metrics"
)

const (
	maxErrorBodyBytes = 2048
	maxJSONBodyBytes  = 8 * 1024 * 1024
)

// RetryPolicy controls how Executor retries one logical request.
// Zero-valued numeric fields and a nil status set fall back to DefaultRetryPolicy.
type RetryPolicy struct {
	MaxRetries         int
	BaseDelay          time.Duration
	Timeout            time.Duration
	RetryableStatuses  []int
	ExponentialBackoff bool
}

// DefaultRetryPolicy returns 3 attempts, 1s base delay with exponential growth,
// a 10s per-attempt timeout and the usual transient statuses.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:         3,
		BaseDelay:          time.Second,
		Timeout:            10 * time.Second,
		RetryableStatuses:  []int{http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout},
		ExponentialBackoff: true,
	}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	defaults := DefaultRetryPolicy()
	if p.MaxRetries <= 0 {
		p.MaxRetries = defaults.MaxRetries
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = defaults.BaseDelay
	}
	if p.Timeout <= 0 {
		p.Timeout = defaults.Timeout
	}
	if p.RetryableStatuses == nil {
		p.RetryableStatuses = defaults.RetryableStatuses
	}
	return p
}

// Delay is the pause after a failed attempt: 2^attempt*base when exponential,
// base*attempt otherwise.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if p.ExponentialBackoff {
		return time.Duration(1<<uint(attempt)) * p.BaseDelay
	}
	return p.BaseDelay * time.Duration(attempt)
}

func (p RetryPolicy) retryable(status int) bool {
	return slices.Contains(p.RetryableStatuses, status)
}

type RequestOptions struct {
	Method string
	Header http.Header
	Body   []byte
}

// RequestError is returned by ExecuteJSON when the final response is not 2xx.
type RequestError struct {
	Status int
	Body   string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Body)
}

// RetryExhaustedError is returned when every attempt ended with a retryable status.
type RetryExhaustedError struct {
	Attempts int
	Status   int
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("request failed after %d attempts: status %d", e.Attempts, e.Status)
}

type Executor struct {
	client *http.Client
	logger *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

type ExecutorOption func(*Executor)

func WithLogger(logger *slog.Logger) ExecutorOption {
	return func(e *Executor) {
		e.logger = logger
	}
}

func NewExecutor(client *http.Client, opts ...ExecutorOption) *Executor {
	if client == nil {
		client = &http.Client{}
	}
	executor := &Executor{
		client: client,
		logger: slog.Default(),
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(executor)
	}
	if executor.logger == nil {
		executor.logger = slog.Default()
	}
	return executor
}

// Execute performs the request under policy. A 2xx response, or a non-2xx
// response whose status is not retryable, is returned to the caller, who must
// close its body. Network failures and timeouts are retried like retryable
// statuses and the last one is returned unchanged.
func (e *Executor) Execute(ctx context.Context, rawURL string, opts RequestOptions, policy RetryPolicy) (*http.Response, error) {
	policy = policy.withDefaults()
	target := redactURL(rawURL)
	host := hostOf(rawURL)

	for attempt := 1; ; attempt++ {
		final := attempt >= policy.MaxRetries

		resp, err := e.attempt(ctx, rawURL, opts, policy.Timeout)
		if err != nil {
			var buildErr *buildRequestError
			if errors.As(err, &buildErr) {
				return nil, buildErr.err
			}
			if ctx.Err() != nil {
				return nil, err
			}
			outcome := "network_error"
			if errors.Is(err, context.DeadlineExceeded) {
				outcome = "timeout"
				e.logger.Error("upstream request timeout",
					slog.String("target", target),
					slog.Int("attempt", attempt),
					slog.Int("maxAttempts", policy.MaxRetries),
				)
			} else {
				e.logger.Error("upstream network error",
					slog.String("target", target),
					slog.Int("attempt", attempt),
					slog.Int("maxAttempts", policy.MaxRetries),
					slog.String("error", err.Error()),
				)
			}
			metrics.UpstreamAttemptsTotal.WithLabelValues(host, outcome).Inc()
			if final {
				return nil, err
			}
			if sleepErr := e.wait(ctx, target, attempt, policy); sleepErr != nil {
				return nil, sleepErr
			}
			continue
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			metrics.UpstreamAttemptsTotal.WithLabelValues(host, "ok").Inc()
			if attempt > 1 {
				e.logger.Info("upstream request succeeded after retry",
					slog.String("target", target),
					slog.Int("attempt", attempt),
				)
			}
			return resp, nil
		}

		if !policy.retryable(resp.StatusCode) {
			metrics.UpstreamAttemptsTotal.WithLabelValues(host, "rejected").Inc()
			return resp, nil
		}

		status := resp.StatusCode
		drainAndClose(resp)
		metrics.UpstreamAttemptsTotal.WithLabelValues(host, "retryable_status").Inc()
		if final {
			return nil, &RetryExhaustedError{Attempts: attempt, Status: status}
		}
		e.logger.Warn("upstream returned retryable status",
			slog.String("target", target),
			slog.Int("status", status),
			slog.Int("attempt", attempt),
			slog.Int("maxAttempts", policy.MaxRetries),
		)
		if sleepErr := e.wait(ctx, target, attempt, policy); sleepErr != nil {
			return nil, sleepErr
		}
	}
}

type buildRequestError struct {
	err error
}

func (e *buildRequestError) Error() string { return e.err.Error() }

func (e *Executor) attempt(ctx context.Context, rawURL string, opts RequestOptions, timeout time.Duration) (*http.Response, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)

	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if opts.Body != nil {
		body = bytes.NewReader(opts.Body)
	}
	req, err := http.NewRequestWithContext(attemptCtx, method, rawURL, body)
	if err != nil {
		cancel()
		return nil, &buildRequestError{err: fmt.Errorf("build request: %w", err)}
	}
	for key, values := range opts.Header {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}

	resp, err := e.client.Do(req)
	if err != nil {
		cancel()
		return nil, err
	}
	// The attempt deadline keeps covering the body until the caller closes it.
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

func (e *Executor) wait(ctx context.Context, target string, attempt int, policy RetryPolicy) error {
	delay := policy.Delay(attempt)
	e.logger.Debug("retrying upstream request",
		slog.String("target", target),
		slog.Duration("delay", delay),
		slog.Int("nextAttempt", attempt+1),
	)
	return e.sleep(ctx, delay)
}

// ExecuteJSON runs Execute and decodes a 2xx JSON body into T. Any other final
// status yields a *RequestError carrying the status and a truncated body.
func ExecuteJSON[T any](ctx context.Context, exec *Executor, rawURL string, opts RequestOptions, policy RetryPolicy) (T, error) {
	var zero T

	header := opts.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	if header.Get("Accept") == "" {
		header.Set("Accept", "application/json")
	}
	opts.Header = header

	resp, err := exec.Execute(ctx, rawURL, opts, policy)
	if err != nil {
		return zero, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		text := strings.TrimSpace(string(body))
		if readErr != nil {
			text = "Unknown error"
		}
		return zero, &RequestError{Status: resp.StatusCode, Body: text}
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxJSONBodyBytes))
	if err != nil {
		return zero, err
	}
	var out T
	if err := json.Unmarshal(payload, &out); err != nil {
		return zero, fmt.Errorf("decode response: %w", err)
	}
	return out, nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

func drainAndClose(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBodyBytes))
	_ = resp.Body.Close()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func hostOf(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return "unknown"
	}
	return parsed.Host
}

// redactURL drops the query string, which carries API keys.
func redactURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "invalid-url"
	}
	return parsed.Scheme + "://" + parsed.Host + parsed.Path
}
