package common

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func newTestExecutor(t *testing.T, delays *[]time.Duration) *Executor {
	t.Helper()
	exec := NewExecutor(&http.Client{}, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	exec.sleep = func(ctx context.Context, d time.Duration) error {
		if delays != nil {
			*delays = append(*delays, d)
		}
		return ctx.Err()
	}
	return exec
}

func statusSequenceServer(t *testing.T, statuses []int, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(calls.Add(1))
		status := statuses[len(statuses)-1]
		if n <= len(statuses) {
			status = statuses[n-1]
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	t.Cleanup(server.Close)
	return server
}

func fastPolicy(maxRetries int, exponential bool) RetryPolicy {
	return RetryPolicy{
		MaxRetries:         maxRetries,
		BaseDelay:          10 * time.Millisecond,
		Timeout:            2 * time.Second,
		RetryableStatuses:  []int{429, 500, 502, 503, 504},
		ExponentialBackoff: exponential,
	}
}

// ---------------------------------------------------------------------------
// Execute
// ---------------------------------------------------------------------------

func TestExecuteSucceedsFirstAttempt(t *testing.T) {
	var calls atomic.Int32
	server := statusSequenceServer(t, []int{200}, &calls)
	var delays []time.Duration
	exec := newTestExecutor(t, &delays)

	resp, err := exec.Execute(context.Background(), server.URL, RequestOptions{}, fastPolicy(3, true))
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	resp.Body.Close()
	if got := calls.Load(); got != 1 {
		t.Fatalf("expected 1 call, got %d", got)
	}
	if len(delays) != 0 {
		t.Fatalf("expected no delays, got %v", delays)
	}
}

func TestExecuteRetriesRetryableStatusThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	server := statusSequenceServer(t, []int{503, 502, 200}, &calls)
	var delays []time.Duration
	exec := newTestExecutor(t, &delays)

	resp, err := exec.Execute(context.Background(), server.URL, RequestOptions{}, fastPolicy(3, true))
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("expected 3 calls, got %d", got)
	}
	want := []time.Duration{20 * time.Millisecond, 40 * time.Millisecond}
	if len(delays) != len(want) || delays[0] != want[0] || delays[1] != want[1] {
		t.Fatalf("expected exponential delays %v, got %v", want, delays)
	}
}

func TestExecuteExhaustsRetriesOnRetryableStatus(t *testing.T) {
	var calls atomic.Int32
	server := statusSequenceServer(t, []int{503}, &calls)
	exec := newTestExecutor(t, nil)

	resp, err := exec.Execute(context.Background(), server.URL, RequestOptions{}, fastPolicy(3, true))
	if resp != nil {
		t.Fatal("expected no response after exhaustion")
	}
	var exhausted *RetryExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected RetryExhaustedError, got %v", err)
	}
	if exhausted.Attempts != 3 || exhausted.Status != 503 {
		t.Fatalf("unexpected exhaustion details: %+v", exhausted)
	}
	if !strings.Contains(err.Error(), "3 attempts") || !strings.Contains(err.Error(), "503") {
		t.Fatalf("error should name attempts and status, got %q", err.Error())
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", got)
	}
}

func TestExecuteReturnsNonRetryableStatusImmediately(t *testing.T) {
	var calls atomic.Int32
	server := statusSequenceServer(t, []int{404}, &calls)
	exec := newTestExecutor(t, nil)

	resp, err := exec.Execute(context.Background(), server.URL, RequestOptions{}, fastPolicy(3, true))
	if err != nil {
		t.Fatalf("expected response for non-retryable status, got %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("expected 1 call, got %d", got)
	}
}

func TestExecuteLinearBackoff(t *testing.T) {
	var calls atomic.Int32
	server := statusSequenceServer(t, []int{500}, &calls)
	var delays []time.Duration
	exec := newTestExecutor(t, &delays)

	_, err := exec.Execute(context.Background(), server.URL, RequestOptions{}, fastPolicy(3, false))
	if err == nil {
		t.Fatal("expected exhaustion error")
	}
	want := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}
	if len(delays) != 2 || delays[0] != want[0] || delays[1] != want[1] {
		t.Fatalf("expected linear delays %v, got %v", want, delays)
	}
}

func TestExecuteRetriesTimeoutAndReturnsLastError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()
	exec := newTestExecutor(t, nil)

	policy := fastPolicy(2, true)
	policy.Timeout = 30 * time.Millisecond
	_, err := exec.Execute(context.Background(), server.URL, RequestOptions{}, policy)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("expected 2 attempts, got %d", got)
	}
}

func TestExecuteStopsWhenContextCancelledDuringBackoff(t *testing.T) {
	var calls atomic.Int32
	server := statusSequenceServer(t, []int{503}, &calls)
	exec := newTestExecutor(t, nil)
	exec.sleep = func(ctx context.Context, d time.Duration) error {
		return context.Canceled
	}

	_, err := exec.Execute(context.Background(), server.URL, RequestOptions{}, fastPolicy(5, true))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("expected 1 call before cancellation, got %d", got)
	}
}

func TestExecuteForwardsHeaders(t *testing.T) {
	var userAgent atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userAgent.Store(r.UserAgent())
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()
	exec := newTestExecutor(t, nil)

	resp, err := exec.Execute(context.Background(), server.URL, RequestOptions{
		Header: http.Header{"User-Agent": {"media-search/1.0"}},
	}, fastPolicy(1, true))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()
	if got, _ := userAgent.Load().(string); got != "media-search/1.0" {
		t.Fatalf("expected forwarded user agent, got %q", got)
	}
}

// ---------------------------------------------------------------------------
// ExecuteJSON
// ---------------------------------------------------------------------------

func TestExecuteJSONDecodesBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") != "application/json" {
			t.Errorf("expected JSON accept header, got %q", r.Header.Get("Accept"))
		}
		_, _ = w.Write([]byte(`{"name":"Inception","year":2010}`))
	}))
	defer server.Close()
	exec := newTestExecutor(t, nil)

	type payload struct {
		Name string `json:"name"`
		Year int    `json:"year"`
	}
	got, err := ExecuteJSON[payload](context.Background(), exec, server.URL, RequestOptions{}, fastPolicy(3, true))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Name != "Inception" || got.Year != 2010 {
		t.Fatalf("unexpected payload: %+v", got)
	}
}

func TestExecuteJSONReturnsRequestErrorForClientError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte("invalid api key"))
	}))
	defer server.Close()
	exec := newTestExecutor(t, nil)

	_, err := ExecuteJSON[map[string]any](context.Background(), exec, server.URL, RequestOptions{}, fastPolicy(3, true))
	var requestErr *RequestError
	if !errors.As(err, &requestErr) {
		t.Fatalf("expected RequestError, got %v", err)
	}
	if requestErr.Status != http.StatusUnauthorized || requestErr.Body != "invalid api key" {
		t.Fatalf("unexpected request error: %+v", requestErr)
	}
}

func TestExecuteJSONRejectsMalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results": [`))
	}))
	defer server.Close()
	exec := newTestExecutor(t, nil)

	_, err := ExecuteJSON[map[string]any](context.Background(), exec, server.URL, RequestOptions{}, fastPolicy(3, true))
	if err == nil || !strings.Contains(err.Error(), "decode response") {
		t.Fatalf("expected decode error, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// RetryPolicy
// ---------------------------------------------------------------------------

func TestRetryPolicyDelay(t *testing.T) {
	exponential := RetryPolicy{BaseDelay: time.Second, ExponentialBackoff: true}
	if got := exponential.Delay(1); got != 2*time.Second {
		t.Fatalf("exponential attempt 1: got %v", got)
	}
	if got := exponential.Delay(3); got != 8*time.Second {
		t.Fatalf("exponential attempt 3: got %v", got)
	}
	linear := RetryPolicy{BaseDelay: time.Second}
	if got := linear.Delay(3); got != 3*time.Second {
		t.Fatalf("linear attempt 3: got %v", got)
	}
}

func TestRetryPolicyDefaultsFillZeroFields(t *testing.T) {
	policy := RetryPolicy{}.withDefaults()
	defaults := DefaultRetryPolicy()
	if policy.MaxRetries != defaults.MaxRetries || policy.BaseDelay != defaults.BaseDelay || policy.Timeout != defaults.Timeout {
		t.Fatalf("unexpected defaults: %+v", policy)
	}
	if !policy.retryable(429) || policy.retryable(404) {
		t.Fatal("unexpected retryable status set")
	}
}

func TestRedactURLDropsQuery(t *testing.T) {
	got := redactURL("https://api.themoviedb.org/3/search/movie?api_key=secret&query=x")
	if strings.Contains(got, "secret") {
		t.Fatalf("api key leaked into %q", got)
	}
	if got != "https://api.themoviedb.org/3/search/movie" {
		t.Fatalf("unexpected redacted url %q", got)
	}
}
