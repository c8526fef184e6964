// Ticktrax - Resilient Time-Tracking API Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ticktrax

package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/ticktrax/internal/cache"
	"github.com/tomtom215/ticktrax/internal/config"
	"github.com/tomtom215/ticktrax/internal/storage"
	"github.com/tomtom215/ticktrax/internal/tokens"
)

// testConfig returns a configuration with fast retries and no breaker.
func testConfig(baseURL string) *config.Config {
	cfg := config.Default()
	cfg.API.BaseURL = baseURL
	cfg.Retry.BaseDelay = time.Millisecond
	cfg.Retry.Jitter = 0
	cfg.Retry.MaxDelay = 10 * time.Millisecond
	cfg.Breaker.Enabled = false
	return cfg
}

type clientFixture struct {
	client *Client
	tokens *tokens.Store
	cache  *cache.Cache
	clock  *testClock
}

func newFixture(t *testing.T, srv *httptest.Server, mutate ...func(*config.Config)) *clientFixture {
	t.Helper()
	cfg := testConfig(srv.URL)
	for _, m := range mutate {
		m(cfg)
	}
	clock := newTestClock()
	c := cache.New(cfg.Cache.DefaultTTL, cache.WithClock(clock.Now))
	tok := tokens.NewStore(storage.NewMemoryStore())
	return &clientFixture{
		client: New(cfg, tok, c),
		tokens: tok,
		cache:  c,
		clock:  clock,
	}
}

func TestRequestCachesGET(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"is_clocked_in":true}`))
	}))
	defer srv.Close()

	f := newFixture(t, srv)
	ctx := context.Background()
	opts := &RequestOptions{CacheTTL: 30 * time.Second}

	for i := 0; i < 2; i++ {
		if _, err := f.client.Request(ctx, "/time/status", opts); err != nil {
			t.Fatalf("request %d: %v", i+1, err)
		}
	}
	if got := hits.Load(); got != 1 {
		t.Fatalf("server hits within TTL = %d, want 1", got)
	}

	f.clock.Advance(31 * time.Second)
	if _, err := f.client.Request(ctx, "/time/status", opts); err != nil {
		t.Fatalf("request after expiry: %v", err)
	}
	if got := hits.Load(); got != 2 {
		t.Errorf("server hits after expiry = %d, want 2", got)
	}
}

func TestRequestCacheKeyIgnoresParamOrder(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	f := newFixture(t, srv)
	ctx := context.Background()
	a := map[string]string{"page": "2", "limit": "10", "sort": "desc"}
	b := map[string]string{"sort": "desc", "limit": "10", "page": "2"}

	if _, err := f.client.Get(ctx, "/time/entries", a); err != nil {
		t.Fatal(err)
	}
	if _, err := f.client.Get(ctx, "/time/entries", b); err != nil {
		t.Fatal(err)
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("server hits = %d, want 1", got)
	}
}

func TestRequestDeduplicatesConcurrentGETs(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		<-release
		_, _ = w.Write([]byte(`{"id":1}`))
	}))
	defer srv.Close()

	f := newFixture(t, srv)
	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.client.Request(context.Background(), "/user/profile", nil)
			errs <- err
		}()
	}

	for hits.Load() == 0 {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("server hits = %d, want 1", got)
	}
}

func TestRequestRetriesTransientFailures(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	f := newFixture(t, srv)
	res, err := f.client.Request(context.Background(), "/time/entries", nil)
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if res.StatusCode != http.StatusOK {
		t.Errorf("status = %d", res.StatusCode)
	}
	if got := hits.Load(); got != 3 {
		t.Errorf("server hits = %d, want 3", got)
	}

	stats := f.client.Stats()
	if stats.TotalRequests != 1 || stats.Successful != 1 {
		t.Errorf("stats = %+v, want one successful request", stats)
	}
}

func TestRequestGivesUpAfterMaxAttempts(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"message":"maintenance"}`))
	}))
	defer srv.Close()

	f := newFixture(t, srv)
	_, err := f.client.Request(context.Background(), "/time/entries", nil)

	var he *HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("err = %v, want *HTTPError", err)
	}
	if he.StatusCode != http.StatusServiceUnavailable || he.Message != "maintenance" {
		t.Errorf("HTTPError = %d %q", he.StatusCode, he.Message)
	}
	if got := hits.Load(); got != 3 {
		t.Errorf("server hits = %d, want 3", got)
	}
}

func TestRequestDoesNotRetryNonRetryableStatus(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"errors":["email taken"]}`))
	}))
	defer srv.Close()

	f := newFixture(t, srv)
	_, err := f.client.Request(context.Background(), "/time/entries", nil)
	if StatusCode(err) != http.StatusUnprocessableEntity {
		t.Fatalf("err = %v, want 422", err)
	}
	if err.Error() != "email taken" {
		t.Errorf("message = %q", err.Error())
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("server hits = %d, want 1", got)
	}
}

func TestRequestPOSTRetryNeedsIdempotencyKey(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	var keys sync.Map
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := hits.Add(1)
		keys.Store(n, r.Header.Get("Idempotency-Key"))
		if n%2 == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	f := newFixture(t, srv)
	ctx := context.Background()

	_, err := f.client.Request(ctx, "/time/entries", &RequestOptions{Method: http.MethodPost})
	if StatusCode(err) != http.StatusBadGateway {
		t.Fatalf("POST without key: err = %v, want 502", err)
	}
	if got := hits.Load(); got != 1 {
		t.Fatalf("POST without key hit server %d times, want 1", got)
	}

	hits.Store(2) // next request is odd again and fails once
	_, err = f.client.Request(ctx, "/time/entries", &RequestOptions{Method: http.MethodPost, IdempotencyKey: "abc"})
	if err != nil {
		t.Fatalf("POST with key: %v", err)
	}
	for _, n := range []int32{3, 4} {
		if v, _ := keys.Load(n); v != "abc" {
			t.Errorf("attempt %d Idempotency-Key = %v, want abc", n, v)
		}
	}
}

func TestRequestHonorsRetryAfter(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	var first, second atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			first.Store(time.Now().UnixNano())
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		second.Store(time.Now().UnixNano())
	}))
	defer srv.Close()

	f := newFixture(t, srv, func(c *config.Config) {
		c.Retry.MaxDelay = 40 * time.Millisecond
	})
	if _, err := f.client.Request(context.Background(), "/time/entries", nil); err != nil {
		t.Fatal(err)
	}
	// Retry-After (1s) beats the 1ms backoff but is capped at max_delay.
	gap := time.Duration(second.Load() - first.Load())
	if gap < 40*time.Millisecond || gap > 900*time.Millisecond {
		t.Errorf("retry gap = %s, want about 40ms", gap)
	}
}

func TestRequestHeaders(t *testing.T) {
	t.Parallel()

	type seen struct{ auth, csrf, reqID, ctype string }
	var mu sync.Mutex
	got := map[string]seen{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		got[r.Method+" "+r.URL.Path] = seen{
			auth:  r.Header.Get("Authorization"),
			csrf:  r.Header.Get("x-csrf-token"),
			reqID: r.Header.Get("X-Request-ID"),
			ctype: r.Header.Get("Content-Type"),
		}
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	f := newFixture(t, srv)
	if err := f.tokens.Set("jwt-1", "csrf-1"); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	calls := []struct {
		method, path string
	}{
		{http.MethodGet, "/time/status"},
		{http.MethodPost, "/time/clock-in"},
		{http.MethodDelete, "/time/entries/4"},
		{http.MethodPost, "/auth/login"},
		{http.MethodPost, "/users"},
	}
	for _, c := range calls {
		if _, err := f.client.Request(ctx, c.path, &RequestOptions{Method: c.method}); err != nil {
			t.Fatalf("%s %s: %v", c.method, c.path, err)
		}
	}

	wantCSRF := map[string]bool{
		"GET /time/status":       false,
		"POST /time/clock-in":    true,
		"DELETE /time/entries/4": true,
		"POST /auth/login":       false,
		"POST /users":            false,
	}
	for key, want := range wantCSRF {
		s := got[key]
		if s.auth != "Bearer jwt-1" {
			t.Errorf("%s: Authorization = %q", key, s.auth)
		}
		if (s.csrf == "csrf-1") != want {
			t.Errorf("%s: csrf header = %q, want present=%v", key, s.csrf, want)
		}
		if s.reqID == "" {
			t.Errorf("%s: missing X-Request-ID", key)
		}
		if s.ctype != "application/json" {
			t.Errorf("%s: Content-Type = %q", key, s.ctype)
		}
	}
}

func TestRequestCustomCSRFHeader(t *testing.T) {
	t.Parallel()

	var header atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header.Store(r.Header.Get("X-XSRF-TOKEN"))
	}))
	defer srv.Close()

	f := newFixture(t, srv, func(c *config.Config) { c.API.CSRFHeader = "x-xsrf-token" })
	if err := f.tokens.Set("jwt", "xsrf"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.client.Post(context.Background(), "/time/clock-out", nil); err != nil {
		t.Fatal(err)
	}
	if got, _ := header.Load().(string); got != "xsrf" {
		t.Errorf("X-XSRF-TOKEN = %q, want xsrf", got)
	}
}

func TestRequestUnauthorizedClearsSession(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/user/profile" {
			_, _ = w.Write([]byte(`{"name":"x"}`))
			return
		}
		hits.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"token expired"}`))
	}))
	defer srv.Close()

	f := newFixture(t, srv)
	ctx := context.Background()
	if err := f.tokens.Set("jwt", "csrf"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.client.Profile(ctx); err != nil {
		t.Fatal(err)
	}

	var hookCalls atomic.Int32
	f.client.OnUnauthorized(func() { hookCalls.Add(1) })

	_, err := f.client.Request(ctx, "/time/entries", nil)
	if !IsUnauthorized(err) {
		t.Fatalf("err = %v, want 401", err)
	}
	if err.Error() != "token expired" {
		t.Errorf("message = %q", err.Error())
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("401 was retried: %d hits", got)
	}
	pair, _ := f.tokens.Get()
	if pair.Access != "" || pair.CSRF != "" {
		t.Errorf("tokens not cleared: %+v", pair)
	}
	if f.cache.Stats().Keys != 0 {
		t.Error("cache not cleared")
	}
	if hookCalls.Load() != 1 {
		t.Errorf("unauthorized hook called %d times", hookCalls.Load())
	}
}

func TestRequestLoginRejectionKeepsSession(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/user/profile" {
			_, _ = w.Write([]byte(`{"name":"x"}`))
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"Invalid email or password"}`))
	}))
	defer srv.Close()

	f := newFixture(t, srv)
	ctx := context.Background()
	if err := f.tokens.Set("jwt", "csrf"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.client.Profile(ctx); err != nil {
		t.Fatal(err)
	}

	var hookCalls atomic.Int32
	f.client.OnUnauthorized(func() { hookCalls.Add(1) })

	for _, ep := range []string{f.client.Endpoints().Login, f.client.Endpoints().Register} {
		_, err := f.client.Request(ctx, ep, &RequestOptions{Method: http.MethodPost})
		if !IsUnauthorized(err) {
			t.Fatalf("%s: err = %v, want 401", ep, err)
		}
	}

	pair, _ := f.tokens.Get()
	if pair.Access != "jwt" || pair.CSRF != "csrf" {
		t.Errorf("tokens = %+v, want unchanged", pair)
	}
	if f.cache.Stats().Keys != 1 {
		t.Errorf("cached keys = %d, want 1", f.cache.Stats().Keys)
	}
	if hookCalls.Load() != 0 {
		t.Errorf("unauthorized hook called %d times", hookCalls.Load())
	}
}

func TestRequestRateLimit(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	f := newFixture(t, srv, func(c *config.Config) { c.RateLimit.MaxRequests = 2 })
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, err := f.client.Request(ctx, fmt.Sprintf("/e/%d", i), nil); err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
	}
	_, err := f.client.Request(ctx, "/e/3", nil)
	if !errors.Is(err, ErrRateLimitExceeded) {
		t.Errorf("err = %v, want ErrRateLimitExceeded", err)
	}

	// Cached GETs do not need budget.
	if _, err := f.client.Request(ctx, "/e/0", nil); err != nil {
		t.Errorf("cached GET rejected: %v", err)
	}
}

func TestRequestNetworkError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	f := newFixture(t, &httptest.Server{URL: url})
	_, err := f.client.Request(context.Background(), "/time/status", nil)

	var ne *NetworkError
	if !errors.As(err, &ne) {
		t.Fatalf("err = %v, want *NetworkError", err)
	}
	if !f.client.retry.IsRetryable(err) {
		t.Error("connection refused should be retryable")
	}
	if got := f.client.Stats().Failed; got != 1 {
		t.Errorf("failed = %d, want 1", got)
	}
}

func TestRequestCircuitBreakerOpens(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := newFixture(t, srv, func(c *config.Config) {
		c.Retry.MaxAttempts = 1
		c.Breaker.Enabled = true
		c.Breaker.FailureThreshold = 2
		c.Breaker.Timeout = time.Hour
	})
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, _ = f.client.Request(ctx, "/time/entries", &RequestOptions{NoCache: true})
	}

	_, err := f.client.Request(ctx, "/time/entries", &RequestOptions{NoCache: true})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen", err)
	}
	var ne *NetworkError
	if !errors.As(err, &ne) {
		t.Error("circuit open should be a NetworkError")
	}
	if got := hits.Load(); got != 2 {
		t.Errorf("server hits = %d, want 2", got)
	}
	if got := f.client.Stats().CircuitState; got != "open" {
		t.Errorf("CircuitState = %q, want open", got)
	}
}

func TestRequestClientErrorsDoNotTripBreaker(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := newFixture(t, srv, func(c *config.Config) {
		c.Breaker.Enabled = true
		c.Breaker.FailureThreshold = 1
	})
	for i := 0; i < 3; i++ {
		_, err := f.client.Request(context.Background(), "/missing", nil)
		if StatusCode(err) != http.StatusNotFound {
			t.Fatalf("call %d: err = %v, want 404", i, err)
		}
	}
}

func TestOfflineMode(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"is_clocked_in":false}`))
	}))
	defer srv.Close()

	online := newFixture(t, srv)
	ctx := context.Background()
	if _, err := online.client.Request(ctx, "/time/status", nil); err != nil {
		t.Fatal(err)
	}

	cfg := testConfig(srv.URL)
	cfg.API.OfflineMode = true
	offline := New(cfg, online.tokens, online.cache)

	res, err := offline.Request(ctx, "/time/status", nil)
	if err != nil {
		t.Fatalf("offline cached GET: %v", err)
	}
	if res.Stale {
		t.Error("fresh entry reported stale")
	}

	online.clock.Advance(time.Hour)
	res, err = offline.Request(ctx, "/time/status", nil)
	if err != nil {
		t.Fatalf("offline stale GET: %v", err)
	}
	if !res.Stale {
		t.Error("expired entry should be marked stale")
	}

	if _, err := offline.Request(ctx, "/time/entries", nil); !errors.Is(err, ErrOffline) {
		t.Errorf("uncached GET err = %v, want ErrOffline", err)
	}
	if _, err := offline.Post(ctx, "/time/clock-in", nil); !errors.Is(err, ErrOffline) {
		t.Errorf("POST err = %v, want ErrOffline", err)
	}
	if !offline.OfflineAvailable("/time/status", nil) || offline.OfflineAvailable("/nope", nil) {
		t.Error("OfflineAvailable mismatch")
	}
}

func TestHooks(t *testing.T) {
	t.Parallel()

	var header atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header.Store(r.Header.Get("X-Device"))
	}))
	defer srv.Close()

	var statuses []int
	var mu sync.Mutex
	cfg := testConfig(srv.URL)
	c := New(cfg, tokens.NewStore(storage.NewMemoryStore()), nil,
		WithRequestHook(func(r *http.Request) error {
			r.Header.Set("X-Device", "cli")
			return nil
		}),
		WithResponseHook(func(r *http.Response) {
			mu.Lock()
			statuses = append(statuses, r.StatusCode)
			mu.Unlock()
		}),
	)
	if _, err := c.Request(context.Background(), "/ping", nil); err != nil {
		t.Fatal(err)
	}
	if got, _ := header.Load().(string); got != "cli" {
		t.Errorf("X-Device = %q", got)
	}
	if len(statuses) != 1 || statuses[0] != 200 {
		t.Errorf("response hook saw %v", statuses)
	}

	failing := New(cfg, tokens.NewStore(storage.NewMemoryStore()), nil,
		WithRequestHook(func(*http.Request) error { return errors.New("denied") }))
	if _, err := failing.Request(context.Background(), "/ping", nil); err == nil {
		t.Error("expected request hook error")
	}
}

func TestBatchAndPreload(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path == "/bad" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"path":"` + r.URL.Path + `"}`))
	}))
	defer srv.Close()

	f := newFixture(t, srv)
	ctx := context.Background()
	out := f.client.Batch(ctx, []BatchRequest{
		{Endpoint: "/a"},
		{Endpoint: "/bad"},
		{Endpoint: "/c"},
	})
	if len(out) != 3 {
		t.Fatalf("len = %d", len(out))
	}
	if out[0].Err != nil || out[2].Err != nil {
		t.Errorf("unexpected errors: %v, %v", out[0].Err, out[2].Err)
	}
	if StatusCode(out[1].Err) != http.StatusNotFound {
		t.Errorf("out[1].Err = %v, want 404", out[1].Err)
	}
	if string(out[2].Result.Raw) != `{"path":"/c"}` {
		t.Errorf("results out of order: %s", out[2].Result.Raw)
	}

	f.client.Preload(ctx, "/d", "/bad")
	if !f.client.OfflineAvailable("/d", nil) {
		t.Error("preloaded endpoint not cached")
	}
	before := hits.Load()
	if _, err := f.client.Get(ctx, "/d", nil); err != nil {
		t.Fatal(err)
	}
	if hits.Load() != before {
		t.Error("preloaded GET hit the network")
	}
}
