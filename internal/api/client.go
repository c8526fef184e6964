// Ticktrax - Resilient Time-Tracking API Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ticktrax

/*
Package api is the HTTP client for the Ticktrax backend.

Every call goes through Client.Request, which layers, in order:

  - GET de-duplication: concurrent identical GETs share one execution
  - the TTL response cache (GET only)
  - a client-side sliding-window rate limit
  - a circuit breaker around each network attempt
  - retry with exponential backoff and jitter for transient failures
  - response normalization into a Result, or a typed error

A 401 on any call clears the stored tokens and the response cache and
runs the hooks registered with OnUnauthorized.

Usage:

	client := api.New(cfg, tokenStore, nil)
	res, err := client.Request(ctx, "/time/entries", &api.RequestOptions{
	    Params: map[string]string{"page": "1"},
	})
*/
package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/ticktrax/internal/cache"
	"github.com/tomtom215/ticktrax/internal/config"
	"github.com/tomtom215/ticktrax/internal/logging"
	"github.com/tomtom215/ticktrax/internal/metrics"
	"github.com/tomtom215/ticktrax/internal/tokens"
)

const (
	maxResponseSize  = 10 << 20
	batchConcurrency = 6
)

// RequestOptions controls a single call. The zero value is a cached GET.
type RequestOptions struct {
	Method  string
	Params  map[string]string // sent as the query string
	Body    any               // JSON encoded
	Headers map[string]string

	// CacheTTL overrides the default TTL for this GET.
	CacheTTL time.Duration

	// NoCache skips the cache for this GET, both read and write.
	NoCache bool

	// IdempotencyKey is sent as Idempotency-Key and allows POST and PATCH
	// to be retried.
	IdempotencyKey string
}

// RequestHook may modify an outgoing request. Returning an error aborts
// the call.
type RequestHook func(*http.Request) error

// ResponseHook observes every response before it is normalized.
type ResponseHook func(*http.Response)

// Client is the resilient backend client. It is safe for concurrent use.
type Client struct {
	http      *http.Client
	baseURL   string
	cfg       config.APIConfig
	statusTTL time.Duration

	tokens  *tokens.Store
	cache   *cache.Cache
	dedup   *Deduplicator
	limiter *RateLimiter
	retry   *RetryPolicy
	breaker *breaker

	reqHooks  []RequestHook
	respHooks []ResponseHook

	mu             sync.RWMutex
	onUnauthorized []func()

	stats clientStats
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithRequestHook adds a hook run on every outgoing request.
func WithRequestHook(h RequestHook) Option {
	return func(c *Client) { c.reqHooks = append(c.reqHooks, h) }
}

// WithResponseHook adds a hook run on every response.
func WithResponseHook(h ResponseHook) Option {
	return func(c *Client) { c.respHooks = append(c.respHooks, h) }
}

// WithRateLimiter replaces the limiter built from configuration.
func WithRateLimiter(l *RateLimiter) Option {
	return func(c *Client) { c.limiter = l }
}

// WithRetryPolicy replaces the policy built from configuration.
func WithRetryPolicy(p *RetryPolicy) Option {
	return func(c *Client) { c.retry = p }
}

// New creates a Client. A nil respCache gets a fresh cache with the
// configured default TTL.
func New(cfg *config.Config, tok *tokens.Store, respCache *cache.Cache, opts ...Option) *Client {
	if respCache == nil {
		respCache = cache.New(cfg.Cache.DefaultTTL)
	}
	c := &Client{
		http:      &http.Client{Timeout: cfg.API.Timeout},
		baseURL:   strings.TrimRight(cfg.API.BaseURL, "/"),
		cfg:       cfg.API,
		statusTTL: cfg.Cache.StatusTTL,
		tokens:    tok,
		cache:     respCache,
		dedup:     NewDeduplicator(),
		limiter:   NewRateLimiter(cfg.RateLimit.MaxRequests, cfg.RateLimit.Window),
		retry:     NewRetryPolicy(cfg.Retry),
		breaker:   newBreaker(cfg.Breaker),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OnUnauthorized registers fn to run after a 401 has cleared the session.
func (c *Client) OnUnauthorized(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onUnauthorized = append(c.onUnauthorized, fn)
}

// Cache returns the response cache.
func (c *Client) Cache() *cache.Cache { return c.cache }

// Tokens returns the token store.
func (c *Client) Tokens() *tokens.Store { return c.tokens }

// Endpoints returns the configured endpoint paths.
func (c *Client) Endpoints() config.EndpointsConfig { return c.cfg.Endpoints }

// Offline reports whether the client runs in explicit offline mode.
func (c *Client) Offline() bool { return c.cfg.OfflineMode }

// Get is Request with a GET and params.
func (c *Client) Get(ctx context.Context, endpoint string, params map[string]string) (*Result, error) {
	return c.Request(ctx, endpoint, &RequestOptions{Params: params})
}

// Post is Request with a POST and a JSON body.
func (c *Client) Post(ctx context.Context, endpoint string, body any) (*Result, error) {
	return c.Request(ctx, endpoint, &RequestOptions{Method: http.MethodPost, Body: body})
}

// Request performs one logical API call. See the package documentation for
// the layers applied.
func (c *Client) Request(ctx context.Context, endpoint string, opts *RequestOptions) (*Result, error) {
	if opts == nil {
		opts = &RequestOptions{}
	}
	method := strings.ToUpper(opts.Method)
	if method == "" {
		method = http.MethodGet
	}
	key := cache.GenerateKey(endpoint, opts.Params)
	ctx = logging.EnsureCorrelationID(ctx)

	if c.cfg.OfflineMode {
		return c.offlineRequest(method, key)
	}
	if method != http.MethodGet {
		return c.execute(ctx, method, endpoint, key, opts)
	}

	if !c.dedup.InFlight(key) && !opts.NoCache {
		if v, ok := c.cache.Get(key); ok {
			if res, ok := v.(*Result); ok {
				logging.Ctx(ctx).Debug().Str("key", key).Msg("cache hit")
				return res.clone(), nil
			}
		}
	}

	// The shared execution must outlive any single waiter.
	shared := context.WithoutCancel(ctx)
	res, err, _ := c.dedup.Do(ctx, key, func() (*Result, error) {
		return c.execute(shared, method, endpoint, key, opts)
	})
	return res, err
}

// execute runs the admission check and the attempt/retry loop.
func (c *Client) execute(ctx context.Context, method, endpoint, key string, opts *RequestOptions) (*Result, error) {
	log := logging.Ctx(ctx)

	if !c.limiter.Admit() {
		metrics.APIRateLimitRejections.Inc()
		log.Warn().Str("endpoint", endpoint).Msg("client rate limit exceeded")
		return nil, ErrRateLimitExceeded
	}

	var body []byte
	if opts.Body != nil {
		b, err := json.Marshal(opts.Body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		body = b
	}

	retryAllowed := c.retry.Allowed(method, opts.IdempotencyKey != "")
	start := time.Now()

	for attempt := 1; ; attempt++ {
		c.limiter.Record()

		res, err := c.attempt(ctx, method, endpoint, body, opts)
		if err == nil {
			c.stats.record(true, time.Since(start))
			if method == http.MethodGet && !opts.NoCache {
				ttl := opts.CacheTTL
				if ttl <= 0 {
					ttl = c.cache.DefaultTTL()
				}
				c.cache.SetWithTTL(key, res.clone(), ttl)
			}
			log.Debug().Str("method", method).Str("endpoint", endpoint).Int("status", res.StatusCode).Int("attempt", attempt).Msg("request completed")
			return res, nil
		}

		if IsUnauthorized(err) {
			c.stats.record(false, time.Since(start))
			if !c.isCredentialEndpoint(endpoint) {
				c.handleUnauthorized(ctx)
			}
			return nil, err
		}

		if attempt >= c.retry.MaxAttempts || !retryAllowed || !c.retry.IsRetryable(err) {
			c.stats.record(false, time.Since(start))
			log.Debug().Err(err).Str("method", method).Str("endpoint", endpoint).Int("attempt", attempt).Msg("request failed")
			return nil, err
		}

		delay := c.retry.Delay(attempt)
		var he *HTTPError
		if errors.As(err, &he) && he.retryAfter > delay {
			delay = min(he.retryAfter, c.retry.MaxDelay)
		}
		metrics.APIRetries.WithLabelValues(method).Inc()
		log.Warn().Err(err).Str("method", method).Str("endpoint", endpoint).
			Int("attempt", attempt).Dur("delay", delay).Msg("retrying request")

		if err := sleepCtx(ctx, delay); err != nil {
			c.stats.record(false, time.Since(start))
			return nil, err
		}
	}
}

// attempt performs one network round trip through the circuit breaker.
func (c *Client) attempt(ctx context.Context, method, endpoint string, body []byte, opts *RequestOptions) (*Result, error) {
	req, err := c.newRequest(ctx, method, endpoint, body, opts)
	if err != nil {
		return nil, err
	}

	return c.breaker.execute(func() (*Result, error) {
		start := time.Now()
		resp, err := c.http.Do(req)
		if err != nil {
			metrics.RecordAPIRequest(method, 0, time.Since(start))
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, &NetworkError{Op: method + " " + endpoint, Err: err}
		}
		defer resp.Body.Close()
		metrics.RecordAPIRequest(method, resp.StatusCode, time.Since(start))

		for _, h := range c.respHooks {
			h(resp)
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			he := newHTTPError(resp.StatusCode, readBodyForError(resp.Body))
			if d, ok := retryAfter(resp.Header, time.Now()); ok {
				he.retryAfter = d
			}
			return nil, he
		}

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
		if err != nil {
			return nil, &NetworkError{Op: "read response", Err: err}
		}
		return normalize(resp.StatusCode, data), nil
	})
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body []byte, opts *RequestOptions) (*http.Request, error) {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.buildURL(endpoint, opts.Params), rdr)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", logging.NewRequestID())
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}

	pair, err := c.tokens.Get()
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("failed to read tokens, sending request without credentials")
	}
	if pair.Access != "" {
		req.Header.Set("Authorization", "Bearer "+pair.Access)
	}
	if pair.CSRF != "" && stateChanging(method) && !c.isAuthEndpoint(endpoint) {
		req.Header.Set(c.cfg.CSRFHeader, pair.CSRF)
	}
	if opts.IdempotencyKey != "" {
		req.Header.Set("Idempotency-Key", opts.IdempotencyKey)
	}
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}

	for _, h := range c.reqHooks {
		if err := h(req); err != nil {
			return nil, fmt.Errorf("request hook: %w", err)
		}
	}
	return req, nil
}

func (c *Client) buildURL(endpoint string, params map[string]string) string {
	u := endpoint
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		u = c.baseURL + "/" + strings.TrimLeft(endpoint, "/")
	}
	if len(params) == 0 {
		return u
	}
	q := make(url.Values, len(params))
	for k, v := range params {
		q.Set(k, v)
	}
	sep := "?"
	if strings.Contains(u, "?") {
		sep = "&"
	}
	return u + sep + q.Encode()
}

// isAuthEndpoint reports whether endpoint is exempt from the CSRF header.
func (c *Client) isAuthEndpoint(endpoint string) bool {
	path, _, _ := strings.Cut(endpoint, "?")
	if strings.HasPrefix(path, "/auth/") {
		return true
	}
	ep := c.cfg.Endpoints
	return path == ep.Login || path == ep.Logout || path == ep.Register
}

// isCredentialEndpoint reports whether endpoint checks credentials rather
// than the stored session. A 401 from it is a rejected login, not an
// expired session.
func (c *Client) isCredentialEndpoint(endpoint string) bool {
	path, _, _ := strings.Cut(endpoint, "?")
	ep := c.cfg.Endpoints
	return path == ep.Login || path == ep.Register
}

func stateChanging(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// handleUnauthorized clears the session after a 401.
func (c *Client) handleUnauthorized(ctx context.Context) {
	metrics.APIUnauthorized.Inc()
	logging.Ctx(ctx).Warn().Msg("received 401, clearing session")

	if err := c.tokens.Clear(); err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("failed to clear tokens")
	}
	c.cache.Clear()

	c.mu.RLock()
	hooks := slices.Clone(c.onUnauthorized)
	c.mu.RUnlock()
	for _, fn := range hooks {
		fn()
	}
}

// ClearCache drops every cached response.
func (c *Client) ClearCache() int {
	return c.cache.Clear()
}

// Invalidate drops cached responses for each endpoint, all query variants
// and sub-paths included.
func (c *Client) Invalidate(endpoints ...string) {
	for _, ep := range endpoints {
		if n := c.cache.DeleteEndpoint(ep); n > 0 {
			logging.Debug().Str("endpoint", ep).Int("entries", n).Msg("cache invalidated")
		}
	}
}

func (c *Client) offlineRequest(method, key string) (*Result, error) {
	if method != http.MethodGet {
		return nil, ErrOffline
	}
	res, ok := c.peek(key)
	if !ok {
		return nil, ErrOffline
	}
	return res, nil
}

// peek returns a cached result regardless of expiry, marking it stale when
// the entry has expired.
func (c *Client) peek(key string) (*Result, bool) {
	e, ok := c.cache.Peek(key)
	if !ok {
		return nil, false
	}
	res, ok := e.Value.(*Result)
	if !ok {
		return nil, false
	}
	out := res.clone()
	out.Stale = !e.Valid(c.cache.Now())
	return out, true
}

// OfflineData returns the last cached response for a GET, fresh or stale.
func (c *Client) OfflineData(endpoint string, params map[string]string) (*Result, bool) {
	return c.peek(cache.GenerateKey(endpoint, params))
}

// OfflineAvailable reports whether OfflineData would return something.
func (c *Client) OfflineAvailable(endpoint string, params map[string]string) bool {
	_, ok := c.cache.Peek(cache.GenerateKey(endpoint, params))
	return ok
}

// BatchRequest is one entry of a Batch call.
type BatchRequest struct {
	Endpoint string
	Options  *RequestOptions
}

// BatchResult carries the outcome of one BatchRequest.
type BatchResult struct {
	Endpoint string
	Result   *Result
	Err      error
}

// Batch runs requests concurrently and returns one result per request in
// the same order. A failure does not cancel the others.
func (c *Client) Batch(ctx context.Context, reqs []BatchRequest) []BatchResult {
	out := make([]BatchResult, len(reqs))
	var g errgroup.Group
	g.SetLimit(batchConcurrency)
	for i, r := range reqs {
		g.Go(func() error {
			res, err := c.Request(ctx, r.Endpoint, r.Options)
			out[i] = BatchResult{Endpoint: r.Endpoint, Result: res, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// Preload warms the cache with GETs of endpoints. Failures are logged and
// otherwise ignored.
func (c *Client) Preload(ctx context.Context, endpoints ...string) {
	reqs := make([]BatchRequest, len(endpoints))
	for i, ep := range endpoints {
		reqs[i] = BatchRequest{Endpoint: ep}
	}
	for _, r := range c.Batch(ctx, reqs) {
		if r.Err != nil {
			logging.Ctx(ctx).Warn().Err(r.Err).Str("endpoint", r.Endpoint).Msg("preload failed")
		}
	}
}

// Stats is a snapshot of client activity. Cache hits are not counted as
// requests.
type Stats struct {
	TotalRequests      int64   `json:"total_requests" yaml:"total_requests"`
	Successful         int64   `json:"successful" yaml:"successful"`
	Failed             int64   `json:"failed" yaml:"failed"`
	SuccessRate        float64 `json:"success_rate" yaml:"success_rate"`
	AverageResponseMS  float64 `json:"average_response_ms" yaml:"average_response_ms"`
	CacheHitRate       float64 `json:"cache_hit_rate" yaml:"cache_hit_rate"`
	CacheEntries       int     `json:"cache_entries" yaml:"cache_entries"`
	RateLimitRemaining int     `json:"rate_limit_remaining" yaml:"rate_limit_remaining"`
	CircuitState       string  `json:"circuit_state" yaml:"circuit_state"`
	Offline            bool    `json:"offline" yaml:"offline"`
}

// Stats returns a snapshot of the client counters.
func (c *Client) Stats() Stats {
	total := c.stats.total.Load()
	ok := c.stats.successful.Load()
	cs := c.cache.Stats()

	s := Stats{
		TotalRequests:      total,
		Successful:         ok,
		Failed:             c.stats.failed.Load(),
		CacheHitRate:       cs.HitRate(),
		CacheEntries:       cs.Keys,
		RateLimitRemaining: c.limiter.Remaining(),
		CircuitState:       c.breaker.State(),
		Offline:            c.cfg.OfflineMode,
	}
	if total > 0 {
		s.SuccessRate = float64(ok) / float64(total) * 100
		s.AverageResponseMS = float64(c.stats.totalNanos.Load()) / float64(total) / float64(time.Millisecond)
	}
	return s
}

type clientStats struct {
	total      atomic.Int64
	successful atomic.Int64
	failed     atomic.Int64
	totalNanos atomic.Int64
}

func (s *clientStats) record(success bool, d time.Duration) {
	s.total.Add(1)
	s.totalNanos.Add(int64(d))
	if success {
		s.successful.Add(1)
	} else {
		s.failed.Add(1)
	}
}
