// Ticktrax - Resilient Time-Tracking API Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ticktrax

package api

import (
	"context"
	"errors"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tomtom215/ticktrax/internal/config"
)

// retryableStatus lists the HTTP statuses worth another attempt.
var retryableStatus = map[int]bool{
	http.StatusRequestTimeout:      true,
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// RetryPolicy classifies failures and computes backoff delays.
type RetryPolicy struct {
	// MaxAttempts counts the first try.
	MaxAttempts int
	BaseDelay   time.Duration
	Jitter      time.Duration
	MaxDelay    time.Duration

	jitter func(n int64) int64
}

// NewRetryPolicy builds a policy from configuration.
func NewRetryPolicy(cfg config.RetryConfig) *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   cfg.BaseDelay,
		Jitter:      cfg.Jitter,
		MaxDelay:    cfg.MaxDelay,
		jitter:      rand.Int64N,
	}
}

// IsRetryable reports whether err is transient. Caller cancellation and
// circuit breaker rejections never are.
func (p *RetryPolicy) IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, ErrCircuitOpen) {
		return false
	}
	var he *HTTPError
	if errors.As(err, &he) {
		return retryableStatus[he.StatusCode]
	}
	var ne *NetworkError
	if errors.As(err, &ne) {
		return ne.Temporary()
	}
	return false
}

// Delay returns the wait before retry n (n starts at 1):
// BaseDelay * 2^(n-1) plus a random jitter in [0, Jitter), capped at MaxDelay.
func (p *RetryPolicy) Delay(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	if n > 30 {
		n = 30
	}
	d := p.BaseDelay * time.Duration(1<<(n-1))
	if p.Jitter > 0 && p.jitter != nil {
		d += time.Duration(p.jitter(int64(p.Jitter)))
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// Allowed reports whether method may be retried automatically. POST and
// PATCH need an idempotency key.
func (p *RetryPolicy) Allowed(method string, hasIdempotencyKey bool) bool {
	switch strings.ToUpper(method) {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodPut, http.MethodDelete:
		return true
	case http.MethodPost, http.MethodPatch:
		return hasIdempotencyKey
	default:
		return false
	}
}

// retryAfter parses a Retry-After header given in seconds or as an HTTP date.
func retryAfter(h http.Header, now time.Time) (time.Duration, bool) {
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second, true
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d, true
		}
		return 0, true
	}
	return 0, false
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
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
