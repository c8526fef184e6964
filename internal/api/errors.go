// Ticktrax - Resilient Time-Tracking API Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ticktrax

package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
	"time"
)

// Sentinel errors.
var (
	// ErrRateLimitExceeded is returned when the client-side window is full.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrCircuitOpen is wrapped in a NetworkError when the breaker rejects an attempt.
	ErrCircuitOpen = errors.New("circuit breaker open")

	// ErrOffline is returned in offline mode for anything but a cached GET.
	ErrOffline = errors.New("offline mode: request not available from cache")
)

// HTTPError is a non-2xx response. Message is the server's own message
// when the body carries one.
type HTTPError struct {
	StatusCode int
	Message    string
	Body       []byte

	retryAfter time.Duration // from a Retry-After header, 0 if absent
}

func (e *HTTPError) Error() string {
	return e.Message
}

// Unauthorized reports whether the response was a 401.
func (e *HTTPError) Unauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized
}

// NetworkError is a failure below HTTP: DNS, connect, timeout, reset, or a
// circuit breaker rejection.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error during %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the failure was a timeout.
func (e *NetworkError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(e.Err, &ne) && ne.Timeout()
}

// Temporary reports whether a later attempt could succeed: timeouts and
// dropped or refused connections. A breaker rejection is not temporary.
func (e *NetworkError) Temporary() bool {
	if errors.Is(e.Err, ErrCircuitOpen) || errors.Is(e.Err, context.Canceled) {
		return false
	}
	if e.Timeout() {
		return true
	}
	switch {
	case errors.Is(e.Err, syscall.ECONNREFUSED),
		errors.Is(e.Err, syscall.ECONNRESET),
		errors.Is(e.Err, syscall.ECONNABORTED),
		errors.Is(e.Err, syscall.EPIPE),
		errors.Is(e.Err, io.ErrUnexpectedEOF),
		errors.Is(e.Err, io.EOF):
		return true
	}
	var opErr *net.OpError
	if errors.As(e.Err, &opErr) {
		return opErr.Op == "dial" || opErr.Op == "read" || opErr.Op == "write"
	}
	var dnsErr *net.DNSError
	if errors.As(e.Err, &dnsErr) {
		return dnsErr.IsTemporary || dnsErr.IsTimeout
	}
	return false
}

// IsUnauthorized reports whether err is an HTTPError with status 401.
func IsUnauthorized(err error) bool {
	var he *HTTPError
	return errors.As(err, &he) && he.Unauthorized()
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.StatusCode
	}
	return 0
}
