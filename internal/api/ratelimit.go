// Ticktrax - Resilient Time-Tracking API Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ticktrax

package api

import (
	"sync"
	"time"
)

// RateLimiter is a sliding-window log. A request is admitted while fewer
// than max timestamps fall inside the last window.
//
// Admit only checks; Record appends. The client records every network
// attempt, retries included, so retries consume budget too.
type RateLimiter struct {
	mu     sync.Mutex
	max    int
	window time.Duration
	stamps []time.Time // ascending
	now    func() time.Time
}

// NewRateLimiter creates a limiter admitting max requests per window.
func NewRateLimiter(maxRequests int, window time.Duration) *RateLimiter {
	if maxRequests <= 0 {
		maxRequests = 100
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{
		max:    maxRequests,
		window: window,
		stamps: make([]time.Time, 0, maxRequests),
		now:    time.Now,
	}
}

// Admit reports whether another request fits in the window.
func (l *RateLimiter) Admit() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prune()
	return len(l.stamps) < l.max
}

// Record notes a request at the current time.
func (l *RateLimiter) Record() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prune()
	l.stamps = append(l.stamps, l.now())
}

// Remaining returns how many requests the window still admits.
func (l *RateLimiter) Remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prune()
	if n := l.max - len(l.stamps); n > 0 {
		return n
	}
	return 0
}

// prune drops timestamps older than the window. Must be called with mu held.
func (l *RateLimiter) prune() {
	cutoff := l.now().Add(-l.window)
	i := 0
	for i < len(l.stamps) && !l.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.stamps = append(l.stamps[:0], l.stamps[i:]...)
	}
}
