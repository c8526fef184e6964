// Ticktrax - Resilient Time-Tracking API Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ticktrax

package api

import (
	"context"
	"errors"
	"net/http"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/ticktrax/internal/config"
	"github.com/tomtom215/ticktrax/internal/logging"
	"github.com/tomtom215/ticktrax/internal/metrics"
)

const breakerName = "ticktrax-api"

// breaker wraps network attempts in a gobreaker circuit breaker. A nil
// *breaker passes calls straight through.
type breaker struct {
	cb *gobreaker.CircuitBreaker[*Result]
}

func newBreaker(cfg config.BreakerConfig) *breaker {
	if !cfg.Enabled {
		return nil
	}
	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)

	threshold := cfg.FailureThreshold
	cb := gobreaker.NewCircuitBreaker[*Result](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			trip := counts.ConsecutiveFailures >= threshold
			if trip {
				logging.Warn().Uint32("consecutive_failures", counts.ConsecutiveFailures).Msg("[CIRCUIT BREAKER] Opening circuit")
			}
			return trip
		},
		// 4xx responses are the caller's problem, not the backend's.
		IsSuccessful: func(err error) bool {
			return !countsAsFailure(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().Str("from", from.String()).Str("to", to.String()).Msg("[CIRCUIT BREAKER] State transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
	})
	return &breaker{cb: cb}
}

// execute runs fn through the breaker. Rejections come back as a
// NetworkError wrapping ErrCircuitOpen.
func (b *breaker) execute(fn func() (*Result, error)) (*Result, error) {
	if b == nil {
		return fn()
	}
	res, err := b.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		logging.Warn().Err(err).Msg("[CIRCUIT BREAKER] Request rejected")
		return nil, &NetworkError{Op: "circuit breaker", Err: ErrCircuitOpen}
	}
	return res, err
}

// State returns the breaker state name, or "disabled".
func (b *breaker) State() string {
	if b == nil {
		return "disabled"
	}
	return b.cb.State().String()
}

// countsAsFailure is true for network errors and 5xx responses.
func countsAsFailure(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var he *HTTPError
	if errors.As(err, &he) {
		return he.StatusCode >= http.StatusInternalServerError
	}
	return true
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
