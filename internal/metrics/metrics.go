// Ticktrax - Resilient Time-Tracking API Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ticktrax

// Package metrics declares the Prometheus collectors for the client. They
// are registered on the default registry and served by the status server's
// /metrics route during "ticktrax watch".
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// API client

	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticktrax_api_requests_total",
			Help: "Network attempts made by the API client",
		},
		[]string{"method", "status"}, // status: HTTP code, or "network_error"
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ticktrax_api_request_duration_seconds",
			Help:    "Duration of network attempts",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	APIRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticktrax_api_retries_total",
			Help: "Retries scheduled after a transient failure",
		},
		[]string{"method"},
	)

	APIRateLimitRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ticktrax_api_rate_limit_rejections_total",
			Help: "Requests refused by the client-side sliding window",
		},
	)

	APIDedupShared = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ticktrax_api_dedup_shared_total",
			Help: "GET calls served by joining an identical in-flight request",
		},
	)

	APIUnauthorized = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ticktrax_api_unauthorized_total",
			Help: "401 responses that cleared the session",
		},
	)

	// Response cache

	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticktrax_cache_hits_total",
			Help: "Cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticktrax_cache_misses_total",
			Help: "Cache misses, expired entries included",
		},
		[]string{"cache_type"},
	)

	CacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticktrax_cache_evictions_total",
			Help: "Entries removed by expiry or invalidation",
		},
		[]string{"cache_type"},
	)

	CacheSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ticktrax_cache_entries",
			Help: "Entries currently cached",
		},
		[]string{"cache_type"},
	)

	// Circuit breaker

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ticktrax_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticktrax_circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// Realtime socket

	WSConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ticktrax_ws_connected",
			Help: "1 while the live socket is connected",
		},
	)

	WSReconnectAttempts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ticktrax_ws_reconnect_attempts_total",
			Help: "Reconnect attempts after an unexpected close",
		},
	)

	WSMessagesReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ticktrax_ws_messages_received_total",
			Help: "Envelopes read from the socket",
		},
	)

	WSMessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ticktrax_ws_messages_sent_total",
			Help: "Envelopes written to the socket",
		},
	)

	WSChannelJoins = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticktrax_ws_channel_joins_total",
			Help: "Channel join attempts by result",
		},
		[]string{"result"}, // ok, rejected, timeout, error
	)

	// Polling fallback

	PollsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticktrax_polls_total",
			Help: "Fallback poll cycles",
		},
		[]string{"kind", "result"}, // kind: status, notifications
	)

	PollingActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ticktrax_polling_active",
			Help: "1 while the polling fallback is running",
		},
	)

	// Status server

	ServerRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticktrax_status_server_requests_total",
			Help: "Requests handled by the local status server",
		},
		[]string{"method", "route", "status"},
	)

	ServerRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ticktrax_status_server_request_duration_seconds",
			Help:    "Status server request latency",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1},
		},
		[]string{"route"},
	)
)

// RecordAPIRequest records one network attempt. status 0 means the attempt
// failed before a response arrived.
func RecordAPIRequest(method string, status int, duration time.Duration) {
	label := "network_error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	APIRequestsTotal.WithLabelValues(method, label).Inc()
	APIRequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordServerRequest records one status server request.
func RecordServerRequest(method, route string, status int, duration time.Duration) {
	ServerRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	ServerRequestDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// RecordPoll records the outcome of one poll cycle.
func RecordPoll(kind string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	PollsTotal.WithLabelValues(kind, result).Inc()
}

// SetBool sets g to 1 when v is true and 0 otherwise.
func SetBool(g prometheus.Gauge, v bool) {
	if v {
		g.Set(1)
		return
	}
	g.Set(0)
}
