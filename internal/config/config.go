// Ticktrax - Resilient Time-Tracking API Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ticktrax

// Package config loads Ticktrax settings from defaults, an optional YAML
// file and environment variables, in that order of precedence (lowest
// first). See LoadWithKoanf.
package config

import "time"

// Config is the full client configuration.
type Config struct {
	API       APIConfig       `koanf:"api"`
	Retry     RetryConfig     `koanf:"retry"`
	Cache     CacheConfig     `koanf:"cache"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
	Breaker   BreakerConfig   `koanf:"breaker"`
	Realtime  RealtimeConfig  `koanf:"realtime"`
	Polling   PollingConfig   `koanf:"polling"`
	Storage   StorageConfig   `koanf:"storage"`
	Server    ServerConfig    `koanf:"server"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// APIConfig describes the REST backend.
type APIConfig struct {
	BaseURL string        `koanf:"base_url" validate:"required,url"`
	Timeout time.Duration `koanf:"timeout" validate:"gt=0"`

	// CSRFHeader must match the backend's exact header name.
	CSRFHeader string `koanf:"csrf_header" validate:"required,oneof=x-csrf-token x-xsrf-token X-CSRF-Token X-XSRF-TOKEN"`

	// OfflineMode serves GETs from the last cached response and refuses
	// everything else. It is never entered automatically.
	OfflineMode bool `koanf:"offline_mode"`

	UserAgent string          `koanf:"user_agent"`
	Endpoints EndpointsConfig `koanf:"endpoints"`
}

// EndpointsConfig holds backend paths relative to BaseURL.
type EndpointsConfig struct {
	Login         string `koanf:"login" validate:"required,startswith=/"`
	Logout        string `koanf:"logout" validate:"required,startswith=/"`
	Register      string `koanf:"register" validate:"required,startswith=/"`
	CurrentUser   string `koanf:"current_user" validate:"required,startswith=/"`
	ClockStatus   string `koanf:"clock_status" validate:"required,startswith=/"`
	ClockIn       string `koanf:"clock_in" validate:"required,startswith=/"`
	ClockOut      string `koanf:"clock_out" validate:"required,startswith=/"`
	TimeEntries   string `koanf:"time_entries" validate:"required,startswith=/"`
	Profile       string `koanf:"profile" validate:"required,startswith=/"`
	BreakStart    string `koanf:"break_start" validate:"required,startswith=/"`
	BreakEnd      string `koanf:"break_end" validate:"required,startswith=/"`
	BreakStatus   string `koanf:"break_status" validate:"required,startswith=/"`
	Notifications string `koanf:"notifications" validate:"required,startswith=/"`
}

// RetryConfig controls automatic retry of transient failures.
type RetryConfig struct {
	// MaxAttempts counts the first try.
	MaxAttempts int           `koanf:"max_attempts" validate:"gte=1,lte=10"`
	BaseDelay   time.Duration `koanf:"base_delay" validate:"gt=0"`
	Jitter      time.Duration `koanf:"jitter" validate:"gte=0"`
	MaxDelay    time.Duration `koanf:"max_delay" validate:"gt=0"`
}

// CacheConfig controls the GET response cache.
type CacheConfig struct {
	DefaultTTL time.Duration `koanf:"default_ttl" validate:"gt=0"`
	StatusTTL  time.Duration `koanf:"status_ttl" validate:"gt=0"`
}

// RateLimitConfig is the client-side sliding window.
type RateLimitConfig struct {
	MaxRequests int           `koanf:"max_requests" validate:"gte=1"`
	Window      time.Duration `koanf:"window" validate:"gt=0"`
}

// BreakerConfig configures the circuit breaker around network attempts.
type BreakerConfig struct {
	Enabled          bool          `koanf:"enabled"`
	MaxRequests      uint32        `koanf:"max_requests" validate:"gte=1"`
	Interval         time.Duration `koanf:"interval" validate:"gte=0"`
	Timeout          time.Duration `koanf:"timeout" validate:"gt=0"`
	FailureThreshold uint32        `koanf:"failure_threshold" validate:"gte=1"`
}

// RealtimeConfig configures the Phoenix socket.
type RealtimeConfig struct {
	Enabled              bool          `koanf:"enabled"`
	WSURL                string        `koanf:"ws_url" validate:"omitempty,wsurl"`
	ConnectTimeout       time.Duration `koanf:"connect_timeout" validate:"gt=0"`
	HeartbeatInterval    time.Duration `koanf:"heartbeat_interval" validate:"gt=0"`
	JoinTimeout          time.Duration `koanf:"join_timeout" validate:"gt=0"`
	ReconnectBase        time.Duration `koanf:"reconnect_base" validate:"gt=0"`
	MaxReconnectAttempts int           `koanf:"max_reconnect_attempts" validate:"gte=0,lte=20"`
	PushRate             float64       `koanf:"push_rate" validate:"gt=0"`
	PushBurst            int           `koanf:"push_burst" validate:"gte=1"`
}

// PollingConfig configures the fallback poller and the clock ticker.
type PollingConfig struct {
	StatusInterval       time.Duration `koanf:"status_interval" validate:"gt=0"`
	NotificationInterval time.Duration `koanf:"notification_interval" validate:"gt=0"`
	ClockInterval        time.Duration `koanf:"clock_interval" validate:"gt=0"`
}

// StorageConfig selects where tokens and the user record persist.
type StorageConfig struct {
	Path     string `koanf:"path"`
	InMemory bool   `koanf:"in_memory"`
}

// ServerConfig is the local status server started by "ticktrax watch".
type ServerConfig struct {
	Enabled     bool     `koanf:"enabled"`
	ListenAddr  string   `koanf:"listen_addr" validate:"omitempty,hostname_port"`
	CORSOrigins []string `koanf:"cors_origins"`
	// RateLimit is requests per minute per client IP; 0 disables it.
	RateLimit int `koanf:"rate_limit" validate:"gte=0"`
}

// LoggingConfig mirrors logging.Config for file/env loading.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"omitempty,oneof=trace debug info warn error disabled"`
	Format string `koanf:"format" validate:"omitempty,oneof=json console"`
	Caller bool   `koanf:"caller"`
}
