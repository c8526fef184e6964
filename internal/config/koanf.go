// Ticktrax - Resilient Time-Tracking API Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ticktrax

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths are searched in order when no explicit path is given.
var DefaultConfigPaths = []string{
	"ticktrax.yaml",
	"ticktrax.yml",
	"config.yaml",
	"/etc/ticktrax/config.yaml",
}

// ConfigPathEnvVar overrides the search.
const ConfigPathEnvVar = "TICKTRAX_CONFIG"

func defaultConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:    "http://localhost:4000/api",
			Timeout:    10 * time.Second,
			CSRFHeader: "x-csrf-token",
			UserAgent:  "ticktrax-client",
			Endpoints: EndpointsConfig{
				Login:         "/auth/login",
				Logout:        "/auth/logout",
				Register:      "/users",
				CurrentUser:   "/auth/me",
				ClockStatus:   "/time/status",
				ClockIn:       "/time/clock-in",
				ClockOut:      "/time/clock-out",
				TimeEntries:   "/time/entries",
				Profile:       "/user/profile",
				BreakStart:    "/breaks/start",
				BreakEnd:      "/breaks/end",
				BreakStatus:   "/breaks/status",
				Notifications: "/notifications",
			},
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   time.Second,
			Jitter:      time.Second,
			MaxDelay:    30 * time.Second,
		},
		Cache: CacheConfig{
			DefaultTTL: 5 * time.Minute,
			StatusTTL:  30 * time.Second,
		},
		RateLimit: RateLimitConfig{
			MaxRequests: 100,
			Window:      time.Minute,
		},
		Breaker: BreakerConfig{
			Enabled:          true,
			MaxRequests:      3,
			Interval:         time.Minute,
			Timeout:          30 * time.Second,
			FailureThreshold: 5,
		},
		Realtime: RealtimeConfig{
			Enabled:              false,
			WSURL:                "ws://localhost:4000/socket/websocket",
			ConnectTimeout:       10 * time.Second,
			HeartbeatInterval:    30 * time.Second,
			JoinTimeout:          5 * time.Second,
			ReconnectBase:        time.Second,
			MaxReconnectAttempts: 5,
			PushRate:             10,
			PushBurst:            20,
		},
		Polling: PollingConfig{
			StatusInterval:       30 * time.Second,
			NotificationInterval: 60 * time.Second,
			ClockInterval:        time.Second,
		},
		Storage: StorageConfig{
			Path: defaultStoragePath(),
		},
		Server: ServerConfig{
			Enabled:     false,
			ListenAddr:  "127.0.0.1:9477",
			CORSOrigins: []string{"http://localhost:5173"},
			RateLimit:   120,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Default returns the built-in configuration without reading any file or
// environment variable. Tests start from it.
func Default() *Config {
	return defaultConfig()
}

func defaultStoragePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".ticktrax"
	}
	return dir + string(os.PathSeparator) + "ticktrax"
}

// LoadWithKoanf loads configuration in three layers:
//  1. built-in defaults
//  2. YAML file: path if non-empty, else TICKTRAX_CONFIG, else DefaultConfigPaths
//  3. environment variables from envMappings
//
// The result is validated before it is returned.
func LoadWithKoanf(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path == "" {
		path = findConfigFile()
	} else if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

var sliceConfigPaths = []string{
	"server.cors_origins",
}

// processSliceFields splits comma-separated env values for slice fields.
// Values that came from YAML are already slices and are left alone.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		s, ok := k.Get(path).(string)
		if !ok || s == "" {
			continue
		}
		parts := strings.Split(s, ",")
		vals := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				vals = append(vals, p)
			}
		}
		if err := k.Set(path, vals); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

var envMappings = map[string]string{
	"ticktrax_api_url":      "api.base_url",
	"ticktrax_api_timeout":  "api.timeout",
	"ticktrax_csrf_header":  "api.csrf_header",
	"ticktrax_offline_mode": "api.offline_mode",

	"ticktrax_retry_attempts":   "retry.max_attempts",
	"ticktrax_retry_base_delay": "retry.base_delay",
	"ticktrax_retry_jitter":     "retry.jitter",

	"ticktrax_cache_ttl":        "cache.default_ttl",
	"ticktrax_status_cache_ttl": "cache.status_ttl",

	"ticktrax_rate_limit_requests": "rate_limit.max_requests",
	"ticktrax_rate_limit_window":   "rate_limit.window",

	"ticktrax_breaker_enabled": "breaker.enabled",

	"ticktrax_realtime_enabled":     "realtime.enabled",
	"ticktrax_ws_url":               "realtime.ws_url",
	"ticktrax_ws_heartbeat":         "realtime.heartbeat_interval",
	"ticktrax_ws_max_reconnects":    "realtime.max_reconnect_attempts",
	"ticktrax_ws_reconnect_base":    "realtime.reconnect_base",
	"ticktrax_status_poll_interval": "polling.status_interval",
	"ticktrax_notify_poll_interval": "polling.notification_interval",

	"ticktrax_storage_path":      "storage.path",
	"ticktrax_storage_in_memory": "storage.in_memory",

	"ticktrax_server_enabled":      "server.enabled",
	"ticktrax_server_addr":         "server.listen_addr",
	"ticktrax_server_cors_origins": "server.cors_origins",

	"ticktrax_log_level":  "logging.level",
	"ticktrax_log_format": "logging.format",
	"ticktrax_log_caller": "logging.caller",
}

// envTransformFunc maps an environment variable to its koanf path.
// Unknown variables map to "" and are skipped, so unrelated environment
// does not leak into the configuration.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
