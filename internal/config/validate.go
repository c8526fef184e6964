// Ticktrax - Resilient Time-Tracking API Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ticktrax

package config

import (
	"fmt"

	"github.com/tomtom215/ticktrax/internal/validation"
)

// Validate applies the struct tag rules and the cross-field checks that
// tags cannot express.
func (c *Config) Validate() error {
	if err := validation.Struct(c); err != nil {
		return err
	}

	checks := []func() error{
		c.validateRetry,
		c.validateRealtime,
		c.validateServer,
		c.validateStorage,
	}
	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateRetry() error {
	if c.Retry.MaxDelay < c.Retry.BaseDelay {
		return fmt.Errorf("retry.max_delay (%s) must not be below retry.base_delay (%s)",
			c.Retry.MaxDelay, c.Retry.BaseDelay)
	}
	return nil
}

func (c *Config) validateRealtime() error {
	if !c.Realtime.Enabled {
		return nil
	}
	if c.Realtime.WSURL == "" {
		return fmt.Errorf("realtime.ws_url is required when realtime is enabled")
	}
	if c.Realtime.HeartbeatInterval <= c.Realtime.JoinTimeout {
		return fmt.Errorf("realtime.heartbeat_interval must exceed realtime.join_timeout")
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Enabled && c.Server.ListenAddr == "" {
		return fmt.Errorf("server.listen_addr is required when the status server is enabled")
	}
	return nil
}

func (c *Config) validateStorage() error {
	if !c.Storage.InMemory && c.Storage.Path == "" {
		return fmt.Errorf("storage.path is required unless storage.in_memory is set")
	}
	return nil
}
