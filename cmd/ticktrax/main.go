// Ticktrax - Resilient Time-Tracking API Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ticktrax

// Package main is the ticktrax command line client.
//
// ticktrax talks to a time-tracking backend through the resilient API
// client in internal/api: cached and deduplicated reads, rate limiting,
// retry with backoff and a circuit breaker. The session (access token,
// CSRF token and user record) persists in a BadgerDB directory between
// invocations.
//
// # Configuration
//
// Settings are loaded via Koanf v2 (highest priority wins):
//   - Environment variables (TICKTRAX_API_URL, TICKTRAX_WS_URL, ...)
//   - Config file (--config, TICKTRAX_CONFIG, or ./ticktrax.yaml)
//   - Built-in defaults
//
// # Example Usage
//
//	ticktrax login --email jane@example.com
//	ticktrax status -o yaml
//	ticktrax clock-in
//	ticktrax request /time/entries --param page=2
//	ticktrax watch
//
// "watch" keeps a Phoenix socket open (falling back to polling), prints
// sync events as they arrive and optionally serves /healthz, /metrics and
// /status on the configured listen address. It stops on SIGINT or SIGTERM.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "ticktrax",
	Short: "Ticktrax - resilient time-tracking client",
	Long: `Ticktrax is a command line client for a time-tracking backend.

It keeps a session across runs, caches and deduplicates reads, retries
transient failures and follows live clock and notification updates over
a Phoenix socket with a polling fallback.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Ticktrax version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().StringP("output", "o", formatText, "Output format: text, json or yaml")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(whoamiCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(clockInCmd)
	rootCmd.AddCommand(clockOutCmd)
	rootCmd.AddCommand(requestCmd)
	rootCmd.AddCommand(watchCmd)
}
