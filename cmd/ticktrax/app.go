// Ticktrax - Resilient Time-Tracking API Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ticktrax

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tomtom215/ticktrax/internal/api"
	"github.com/tomtom215/ticktrax/internal/auth"
	"github.com/tomtom215/ticktrax/internal/cache"
	"github.com/tomtom215/ticktrax/internal/config"
	"github.com/tomtom215/ticktrax/internal/logging"
	"github.com/tomtom215/ticktrax/internal/storage"
	"github.com/tomtom215/ticktrax/internal/tokens"
)

// app is the component graph shared by every command.
type app struct {
	cfg    *config.Config
	store  storage.Store
	tokens *tokens.Store
	client *api.Client
	auth   *auth.Manager
	format string
}

// newApp loads configuration, initializes logging and opens the session
// store. Callers must call close.
func newApp(cmd *cobra.Command) (*app, error) {
	cfgPath, _ := cmd.Flags().GetString("config")
	format, _ := cmd.Flags().GetString("output")
	if err := checkFormat(format); err != nil {
		return nil, err
	}

	cfg, err := config.LoadWithKoanf(cfgPath)
	if err != nil {
		return nil, err
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
		Output:    cmd.ErrOrStderr(),
	})

	store, err := openStore(cfg.Storage)
	if err != nil {
		return nil, err
	}

	tok := tokens.NewStore(store)
	client := api.New(cfg, tok, cache.New(cfg.Cache.DefaultTTL))

	return &app{
		cfg:    cfg,
		store:  store,
		tokens: tok,
		client: client,
		auth:   auth.NewManager(client),
		format: format,
	}, nil
}

func openStore(cfg config.StorageConfig) (storage.Store, error) {
	if cfg.InMemory {
		return storage.NewMemoryStore(), nil
	}
	store, err := storage.OpenBadger(storage.Options{Path: cfg.Path})
	if err != nil {
		return nil, fmt.Errorf("open session store at %s: %w", cfg.Path, err)
	}
	return store, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		logging.Warn().Err(err).Msg("failed to close session store")
	}
}

// print writes v to the command's stdout in the selected format.
func (a *app) print(cmd *cobra.Command, v any) error {
	return writeOutput(cmd.OutOrStdout(), a.format, v)
}

// withApp adapts a RunE body that needs the component graph.
func withApp(fn func(cmd *cobra.Command, args []string, a *app) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()
		return fn(cmd, args, a)
	}
}
