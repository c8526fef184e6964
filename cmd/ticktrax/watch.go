// Ticktrax - Resilient Time-Tracking API Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ticktrax

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/tomtom215/ticktrax/internal/logging"
	"github.com/tomtom215/ticktrax/internal/realtime"
	"github.com/tomtom215/ticktrax/internal/server"
	"github.com/tomtom215/ticktrax/internal/supervisor"
	"github.com/tomtom215/ticktrax/internal/supervisor/services"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow live clock and notification updates",
	Long: `Connect to the realtime socket (or poll when it is unavailable) and
print sync events until interrupted.

With server.enabled set, a local status server exposes /healthz,
/metrics and /status on server.listen_addr.`,
	RunE: withApp(runWatch),
}

func init() {
	watchCmd.Flags().Bool("clock", false, "Also print the once-per-interval clock-update events")
	watchCmd.Flags().Bool("serve", false, "Start the status server even if server.enabled is false")
}

func runWatch(cmd *cobra.Command, _ []string, a *app) error {
	showClock, _ := cmd.Flags().GetBool("clock")
	serve, _ := cmd.Flags().GetBool("serve")

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	svc := realtime.NewService(a.cfg, a.tokens, a.client)

	printer := &eventPrinter{w: cmd.OutOrStdout(), format: a.format}
	names := []string{
		realtime.EventConnected,
		realtime.EventDisconnected,
		realtime.EventReconnectionFailed,
		realtime.EventChannelJoined,
		realtime.EventChannelLeft,
		realtime.EventSyncError,
		realtime.EventClockStatusChanged,
		realtime.EventNotification,
	}
	if showClock {
		names = append(names, realtime.EventClockUpdate)
	}
	for _, name := range names {
		svc.On(name, printer.handle)
	}

	// Topics are recorded before the socket exists; every connect, the
	// first included, replays them.
	if user, err := a.auth.StoredUser(); err != nil {
		logging.Warn().Err(err).Msg("no stored user, skipping channel joins")
	} else if err := svc.JoinUserChannels(ctx, user.ID, user.Role); err != nil && !errors.Is(err, realtime.ErrNotConnected) {
		logging.Warn().Err(err).Str("user_id", user.ID).Msg("failed to record user channels")
	}

	a.client.OnUnauthorized(func() {
		logging.Warn().Msg("session rejected by the server, run \"ticktrax login\" again")
	})

	tree, err := supervisor.NewTree(nil, supervisor.DefaultTreeConfig())
	if err != nil {
		return fmt.Errorf("create supervisor tree: %w", err)
	}
	tree.AddSyncService(services.NewSyncService(svc))

	if a.cfg.Server.Enabled || serve {
		srv := server.New(a.cfg.Server, server.Deps{
			Session: a.auth,
			Sync:    svc,
			Client:  a.client,
		}).HTTPServer()
		tree.AddAPIService(services.NewHTTPServerService("status-server", srv, 5*time.Second))
		logging.Info().Str("addr", srv.Addr).Msg("status server enabled")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
	}()

	logging.Info().
		Bool("realtime", a.cfg.Realtime.Enabled).
		Str("ws_url", a.cfg.Realtime.WSURL).
		Msg("watching for updates")

	// The channel receives exactly one value and is never closed.
	if err := <-tree.ServeBackground(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("supervisor tree error")
		return err
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, s := range unstopped {
		logging.Warn().Str("service", s.Name).Msg("service failed to stop")
	}
	return nil
}

// eventPrinter writes bus events to w, one per line in text and JSON.
type eventPrinter struct {
	mu     sync.Mutex
	w      io.Writer
	format string
}

type eventView struct {
	Event   string    `json:"event"`
	Time    time.Time `json:"time"`
	Payload any       `json:"payload,omitempty"`
}

func (p *eventPrinter) handle(ev realtime.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	view := eventView{Event: ev.Name, Time: ev.Time, Payload: eventPayload(ev.Payload)}
	var err error
	switch p.format {
	case formatJSON:
		err = json.NewEncoder(p.w).Encode(view)
	case formatYAML:
		if _, err = fmt.Fprintln(p.w, "---"); err == nil {
			err = writeYAML(p.w, view)
		}
	default:
		_, err = fmt.Fprintln(p.w, eventLine(view))
	}
	if err != nil {
		logging.Debug().Err(err).Str("event", ev.Name).Msg("failed to print event")
	}
}

// eventPayload makes payloads JSON friendly. Errors become their message.
func eventPayload(payload any) any {
	switch v := payload.(type) {
	case nil:
		return nil
	case realtime.SyncError:
		return map[string]string{"kind": v.Kind, "error": v.Error()}
	case error:
		return v.Error()
	default:
		return v
	}
}

func eventLine(v eventView) string {
	line := v.Time.Local().Format("15:04:05") + " " + v.Event
	if v.Payload == nil {
		return line
	}
	raw, err := json.Marshal(v.Payload)
	if err != nil {
		return line + " " + fmt.Sprint(v.Payload)
	}
	return line + " " + string(raw)
}
