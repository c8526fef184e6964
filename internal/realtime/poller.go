// Ticktrax - Resilient Time-Tracking API Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ticktrax

package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/tomtom215/ticktrax/internal/api"
	"github.com/tomtom215/ticktrax/internal/cache"
	"github.com/tomtom215/ticktrax/internal/logging"
	"github.com/tomtom215/ticktrax/internal/metrics"
	"github.com/tomtom215/ticktrax/internal/models"
)

// Source is the REST surface the poller reads. *api.Client implements it.
type Source interface {
	RefreshClockStatus(ctx context.Context) (*models.ClockStatus, error)
	Notifications(ctx context.Context, opts *api.RequestOptions) ([]models.Notification, error)
}

// SyncError is the payload of sync-error events.
type SyncError struct {
	Kind string `json:"kind"` // "status", "notifications" or "socket"
	Err  error  `json:"-"`
}

func (e SyncError) Error() string { return e.Kind + ": " + e.Err.Error() }

const (
	pollKindStatus        = "status"
	pollKindNotifications = "notifications"
)

// Poller is the REST fallback used while the socket is down. It emits
// clock-status-changed when the status differs from the last poll and one
// notification event per id it has not emitted before.
type Poller struct {
	src          Source
	bus          *Bus
	statusEvery  time.Duration
	notifyEvery  time.Duration
	seen         *cache.SeenSet
	lastStatusMu sync.Mutex
	lastStatus   *models.ClockStatus

	mu       sync.RWMutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewPoller creates a stopped poller.
func NewPoller(src Source, bus *Bus, statusEvery, notifyEvery time.Duration) *Poller {
	if statusEvery <= 0 {
		statusEvery = 30 * time.Second
	}
	if notifyEvery <= 0 {
		notifyEvery = 60 * time.Second
	}
	return &Poller{
		src:         src,
		bus:         bus,
		statusEvery: statusEvery,
		notifyEvery: notifyEvery,
		seen:        cache.NewSeenSet(1000, 24*time.Hour),
	}
}

// Start begins polling. It reports false if the poller was already running.
func (p *Poller) Start(ctx context.Context) bool {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return false
	}
	p.running = true
	p.stopChan = make(chan struct{})
	stop := p.stopChan
	p.wg.Add(1)
	p.mu.Unlock()

	metrics.SetBool(metrics.PollingActive, true)
	logging.Info().
		Dur("status_interval", p.statusEvery).
		Dur("notification_interval", p.notifyEvery).
		Msg("starting fallback polling")

	go p.loop(ctx, stop)
	return true
}

// Stop halts polling and waits for an in-flight poll to return.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.stopChan)
	p.mu.Unlock()

	p.wg.Wait()
	metrics.SetBool(metrics.PollingActive, false)
	logging.Info().Msg("fallback polling stopped")
}

// Running reports whether the poller is active.
func (p *Poller) Running() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running
}

func (p *Poller) loop(ctx context.Context, stop <-chan struct{}) {
	defer p.wg.Done()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	p.pollStatus(ctx)

	statusTicker := time.NewTicker(p.statusEvery)
	defer statusTicker.Stop()
	notifyTicker := time.NewTicker(p.notifyEvery)
	defer notifyTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-statusTicker.C:
			p.pollStatus(ctx)
		case <-notifyTicker.C:
			p.pollNotifications(ctx)
		}
	}
}

func (p *Poller) pollStatus(ctx context.Context) {
	ctx = logging.EnsureCorrelationID(ctx)
	st, err := p.src.RefreshClockStatus(ctx)
	if ctx.Err() != nil {
		return
	}
	metrics.RecordPoll(pollKindStatus, err)
	if err != nil {
		p.fail(ctx, pollKindStatus, err)
		return
	}

	p.lastStatusMu.Lock()
	changed := st.Changed(p.lastStatus)
	p.lastStatus = st
	p.lastStatusMu.Unlock()

	if changed {
		p.bus.Emit(EventClockStatusChanged, *st)
	}
}

func (p *Poller) pollNotifications(ctx context.Context) {
	ctx = logging.EnsureCorrelationID(ctx)
	list, err := p.src.Notifications(ctx, &api.RequestOptions{NoCache: true})
	if ctx.Err() != nil {
		return
	}
	metrics.RecordPoll(pollKindNotifications, err)
	if err != nil {
		p.fail(ctx, pollKindNotifications, err)
		return
	}
	for _, n := range list {
		if n.ID != "" && p.seen.CheckAndMark(string(n.ID)) {
			continue
		}
		p.bus.Emit(EventNotification, n)
	}
}

// MarkSeen records a notification id delivered over the socket so the
// poller does not emit it again.
func (p *Poller) MarkSeen(id string) {
	if id != "" {
		p.seen.CheckAndMark(id)
	}
}

func (p *Poller) fail(ctx context.Context, kind string, err error) {
	logging.Ctx(ctx).Warn().Err(err).Str("kind", kind).Msg("poll failed")
	p.bus.Emit(EventSyncError, SyncError{Kind: kind, Err: err})
}
