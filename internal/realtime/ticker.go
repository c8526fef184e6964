// Ticktrax - Resilient Time-Tracking API Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ticktrax

package realtime

import (
	"sync"
	"time"

	"github.com/tomtom215/ticktrax/internal/models"
)

// ClockTicker emits clock-update once per interval for live clock displays.
type ClockTicker struct {
	bus      *Bus
	interval time.Duration
	now      func() time.Time

	mu     sync.Mutex
	ticker *time.Ticker
	done   chan struct{}
	wg     sync.WaitGroup
}

// NewClockTicker creates a stopped ticker.
func NewClockTicker(bus *Bus, interval time.Duration) *ClockTicker {
	if interval <= 0 {
		interval = time.Second
	}
	return &ClockTicker{bus: bus, interval: interval, now: time.Now}
}

// Start is a no-op when already started.
func (c *ClockTicker) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ticker != nil {
		return
	}
	c.ticker = time.NewTicker(c.interval)
	c.done = make(chan struct{})
	c.wg.Add(1)
	go c.run(c.ticker, c.done)
}

// Stop halts the ticker.
func (c *ClockTicker) Stop() {
	c.mu.Lock()
	if c.ticker == nil {
		c.mu.Unlock()
		return
	}
	c.ticker.Stop()
	close(c.done)
	c.ticker = nil
	c.mu.Unlock()
	c.wg.Wait()
}

func (c *ClockTicker) run(t *time.Ticker, done <-chan struct{}) {
	defer c.wg.Done()
	for {
		select {
		case <-done:
			return
		case <-t.C:
			c.bus.Emit(EventClockUpdate, clockUpdate(c.now()))
		}
	}
}

func clockUpdate(now time.Time) models.ClockUpdate {
	return models.ClockUpdate{
		Timestamp: now.UnixMilli(),
		Time:      now.Format("15:04:05"),
		Date:      now.Format("2006-01-02"),
	}
}
