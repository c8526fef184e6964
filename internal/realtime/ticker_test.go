// Ticktrax - Resilient Time-Tracking API Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ticktrax

package realtime

import (
	"testing"
	"time"

	"github.com/tomtom215/ticktrax/internal/models"
)

func TestClockUpdateFormat(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	got := clockUpdate(now)
	want := models.ClockUpdate{Timestamp: now.UnixMilli(), Time: "05:06:07", Date: "2026-03-04"}
	if got != want {
		t.Errorf("clockUpdate = %+v, want %+v", got, want)
	}
}

func TestClockTickerEmits(t *testing.T) {
	t.Parallel()
	bus := NewBus()
	events := record(bus, EventClockUpdate)

	c := NewClockTicker(bus, 5*time.Millisecond)
	c.Start()
	c.Start()
	events.waitFor(t, EventClockUpdate)
	events.waitFor(t, EventClockUpdate)
	c.Stop()
	c.Stop()

	for len(events.ch) > 0 {
		<-events.ch
	}
	time.Sleep(20 * time.Millisecond)
	if len(events.ch) != 0 {
		t.Error("ticker emitted after Stop")
	}
}
