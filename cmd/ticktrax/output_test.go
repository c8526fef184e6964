// Ticktrax - Resilient Time-Tracking API Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ticktrax

package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/ticktrax/internal/api"
	"github.com/tomtom215/ticktrax/internal/models"
	"github.com/tomtom215/ticktrax/internal/realtime"
)

func TestCheckFormat(t *testing.T) {
	t.Parallel()
	for _, f := range []string{formatText, formatJSON, formatYAML} {
		if err := checkFormat(f); err != nil {
			t.Errorf("checkFormat(%q) = %v", f, err)
		}
	}
	if err := checkFormat("xml"); err == nil {
		t.Error("xml accepted")
	}
}

func TestWriteOutput(t *testing.T) {
	t.Parallel()
	view := statusView{
		Clock:  &models.ClockStatus{IsClockedIn: true, ClockInTime: "08:30", TotalHoursToday: 2.5},
		Client: api.Stats{TotalRequests: 3, Successful: 2, Failed: 1, CircuitState: "closed"},
	}

	tests := []struct {
		format string
		want   []string
	}{
		{formatText, []string{"clocked in since 08:30", "hours today: 2.50", "requests: 3 (2 ok, 1 failed), circuit closed"}},
		{formatJSON, []string{`"is_clocked_in": true`, `"total_requests": 3`}},
		{formatYAML, []string{"clock:\n  is_clocked_in: true", "circuit_state: closed"}},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			t.Parallel()
			var buf bytes.Buffer
			if err := writeOutput(&buf, tt.format, view); err != nil {
				t.Fatalf("writeOutput: %v", err)
			}
			for _, w := range tt.want {
				if !strings.Contains(buf.String(), w) {
					t.Errorf("output missing %q:\n%s", w, buf.String())
				}
			}
		})
	}
}

func TestWriteOutputTextFallsBackToYAML(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	if err := writeOutput(&buf, formatText, map[string]int{"count": 2}); err != nil {
		t.Fatalf("writeOutput: %v", err)
	}
	if got := strings.TrimSpace(buf.String()); got != "count: 2" {
		t.Errorf("output = %q", got)
	}
}

func TestResultViewText(t *testing.T) {
	t.Parallel()
	v := resultView{Status: 200, Stale: true, Body: json.RawMessage(`{"a":1}`)}
	got := v.Text()
	if !strings.HasPrefix(got, "HTTP 200 (stale, offline)\n") {
		t.Errorf("head = %q", got)
	}
	if !strings.Contains(got, `"a": 1`) {
		t.Errorf("body not indented: %q", got)
	}
}

func TestUserViewText(t *testing.T) {
	t.Parallel()
	v := userView{User: &models.User{ID: "7", Email: "jo@example.com", FirstName: "Jo", LastName: "Park", Role: models.RoleHR}}
	want := "Jo Park <jo@example.com>\nid:   7\nrole: hr"
	if got := v.Text(); got != want {
		t.Errorf("Text() = %q, want %q", got, want)
	}
}

func TestEventPrinter(t *testing.T) {
	t.Parallel()
	at := time.Date(2026, 3, 2, 9, 15, 0, 0, time.Local)

	var buf bytes.Buffer
	p := &eventPrinter{w: &buf, format: formatText}
	p.handle(realtime.Event{Name: realtime.EventConnected, Time: at})
	p.handle(realtime.Event{
		Name:    realtime.EventSyncError,
		Payload: realtime.SyncError{Kind: "status", Err: errors.New("boom")},
		Time:    at,
	})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %q", lines)
	}
	if lines[0] != "09:15:00 connected" {
		t.Errorf("line 0 = %q", lines[0])
	}
	if lines[1] != `09:15:00 sync-error {"error":"status: boom","kind":"status"}` {
		t.Errorf("line 1 = %q", lines[1])
	}
}

func TestEventPrinterJSON(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	p := &eventPrinter{w: &buf, format: formatJSON}
	p.handle(realtime.Event{
		Name:    realtime.EventClockStatusChanged,
		Payload: models.ClockStatus{IsClockedIn: true},
		Time:    time.Now(),
	})

	var got struct {
		Event   string             `json:"event"`
		Payload models.ClockStatus `json:"payload"`
	}
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}
	if got.Event != realtime.EventClockStatusChanged || !got.Payload.IsClockedIn {
		t.Errorf("got %+v", got)
	}
}
