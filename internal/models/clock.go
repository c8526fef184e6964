// Ticktrax - Resilient Time-Tracking API Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ticktrax

package models

// ClockStatus is the payload of the clock status endpoint and of
// clock-status-changed events.
type ClockStatus struct {
	IsClockedIn     bool    `json:"is_clocked_in"`
	ClockInTime     string  `json:"clock_in_time,omitempty"`
	TotalHoursToday float64 `json:"total_hours_today"`
	OnBreak         bool    `json:"on_break,omitempty"`
}

// Changed reports whether s differs from prev in a way subscribers care
// about. A nil prev always counts as a change.
func (s ClockStatus) Changed(prev *ClockStatus) bool {
	if prev == nil {
		return true
	}
	return s.IsClockedIn != prev.IsClockedIn ||
		s.ClockInTime != prev.ClockInTime ||
		s.OnBreak != prev.OnBreak
}

// ClockUpdate is emitted by the clock ticker.
type ClockUpdate struct {
	Timestamp int64  `json:"timestamp"` // unix milliseconds
	Time      string `json:"time"`
	Date      string `json:"date"`
}
