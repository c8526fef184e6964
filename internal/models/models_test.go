// Ticktrax - Resilient Time-Tracking API Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ticktrax

package models

import (
	"testing"

	"github.com/goccy/go-json"
)

func TestNormalizeRole(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		role   string
		roleID int
		want   Role
	}{
		{"role_id 1 is admin", "", 1, RoleAdmin},
		{"role_id 2 is manager", "", 2, RoleManager},
		{"role_id 3 is hr", "", 3, RoleHR},
		{"role_id 4 is employee", "", 4, RoleEmployee},
		{"string wins over id", "Manager", 1, RoleManager},
		{"upper case string", "HR", 0, RoleHR},
		{"unknown string falls back to id", "superuser", 1, RoleAdmin},
		{"nothing recognized", "superuser", 99, RoleEmployee},
		{"empty", "", 0, RoleEmployee},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeRole(tt.role, tt.roleID); got != tt.want {
				t.Errorf("NormalizeRole(%q, %d) = %q, want %q", tt.role, tt.roleID, got, tt.want)
			}
		})
	}
}

func TestRoleCanViewTeam(t *testing.T) {
	t.Parallel()

	want := map[Role]bool{
		RoleEmployee: false,
		RoleManager:  true,
		RoleHR:       true,
		RoleAdmin:    true,
	}
	for role, expected := range want {
		if got := role.CanViewTeam(); got != expected {
			t.Errorf("%s.CanViewTeam() = %v, want %v", role, got, expected)
		}
	}
}

func TestFlexID(t *testing.T) {
	t.Parallel()

	var ns []Notification
	data := `[{"id": 42, "title": "a"}, {"id": "n-7"}, {"id": null}]`
	if err := json.Unmarshal([]byte(data), &ns); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	got := []FlexID{ns[0].ID, ns[1].ID, ns[2].ID}
	want := []FlexID{"42", "n-7", ""}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("id[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestIDFromAny(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   any
		want string
	}{
		{"abc", "abc"},
		{float64(12), "12"},
		{12, "12"},
		{nil, ""},
	}
	for _, tt := range tests {
		if got := IDFromAny(tt.in); got != tt.want {
			t.Errorf("IDFromAny(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestClockStatusChanged(t *testing.T) {
	t.Parallel()

	in := ClockStatus{IsClockedIn: true, ClockInTime: "09:00"}
	if !in.Changed(nil) {
		t.Error("nil previous should count as changed")
	}
	same := in
	same.TotalHoursToday = 1.5
	if in.Changed(&same) {
		t.Error("hours alone should not count as changed")
	}
	out := ClockStatus{}
	if !out.Changed(&in) {
		t.Error("clock out should count as changed")
	}
}

func TestReplyReason(t *testing.T) {
	t.Parallel()

	r := Reply{Status: "error", Response: json.RawMessage(`{"reason":"unauthorized"}`)}
	if got := r.Reason(); got != "unauthorized" {
		t.Errorf("Reason() = %q", got)
	}
	r = Reply{Status: "error"}
	if got := r.Reason(); got != "error" {
		t.Errorf("Reason() without response = %q", got)
	}
}
