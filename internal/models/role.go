// Ticktrax - Resilient Time-Tracking API Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ticktrax

package models

import "strings"

// Role is a normalized user role.
type Role string

// Role constants. RoleEmployee is the default for anything unrecognized.
const (
	RoleEmployee Role = "employee"
	RoleManager  Role = "manager"
	RoleHR       Role = "hr"
	RoleAdmin    Role = "admin"
)

// ValidRoles contains all valid roles.
var ValidRoles = []Role{RoleEmployee, RoleManager, RoleHR, RoleAdmin}

// roleIDs maps the backend's numeric role_id.
var roleIDs = map[int]Role{
	1: RoleAdmin,
	2: RoleManager,
	3: RoleHR,
	4: RoleEmployee,
}

// ParseRole lower-cases s and reports whether it names a known role.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	for _, v := range ValidRoles {
		if r == v {
			return r, true
		}
	}
	return RoleEmployee, false
}

// RoleFromID maps a numeric role_id. Unknown ids give RoleEmployee.
func RoleFromID(id int) (Role, bool) {
	r, ok := roleIDs[id]
	if !ok {
		return RoleEmployee, false
	}
	return r, true
}

// NormalizeRole picks the role for a user record. A recognized role string
// wins over roleID; if neither is recognized the result is RoleEmployee.
func NormalizeRole(role string, roleID int) Role {
	if r, ok := ParseRole(role); ok {
		return r
	}
	if r, ok := RoleFromID(roleID); ok {
		return r
	}
	return RoleEmployee
}

// CanViewTeam reports whether the role may join the team dashboard channel.
func (r Role) CanViewTeam() bool {
	return r == RoleManager || r == RoleHR || r == RoleAdmin
}

func (r Role) String() string { return string(r) }
