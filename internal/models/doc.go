// Ticktrax - Resilient Time-Tracking API Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ticktrax

/*
Package models defines the data structures shared by the Ticktrax client.

Key Components:

  - User: the authenticated user record persisted under "user_data"
  - Role: one of employee, manager, hr, admin, normalized from either a role
    string or a numeric role_id
  - ClockStatus: the time-clock state returned by the status endpoint and
    carried by clock-status-changed events
  - Notification: an item from the notifications endpoint or socket
  - Envelope: the Phoenix socket message {topic, event, payload, ref}

All JSON encoding uses github.com/goccy/go-json.
*/
package models
