// Ticktrax - Resilient Time-Tracking API Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ticktrax

package models

import "github.com/goccy/go-json"

// Phoenix protocol event names, sent verbatim.
const (
	PhxJoin      = "phx_join"
	PhxLeave     = "phx_leave"
	PhxReply     = "phx_reply"
	PhxError     = "phx_error"
	PhxClose     = "phx_close"
	Heartbeat    = "heartbeat"
	PhoenixTopic = "phoenix"
)

// Envelope is one socket message.
type Envelope struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     string          `json:"ref,omitempty"`
}

// Reply is the payload of a phx_reply.
type Reply struct {
	Status   string          `json:"status"`
	Response json.RawMessage `json:"response,omitempty"`
}

// Reason extracts response.reason from a non-ok reply.
func (r Reply) Reason() string {
	var body struct {
		Reason string `json:"reason"`
	}
	if len(r.Response) > 0 {
		_ = json.Unmarshal(r.Response, &body)
	}
	if body.Reason == "" {
		return r.Status
	}
	return body.Reason
}
