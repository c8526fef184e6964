// Ticktrax - Resilient Time-Tracking API Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ticktrax

package realtime

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"
)

var (
	// ErrNotConnected is returned when the socket is down, including a join
	// that was waiting when the connection dropped.
	ErrNotConnected = errors.New("realtime: socket not connected")

	// ErrChannelJoinTimeout means no phx_reply arrived within the join timeout.
	ErrChannelJoinTimeout = errors.New("realtime: channel join timed out")

	// ErrPushThrottled means the outbound token bucket is empty.
	ErrPushThrottled = errors.New("realtime: push throttled")

	// ErrNotJoined is returned by Push for a topic that is not joined.
	ErrNotJoined = errors.New("realtime: channel not joined")

	// ErrNoToken means there is no access token to authenticate the socket.
	ErrNoToken = errors.New("realtime: no access token")
)

// ChannelJoinRejectedError is a phx_reply with a status other than "ok".
type ChannelJoinRejectedError struct {
	Topic  string
	Reason string
}

func (e *ChannelJoinRejectedError) Error() string {
	return fmt.Sprintf("realtime: join %s rejected: %s", e.Topic, e.Reason)
}

// DisconnectInfo is the payload of disconnected events.
type DisconnectInfo struct {
	Code   int    `json:"code"`
	Reason string `json:"reason"`
	Manual bool   `json:"manual"`
}

// ChannelInfo is the payload of channel_joined and channel_left events.
type ChannelInfo struct {
	Topic string `json:"topic"`
}

// ChannelMessage is an inbound channel event as received.
type ChannelMessage struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}
