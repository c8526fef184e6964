// Ticktrax - Resilient Time-Tracking API Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ticktrax

package realtime

import (
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/ticktrax/internal/metrics"
	"github.com/tomtom215/ticktrax/internal/models"
)

const (
	// protocolVersion selects Phoenix's V1 JSON serializer, whose frames
	// are {topic, event, payload, ref} objects. V2 expects arrays.
	protocolVersion = "1.0.0"
	writeWait       = 10 * time.Second
)

var emptyObject = json.RawMessage(`{}`)

// socket is one live connection. A reconnect creates a new socket, so any
// goroutine holding a stale one can tell by comparing against Service.sock.
type socket struct {
	conn      *websocket.Conn
	done      chan struct{}
	closeOnce sync.Once
	writeMu   sync.Mutex
}

func newSocket(conn *websocket.Conn) *socket {
	return &socket{conn: conn, done: make(chan struct{})}
}

func (s *socket) write(env models.Envelope) error {
	if env.Payload == nil {
		env.Payload = emptyObject
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode %s: %w", env.Event, err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return err
	}
	metrics.WSMessagesSent.Inc()
	return nil
}

// closeNormal sends a 1000 close frame. Errors are ignored since the
// connection is torn down right after.
func (s *socket) closeNormal(reason string) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	s.writeMu.Lock()
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	s.writeMu.Unlock()
}

func (s *socket) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}

// socketURL appends the access token and protocol version to base.
func socketURL(base, token string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse ws url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", fmt.Errorf("ws url scheme %q: want ws or wss", u.Scheme)
	}
	q := u.Query()
	q.Set("token", token)
	q.Set("vsn", protocolVersion)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
