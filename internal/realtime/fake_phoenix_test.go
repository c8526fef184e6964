// Ticktrax - Resilient Time-Tracking API Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ticktrax

package realtime

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/ticktrax/internal/api"
	"github.com/tomtom215/ticktrax/internal/config"
	"github.com/tomtom215/ticktrax/internal/models"
	"github.com/tomtom215/ticktrax/internal/tokens"
)

// fakePhoenix is a minimal Phoenix channels server speaking the V1 JSON
// serializer. It acks joins and heartbeats, can reject or ignore joins per
// topic, and records every envelope it receives with the connection it
// arrived on. Frames that are not V1 objects are counted as malformed.
type fakePhoenix struct {
	server   *httptest.Server
	upgrader websocket.Upgrader

	mu        sync.Mutex
	conns     []*fakeConn
	reject    map[string]string
	silent    map[string]bool
	received  []receivedEnvelope
	malformed [][]byte

	connects atomic.Int32
	refuse   atomic.Bool
	tokens   chan string
	closes   chan int
}

type fakeConn struct {
	conn    *websocket.Conn
	id      int
	writeMu sync.Mutex
}

type receivedEnvelope struct {
	conn int
	env  models.Envelope
}

func (c *fakeConn) writeJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(v)
}

func newFakePhoenix(t *testing.T) *fakePhoenix {
	t.Helper()
	f := &fakePhoenix{
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		reject:   make(map[string]string),
		silent:   make(map[string]bool),
		tokens:   make(chan string, 16),
		closes:   make(chan int, 16),
	}
	f.server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.close)
	return f
}

func (f *fakePhoenix) handle(w http.ResponseWriter, r *http.Request) {
	if f.refuse.Load() {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}
	if r.URL.Query().Get("vsn") != "1.0.0" {
		http.Error(w, "bad vsn", http.StatusBadRequest)
		return
	}
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	select {
	case f.tokens <- r.URL.Query().Get("token"):
	default:
	}
	fc := &fakeConn{conn: conn}
	f.mu.Lock()
	fc.id = len(f.conns) + 1
	f.conns = append(f.conns, fc)
	f.mu.Unlock()
	f.connects.Add(1)
	go f.serve(fc)
}

func (f *fakePhoenix) serve(fc *fakeConn) {
	for {
		_, data, err := fc.conn.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				select {
				case f.closes <- ce.Code:
				default:
				}
			}
			return
		}

		env, ok := decodeV1(data)
		f.mu.Lock()
		if !ok {
			f.malformed = append(f.malformed, data)
			f.mu.Unlock()
			continue
		}
		f.received = append(f.received, receivedEnvelope{conn: fc.id, env: env})
		reason, rejected := f.reject[env.Topic]
		silent := f.silent[env.Topic]
		f.mu.Unlock()

		switch env.Event {
		case models.Heartbeat:
			_ = fc.writeJSON(replyEnvelope(env, "ok", nil))
		case models.PhxJoin:
			if silent {
				continue
			}
			if rejected {
				_ = fc.writeJSON(replyEnvelope(env, "error", map[string]string{"reason": reason}))
				continue
			}
			_ = fc.writeJSON(replyEnvelope(env, "ok", nil))
		}
	}
}

// decodeV1 accepts only an object carrying topic, event, payload and ref,
// the shape the V1 serializer requires.
func decodeV1(data []byte) (models.Envelope, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return models.Envelope{}, false
	}
	for _, k := range []string{"topic", "event", "payload", "ref"} {
		if _, ok := fields[k]; !ok {
			return models.Envelope{}, false
		}
	}
	var env models.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return models.Envelope{}, false
	}
	return env, true
}

func replyEnvelope(req models.Envelope, status string, response any) models.Envelope {
	body := map[string]any{"status": status, "response": map[string]any{}}
	if response != nil {
		body["response"] = response
	}
	payload, _ := json.Marshal(body)
	return models.Envelope{Topic: req.Topic, Event: models.PhxReply, Payload: payload, Ref: req.Ref}
}

func (f *fakePhoenix) url() string {
	return "ws" + strings.TrimPrefix(f.server.URL, "http") + "/socket/websocket"
}

func (f *fakePhoenix) latest() *fakeConn {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.conns) == 0 {
		return nil
	}
	return f.conns[len(f.conns)-1]
}

// push sends a channel event to the most recent connection.
func (f *fakePhoenix) push(t *testing.T, topic, event string, payload any) {
	t.Helper()
	b, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	if err := f.latest().writeJSON(models.Envelope{Topic: topic, Event: event, Payload: b}); err != nil {
		t.Fatalf("push %s: %v", event, err)
	}
}

// dropConnection kills the TCP connection without a close frame, which the
// client sees as 1006.
func (f *fakePhoenix) dropConnection() {
	_ = f.latest().conn.UnderlyingConn().Close()
}

func (f *fakePhoenix) closeWith(code int, reason string) {
	fc := f.latest()
	fc.writeMu.Lock()
	_ = fc.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
	fc.writeMu.Unlock()
}

func (f *fakePhoenix) setReject(topic, reason string) {
	f.mu.Lock()
	f.reject[topic] = reason
	f.mu.Unlock()
}

func (f *fakePhoenix) setSilent(topic string) {
	f.mu.Lock()
	f.silent[topic] = true
	f.mu.Unlock()
}

func (f *fakePhoenix) count(topic, event string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.received {
		if r.env.Topic == topic && r.env.Event == event {
			n++
		}
	}
	return n
}

// countOn is count restricted to the conn-th connection, starting at 1.
func (f *fakePhoenix) countOn(conn int, topic, event string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.received {
		if r.conn == conn && r.env.Topic == topic && r.env.Event == event {
			n++
		}
	}
	return n
}

func (f *fakePhoenix) malformedFrames() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.malformed...)
}

func (f *fakePhoenix) find(topic, event string) (models.Envelope, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.received {
		if r.env.Topic == topic && r.env.Event == event {
			return r.env, true
		}
	}
	return models.Envelope{}, false
}

func (f *fakePhoenix) close() {
	f.mu.Lock()
	for _, fc := range f.conns {
		_ = fc.conn.Close()
	}
	f.mu.Unlock()
	f.server.Close()
}

type staticTokens struct{ pair tokens.Pair }

func (s staticTokens) Get() (tokens.Pair, error) { return s.pair, nil }

// fakeSource serves canned poll results.
type fakeSource struct {
	mu            sync.Mutex
	statuses      []models.ClockStatus
	statusErr     error
	notifications []models.Notification
	notifyErr     error
	statusCalls   int
	notifyCalls   int
	lastOpts      *api.RequestOptions
}

func (s *fakeSource) RefreshClockStatus(context.Context) (*models.ClockStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statusCalls++
	if s.statusErr != nil {
		return nil, s.statusErr
	}
	if len(s.statuses) == 0 {
		return &models.ClockStatus{}, nil
	}
	st := s.statuses[0]
	if len(s.statuses) > 1 {
		s.statuses = s.statuses[1:]
	}
	return &st, nil
}

func (s *fakeSource) Notifications(_ context.Context, opts *api.RequestOptions) ([]models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifyCalls++
	s.lastOpts = opts
	if s.notifyErr != nil {
		return nil, s.notifyErr
	}
	return append([]models.Notification(nil), s.notifications...), nil
}

func (s *fakeSource) calls() (status, notify int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusCalls, s.notifyCalls
}

func testConfig(wsURL string) *config.Config {
	cfg := config.Default()
	cfg.Realtime.Enabled = true
	cfg.Realtime.WSURL = wsURL
	cfg.Realtime.ConnectTimeout = 2 * time.Second
	cfg.Realtime.HeartbeatInterval = time.Second
	cfg.Realtime.JoinTimeout = 300 * time.Millisecond
	cfg.Realtime.ReconnectBase = 10 * time.Millisecond
	cfg.Realtime.MaxReconnectAttempts = 3
	cfg.Realtime.PushRate = 0.01
	cfg.Realtime.PushBurst = 2
	cfg.Polling.StatusInterval = 20 * time.Millisecond
	cfg.Polling.NotificationInterval = 20 * time.Millisecond
	cfg.Polling.ClockInterval = 10 * time.Millisecond
	return cfg
}

// recorder buffers bus events for assertions.
type recorder struct {
	ch chan Event
}

func record(bus *Bus, names ...string) *recorder {
	r := &recorder{ch: make(chan Event, 512)}
	for _, name := range names {
		bus.On(name, func(ev Event) {
			select {
			case r.ch <- ev:
			default:
			}
		})
	}
	return r
}

// waitFor discards events until one named name arrives.
func (r *recorder) waitFor(t *testing.T, name string) Event {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev := <-r.ch:
			if ev.Name == name {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q", name)
			return Event{}
		}
	}
}

// eventually polls cond until it holds or the deadline passes.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met: %s", what)
}

type fixture struct {
	svc    *Service
	fake   *fakePhoenix
	src    *fakeSource
	events *recorder
}

// newFixture builds a service against a fresh fake server. The recorder
// is attached before Start so no event is missed.
func newFixture(t *testing.T, mutate ...func(*config.Config)) *fixture {
	t.Helper()
	fake := newFakePhoenix(t)
	cfg := testConfig(fake.url())
	for _, m := range mutate {
		m(cfg)
	}
	src := &fakeSource{}
	svc := NewService(cfg, staticTokens{pair: tokens.Pair{Access: "tok-123"}}, src)
	events := record(svc.Bus(),
		EventConnected, EventDisconnected, EventReconnectionFailed,
		EventChannelJoined, EventChannelLeft, EventSyncError,
		EventClockStatusChanged, EventNotification, "team_update")
	t.Cleanup(svc.Disconnect)
	return &fixture{svc: svc, fake: fake, src: src, events: events}
}

func (fx *fixture) start(t *testing.T) {
	t.Helper()
	if err := fx.svc.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	fx.events.waitFor(t, EventConnected)
}
