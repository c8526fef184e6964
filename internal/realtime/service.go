// Ticktrax - Resilient Time-Tracking API Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ticktrax

package realtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/tomtom215/ticktrax/internal/config"
	"github.com/tomtom215/ticktrax/internal/logging"
	"github.com/tomtom215/ticktrax/internal/metrics"
	"github.com/tomtom215/ticktrax/internal/models"
	"github.com/tomtom215/ticktrax/internal/tokens"
)

// TokenSource supplies the access token used to authenticate the socket.
// *tokens.Store implements it.
type TokenSource interface {
	Get() (tokens.Pair, error)
}

// State is the socket lifecycle state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return "disconnected"
	}
}

// ConnectionStatus is a snapshot returned by Status.
type ConnectionStatus struct {
	State             string   `json:"state" yaml:"state"`
	Connected         bool     `json:"connected" yaml:"connected"`
	Channels          []string `json:"channels" yaml:"channels"`
	ReconnectAttempts int      `json:"reconnect_attempts" yaml:"reconnect_attempts"`
	Polling           bool     `json:"polling" yaml:"polling"`
}

// Service keeps the dashboard in sync with the backend. It holds a Phoenix
// socket while one can be had and falls back to REST polling otherwise.
// All results reach callers through the event bus.
type Service struct {
	cfg     config.RealtimeConfig
	tokens  TokenSource
	bus     *Bus
	poller  *Poller
	clock   *ClockTicker
	dialer  *websocket.Dialer
	limiter *rate.Limiter

	mu        sync.Mutex
	running   bool
	state     State
	sock      *socket
	gen       uint64
	attempts  int
	reconnect *time.Timer
	channels  map[string]*channel
	pending   map[string]chan models.Reply
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewService wires a service from cfg. src backs the polling fallback.
func NewService(cfg *config.Config, tok TokenSource, src Source) *Service {
	bus := NewBus()
	rc := cfg.Realtime
	return &Service{
		cfg:    rc,
		tokens: tok,
		bus:    bus,
		poller: NewPoller(src, bus, cfg.Polling.StatusInterval, cfg.Polling.NotificationInterval),
		clock:  NewClockTicker(bus, cfg.Polling.ClockInterval),
		dialer: &websocket.Dialer{
			Proxy:             http.ProxyFromEnvironment,
			HandshakeTimeout:  rc.ConnectTimeout,
			EnableCompression: true,
		},
		limiter:  rate.NewLimiter(rate.Limit(rc.PushRate), rc.PushBurst),
		channels: make(map[string]*channel),
		pending:  make(map[string]chan models.Reply),
	}
}

// Bus exposes the event bus.
func (s *Service) Bus() *Bus { return s.bus }

// On subscribes h to event.
func (s *Service) On(event string, h Handler) ListenerID { return s.bus.On(event, h) }

// Off removes a subscription.
func (s *Service) Off(event string, id ListenerID) { s.bus.Off(event, id) }

// Emit publishes an event to local subscribers.
func (s *Service) Emit(event string, payload any) { s.bus.Emit(event, payload) }

// Start begins syncing. The clock ticker always runs. With the socket
// disabled only the poller runs; otherwise Start dials once and, on
// failure, starts polling and schedules a reconnect before returning the
// dial error. Start on a running service is a no-op.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.state = StateDisconnected
	s.attempts = 0
	s.ctx, s.cancel = context.WithCancel(ctx)
	runCtx := s.ctx
	s.mu.Unlock()

	s.clock.Start()

	if !s.cfg.Enabled {
		logging.Info().Msg("realtime socket disabled, polling only")
		s.poller.Start(runCtx)
		return nil
	}

	if err := s.connect(runCtx); err != nil {
		logging.Warn().Err(err).Msg("realtime connect failed, falling back to polling")
		s.poller.Start(runCtx)
		s.scheduleReconnect()
		return fmt.Errorf("realtime connect: %w", err)
	}
	return nil
}

// Serve implements suture.Service.
func (s *Service) Serve(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		logging.Debug().Err(err).Msg("realtime service started degraded")
	}
	<-ctx.Done()
	s.Disconnect()
	return ctx.Err()
}

// Disconnect closes the socket with code 1000, stops every loop and timer,
// and clears channels and listeners. It is safe to call more than once.
func (s *Service) Disconnect() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.gen++
	if s.reconnect != nil {
		if s.reconnect.Stop() {
			s.wg.Done()
		}
		s.reconnect = nil
	}
	sock := s.sock
	s.sock = nil
	s.failPendingLocked()
	s.channels = make(map[string]*channel)
	s.state = StateDisconnected
	s.attempts = 0
	cancel := s.cancel
	s.mu.Unlock()

	if sock != nil {
		sock.closeNormal("Manual disconnect")
		sock.close()
		metrics.SetBool(metrics.WSConnected, false)
	}
	cancel()
	s.wg.Wait()
	s.poller.Stop()
	s.clock.Stop()

	if sock != nil {
		s.bus.Emit(EventDisconnected, DisconnectInfo{
			Code:   websocket.CloseNormalClosure,
			Reason: "Manual disconnect",
			Manual: true,
		})
	}
	s.bus.Clear()
	logging.Info().Msg("realtime service stopped")
}

// Status returns a snapshot of the connection.
func (s *Service) Status() ConnectionStatus {
	s.mu.Lock()
	st := ConnectionStatus{
		State:             s.state.String(),
		Connected:         s.sock != nil,
		Channels:          make([]string, 0, len(s.channels)),
		ReconnectAttempts: s.attempts,
	}
	for topic := range s.channels {
		st.Channels = append(st.Channels, topic)
	}
	s.mu.Unlock()

	sort.Strings(st.Channels)
	st.Polling = s.poller.Running()
	return st
}

// State returns the current lifecycle state.
func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Service) connect(ctx context.Context) error {
	pair, err := s.tokens.Get()
	if err != nil {
		return fmt.Errorf("read token: %w", err)
	}
	if !pair.HasAccess() {
		return ErrNoToken
	}
	target, err := socketURL(s.cfg.WSURL, pair.Access)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrNotConnected
	}
	if s.state != StateReconnecting {
		s.state = StateConnecting
	}
	s.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	defer cancel()

	conn, resp, err := s.dialer.DialContext(dialCtx, target, nil)
	if resp != nil && resp.Body != nil {
		if cerr := resp.Body.Close(); cerr != nil {
			logging.Debug().Err(cerr).Msg("failed to close handshake response body")
		}
	}
	if err != nil {
		if resp != nil {
			return fmt.Errorf("websocket dial failed (status %d): %w", resp.StatusCode, err)
		}
		return fmt.Errorf("websocket dial failed: %w", err)
	}

	sock := newSocket(conn)

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		_ = conn.Close()
		return ErrNotConnected
	}
	s.gen++
	s.sock = sock
	s.state = StateConnected
	s.attempts = 0
	s.wg.Add(3)
	s.mu.Unlock()

	metrics.SetBool(metrics.WSConnected, true)
	logging.Info().Str("url", s.cfg.WSURL).Msg("realtime socket connected")

	s.poller.Stop()

	go s.readLoop(sock)
	go s.heartbeatLoop(sock)
	s.bus.Emit(EventConnected, nil)
	go s.rejoinAll(ctx, sock)
	return nil
}

// scheduleReconnect arms a reconnect with delay ReconnectBase*2^attempts.
// Once MaxReconnectAttempts is reached the service moves to Failed and
// polls for the rest of its life.
func (s *Service) scheduleReconnect() {
	s.mu.Lock()
	if !s.running || s.reconnect != nil || s.sock != nil {
		s.mu.Unlock()
		return
	}
	if s.attempts >= s.cfg.MaxReconnectAttempts {
		s.state = StateFailed
		attempts := s.attempts
		ctx := s.ctx
		s.mu.Unlock()

		logging.Error().Int("attempts", attempts).Msg("realtime reconnection failed, polling permanently")
		s.bus.Emit(EventReconnectionFailed, nil)
		s.poller.Start(ctx)
		return
	}

	delay := s.cfg.ReconnectBase * time.Duration(1<<s.attempts)
	s.attempts++
	s.state = StateReconnecting
	gen := s.gen
	ctx := s.ctx
	attempt := s.attempts
	s.wg.Add(1)
	s.reconnect = time.AfterFunc(delay, func() { s.reconnectNow(ctx, gen) })
	s.mu.Unlock()

	metrics.WSReconnectAttempts.Inc()
	logging.Info().Int("attempt", attempt).Dur("delay", delay).Msg("scheduling realtime reconnect")
}

func (s *Service) reconnectNow(ctx context.Context, gen uint64) {
	defer s.wg.Done()

	s.mu.Lock()
	if !s.running || gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.reconnect = nil
	s.mu.Unlock()

	if err := s.connect(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		logging.Warn().Err(err).Msg("realtime reconnect failed")
		s.poller.Start(ctx)
		s.scheduleReconnect()
	}
}

func (s *Service) readLoop(sock *socket) {
	defer s.wg.Done()

	deadline := 2*s.cfg.HeartbeatInterval + s.cfg.JoinTimeout
	for {
		if err := sock.conn.SetReadDeadline(time.Now().Add(deadline)); err != nil {
			s.handleClose(sock, err)
			return
		}
		_, data, err := sock.conn.ReadMessage()
		if err != nil {
			s.handleClose(sock, err)
			return
		}
		metrics.WSMessagesReceived.Inc()
		s.handleMessage(data)
	}
}

func (s *Service) heartbeatLoop(sock *socket) {
	defer s.wg.Done()

	t := time.NewTicker(s.cfg.HeartbeatInterval)
	defer t.Stop()
	for {
		select {
		case <-sock.done:
			return
		case <-t.C:
			err := sock.write(models.Envelope{
				Topic: models.PhoenixTopic,
				Event: models.Heartbeat,
				Ref:   newRef(),
			})
			if err != nil {
				logging.Warn().Err(err).Msg("heartbeat failed, closing socket")
				sock.close()
				return
			}
		}
	}
}

// handleClose runs once per socket, from its read loop. Code 1000 from
// the server is a deliberate close and is not retried; anything else is.
func (s *Service) handleClose(sock *socket, readErr error) {
	code := websocket.CloseAbnormalClosure
	reason := readErr.Error()
	var ce *websocket.CloseError
	if errors.As(readErr, &ce) {
		code = ce.Code
		reason = ce.Text
	}

	s.mu.Lock()
	if s.sock != sock {
		s.mu.Unlock()
		return
	}
	s.sock = nil
	for _, ch := range s.channels {
		ch.state = channelJoining
	}
	s.failPendingLocked()
	manual := code == websocket.CloseNormalClosure
	if manual {
		s.state = StateDisconnected
	}
	s.mu.Unlock()

	sock.close()
	metrics.SetBool(metrics.WSConnected, false)
	logging.Warn().Int("code", code).Str("reason", reason).Msg("realtime socket closed")
	s.bus.Emit(EventDisconnected, DisconnectInfo{Code: code, Reason: reason, Manual: manual})

	if !manual {
		s.scheduleReconnect()
	}
}

// failPendingLocked wakes every waiting join with ErrNotConnected.
func (s *Service) failPendingLocked() {
	for ref, ch := range s.pending {
		close(ch)
		delete(s.pending, ref)
	}
}

func (s *Service) handleMessage(data []byte) {
	var env models.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		logging.Debug().Err(err).Msg("dropping undecodable socket message")
		return
	}

	switch env.Event {
	case models.PhxReply:
		s.resolve(env)
		return
	case models.PhxError, models.PhxClose:
		s.mu.Lock()
		if ch := s.channels[env.Topic]; ch != nil {
			ch.state = channelJoining
		}
		s.mu.Unlock()
		logging.Warn().Str("topic", env.Topic).Str("event", env.Event).Msg("channel closed by server")
		return
	}

	msg := ChannelMessage{Topic: env.Topic, Event: env.Event, Payload: env.Payload}
	switch env.Event {
	case "clock_in", "clock_out", "status_changed":
		s.bus.Emit(EventClockStatusChanged, msg)
	case "notification", "new_notification":
		s.poller.MarkSeen(notificationID(env.Payload))
		s.bus.Emit(EventNotification, msg)
	default:
		s.bus.Emit(env.Event, msg)
	}
}

func (s *Service) resolve(env models.Envelope) {
	s.mu.Lock()
	ch, ok := s.pending[env.Ref]
	if ok {
		delete(s.pending, env.Ref)
	}
	s.mu.Unlock()
	if !ok {
		return
	}

	var reply models.Reply
	if err := json.Unmarshal(env.Payload, &reply); err != nil {
		reply = models.Reply{Status: "error"}
	}
	ch <- reply
}

func notificationID(payload json.RawMessage) string {
	var body struct {
		ID           models.FlexID `json:"id"`
		Notification *struct {
			ID models.FlexID `json:"id"`
		} `json:"notification"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return ""
	}
	if body.ID != "" {
		return string(body.ID)
	}
	if body.Notification != nil {
		return string(body.Notification.ID)
	}
	return ""
}
