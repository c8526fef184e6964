// Ticktrax - Resilient Time-Tracking API Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ticktrax

package realtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/ticktrax/internal/logging"
	"github.com/tomtom215/ticktrax/internal/metrics"
	"github.com/tomtom215/ticktrax/internal/models"
)

type channelState int

const (
	channelJoining channelState = iota
	channelJoined
)

// channel is a topic the caller asked to join. It survives reconnects in
// the joining state and is replayed once the socket is back.
type channel struct {
	topic   string
	params  map[string]any
	state   channelState
	attempt *joinAttempt
}

// joinAttempt is a phx_join awaiting its reply. Concurrent joins of the
// same topic on the same socket wait on it instead of sending again.
type joinAttempt struct {
	sock *socket
	done chan struct{}
	err  error
}

func newRef() string { return uuid.NewString() }

// Join subscribes to topic and waits for the server's reply. Without a
// connection the topic is still recorded and ErrNotConnected is returned;
// it is joined automatically when the socket connects.
func (s *Service) Join(ctx context.Context, topic string, params map[string]any) error {
	s.mu.Lock()
	ch := s.channels[topic]
	if ch != nil && ch.state == channelJoined {
		s.mu.Unlock()
		return nil
	}
	if ch == nil {
		ch = &channel{topic: topic, params: params}
		s.channels[topic] = ch
	} else if params != nil {
		ch.params = params
	}
	sock := s.sock
	s.mu.Unlock()

	if sock == nil {
		return ErrNotConnected
	}
	return s.join(ctx, sock, ch)
}

// join sends at most one phx_join per topic per socket. Callers arriving
// while a join is in flight wait for its outcome.
func (s *Service) join(ctx context.Context, sock *socket, ch *channel) error {
	for {
		s.mu.Lock()
		if s.sock != sock {
			s.mu.Unlock()
			return ErrNotConnected
		}
		if ch.state == channelJoined {
			s.mu.Unlock()
			return nil
		}
		a := ch.attempt
		if a == nil || a.sock != sock {
			a = &joinAttempt{sock: sock, done: make(chan struct{})}
			ch.attempt = a
			s.mu.Unlock()

			err := s.sendJoin(ctx, sock, ch)
			s.mu.Lock()
			if ch.attempt == a {
				ch.attempt = nil
			}
			s.mu.Unlock()
			a.err = err
			close(a.done)
			return err
		}
		s.mu.Unlock()

		select {
		case <-a.done:
			// The sender gave up on its own context; try again with ours.
			if isContextErr(a.err) && ctx.Err() == nil {
				continue
			}
			return a.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (s *Service) sendJoin(ctx context.Context, sock *socket, ch *channel) error {
	ref := newRef()
	reply := make(chan models.Reply, 1)

	s.mu.Lock()
	if s.sock != sock {
		s.mu.Unlock()
		return ErrNotConnected
	}
	s.pending[ref] = reply
	params := ch.params
	s.mu.Unlock()

	payload := emptyObject
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			s.dropPending(ref)
			return fmt.Errorf("encode join params: %w", err)
		}
		payload = b
	}

	if err := sock.write(models.Envelope{Topic: ch.topic, Event: models.PhxJoin, Payload: payload, Ref: ref}); err != nil {
		s.dropPending(ref)
		metrics.WSChannelJoins.WithLabelValues("error").Inc()
		return fmt.Errorf("join %s: %w", ch.topic, err)
	}

	timer := time.NewTimer(s.cfg.JoinTimeout)
	defer timer.Stop()

	select {
	case r, ok := <-reply:
		if !ok {
			metrics.WSChannelJoins.WithLabelValues("error").Inc()
			return ErrNotConnected
		}
		if r.Status != "ok" {
			s.mu.Lock()
			if s.channels[ch.topic] == ch {
				delete(s.channels, ch.topic)
			}
			s.mu.Unlock()
			metrics.WSChannelJoins.WithLabelValues("rejected").Inc()
			return &ChannelJoinRejectedError{Topic: ch.topic, Reason: r.Reason()}
		}

		s.mu.Lock()
		current := s.channels[ch.topic] == ch
		if current {
			ch.state = channelJoined
		}
		s.mu.Unlock()

		metrics.WSChannelJoins.WithLabelValues("ok").Inc()
		if current {
			logging.Debug().Str("topic", ch.topic).Msg("joined channel")
			s.bus.Emit(EventChannelJoined, ChannelInfo{Topic: ch.topic})
		}
		return nil

	case <-timer.C:
		s.dropPending(ref)
		metrics.WSChannelJoins.WithLabelValues("timeout").Inc()
		return fmt.Errorf("join %s: %w", ch.topic, ErrChannelJoinTimeout)

	case <-ctx.Done():
		s.dropPending(ref)
		return ctx.Err()
	}
}

func (s *Service) dropPending(ref string) {
	s.mu.Lock()
	delete(s.pending, ref)
	s.mu.Unlock()
}

// rejoinAll replays every recorded topic on a fresh socket.
func (s *Service) rejoinAll(ctx context.Context, sock *socket) {
	defer s.wg.Done()

	s.mu.Lock()
	todo := make([]*channel, 0, len(s.channels))
	for _, ch := range s.channels {
		if ch.state != channelJoined {
			todo = append(todo, ch)
		}
	}
	s.mu.Unlock()

	for _, ch := range todo {
		if err := s.join(ctx, sock, ch); err != nil {
			if errors.Is(err, ErrNotConnected) || ctx.Err() != nil {
				return
			}
			logging.Warn().Err(err).Str("topic", ch.topic).Msg("rejoin failed")
			s.bus.Emit(EventSyncError, SyncError{Kind: "socket", Err: err})
		}
	}
}

// Leave unsubscribes from topic. phx_leave is sent only for a joined
// topic; channel_left is emitted whenever the topic was known.
func (s *Service) Leave(topic string) error {
	s.mu.Lock()
	ch, ok := s.channels[topic]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	delete(s.channels, topic)
	sock := s.sock
	joined := ch.state == channelJoined
	s.mu.Unlock()

	var err error
	if sock != nil && joined {
		if werr := sock.write(models.Envelope{Topic: topic, Event: models.PhxLeave, Ref: newRef()}); werr != nil {
			err = fmt.Errorf("leave %s: %w", topic, werr)
		}
	}
	s.bus.Emit(EventChannelLeft, ChannelInfo{Topic: topic})
	return err
}

// Push sends event on a joined topic. Outbound traffic is limited by a
// token bucket; an empty bucket fails fast with ErrPushThrottled.
func (s *Service) Push(topic, event string, payload any) error {
	s.mu.Lock()
	sock := s.sock
	ch := s.channels[topic]
	joined := ch != nil && ch.state == channelJoined
	s.mu.Unlock()

	if sock == nil {
		return ErrNotConnected
	}
	if !joined {
		return fmt.Errorf("push %s: %w", topic, ErrNotJoined)
	}
	if !s.limiter.Allow() {
		return ErrPushThrottled
	}

	body := emptyObject
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode %s payload: %w", event, err)
		}
		body = b
	}
	if err := sock.write(models.Envelope{Topic: topic, Event: event, Payload: body, Ref: newRef()}); err != nil {
		return fmt.Errorf("push %s %s: %w", topic, event, err)
	}
	return nil
}

// UserTopics lists the topics a user subscribes to.
func UserTopics(userID string, role models.Role) []string {
	topics := []string{"time_tracking:" + userID, "notifications:" + userID}
	if role.CanViewTeam() {
		topics = append(topics, "team_dashboard:"+userID)
	}
	return topics
}

// JoinUserChannels joins the per-user topics, plus the team dashboard for
// roles that can see it. Every topic is attempted; the errors are joined.
func (s *Service) JoinUserChannels(ctx context.Context, userID string, role models.Role) error {
	var errs []error
	for _, topic := range UserTopics(userID, role) {
		if err := s.Join(ctx, topic, map[string]any{"user_id": userID}); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
