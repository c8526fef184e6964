// Ticktrax - Resilient Time-Tracking API Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ticktrax

package realtime

import (
	"fmt"
	"sync"
	"time"

	"github.com/tomtom215/ticktrax/internal/logging"
)

// Event names emitted on the bus.
const (
	EventConnected          = "connected"
	EventDisconnected       = "disconnected"
	EventReconnectionFailed = "reconnection_failed"
	EventChannelJoined      = "channel_joined"
	EventChannelLeft        = "channel_left"
	EventSyncError          = "sync-error"
	EventClockStatusChanged = "clock-status-changed"
	EventNotification       = "notification"
	EventClockUpdate        = "clock-update"
)

// Event is one bus delivery. Payload types by name:
//
//	connected             nil
//	disconnected          DisconnectInfo
//	reconnection_failed   nil
//	channel_joined/left   ChannelInfo
//	sync-error            SyncError
//	clock-status-changed  models.ClockStatus (poll) or ChannelMessage (socket)
//	notification          models.Notification (poll) or ChannelMessage (socket)
//	clock-update          models.ClockUpdate
//
// Channel events without a mapping are emitted under their own name with a
// ChannelMessage payload.
type Event struct {
	Name    string
	Payload any
	Time    time.Time
}

// Handler receives bus events. It runs on the emitting goroutine.
type Handler func(Event)

// ListenerID identifies a registration for Off.
type ListenerID uint64

type listener struct {
	id ListenerID
	fn Handler
}

// Bus is an in-process publish/subscribe registry.
type Bus struct {
	mu        sync.RWMutex
	listeners map[string][]listener
	nextID    ListenerID
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{listeners: make(map[string][]listener)}
}

// On registers h for event and returns an id for Off.
func (b *Bus) On(event string, h Handler) ListenerID {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.listeners[event] = append(b.listeners[event], listener{id: b.nextID, fn: h})
	return b.nextID
}

// Off removes the listener registered under id. Unknown ids are ignored.
func (b *Bus) Off(event string, id ListenerID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ls := b.listeners[event]
	for i, l := range ls {
		if l.id == id {
			b.listeners[event] = append(ls[:i:i], ls[i+1:]...)
			break
		}
	}
	if len(b.listeners[event]) == 0 {
		delete(b.listeners, event)
	}
}

// Emit delivers payload to every listener of name, in registration order.
// A panicking handler is logged and does not stop the others.
func (b *Bus) Emit(name string, payload any) {
	b.mu.RLock()
	ls := b.listeners[name]
	snapshot := make([]listener, len(ls))
	copy(snapshot, ls)
	b.mu.RUnlock()

	ev := Event{Name: name, Payload: payload, Time: time.Now()}
	for _, l := range snapshot {
		b.deliver(l, ev)
	}
}

func (b *Bus) deliver(l listener, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error().
				Str("event", ev.Name).
				Uint64("listener", uint64(l.id)).
				Str("panic", fmt.Sprint(r)).
				Msg("event handler panicked")
		}
	}()
	l.fn(ev)
}

// Count returns the number of listeners for event.
func (b *Bus) Count(event string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners[event])
}

// Clear removes every listener.
func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = make(map[string][]listener)
}
