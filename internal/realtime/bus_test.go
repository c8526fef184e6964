// Ticktrax - Resilient Time-Tracking API Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ticktrax

package realtime

import (
	"slices"
	"sync"
	"testing"
)

func TestBusOrderAndOff(t *testing.T) {
	t.Parallel()
	bus := NewBus()

	var got []string
	bus.On("x", func(Event) { got = append(got, "a") })
	id := bus.On("x", func(Event) { got = append(got, "b") })
	bus.On("x", func(Event) { got = append(got, "c") })

	bus.Emit("x", nil)
	if !slices.Equal(got, []string{"a", "b", "c"}) {
		t.Fatalf("order = %v", got)
	}

	got = nil
	bus.Off("x", id)
	bus.Off("x", 999)
	bus.Emit("x", nil)
	if !slices.Equal(got, []string{"a", "c"}) {
		t.Errorf("after Off = %v", got)
	}
	if n := bus.Count("x"); n != 2 {
		t.Errorf("Count = %d", n)
	}
}

func TestBusPayload(t *testing.T) {
	t.Parallel()
	bus := NewBus()

	var ev Event
	bus.On("y", func(e Event) { ev = e })
	bus.Emit("y", 42)
	if ev.Name != "y" || ev.Payload != 42 || ev.Time.IsZero() {
		t.Errorf("event = %+v", ev)
	}
}

func TestBusRecoversHandlerPanic(t *testing.T) {
	t.Parallel()
	bus := NewBus()

	called := false
	bus.On("boom", func(Event) { panic("handler bug") })
	bus.On("boom", func(Event) { called = true })

	bus.Emit("boom", nil)
	if !called {
		t.Error("second handler skipped after panic")
	}
}

func TestBusClear(t *testing.T) {
	t.Parallel()
	bus := NewBus()
	bus.On("a", func(Event) {})
	bus.On("b", func(Event) {})
	bus.Clear()
	if bus.Count("a")+bus.Count("b") != 0 {
		t.Error("listeners survived Clear")
	}
}

func TestBusHandlerMayUnsubscribe(t *testing.T) {
	t.Parallel()
	bus := NewBus()

	var id ListenerID
	calls := 0
	id = bus.On("once", func(Event) {
		calls++
		bus.Off("once", id)
	})
	bus.Emit("once", nil)
	bus.Emit("once", nil)
	if calls != 1 {
		t.Errorf("calls = %d", calls)
	}
}

func TestBusConcurrentEmit(t *testing.T) {
	t.Parallel()
	bus := NewBus()

	var mu sync.Mutex
	n := 0
	bus.On("c", func(Event) {
		mu.Lock()
		n++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bus.Emit("c", nil)
		}()
	}
	wg.Wait()
	if n != 50 {
		t.Errorf("n = %d", n)
	}
}
