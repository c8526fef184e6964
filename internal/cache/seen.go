// Ticktrax - Resilient Time-Tracking API Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ticktrax

package cache

import (
	"container/list"
	"sync"
	"time"
)

// SeenSet remembers recently seen ids with a capacity bound and a TTL. The
// poller uses it so each notification is emitted once even though every
// poll returns the whole list.
type SeenSet struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	now      func() time.Time
	order    *list.List // front = most recently seen
	items    map[string]*list.Element
}

type seenEntry struct {
	id        string
	expiresAt time.Time
}

// NewSeenSet creates a set holding at most capacity ids for ttl each.
func NewSeenSet(capacity int, ttl time.Duration) *SeenSet {
	if capacity <= 0 {
		capacity = 1000
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SeenSet{
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
		order:    list.New(),
		items:    make(map[string]*list.Element, capacity),
	}
}

// CheckAndMark reports whether id was already seen and unexpired. If not,
// it records id and evicts the least recently seen id when over capacity.
func (s *SeenSet) CheckAndMark(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if el, ok := s.items[id]; ok {
		e := el.Value.(*seenEntry)
		if now.Before(e.expiresAt) {
			s.order.MoveToFront(el)
			return true
		}
		s.order.Remove(el)
		delete(s.items, id)
	}

	s.items[id] = s.order.PushFront(&seenEntry{id: id, expiresAt: now.Add(s.ttl)})
	for len(s.items) > s.capacity {
		oldest := s.order.Back()
		s.order.Remove(oldest)
		delete(s.items, oldest.Value.(*seenEntry).id)
	}
	return false
}

// Len returns the number of tracked ids, expired ones included.
func (s *SeenSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Reset forgets every id.
func (s *SeenSet) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.order.Init()
	s.items = make(map[string]*list.Element, s.capacity)
}
