// Ticktrax - Resilient Time-Tracking API Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ticktrax

// Package cache holds the TTL response cache used by the API client and a
// small bounded set for de-duplicating notification ids.
package cache

import (
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/tomtom215/ticktrax/internal/metrics"
)

// Entry is one cached value.
type Entry struct {
	Value    any
	StoredAt time.Time
	TTL      time.Duration
}

// Valid reports whether the entry is still fresh at now. An entry is valid
// while now - StoredAt <= TTL.
func (e Entry) Valid(now time.Time) bool {
	return now.Sub(e.StoredAt) <= e.TTL
}

// Stats is a snapshot of cache counters.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Keys      int
}

// HitRate returns hits / (hits + misses) as a percentage.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100
}

// Cache is a thread-safe TTL cache. Expired entries are removed lazily by
// Get, and explicitly by the Delete variants and Clear; there is no
// background sweeper.
type Cache struct {
	mu      sync.Mutex
	entries map[string]Entry
	ttl     time.Duration
	now     func() time.Time
	label   string

	hits      int64
	misses    int64
	evictions int64
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces time.Now, for tests that need to move time forward.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithMetricsLabel sets the cache_type label used for Prometheus counters.
func WithMetricsLabel(label string) Option {
	return func(c *Cache) { c.label = label }
}

// New creates a cache whose Set uses ttl.
func New(ttl time.Duration, opts ...Option) *Cache {
	c := &Cache{
		entries: make(map[string]Entry),
		ttl:     ttl,
		now:     time.Now,
		label:   "response",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DefaultTTL returns the TTL applied by Set.
func (c *Cache) DefaultTTL() time.Duration {
	return c.ttl
}

// Now returns the cache's notion of the current time.
func (c *Cache) Now() time.Time {
	return c.now()
}

// Get returns the value for key if it is present and fresh. A stale entry
// is evicted and reported as a miss.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		c.misses++
		metrics.CacheMisses.WithLabelValues(c.label).Inc()
		return nil, false
	}

	if !entry.Valid(c.now()) {
		delete(c.entries, key)
		c.misses++
		c.evictions++
		metrics.CacheMisses.WithLabelValues(c.label).Inc()
		metrics.CacheEvictions.WithLabelValues(c.label).Inc()
		return nil, false
	}

	c.hits++
	metrics.CacheHits.WithLabelValues(c.label).Inc()
	return entry.Value, true
}

// Peek returns the entry for key whether or not it has expired. It does not
// evict and does not touch the counters.
func (c *Cache) Peek(key string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	return e, ok
}

// Set stores value with the default TTL.
func (c *Cache) Set(key string, value any) {
	c.SetWithTTL(key, value, c.ttl)
}

// SetWithTTL stores value with ttl. A non-positive ttl falls back to the
// default.
func (c *Cache) SetWithTTL(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.ttl
	}
	c.mu.Lock()
	c.entries[key] = Entry{Value: value, StoredAt: c.now(), TTL: ttl}
	size := len(c.entries)
	c.mu.Unlock()

	metrics.CacheSize.WithLabelValues(c.label).Set(float64(size))
}

// Delete removes key. It reports whether an entry was removed.
func (c *Cache) Delete(key string) bool {
	c.mu.Lock()
	_, ok := c.entries[key]
	if ok {
		delete(c.entries, key)
		c.evictions++
	}
	size := len(c.entries)
	c.mu.Unlock()

	if ok {
		metrics.CacheEvictions.WithLabelValues(c.label).Inc()
	}
	metrics.CacheSize.WithLabelValues(c.label).Set(float64(size))
	return ok
}

// DeletePrefix removes every key starting with prefix and returns how many
// were removed.
func (c *Cache) DeletePrefix(prefix string) int {
	return c.deleteMatching(func(k string) bool { return strings.HasPrefix(k, prefix) })
}

// DeleteEndpoint removes the entries of endpoint: the bare key, its query
// variants and its sub-paths. Sibling paths sharing a prefix, such as
// "/user/profile-photo" for "/user/profile", are kept.
func (c *Cache) DeleteEndpoint(endpoint string) int {
	endpoint = strings.TrimRight(endpoint, "/?")
	return c.deleteMatching(func(k string) bool {
		rest, ok := strings.CutPrefix(k, endpoint)
		return ok && (rest == "" || rest[0] == '?' || rest[0] == '/')
	})
}

func (c *Cache) deleteMatching(match func(string) bool) int {
	c.mu.Lock()
	removed := 0
	for k := range c.entries {
		if match(k) {
			delete(c.entries, k)
			removed++
		}
	}
	c.evictions += int64(removed)
	size := len(c.entries)
	c.mu.Unlock()

	metrics.CacheEvictions.WithLabelValues(c.label).Add(float64(removed))
	metrics.CacheSize.WithLabelValues(c.label).Set(float64(size))
	return removed
}

// Clear removes every entry and returns how many were removed.
func (c *Cache) Clear() int {
	c.mu.Lock()
	removed := len(c.entries)
	c.entries = make(map[string]Entry)
	c.evictions += int64(removed)
	c.mu.Unlock()

	metrics.CacheEvictions.WithLabelValues(c.label).Add(float64(removed))
	metrics.CacheSize.WithLabelValues(c.label).Set(0)
	return removed
}

// Stats returns a snapshot of the counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Keys:      len(c.entries),
	}
}

// GenerateKey builds the cache and dedup key for a request. Parameters are
// sorted by name and escaped, so the result does not depend on map order:
//
//	GenerateKey("/time/entries", map[string]string{"page": "2", "limit": "10"})
//	// "/time/entries?limit=10&page=2"
func GenerateKey(endpoint string, params map[string]string) string {
	if len(params) == 0 {
		return endpoint
	}
	q := make(url.Values, len(params))
	for k, v := range params {
		q.Set(k, v)
	}
	sep := "?"
	if strings.Contains(endpoint, "?") {
		sep = "&"
	}
	// url.Values.Encode sorts by key.
	return endpoint + sep + q.Encode()
}
