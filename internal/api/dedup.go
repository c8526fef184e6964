// Ticktrax - Resilient Time-Tracking API Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ticktrax

package api

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/tomtom215/ticktrax/internal/metrics"
)

// Deduplicator collapses concurrent identical GETs into one execution.
type Deduplicator struct {
	group singleflight.Group

	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewDeduplicator creates an empty Deduplicator.
func NewDeduplicator() *Deduplicator {
	return &Deduplicator{inflight: make(map[string]struct{})}
}

// Do runs fn once per key among concurrent callers. Every caller gets the
// same result or error; shared reports whether the result was shared.
// A caller whose ctx ends stops waiting and gets ctx.Err(); the shared
// execution carries on for the others.
func (d *Deduplicator) Do(ctx context.Context, key string, fn func() (*Result, error)) (res *Result, err error, shared bool) {
	ch := d.group.DoChan(key, func() (any, error) {
		d.mu.Lock()
		d.inflight[key] = struct{}{}
		d.mu.Unlock()
		defer func() {
			d.mu.Lock()
			delete(d.inflight, key)
			d.mu.Unlock()
		}()
		return fn()
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err(), false
	case r := <-ch:
		if r.Shared {
			metrics.APIDedupShared.Inc()
		}
		if r.Err != nil {
			return nil, r.Err, r.Shared
		}
		out, _ := r.Val.(*Result)
		if out != nil && r.Shared {
			out = out.clone()
		}
		return out, nil, r.Shared
	}
}

// InFlight reports whether a call for key is executing.
func (d *Deduplicator) InFlight(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.inflight[key]
	return ok
}
