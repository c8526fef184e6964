// Ticktrax - Resilient Time-Tracking API Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ticktrax

// Package storage is the durable key-value layer behind the token store.
// The CLI persists to BadgerDB so a login survives between invocations;
// tests and ephemeral runs use the in-memory implementation.
package storage

import (
	"errors"
	"sync"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("storage: key not found")

// Store is a minimal byte-oriented key-value store.
//
// SetMany, Delete and Apply touch all keys in one transaction: either every
// key is written (or removed) or none is.
type Store interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
	SetMany(values map[string][]byte) error
	Delete(keys ...string) error
	// Apply writes set and removes del together. A key in both is removed.
	Apply(set map[string][]byte, del []string) error
	Close() error
}

// MemoryStore implements Store with a mutex-guarded map.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

// Get returns a copy of the stored value.
func (m *MemoryStore) Get(key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

// Set stores a copy of value.
func (m *MemoryStore) Set(key string, value []byte) error {
	m.mu.Lock()
	m.data[key] = append([]byte(nil), value...)
	m.mu.Unlock()
	return nil
}

// SetMany stores every pair under one lock.
func (m *MemoryStore) SetMany(values map[string][]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range values {
		m.data[k] = append([]byte(nil), v...)
	}
	return nil
}

// Delete removes keys; missing keys are ignored.
func (m *MemoryStore) Delete(keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

// Apply writes set and removes del under one lock.
func (m *MemoryStore) Apply(set map[string][]byte, del []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range set {
		m.data[k] = append([]byte(nil), v...)
	}
	for _, k := range del {
		delete(m.data, k)
	}
	return nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }
