// Ticktrax - Resilient Time-Tracking API Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ticktrax

package storage

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// keyPrefix namespaces client keys inside the database.
const keyPrefix = "ticktrax:"

// Options selects the Badger backend.
type Options struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path string

	// InMemory keeps everything in RAM; nothing survives Close.
	InMemory bool
}

// BadgerStore implements Store on top of BadgerDB.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadger opens (or creates) a Badger database.
func OpenBadger(opts Options) (*BadgerStore, error) {
	bopts := badger.DefaultOptions(opts.Path)
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	}
	// Badger's own logger writes to stderr and would interleave with CLI output.
	bopts = bopts.WithLogger(nil)

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open badger db: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// Get reads key.
func (s *BadgerStore) Get(key string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get %s: %w", key, err)
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Set writes key.
func (s *BadgerStore) Set(key string, value []byte) error {
	return s.SetMany(map[string][]byte{key: value})
}

// SetMany writes all pairs in one transaction.
func (s *BadgerStore) SetMany(values map[string][]byte) error {
	return s.Apply(values, nil)
}

// Delete removes keys in one transaction. Missing keys are not an error.
func (s *BadgerStore) Delete(keys ...string) error {
	return s.Apply(nil, keys)
}

// Apply writes set and removes del in one transaction.
func (s *BadgerStore) Apply(set map[string][]byte, del []string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		for k, v := range set {
			if err := txn.Set([]byte(keyPrefix+k), v); err != nil {
				return fmt.Errorf("set %s: %w", k, err)
			}
		}
		for _, k := range del {
			if err := txn.Delete([]byte(keyPrefix + k)); err != nil {
				return fmt.Errorf("delete %s: %w", k, err)
			}
		}
		return nil
	})
}

// Close flushes and closes the database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
