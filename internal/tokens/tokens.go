// Ticktrax - Resilient Time-Tracking API Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ticktrax

// Package tokens persists the access token, the CSRF token and the cached
// user record. It holds no copies in memory: every Get reads the backing
// store, so a Clear from one component is seen by all others immediately.
package tokens

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tomtom215/ticktrax/internal/storage"
)

// Persisted key names. All three are removed together by Clear.
const (
	AccessTokenKey = "jwt_token"
	CSRFTokenKey   = "csrf_token"
	UserKey        = "user_data"
)

// Pair is the token pair. An empty string means the token is absent.
type Pair struct {
	Access string
	CSRF   string
}

// HasAccess reports whether an access token is present.
func (p Pair) HasAccess() bool {
	return p.Access != ""
}

// Store reads and writes tokens through a storage.Store.
type Store struct {
	kv storage.Store
}

// NewStore creates a Store over kv.
func NewStore(kv storage.Store) *Store {
	return &Store{kv: kv}
}

// Set replaces the token pair in one transaction. An empty csrf removes
// any stored CSRF token so a stale one is never sent with a new access
// token.
func (s *Store) Set(access, csrf string) error {
	set := map[string][]byte{AccessTokenKey: []byte(access)}
	var del []string
	if csrf == "" {
		del = []string{CSRFTokenKey}
	} else {
		set[CSRFTokenKey] = []byte(csrf)
	}
	if err := s.kv.Apply(set, del); err != nil {
		return fmt.Errorf("store tokens: %w", err)
	}
	return nil
}

// Get returns the current pair. Missing keys yield empty fields, not errors.
func (s *Store) Get() (Pair, error) {
	access, err := s.read(AccessTokenKey)
	if err != nil {
		return Pair{}, err
	}
	csrf, err := s.read(CSRFTokenKey)
	if err != nil {
		return Pair{}, err
	}
	return Pair{Access: access, CSRF: csrf}, nil
}

func (s *Store) read(key string) (string, error) {
	v, err := s.kv.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", key, err)
	}
	return string(v), nil
}

// Clear removes both tokens and the cached user record in one transaction.
func (s *Store) Clear() error {
	if err := s.kv.Delete(AccessTokenKey, CSRFTokenKey, UserKey); err != nil {
		return fmt.Errorf("clear tokens: %w", err)
	}
	return nil
}

// SaveUser stores the JSON-encoded user record.
func (s *Store) SaveUser(data []byte) error {
	if err := s.kv.Set(UserKey, data); err != nil {
		return fmt.Errorf("store user record: %w", err)
	}
	return nil
}

// User returns the stored user record, or storage.ErrNotFound.
func (s *Store) User() ([]byte, error) {
	return s.kv.Get(UserKey)
}

// Claims decodes the access token's claims without verifying the
// signature. The client never holds the signing key; the result is only
// used for display and as a fallback user id.
func Claims(access string) (jwt.MapClaims, error) {
	if access == "" {
		return nil, errors.New("no access token")
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(access, claims); err != nil {
		return nil, fmt.Errorf("parse access token: %w", err)
	}
	return claims, nil
}

// Expiry returns the exp claim of the stored access token. ok is false when
// there is no token, it is not a JWT, or it carries no exp claim.
func (s *Store) Expiry() (exp time.Time, ok bool) {
	pair, err := s.Get()
	if err != nil || !pair.HasAccess() {
		return time.Time{}, false
	}
	claims, err := Claims(pair.Access)
	if err != nil {
		return time.Time{}, false
	}
	nd, err := claims.GetExpirationTime()
	if err != nil || nd == nil {
		return time.Time{}, false
	}
	return nd.Time, true
}
