// Ticktrax - Resilient Time-Tracking API Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ticktrax

package services

import (
	"context"

	"github.com/tomtom215/ticktrax/internal/logging"
)

// Syncer is the lifecycle of *realtime.Service.
type Syncer interface {
	Start(ctx context.Context) error
	Disconnect()
}

// SyncService runs a Syncer under suture.
//
// A Start error is not returned. The syncer is already polling and
// retrying the socket on its own, and a suture restart would drop its
// joined channels and listeners.
type SyncService struct {
	syncer Syncer
	name   string
}

// NewSyncService wraps s.
func NewSyncService(s Syncer) *SyncService {
	return &SyncService{syncer: s, name: "realtime-sync"}
}

// Serve implements suture.Service.
func (s *SyncService) Serve(ctx context.Context) error {
	if err := s.syncer.Start(ctx); err != nil {
		logging.Warn().Err(err).Str("service", s.name).Msg("sync started degraded")
	}

	<-ctx.Done()

	s.syncer.Disconnect()
	return ctx.Err()
}

func (s *SyncService) String() string {
	return s.name
}
