// Ticktrax - Resilient Time-Tracking API Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ticktrax

/*
Package services adapts long-running components to suture.Service.

	HTTPServerService  ListenAndServe/Shutdown  -> Serve
	SyncService        Start/Disconnect         -> Serve

Every wrapper returns ctx.Err() on cancellation and implements
fmt.Stringer so suture's log lines name the service.
*/
package services
