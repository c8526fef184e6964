// Ticktrax - Resilient Time-Tracking API Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ticktrax

/*
Package supervisor runs the background parts of ticktrax under suture v4.

	RootSupervisor ("ticktrax")
	├── SyncSupervisor ("sync-layer")
	│   └── SyncService (realtime socket + polling fallback)
	└── APISupervisor ("api-layer")
	    └── HTTPServerService (status server, if enabled)

Crashed services restart with suture's backoff. Supervisor events are
logged through sutureslog on top of the zerolog slog adapter.

Usage:

	tree, err := supervisor.NewTree(nil, supervisor.DefaultTreeConfig())
	if err != nil {
		return err
	}
	tree.AddSyncService(services.NewSyncService(syncSvc))
	tree.AddAPIService(services.NewHTTPServerService("status-server", srv, 5*time.Second))
	return tree.Serve(ctx)
*/
package supervisor
