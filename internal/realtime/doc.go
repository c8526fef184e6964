// Ticktrax - Resilient Time-Tracking API Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ticktrax

/*
Package realtime keeps a dashboard in sync with the backend.

The Service holds a Phoenix channels socket (V1 JSON serializer, so
frames are {topic, event, payload, ref} objects; token in the query
string). Inbound channel events are translated onto an in-process Bus:

	clock_in, clock_out, status_changed  ->  clock-status-changed
	notification, new_notification       ->  notification

When the socket cannot be had, a Poller reads the REST status and
notification endpoints instead and emits the same bus events. Unexpected
closes reconnect with exponential backoff; after the configured number of
attempts the service gives up on the socket and polls for good.

Joined topics are remembered and replayed on every connect, and a topic
never has more than one phx_join in flight per socket. Topics can be
recorded before Start:

	svc := realtime.NewService(cfg, tokenStore, apiClient)
	svc.On(realtime.EventClockStatusChanged, func(ev realtime.Event) { ... })
	_ = svc.JoinUserChannels(ctx, user.ID, user.Role) // ErrNotConnected, recorded
	if err := svc.Start(ctx); err != nil {
		// degraded: polling until a reconnect succeeds
	}
	defer svc.Disconnect()
*/
package realtime
