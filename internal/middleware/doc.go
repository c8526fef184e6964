// Ticktrax - Resilient Time-Tracking API Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ticktrax

/*
Package middleware holds the status server's own HTTP middleware.

  - RequestID: reuses or assigns X-Request-ID and seeds the logging
    context with it plus a fresh correlation id
  - Metrics: records method, chi route pattern and status per request

CORS, rate limiting and panic recovery come from go-chi/cors,
go-chi/httprate and chi's middleware package and are wired in
internal/server.
*/
package middleware
