// Ticktrax - Resilient Time-Tracking API Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ticktrax

// Package logging is the zerolog-based structured logging layer for Ticktrax.
//
// A global logger is ready before Init runs, so packages can log from
// their own init paths. The CLI calls Init once after loading config:
//
//	logging.Init(logging.Config{
//	    Level:     "debug",   // trace, debug, info, warn, error, disabled
//	    Format:    "console", // json or console
//	    Caller:    true,
//	    Timestamp: true,
//	    Output:    os.Stderr,
//	})
//
// Output goes to stderr by default so stdout stays free for command output.
//
// # Usage
//
// Always terminate log chains with .Msg() or .Send():
//
//	logging.Info().Str("endpoint", endpoint).Int("attempt", n).Msg("retrying request")
//
// Component loggers carry a fixed field:
//
//	log := logging.WithComponent("realtime")
//	log.Warn().Err(err).Msg("socket closed")
//
// # Context-Aware Logging
//
// The status server's request ID middleware stores request and
// correlation IDs on the context; Ctx returns a logger that includes them:
//
//	logging.Ctx(r.Context()).Debug().Msg("serving status")
//
// # Session Audit Log
//
// SessionLogger records login, logout and session expiry. Emails are
// masked and error messages that mention credentials are replaced:
//
//	audit := logging.NewSessionLogger()
//	audit.LogLoginFailure("jane.doe@example.com", err.Error())
//	// {"component":"session","event":"login_failed","email":"ja***@example.com",...}
//
// # slog Adapter
//
// NewSlogLogger bridges to log/slog for suture's event hook (via
// sutureslog).
//
// # Testing
//
//	var buf bytes.Buffer
//	logger := logging.NewTestLogger(&buf)
//	logger.Info().Msg("test message")
package logging
