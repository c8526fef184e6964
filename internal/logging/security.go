// Ticktrax - Resilient Time-Tracking API Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ticktrax

package logging

import (
	"strings"

	"github.com/rs/zerolog"
)

// SessionEvent is a session lifecycle event for audit logging.
type SessionEvent struct {
	// Event is the event type, e.g. "login_success" or "session_expired".
	Event   string
	UserID  string
	Email   string
	Role    string
	Success bool
	// Error is logged only for failures, after sanitizing.
	Error string
	// Details are sanitized by key name.
	Details map[string]string
}

// SessionLogger writes session events with sensitive values masked.
type SessionLogger struct {
	logger zerolog.Logger
}

// NewSessionLogger creates a session logger on the global logger.
func NewSessionLogger() *SessionLogger {
	return &SessionLogger{
		logger: With().Str("component", "session").Logger(),
	}
}

// NewSessionLoggerWithLogger creates a session logger on logger.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewSessionLoggerWithLogger(logger zerolog.Logger) *SessionLogger {
	return &SessionLogger{
		logger: logger.With().Str("component", "session").Logger(),
	}
}

// LogEvent logs event.
func (l *SessionLogger) LogEvent(event *SessionEvent) {
	e := l.logger.Info().Str("event", event.Event)
	if event.Success {
		e = e.Str("status", "success")
	} else {
		e = e.Str("status", "failed")
	}
	if event.UserID != "" {
		e = e.Str("user_id", event.UserID)
	}
	if event.Email != "" {
		e = e.Str("email", SanitizeEmail(event.Email))
	}
	if event.Role != "" {
		e = e.Str("role", event.Role)
	}
	if event.Error != "" && !event.Success {
		e = e.Str("error", SanitizeError(event.Error))
	}
	for k, v := range event.Details {
		e = e.Str(k, SanitizeValue(k, v))
	}
	e.Msg("")
}

// LogLoginSuccess logs a successful login.
func (l *SessionLogger) LogLoginSuccess(userID, email, role string) {
	l.LogEvent(&SessionEvent{Event: "login_success", UserID: userID, Email: email, Role: role, Success: true})
}

// LogLoginFailure logs a failed login.
func (l *SessionLogger) LogLoginFailure(email, reason string) {
	l.LogEvent(&SessionEvent{Event: "login_failed", Email: email, Error: reason})
}

// LogLogout logs a logout. remote is false when the backend call failed.
func (l *SessionLogger) LogLogout(userID string, remote bool) {
	status := "ok"
	if !remote {
		status = "skipped"
	}
	l.LogEvent(&SessionEvent{
		Event:   "logout",
		UserID:  userID,
		Success: true,
		Details: map[string]string{"backend_logout": status},
	})
}

// LogSessionExpired logs a session cleared after a 401.
func (l *SessionLogger) LogSessionExpired() {
	l.LogEvent(&SessionEvent{Event: "session_expired", Success: true})
}

// SanitizeToken masks a token, keeping the first and last 4 characters.
// Example: "eyJhbGciOiJIUzI1NiJ9.e30.sig" -> "eyJh....sig"
func SanitizeToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 12 {
		return "***"
	}
	return token[:4] + "..." + token[len(token)-4:]
}

// SanitizeEmail masks the local part of an address.
// Example: "john.doe@example.com" -> "jo***@example.com"
func SanitizeEmail(email string) string {
	if email == "" {
		return ""
	}
	at := strings.Index(email, "@")
	if at <= 0 {
		return "***"
	}
	local, domain := email[:at], email[at:]
	if len(local) <= 2 {
		return "***" + domain
	}
	return local[:2] + "***" + domain
}

var sensitiveWords = []string{
	"password",
	"secret",
	"token",
	"csrf",
	"bearer",
	"authorization",
	"cookie",
}

// SanitizeError replaces messages that mention credentials and truncates
// the rest.
func SanitizeError(err string) string {
	lower := strings.ToLower(err)
	for _, w := range sensitiveWords {
		if strings.Contains(lower, w) {
			return "authentication error"
		}
	}
	return truncateString(err, 200)
}

var sensitiveKeys = map[string]bool{
	"access_token":  true,
	"token":         true,
	"csrf_token":    true,
	"xsrf_token":    true,
	"password":      true,
	"authorization": true,
	"cookie":        true,
}

// SanitizeValue masks value when key names a credential, and masks
// email-like values.
func SanitizeValue(key, value string) string {
	if sensitiveKeys[strings.ToLower(key)] {
		return SanitizeToken(value)
	}
	if strings.Contains(value, "@") && strings.Contains(value, ".") {
		return SanitizeEmail(value)
	}
	return value
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
