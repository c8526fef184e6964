// Ticktrax - Resilient Time-Tracking API Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ticktrax

// Package server is the local status server run by "ticktrax watch". It
// exposes liveness, Prometheus metrics and a JSON snapshot of the session,
// the sync service and the API client.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/ticktrax/internal/api"
	"github.com/tomtom215/ticktrax/internal/auth"
	"github.com/tomtom215/ticktrax/internal/config"
	"github.com/tomtom215/ticktrax/internal/logging"
	"github.com/tomtom215/ticktrax/internal/middleware"
	"github.com/tomtom215/ticktrax/internal/models"
	"github.com/tomtom215/ticktrax/internal/realtime"
)

// Session is the part of *auth.Manager the server reads.
type Session interface {
	State() auth.State
	StoredUser() (*models.User, error)
}

// SyncStatus is implemented by *realtime.Service.
type SyncStatus interface {
	Status() realtime.ConnectionStatus
}

// ClientStats is implemented by *api.Client.
type ClientStats interface {
	Stats() api.Stats
}

// Deps are the components /status reports on. Nil fields are omitted.
type Deps struct {
	Session Session
	Sync    SyncStatus
	Client  ClientStats
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Time    time.Time                  `json:"time"`
	Session *SessionStatus             `json:"session,omitempty"`
	Sync    *realtime.ConnectionStatus `json:"sync,omitempty"`
	Client  *api.Stats                 `json:"client,omitempty"`
}

// SessionStatus describes the login state.
type SessionStatus struct {
	State         string       `json:"state"`
	Authenticated bool         `json:"authenticated"`
	User          *models.User `json:"user,omitempty"`
}

// Server builds the router.
type Server struct {
	cfg     config.ServerConfig
	deps    Deps
	started time.Time
}

// New creates a Server.
func New(cfg config.ServerConfig, deps Deps) *Server {
	return &Server{cfg: cfg, deps: deps, started: time.Now()}
}

// Router returns the chi router with the middleware stack applied.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", middleware.RequestIDHeader},
		ExposedHeaders: []string{middleware.RequestIDHeader},
		MaxAge:         300,
	}))
	r.Use(middleware.Metrics)
	if s.cfg.RateLimit > 0 {
		r.Use(httprate.LimitByIP(s.cfg.RateLimit, time.Minute))
	}

	r.Get("/healthz", s.healthz)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/status", s.status)
	return r
}

// HTTPServer wraps the router in an *http.Server listening on ListenAddr.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"uptime_seconds": time.Since(s.started).Seconds(),
	})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{Time: time.Now().UTC()}

	if s.deps.Session != nil {
		st := s.deps.Session.State()
		sess := &SessionStatus{State: st.String(), Authenticated: st == auth.Authenticated}
		if sess.Authenticated {
			if user, err := s.deps.Session.StoredUser(); err == nil {
				sess.User = user
			} else {
				logging.Ctx(r.Context()).Debug().Err(err).Msg("no stored user for status")
			}
		}
		resp.Session = sess
	}
	if s.deps.Sync != nil {
		st := s.deps.Sync.Status()
		resp.Sync = &st
	}
	if s.deps.Client != nil {
		st := s.deps.Client.Stats()
		resp.Client = &st
	}

	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logging.Error().Err(err).Msg("failed to encode JSON response")
	}
}
