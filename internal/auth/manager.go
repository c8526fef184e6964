// Ticktrax - Resilient Time-Tracking API Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ticktrax

package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/goccy/go-json"

	"github.com/tomtom215/ticktrax/internal/api"
	"github.com/tomtom215/ticktrax/internal/logging"
	"github.com/tomtom215/ticktrax/internal/models"
	"github.com/tomtom215/ticktrax/internal/storage"
	"github.com/tomtom215/ticktrax/internal/tokens"
	"github.com/tomtom215/ticktrax/internal/validation"
)

// ErrNoUserData is returned by CurrentUser when neither the backend nor the
// stored record can supply a user.
var ErrNoUserData = errors.New("no user data available")

// AuthenticationFailedError is a failed login. Message is the server's
// message when it sent one.
type AuthenticationFailedError struct {
	Message string
	Err     error
}

func (e *AuthenticationFailedError) Error() string {
	return "authentication failed: " + e.Message
}

func (e *AuthenticationFailedError) Unwrap() error {
	return e.Err
}

// State is the session state.
type State int32

const (
	Anonymous State = iota
	Authenticating
	Authenticated
)

func (s State) String() string {
	switch s {
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	default:
		return "anonymous"
	}
}

// Credentials is the login request body.
type Credentials struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Manager is the session manager.
type Manager struct {
	client *api.Client
	tokens *tokens.Store

	audit   *logging.SessionLogger
	loginMu sync.Mutex // one login at a time
	state   atomic.Int32
}

// NewManager creates a Manager and registers it for the client's 401 hook.
func NewManager(client *api.Client) *Manager {
	m := &Manager{client: client, tokens: client.Tokens(), audit: logging.NewSessionLogger()}
	if m.IsAuthenticated() {
		m.state.Store(int32(Authenticated))
	}
	client.OnUnauthorized(func() {
		m.state.Store(int32(Anonymous))
		m.audit.LogSessionExpired()
	})
	return m
}

// State returns the current session state.
func (m *Manager) State() State {
	return State(m.state.Load())
}

// IsAuthenticated reports whether an access token is stored.
func (m *Manager) IsAuthenticated() bool {
	pair, err := m.tokens.Get()
	if err != nil {
		logging.Warn().Err(err).Msg("failed to read tokens")
		return false
	}
	return pair.HasAccess()
}

// Login signs in. identifier is sent as "email". On success the tokens and
// user record are persisted and the response cache is cleared.
func (m *Manager) Login(ctx context.Context, identifier, password string) (*models.User, error) {
	creds := Credentials{Email: identifier, Password: password}
	if err := validation.Struct(creds); err != nil {
		return nil, fmt.Errorf("invalid credentials: %w", err)
	}

	m.loginMu.Lock()
	defer m.loginMu.Unlock()

	m.state.Store(int32(Authenticating))
	user, err := m.login(ctx, creds)
	if err != nil {
		m.settleState()
		m.audit.LogLoginFailure(identifier, err.Error())
		return nil, err
	}
	m.state.Store(int32(Authenticated))
	m.audit.LogLoginSuccess(user.ID, user.Email, user.Role.String())
	return user, nil
}

func (m *Manager) login(ctx context.Context, creds Credentials) (*models.User, error) {
	res, err := m.client.Request(ctx, m.client.Endpoints().Login, &api.RequestOptions{
		Method: http.MethodPost,
		Body:   creds,
	})
	if err != nil {
		var he *api.HTTPError
		if errors.As(err, &he) {
			return nil, &AuthenticationFailedError{Message: he.Message, Err: err}
		}
		return nil, &AuthenticationFailedError{Message: err.Error(), Err: err}
	}

	body, err := res.Map()
	if err != nil {
		return nil, &AuthenticationFailedError{Message: "unexpected login response", Err: err}
	}
	return m.establish(body)
}

// establish persists the session carried by a login or registration
// response.
func (m *Manager) establish(body map[string]any) (*models.User, error) {
	access := firstString(body, tokenPaths)
	if access == "" {
		return nil, &AuthenticationFailedError{Message: failureMessage(body)}
	}
	csrf := firstString(body, csrfPaths)

	user, ok := extractUser(body)
	if !ok {
		user = models.User{Role: models.RoleEmployee}
	}
	if user.ID == "" {
		user.ID = subject(access)
	}

	if err := m.tokens.Set(access, csrf); err != nil {
		return nil, fmt.Errorf("persist tokens: %w", err)
	}
	if err := m.saveUser(&user); err != nil {
		return nil, err
	}
	m.client.ClearCache()
	return &user, nil
}

// settleState puts the state back in line with the stored token after a
// failed login. A 401 during login may have cleared it.
func (m *Manager) settleState() {
	if m.IsAuthenticated() {
		m.state.Store(int32(Authenticated))
		return
	}
	m.state.Store(int32(Anonymous))
}

// Logout signs out. The backend call is best effort; local state is always
// cleared.
func (m *Manager) Logout(ctx context.Context) error {
	var userID string
	if user, err := m.StoredUser(); err == nil {
		userID = user.ID
	}

	remote := false
	if m.IsAuthenticated() {
		_, err := m.client.Request(ctx, m.client.Endpoints().Logout, &api.RequestOptions{Method: http.MethodPost})
		if err != nil {
			logging.Ctx(ctx).Debug().Err(err).Msg("logout request failed, clearing local session anyway")
		} else {
			remote = true
		}
	}

	m.client.ClearCache()
	m.state.Store(int32(Anonymous))
	if err := m.tokens.Clear(); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	m.audit.LogLogout(userID, remote)
	return nil
}

// CurrentUser fetches the user from the backend when authenticated and
// falls back to the stored record on any failure.
func (m *Manager) CurrentUser(ctx context.Context) (*models.User, error) {
	if m.IsAuthenticated() {
		user, err := m.fetchUser(ctx)
		if err == nil {
			return user, nil
		}
		logging.Ctx(ctx).Debug().Err(err).Msg("current user fetch failed, using stored record")
	}

	user, err := m.StoredUser()
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (m *Manager) fetchUser(ctx context.Context) (*models.User, error) {
	res, err := m.client.Request(ctx, m.client.Endpoints().CurrentUser, &api.RequestOptions{NoCache: true})
	if err != nil {
		return nil, err
	}
	body, err := res.Map()
	if err != nil {
		return nil, fmt.Errorf("decode current user: %w", err)
	}
	user, ok := extractUser(body)
	if !ok {
		return nil, errors.New("current user response has no recognizable user")
	}
	if user.ID == "" {
		if pair, err := m.tokens.Get(); err == nil {
			user.ID = subject(pair.Access)
		}
	}
	if err := m.saveUser(&user); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("failed to persist user record")
	}
	return &user, nil
}

// StoredUser returns the persisted user record without a network call.
func (m *Manager) StoredUser() (*models.User, error) {
	data, err := m.tokens.User()
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNoUserData
	}
	if err != nil {
		return nil, fmt.Errorf("read user record: %w", err)
	}
	var user models.User
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, fmt.Errorf("decode user record: %w", err)
	}
	return &user, nil
}

func (m *Manager) saveUser(user *models.User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("encode user record: %w", err)
	}
	return m.tokens.SaveUser(data)
}

// Register creates a user. If the response carries a token the new user is
// signed in.
func (m *Manager) Register(ctx context.Context, payload any) (*api.Result, error) {
	res, err := m.client.Request(ctx, m.client.Endpoints().Register, &api.RequestOptions{
		Method: http.MethodPost,
		Body:   payload,
	})
	if err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}

	body, err := res.Map()
	if err != nil || firstString(body, tokenPaths) == "" {
		return res, nil
	}
	if _, err := m.establish(body); err != nil {
		return res, fmt.Errorf("register: %w", err)
	}
	m.state.Store(int32(Authenticated))
	return res, nil
}

// subject returns the sub claim of an unverified JWT, or "".
func subject(access string) string {
	claims, err := tokens.Claims(access)
	if err != nil {
		return ""
	}
	sub, err := claims.GetSubject()
	if err != nil {
		return ""
	}
	return sub
}
