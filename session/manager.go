// Package session owns the authenticated session of the client: the access
// token held in memory, its persisted copy in a tokenstore.Store, and the
// refresh protocol that replaces an expired access token.
//
// Manager is the only writer of session state. Login, Logout and
// RefreshToken mutate it; everything else reads a snapshot.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/go-authgate/api-client/tokenstore"
	"github.com/go-authgate/api-client/transport"
)

// Server endpoints used by the manager.
const (
	loginPath    = "/users/login"
	registerPath = "/users/register/"
	refreshPath  = "/auth/refresh"
	logoutPath   = "/users/logout"
)

// Default timeouts for the manager's own calls.
const (
	defaultRefreshTimeout = 10 * time.Second
	defaultLogoutTimeout  = 5 * time.Second
)

// Events receives session lifecycle notifications. tui.Displayer satisfies it.
type Events interface {
	Refreshing()
	RefreshOK()
	RefreshFailed(err error)
	LoggedOut()
}

type noopEvents struct{}

func (noopEvents) Refreshing()           {}
func (noopEvents) RefreshOK()            {}
func (noopEvents) RefreshFailed(_ error) {}
func (noopEvents) LoggedOut()            {}

// Config wires a Manager to its collaborators.
type Config struct {
	// BaseURL is the API server root, e.g. "https://api.example.com".
	BaseURL string
	Store   tokenstore.Store
	Client  transport.Doer
	Logger  *slog.Logger
	Events  Events

	// RefreshTimeout bounds one refresh network call. Defaults to 10s.
	RefreshTimeout time.Duration
	// LogoutTimeout bounds the best-effort logout call. Defaults to 5s.
	LogoutTimeout time.Duration
}

// Snapshot is a point-in-time copy of the session. Empty strings stand for
// "no token".
type Snapshot struct {
	AccessToken  string
	RefreshToken string
	Refreshing   bool
}

// Manager holds the current session and performs login, logout and refresh.
// It is safe for concurrent use.
type Manager struct {
	baseURL        string
	store          tokenstore.Store
	client         transport.Doer
	log            *slog.Logger
	events         Events
	refreshTimeout time.Duration
	logoutTimeout  time.Duration

	mu          sync.RWMutex
	accessToken string

	// flight coalesces concurrent RefreshToken calls into one episode.
	flight     singleflight.Group
	refreshing atomic.Bool
}

// New returns a Manager and restores any access token already persisted in
// the store.
func New(cfg Config) (*Manager, error) {
	if cfg.Store == nil {
		return nil, errors.New("session: token store is required")
	}
	if cfg.Client == nil {
		return nil, errors.New("session: http client is required")
	}
	if cfg.BaseURL == "" {
		return nil, errors.New("session: base URL is required")
	}

	m := &Manager{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		store:          cfg.Store,
		client:         cfg.Client,
		log:            cfg.Logger,
		events:         cfg.Events,
		refreshTimeout: cfg.RefreshTimeout,
		logoutTimeout:  cfg.LogoutTimeout,
	}
	if m.log == nil {
		m.log = slog.Default()
	}
	if m.events == nil {
		m.events = noopEvents{}
	}
	if m.refreshTimeout <= 0 {
		m.refreshTimeout = defaultRefreshTimeout
	}
	if m.logoutTimeout <= 0 {
		m.logoutTimeout = defaultLogoutTimeout
	}

	token, err := m.store.Get(tokenstore.AccessTokenKey)
	switch {
	case err == nil:
		m.accessToken = token
	case tokenstore.IsNotFound(err):
	default:
		return nil, fmt.Errorf("failed to load stored session: %w", err)
	}

	return m, nil
}

// BaseURL returns the API server root the manager talks to.
func (m *Manager) BaseURL() string {
	return m.baseURL
}

// AccessToken returns the access token currently in memory, or "".
func (m *Manager) AccessToken() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.accessToken
}

// IsRefreshing reports whether a refresh episode is in flight.
func (m *Manager) IsRefreshing() bool {
	return m.refreshing.Load()
}

// Snapshot returns the current session state. The refresh token is read
// from the store; a store failure reads as no refresh token.
func (m *Manager) Snapshot() Snapshot {
	refresh, err := m.store.Get(tokenstore.RefreshTokenKey)
	if err != nil && !tokenstore.IsNotFound(err) {
		m.log.Warn("session.snapshot.store", "err", err)
	}
	return Snapshot{
		AccessToken:  m.AccessToken(),
		RefreshToken: refresh,
		Refreshing:   m.IsRefreshing(),
	}
}

// Login persists both tokens and makes accessToken the active credential.
// The tokens are not validated. An empty refreshToken clears any stored one.
func (m *Manager) Login(accessToken, refreshToken string) error {
	if err := m.store.Set(tokenstore.AccessTokenKey, accessToken); err != nil {
		return fmt.Errorf("failed to store access token: %w", err)
	}

	var err error
	if refreshToken != "" {
		err = m.store.Set(tokenstore.RefreshTokenKey, refreshToken)
	} else {
		err = m.store.Remove(tokenstore.RefreshTokenKey)
	}
	if err != nil {
		return fmt.Errorf("failed to store refresh token: %w", err)
	}

	m.setAccessToken(accessToken)
	m.log.Info("session.login", "has_refresh_token", refreshToken != "")
	return nil
}

// Logout tells the server the session is over and then forgets it locally.
// The server call is best effort: it is skipped without a token and its
// failure is only logged. Local state is always cleared.
func (m *Manager) Logout(ctx context.Context) {
	if token := m.AccessToken(); token != "" {
		if err := m.postLogout(ctx, token); err != nil {
			m.log.Warn("session.logout.request", "err", err)
		}
	}

	for _, key := range []string{tokenstore.AccessTokenKey, tokenstore.RefreshTokenKey} {
		if err := m.store.Remove(key); err != nil {
			m.log.Warn("session.logout.store", "key", key, "err", err)
		}
	}
	m.setAccessToken("")

	m.log.Info("session.logout")
	m.events.LoggedOut()
}

func (m *Manager) postLogout(ctx context.Context, token string) error {
	ctx, cancel := context.WithTimeout(ctx, m.logoutTimeout)
	defer cancel()

	resp, err := m.post(ctx, logoutPath, nil, token)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if !isSuccess(resp) {
		return fmt.Errorf("logout returned status %d", resp.StatusCode)
	}
	return nil
}

func (m *Manager) setAccessToken(token string) {
	m.mu.Lock()
	m.accessToken = token
	m.mu.Unlock()
}
