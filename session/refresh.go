package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/go-authgate/api-client/tokenstore"
)

// refreshKey is the single singleflight key: there is one session, so there
// is at most one refresh episode.
const refreshKey = "refresh"

// refreshResponse is the body of POST /auth/refresh.
type refreshResponse struct {
	Success      bool   `json:"success"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// RefreshToken exchanges the stored refresh token for a new access token.
//
// Concurrent callers share one refresh episode: only the first performs the
// network call and every caller receives the value that episode settles on.
// On any failure the session is logged out and ("", false) is returned;
// RefreshToken never reports an error otherwise.
//
// The network call does not inherit ctx cancellation, so a caller giving up
// does not fail the episode for everyone else. ctx still bounds how long
// this caller waits.
func (m *Manager) RefreshToken(ctx context.Context) (string, bool) {
	episodeCtx := context.WithoutCancel(ctx)
	ch := m.flight.DoChan(refreshKey, func() (any, error) {
		return m.refresh(episodeCtx), nil
	})

	select {
	case res := <-ch:
		token, _ := res.Val.(string)
		if res.Shared {
			m.log.Debug("session.refresh.shared", "ok", token != "")
		}
		return token, token != ""
	case <-ctx.Done():
		return "", false
	}
}

// refresh runs one episode. It returns the new access token or "" after
// logging the session out.
func (m *Manager) refresh(ctx context.Context) string {
	m.refreshing.Store(true)
	defer m.refreshing.Store(false)

	m.events.Refreshing()
	m.log.Info("session.refresh.start")

	token, err := m.refreshOnce(ctx)
	if err != nil {
		m.log.Warn("session.refresh.fail", "err", err)
		m.events.RefreshFailed(err)
		m.Logout(ctx)
		return ""
	}

	m.log.Info("session.refresh.ok")
	m.events.RefreshOK()
	return token
}

func (m *Manager) refreshOnce(ctx context.Context) (string, error) {
	stored, err := m.store.Get(tokenstore.RefreshTokenKey)
	if tokenstore.IsNotFound(err) || (err == nil && stored == "") {
		return "", ErrNoRefreshToken
	}
	if err != nil {
		return "", fmt.Errorf("failed to read refresh token: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, m.refreshTimeout)
	defer cancel()

	resp, err := m.post(reqCtx, refreshPath, map[string]string{"refreshToken": stored}, "")
	if err != nil {
		return "", fmt.Errorf("refresh request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if !isSuccess(resp) {
		return "", fmt.Errorf("refresh failed with status %d: %s", resp.StatusCode, string(body))
	}

	var data refreshResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return "", fmt.Errorf("failed to parse refresh response: %w", err)
	}
	if !data.Success {
		return "", ErrRefreshRejected
	}
	if data.AccessToken == "" {
		return "", errors.New("refresh response carries no access token")
	}

	if err := m.store.Set(tokenstore.AccessTokenKey, data.AccessToken); err != nil {
		return "", fmt.Errorf("failed to store access token: %w", err)
	}
	// Rotation mode hands out a new refresh token; fixed mode keeps the old.
	if data.RefreshToken != "" {
		if err := m.store.Set(tokenstore.RefreshTokenKey, data.RefreshToken); err != nil {
			return "", fmt.Errorf("failed to store refresh token: %w", err)
		}
	}

	m.setAccessToken(data.AccessToken)
	return data.AccessToken, nil
}
