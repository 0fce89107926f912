package session

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// credentials is the body of the login and register endpoints.
type credentials struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	Message      string `json:"message"`
}

// SignIn authenticates name/password against the server and starts a
// session with the returned tokens. A server that omits the refresh token
// yields a session that cannot be refreshed.
func (m *Manager) SignIn(ctx context.Context, name, password string) error {
	resp, err := m.post(ctx, loginPath, credentials{Name: name, Password: password}, "")
	if err != nil {
		return fmt.Errorf("login request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrUserNotFound
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var data loginResponse
	// a non-JSON error page still gets reported by status below
	_ = json.Unmarshal(body, &data)

	if !isSuccess(resp) || data.AccessToken == "" {
		msg := data.Message
		if msg == "" {
			msg = "invalid username or password"
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	return m.Login(data.AccessToken, data.RefreshToken)
}

// Register creates an account. It does not sign in.
func (m *Manager) Register(ctx context.Context, name, password string) error {
	resp, err := m.post(ctx, registerPath, credentials{Name: name, Password: password}, "")
	if err != nil {
		return fmt.Errorf("register request failed: %w", err)
	}
	defer resp.Body.Close()

	if isSuccess(resp) {
		m.log.Info("session.register", "name", name)
		return nil
	}

	var data struct {
		Message string `json:"message"`
	}
	body, _ := io.ReadAll(resp.Body)
	_ = json.Unmarshal(body, &data)
	return &APIError{StatusCode: resp.StatusCode, Message: data.Message}
}
