package session

import (
	"errors"
	"fmt"
)

var (
	// ErrNoRefreshToken means a refresh was attempted with nothing stored
	// to exchange.
	ErrNoRefreshToken = errors.New("no refresh token available")

	// ErrRefreshRejected means the refresh endpoint answered but did not
	// report success.
	ErrRefreshRejected = errors.New("refresh token rejected")

	// ErrUserNotFound is returned by SignIn when the server does not know
	// the user name.
	ErrUserNotFound = errors.New("user not found")
)

// APIError is a non-successful answer from the login or register endpoint.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("%s (status %d)", e.Message, e.StatusCode)
}
