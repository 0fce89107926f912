// Package tokenstore persists the access and refresh tokens of a session.
//
// Every backend is scoped by a profile name so that tokens issued by
// different servers can live side by side in one file or database.
package tokenstore

import (
	"errors"
)

// Keys under which the session tokens are stored.
const (
	AccessTokenKey  = "access_token"
	RefreshTokenKey = "refresh_token"
)

// ErrNotFound is returned by Get when no value is stored under the key.
var ErrNotFound = errors.New("token not found")

// Store is an opaque key-value capability for session tokens.
// Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(key string) (string, error)
	// Set stores value under key, replacing any previous value.
	Set(key, value string) error
	// Remove deletes key. Removing a missing key is not an error.
	Remove(key string) error
}

// StoreError describes a failed store operation.
type StoreError struct {
	Op  string // "get", "set", "remove"
	Key string
	Err error
}

func (e *StoreError) Error() string {
	msg := e.Op + " token"
	if e.Key != "" {
		msg += " " + e.Key
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err means the key was absent.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
