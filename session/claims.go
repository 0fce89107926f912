package session

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoUserID is returned by UserID when the token names no user.
var ErrNoUserID = errors.New("access token carries no user id")

// userIDClaims are tried in order.
var userIDClaims = []string{"userId", "user_id", "id", "sub"}

// UserID reads the user id out of a JWT access token. The signature is not
// verified.
func UserID(accessToken string) (string, error) {
	if accessToken == "" {
		return "", ErrNoUserID
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return "", fmt.Errorf("failed to parse access token: %w", err)
	}

	for _, key := range userIDClaims {
		switch v := claims[key].(type) {
		case string:
			if v != "" {
				return v, nil
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64), nil
		}
	}
	return "", ErrNoUserID
}
