package transport

import (
	"net/http"

	"golang.org/x/oauth2"
)

// SetBearer sets "Authorization: Bearer <token>" on req. An empty token
// leaves the request unauthenticated.
func SetBearer(req *http.Request, token string) {
	if token == "" {
		return
	}
	(&oauth2.Token{AccessToken: token}).SetAuthHeader(req)
}

// BearerHeader returns a header carrying token as bearer credential, for
// handshakes that do not go through an *http.Request of ours.
func BearerHeader(token string) http.Header {
	h := make(http.Header)
	if token == "" {
		return h
	}
	t := &oauth2.Token{AccessToken: token}
	h.Set("Authorization", t.Type()+" "+t.AccessToken)
	return h
}
