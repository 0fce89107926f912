// Package transport builds the HTTP client shared by the session manager,
// the request gateway and the domain API client.
package transport

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	retry "github.com/appleboy/go-httpretry"
)

// Doer sends a single HTTP request. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Options tunes the client returned by New.
type Options struct {
	// Retries is the number of transport-level retries (network errors,
	// 429 and 5xx) for idempotent methods. POST and PATCH are never
	// retried. Zero disables the retry layer entirely so that failures
	// reach the caller untouched.
	Retries int
	// Timeout bounds a whole request including reading the body.
	// Zero leaves the platform default in place.
	Timeout time.Duration
}

// New returns a Doer with TLS 1.2 as the floor and a small idle pool.
func New(opts Options) (Doer, error) {
	base := &http.Client{
		Timeout: opts.Timeout,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
			MaxIdleConns:        10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
			DisableKeepAlives:   false,
		},
	}

	if opts.Retries <= 0 {
		return base, nil
	}

	rc, err := retry.NewClient(
		retry.WithHTTPClient(base),
		retry.WithMaxRetries(opts.Retries),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create retry client: %w", err)
	}
	return &retryDoer{c: rc, base: base}, nil
}

// retryDoer adapts a go-httpretry client to Doer, carrying the request's
// own context into the retry loop. Non-idempotent requests bypass it.
type retryDoer struct {
	c    *retry.Client
	base *http.Client
}

func (d *retryDoer) Do(req *http.Request) (*http.Response, error) {
	if !idempotent(req.Method) {
		return d.base.Do(req)
	}
	return d.c.DoWithContext(req.Context(), req)
}

func idempotent(method string) bool {
	switch method {
	case "", http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodPut, http.MethodDelete:
		return true
	default:
		return false
	}
}
