package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Option adjusts a request built by the verb helpers.
type Option func(*Request)

// WithHeader adds a header to the request. Content-Type and Authorization
// are always overwritten by the gateway.
func WithHeader(key, value string) Option {
	return func(r *Request) {
		if r.Header == nil {
			r.Header = make(http.Header)
		}
		r.Header.Add(key, value)
	}
}

// Get sends a GET request.
func (g *Gateway) Get(ctx context.Context, url string, opts ...Option) (*http.Response, error) {
	return g.Do(ctx, build(http.MethodGet, url, nil, opts))
}

// Post sends data as a JSON-encoded POST body.
func (g *Gateway) Post(ctx context.Context, url string, data any, opts ...Option) (*http.Response, error) {
	return g.withJSON(ctx, http.MethodPost, url, data, opts)
}

// Put sends data as a JSON-encoded PUT body.
func (g *Gateway) Put(ctx context.Context, url string, data any, opts ...Option) (*http.Response, error) {
	return g.withJSON(ctx, http.MethodPut, url, data, opts)
}

// Patch sends data as a JSON-encoded PATCH body.
func (g *Gateway) Patch(ctx context.Context, url string, data any, opts ...Option) (*http.Response, error) {
	return g.withJSON(ctx, http.MethodPatch, url, data, opts)
}

// Delete sends a DELETE request.
func (g *Gateway) Delete(ctx context.Context, url string, opts ...Option) (*http.Response, error) {
	return g.Do(ctx, build(http.MethodDelete, url, nil, opts))
}

func (g *Gateway) withJSON(
	ctx context.Context,
	method, url string,
	data any,
	opts []Option,
) (*http.Response, error) {
	var body []byte
	switch v := data.(type) {
	case json.RawMessage:
		body = v
	default:
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		body = raw
	}
	return g.Do(ctx, build(method, url, body, opts))
}

func build(method, url string, body []byte, opts []Option) *Request {
	r := &Request{Method: method, URL: url, Body: body}
	for _, opt := range opts {
		opt(r)
	}
	return r
}
