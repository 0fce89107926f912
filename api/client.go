// Package api is a typed client for the learning platform's REST endpoints.
// Every call goes through a gateway.Gateway, so it carries the session's
// bearer token and recovers from an expired access token transparently.
//
// Responses are returned as json.RawMessage; the client does not model the
// server's payloads.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-authgate/api-client/gateway"
)

// maxResponseSize caps how much of a response body is read.
const maxResponseSize = 10 << 20

// Requester sends gateway requests. *gateway.Gateway satisfies it.
type Requester interface {
	Do(ctx context.Context, r *gateway.Request) (*http.Response, error)
}

// StatusError is a non-2xx answer from an endpoint.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s %s: %s (status %d)", e.Method, e.Path, e.Message, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.StatusCode)
}

// Client calls the REST endpoints.
type Client struct {
	r   Requester
	log *slog.Logger
}

// New returns a Client that sends through r. A nil logger uses slog.Default.
func New(r Requester, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{r: r, log: logger}
}

// Call sends body (JSON-encoded, nil for none) to path with method and
// returns the raw response body. Non-2xx answers become *StatusError.
func (c *Client) Call(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	req := &gateway.Request{Method: method, URL: path}
	if body != nil {
		raw, ok := body.(json.RawMessage)
		if !ok {
			var err error
			if raw, err = json.Marshal(body); err != nil {
				return nil, fmt.Errorf("failed to encode request body: %w", err)
			}
		}
		req.Body = raw
	}

	resp, err := c.r.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.log.Debug("api.call.fail", "method", method, "path", path, "status", resp.StatusCode)
		return nil, &StatusError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(data),
		}
	}
	if len(data) == 0 {
		return nil, nil
	}
	return json.RawMessage(data), nil
}

// errorMessage pulls a human readable message out of an error body. The
// server uses either "message" or "error".
func errorMessage(body []byte) string {
	var e struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(body, &e) != nil {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	return e.Error
}

func (c *Client) get(ctx context.Context, path string) (json.RawMessage, error) {
	return c.Call(ctx, http.MethodGet, path, nil)
}

func (c *Client) post(ctx context.Context, path string, body any) (json.RawMessage, error) {
	return c.Call(ctx, http.MethodPost, path, body)
}

func (c *Client) put(ctx context.Context, path string, body any) (json.RawMessage, error) {
	return c.Call(ctx, http.MethodPut, path, body)
}

func (c *Client) patch(ctx context.Context, path string, body any) (json.RawMessage, error) {
	return c.Call(ctx, http.MethodPatch, path, body)
}

func (c *Client) delete(ctx context.Context, path string) (json.RawMessage, error) {
	return c.Call(ctx, http.MethodDelete, path, nil)
}
