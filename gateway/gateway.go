// Package gateway sends authenticated API requests. It injects the bearer
// token of the current session and recovers from an expired access token by
// refreshing it once and retrying the request once.
//
// Only HTTP 401 triggers the recovery protocol. Every other status is
// returned to the caller unchanged and transport errors propagate as they
// are.
package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/go-authgate/api-client/transport"
)

// ErrRefreshFailed is returned when a request hit 401 and the session could
// not be refreshed. The session has been logged out by then.
var ErrRefreshFailed = errors.New("failed to refresh token")

// RequestIDHeader carries a per-call identifier, kept across the retry.
const RequestIDHeader = "X-Request-ID"

// Session is the part of session.Manager the gateway depends on.
type Session interface {
	AccessToken() string
	RefreshToken(ctx context.Context) (string, bool)
}

// Events receives request recovery notifications. tui.Displayer satisfies it.
type Events interface {
	AccessTokenRejected()
	TokenRefreshedRetrying()
}

type noopEvents struct{}

func (noopEvents) AccessTokenRejected()    {}
func (noopEvents) TokenRefreshedRetrying() {}

// Config wires a Gateway.
type Config struct {
	BaseURL string
	Session Session
	Client  transport.Doer
	Logger  *slog.Logger
	Events  Events
	Metrics *Metrics
}

// Request describes one API call. Body is kept as bytes so the call can be
// sent again after a refresh.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// Gateway performs requests on behalf of a session. It is safe for
// concurrent use.
type Gateway struct {
	baseURL string
	session Session
	client  transport.Doer
	log     *slog.Logger
	events  Events
	metrics *Metrics

	// mu guards the refresh-in-progress flag and the callers parked on it.
	// pending is swapped out and cleared in the same critical section that
	// clears refreshing, so nobody can join a queue that is being drained.
	mu         sync.Mutex
	refreshing bool
	pending    []chan error
}

// New returns a Gateway.
func New(cfg Config) (*Gateway, error) {
	if cfg.Session == nil {
		return nil, errors.New("gateway: session is required")
	}
	if cfg.Client == nil {
		return nil, errors.New("gateway: http client is required")
	}

	g := &Gateway{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		session: cfg.Session,
		client:  cfg.Client,
		log:     cfg.Logger,
		events:  cfg.Events,
		metrics: cfg.Metrics,
	}
	if g.log == nil {
		g.log = slog.Default()
	}
	if g.events == nil {
		g.events = noopEvents{}
	}
	if g.metrics == nil {
		g.metrics = NewMetrics(nil)
	}
	return g, nil
}

// Do sends r and returns the server's response. On a 401 it takes part in
// the refresh protocol and returns the response of the single retry, or
// ErrRefreshFailed.
func (g *Gateway) Do(ctx context.Context, r *Request) (*http.Response, error) {
	call := *r
	if call.Method == "" {
		call.Method = http.MethodGet
	}
	id := call.Header.Get(RequestIDHeader)
	if id == "" {
		id = uuid.NewString()
	}
	return g.do(ctx, &call, id, false)
}

// do runs one attempt. retried marks the second attempt of a call: its 401
// is handed back to the caller instead of starting another refresh.
func (g *Gateway) do(ctx context.Context, r *Request, id string, retried bool) (*http.Response, error) {
	token := g.session.AccessToken()

	resp, err := g.send(ctx, r, id, token)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized || retried {
		return resp, nil
	}
	discard(resp)

	g.metrics.unauthorized.Inc()
	g.log.Debug("gateway.unauthorized", "request_id", id, "method", r.Method, "url", r.URL)
	g.events.AccessTokenRejected()

	g.mu.Lock()
	if g.refreshing {
		wait := make(chan error, 1)
		g.pending = append(g.pending, wait)
		g.metrics.pending.Set(float64(len(g.pending)))
		g.mu.Unlock()

		g.log.Debug("gateway.queued", "request_id", id)
		select {
		case err := <-wait:
			if err != nil {
				return nil, err
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return g.retry(ctx, r, id)
	}

	// Another episode already replaced the token this attempt carried.
	if current := g.session.AccessToken(); current != "" && current != token {
		g.mu.Unlock()
		return g.retry(ctx, r, id)
	}

	g.refreshing = true
	g.mu.Unlock()

	// The episode and the queue drain run detached, so a starting caller
	// that gives up cannot settle the queue with a false failure.
	settled := make(chan string, 1)
	go func() {
		settled <- g.refresh(context.WithoutCancel(ctx), id)
	}()

	var newToken string
	select {
	case newToken = <-settled:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if newToken == "" {
		return nil, ErrRefreshFailed
	}

	g.events.TokenRefreshedRetrying()
	g.metrics.retries.Inc()
	return g.send(ctx, r, id, newToken)
}

// refresh runs one refresh episode, then settles every parked caller with
// its outcome. It returns the new token, or "" when the episode failed.
func (g *Gateway) refresh(ctx context.Context, id string) string {
	newToken, ok := g.session.RefreshToken(ctx)

	g.mu.Lock()
	waiters := g.pending
	g.pending = nil
	g.refreshing = false
	g.metrics.pending.Set(0)
	g.mu.Unlock()

	var outcome error
	if !ok {
		outcome = ErrRefreshFailed
	}
	for _, w := range waiters {
		w <- outcome
	}

	if !ok {
		g.metrics.refreshes.WithLabelValues("failed").Inc()
		g.log.Warn("gateway.refresh.fail", "request_id", id, "queued", len(waiters))
		return ""
	}
	g.metrics.refreshes.WithLabelValues("succeeded").Inc()
	g.log.Debug("gateway.refresh.ok", "request_id", id, "queued", len(waiters))
	return newToken
}

// retry re-runs the full request flow, re-reading the current token.
func (g *Gateway) retry(ctx context.Context, r *Request, id string) (*http.Response, error) {
	g.metrics.retries.Inc()
	return g.do(ctx, r, id, true)
}

// send issues one HTTP request with token as bearer credential.
func (g *Gateway) send(ctx context.Context, r *Request, id, token string) (*http.Response, error) {
	var body io.Reader
	if r.Body != nil {
		body = bytes.NewReader(r.Body)
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, g.resolve(r.URL), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, vs := range r.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(RequestIDHeader, id)
	transport.SetBearer(req, token)

	resp, err := g.client.Do(req)
	if err != nil {
		g.log.Debug("gateway.request.fail", "request_id", id, "err", err)
		return nil, err
	}
	g.metrics.observe(r.Method, resp.StatusCode)
	g.log.Debug("gateway.response", "request_id", id, "status", resp.StatusCode, "has_token", token != "")
	return resp, nil
}

// resolve prefixes relative URLs with the base URL.
func (g *Gateway) resolve(raw string) string {
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return raw
	}
	if !strings.HasPrefix(raw, "/") {
		raw = "/" + raw
	}
	return g.baseURL + raw
}

// discard drains and closes a response that will not reach the caller so
// the connection can be reused.
func discard(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}
