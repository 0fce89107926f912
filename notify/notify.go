// Package notify keeps a live notification stream open for the signed-in
// user over a websocket.
//
// After the socket opens the client announces the user with a
// startNotifications event and then dispatches server events to a Handler.
// A dropped connection is re-dialled with exponential backoff; the attempt
// counter resets whenever a connection opens.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/go-authgate/api-client/transport"
)

// Wire events.
const (
	eventStart        = "startNotifications"
	eventMarkAsRead   = "markAsRead"
	eventNew          = "newNotification"
	eventHistory      = "notificationHistory"
	eventMarkedAsRead = "notificationMarkedAsRead"
)

const (
	defaultBaseDelay   = time.Second
	defaultMaxDelay    = 30 * time.Second
	defaultMaxAttempts = 5

	maxReadBytes = 1 << 20
	writeTimeout = 5 * time.Second
)

var (
	// ErrNotConnected is returned by MarkAsRead while no socket is open.
	ErrNotConnected = errors.New("notification stream not connected")

	// ErrGaveUp is returned by Run once reconnect attempts are exhausted.
	ErrGaveUp = errors.New("notification stream: max reconnect attempts reached")
)

// envelope is the frame format in both directions.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Handler receives server events. Methods are called from the read loop,
// one at a time.
type Handler interface {
	NewNotification(n json.RawMessage)
	History(list []json.RawMessage)
	MarkedAsRead(id string)
}

// Config wires a Client.
type Config struct {
	BaseURL string
	UserID  string
	// Token returns the access token to present on each dial.
	Token   func() string
	Handler Handler
	Logger  *slog.Logger

	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
}

// Client is a reconnecting notification stream.
type Client struct {
	url     string
	userID  string
	token   func() string
	handler Handler
	log     *slog.Logger

	baseDelay   time.Duration
	maxDelay    time.Duration
	maxAttempts int

	mu   sync.Mutex
	conn *websocket.Conn
}

// New returns a Client. It does not connect; call Run.
func New(cfg Config) (*Client, error) {
	if cfg.Handler == nil {
		return nil, errors.New("notify: handler is required")
	}
	if cfg.Token == nil {
		return nil, errors.New("notify: token source is required")
	}
	wsURL, err := streamURL(cfg.BaseURL)
	if err != nil {
		return nil, err
	}

	c := &Client{
		url:         wsURL,
		userID:      cfg.UserID,
		token:       cfg.Token,
		handler:     cfg.Handler,
		log:         cfg.Logger,
		baseDelay:   cfg.BaseDelay,
		maxDelay:    cfg.MaxDelay,
		maxAttempts: cfg.MaxAttempts,
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	if c.baseDelay <= 0 {
		c.baseDelay = defaultBaseDelay
	}
	if c.maxDelay <= 0 {
		c.maxDelay = defaultMaxDelay
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = defaultMaxAttempts
	}
	return c, nil
}

// streamURL maps http(s)://host/... to ws(s)://host/.../notifications.
func streamURL(base string) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return "", fmt.Errorf("notify: invalid base URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("notify: unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", errors.New("notify: base URL has no host")
	}
	u.Path += "/notifications"
	return u.String(), nil
}

// Run connects and keeps the stream alive until ctx is done or the
// reconnect budget is spent.
func (c *Client) Run(ctx context.Context) error {
	attempts := 0
	for {
		opened, err := c.serve(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if opened {
			attempts = 0
		}
		if attempts >= c.maxAttempts {
			c.log.Warn("notify.giveup", "attempts", attempts, "err", err)
			return fmt.Errorf("%w: %w", ErrGaveUp, err)
		}
		attempts++

		delay := c.backoff(attempts)
		c.log.Info("notify.reconnect", "attempt", attempts, "delay", delay, "err", err)
		t := time.NewTimer(delay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		}
	}
}

// backoff returns min(base·2^attempt, max).
func (c *Client) backoff(attempt int) time.Duration {
	d := c.baseDelay
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= c.maxDelay {
			return c.maxDelay
		}
	}
	return d
}

// serve runs one connection to completion. opened reports whether the
// handshake succeeded.
func (c *Client) serve(ctx context.Context) (opened bool, err error) {
	conn, resp, err := websocket.Dial(ctx, c.url, &websocket.DialOptions{
		HTTPHeader: transport.BearerHeader(c.token()),
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}
	conn.SetReadLimit(maxReadBytes)

	c.setConn(conn)
	defer func() {
		c.setConn(nil)
		_ = conn.Close(websocket.StatusNormalClosure, "bye")
	}()
	c.log.Info("notify.open", "url", c.url)

	if err := c.send(ctx, conn, eventStart, map[string]string{"user_id": c.userID}); err != nil {
		return true, fmt.Errorf("start: %w", err)
	}

	for {
		var env envelope
		if err := wsjson.Read(ctx, conn, &env); err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				c.log.Info("notify.closed")
			}
			return true, err
		}
		c.dispatch(env)
	}
}

func (c *Client) dispatch(env envelope) {
	switch env.Event {
	case eventNew:
		c.handler.NewNotification(env.Data)
	case eventHistory:
		var list []json.RawMessage
		if err := json.Unmarshal(env.Data, &list); err != nil {
			c.log.Warn("notify.decode", "event", env.Event, "err", err)
			return
		}
		c.handler.History(list)
	case eventMarkedAsRead:
		// ids arrive as numbers or strings
		var d struct {
			ID json.RawMessage `json:"id"`
		}
		if err := json.Unmarshal(env.Data, &d); err != nil {
			c.log.Warn("notify.decode", "event", env.Event, "err", err)
			return
		}
		c.handler.MarkedAsRead(strings.Trim(string(d.ID), `"`))
	default:
		c.log.Debug("notify.unknown", "event", env.Event)
	}
}

// MarkAsRead asks the server to mark notification id as read. It fails with
// ErrNotConnected between connections.
func (c *Client) MarkAsRead(ctx context.Context, id string) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	return c.send(ctx, conn, eventMarkAsRead, map[string]string{"notification_id": id})
}

// Connected reports whether a socket is currently open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

func (c *Client) send(ctx context.Context, conn *websocket.Conn, event string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, envelope{Event: event, Data: raw})
}
