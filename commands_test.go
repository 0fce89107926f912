package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-authgate/api-client/api"
	"github.com/go-authgate/api-client/gateway"
)

// syncBuffer is a bytes.Buffer safe for a concurrent reader.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// fakeAPI is a minimal API server: login hands out staleToken, which the
// profile endpoint rejects until a refresh swaps it for freshToken.
type fakeAPI struct {
	*httptest.Server
	staleToken string
	freshToken string

	refreshFails atomic.Bool
	refreshCalls atomic.Int32
	logoutCalls  atomic.Int32
	lastBody     atomic.Value
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	f := &fakeAPI{staleToken: "stale-token", freshToken: "fresh-token"}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /users/login", func(w http.ResponseWriter, r *http.Request) {
		var c struct{ Name, Password string }
		_ = json.NewDecoder(r.Body).Decode(&c)
		if c.Password != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"message":"wrong password"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{
			"accessToken":  f.staleToken,
			"refreshToken": "refresh-1",
		})
	})
	mux.HandleFunc("POST /users/register/", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("POST /auth/refresh", func(w http.ResponseWriter, _ *http.Request) {
		f.refreshCalls.Add(1)
		if f.refreshFails.Load() {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success":      true,
			"accessToken":  f.freshToken,
			"refreshToken": "refresh-2",
		})
	})
	mux.HandleFunc("POST /users/logout", func(w http.ResponseWriter, _ *http.Request) {
		f.logoutCalls.Add(1)
	})
	mux.HandleFunc("GET /users/profile", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+f.freshToken {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"name":"alice","score":10}`))
	})
	mux.HandleFunc("POST /groups/create", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		f.lastBody.Store(string(body))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"g1"}`))
	})
	mux.HandleFunc("GET /notifications", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[{"id":1,"message":"hello"}]`))
	})
	mux.HandleFunc("PUT /notifications/read/{id}", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"` + r.PathValue("id") + `","read":true}`))
	})

	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

// useServer points the CLI at srv with a token file in a temp dir.
func useServer(t *testing.T, serverURL string) string {
	t.Helper()
	clearConfigEnv(t)
	tokenFile := filepath.Join(t.TempDir(), "tokens.json")
	t.Setenv("SERVER_URL", serverURL)
	t.Setenv("TOKEN_FILE", tokenFile)
	t.Setenv("LOG_LEVEL", "error")
	return tokenFile
}

type cliResult struct {
	stdout string
	stderr string
	err    error
}

func runCLI(ctx context.Context, args ...string) cliResult {
	var out, errOut syncBuffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(""))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	return cliResult{stdout: out.String(), stderr: errOut.String(), err: err}
}

func statusOf(t *testing.T) statusReport {
	t.Helper()
	res := runCLI(context.Background(), "status")
	require.NoError(t, res.err)
	var report statusReport
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &report))
	return report
}

func TestCLI_SessionLifecycle(t *testing.T) {
	fake := newFakeAPI(t)
	useServer(t, fake.URL)
	ctx := context.Background()

	res := runCLI(ctx, "login", "alice", "--password", "secret")
	require.NoError(t, res.err, res.stderr)
	assert.Contains(t, res.stderr, "Signed in as alice")
	assert.Contains(t, res.stderr, "WARNING: Using HTTP")

	report := statusOf(t)
	assert.True(t, report.SignedIn)
	assert.True(t, report.HasRefreshToken)
	assert.Equal(t, "stale-token", report.AccessToken)
	assert.Equal(t, fake.URL, report.Server)

	// the stored token is rejected once, refreshed and the call retried
	res = runCLI(ctx, "get", "/users/profile")
	require.NoError(t, res.err, res.stderr)
	assert.Contains(t, res.stdout, `"name": "alice"`)
	assert.Contains(t, res.stderr, "Access token rejected (401), refreshing...")
	assert.Contains(t, res.stderr, "Token refreshed, retrying API call...")
	assert.Contains(t, res.stderr, "API call successful (200)")
	assert.Equal(t, int32(1), fake.refreshCalls.Load())

	assert.Equal(t, "fresh-token", statusOf(t).AccessToken)

	// the refreshed token was persisted, so no second refresh is needed
	res = runCLI(ctx, "profile")
	require.NoError(t, res.err, res.stderr)
	assert.Contains(t, res.stdout, `"score": 10`)
	assert.Equal(t, int32(1), fake.refreshCalls.Load())

	res = runCLI(ctx, "logout")
	require.NoError(t, res.err, res.stderr)
	assert.Contains(t, res.stderr, "Signed out")
	assert.Equal(t, int32(1), fake.logoutCalls.Load())

	report = statusOf(t)
	assert.False(t, report.SignedIn)
	assert.False(t, report.HasRefreshToken)
}

func TestCLI_LoginErrors(t *testing.T) {
	fake := newFakeAPI(t)
	useServer(t, fake.URL)

	res := runCLI(context.Background(), "login", "alice")
	assert.ErrorIs(t, res.err, errPasswordRequired)

	res = runCLI(context.Background(), "login", "alice", "--password", "nope")
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), "wrong password")
	assert.Contains(t, res.stderr, "Error:")
	assert.False(t, statusOf(t).SignedIn)
}

func TestCLI_PasswordFromEnv(t *testing.T) {
	fake := newFakeAPI(t)
	useServer(t, fake.URL)
	t.Setenv("APICLIENT_PASSWORD", "secret")

	res := runCLI(context.Background(), "register", "bob", "--login")
	require.NoError(t, res.err, res.stderr)
	assert.Contains(t, res.stderr, "Account bob created")
	assert.Contains(t, res.stderr, "Signed in as bob")
	assert.True(t, statusOf(t).SignedIn)
}

func TestCLI_RefreshFailureEndsSession(t *testing.T) {
	fake := newFakeAPI(t)
	useServer(t, fake.URL)
	ctx := context.Background()

	require.NoError(t, runCLI(ctx, "login", "alice", "--password", "secret").err)
	fake.refreshFails.Store(true)

	res := runCLI(ctx, "refresh")
	assert.ErrorIs(t, res.err, errRefreshFailed)
	assert.Contains(t, res.stderr, "Refresh failed")
	assert.False(t, statusOf(t).SignedIn)

	// with no refresh token left the 401 ends the call without a network refresh
	res = runCLI(ctx, "get", "/users/profile")
	assert.ErrorIs(t, res.err, gateway.ErrRefreshFailed)
	assert.Equal(t, int32(1), fake.refreshCalls.Load())
}

func TestCLI_RefreshCommand(t *testing.T) {
	fake := newFakeAPI(t)
	useServer(t, fake.URL)
	ctx := context.Background()

	require.NoError(t, runCLI(ctx, "login", "alice", "--password", "secret").err)

	res := runCLI(ctx, "refresh")
	require.NoError(t, res.err, res.stderr)
	assert.Contains(t, res.stderr, "Access token: fresh-token")
	assert.Equal(t, "fresh-token", statusOf(t).AccessToken)
}

func TestCLI_PostBody(t *testing.T) {
	fake := newFakeAPI(t)
	useServer(t, fake.URL)

	res := runCLI(context.Background(), "post", "/groups/create", `{"name":"g"}`)
	require.NoError(t, res.err, res.stderr)
	assert.Equal(t, `{"name":"g"}`, fake.lastBody.Load())
	assert.Contains(t, res.stdout, `"id": "g1"`)
	assert.Contains(t, res.stderr, "API call successful (201)")

	res = runCLI(context.Background(), "post", "/groups/create", `{broken`)
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), "not valid JSON")
}

func TestCLI_Notifications(t *testing.T) {
	fake := newFakeAPI(t)
	useServer(t, fake.URL)

	res := runCLI(context.Background(), "notifications")
	require.NoError(t, res.err, res.stderr)
	assert.Contains(t, res.stdout, `"message": "hello"`)

	res = runCLI(context.Background(), "notifications", "--read", "42")
	require.NoError(t, res.err, res.stderr)
	assert.Contains(t, res.stdout, `"id": "42"`)
}

func TestCLI_InvalidConfig(t *testing.T) {
	useServer(t, "ftp://example.com")

	res := runCLI(context.Background(), "status")
	require.Error(t, res.err)
	assert.Contains(t, res.stderr, "Error: invalid SERVER_URL")
}

func TestCLI_WatchRequiresSession(t *testing.T) {
	fake := newFakeAPI(t)
	useServer(t, fake.URL)

	res := runCLI(context.Background(), "watch")
	assert.ErrorIs(t, res.err, errNotSignedIn)
}

func TestCLI_Watch(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"userId": "u-7"}).
		SignedString([]byte("test-secret"))
	require.NoError(t, err)

	starts := make(chan map[string]any, 1)
	mux := http.NewServeMux()
	mux.HandleFunc("POST /users/login", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"accessToken": token, "refreshToken": "r"})
	})
	mux.HandleFunc("/notifications", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+token {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()
		ctx := r.Context()

		var start struct {
			Data map[string]any `json:"data"`
		}
		if err := wsjson.Read(ctx, conn, &start); err != nil {
			return
		}
		starts <- start.Data
		_ = wsjson.Write(ctx, conn, map[string]any{
			"event": "newNotification",
			"data":  map[string]any{"id": 3, "message": "quiz graded"},
		})
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	useServer(t, srv.URL)

	require.NoError(t, runCLI(context.Background(), "login", "carol", "--password", "x").err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var out, errOut syncBuffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs([]string{"watch"})

	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()

	select {
	case data := <-starts:
		assert.Equal(t, "u-7", data["user_id"])
	case <-time.After(5 * time.Second):
		t.Fatal("stream never started")
	}

	assert.Eventually(t, func() bool {
		return strings.Contains(out.String(), `"message":"quiz graded"`)
	}, 5*time.Second, 10*time.Millisecond)
	assert.Contains(t, errOut.String(), "Notification: quiz graded")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop on cancel")
	}
}

func TestCLI_WatchMarksReadFromStdin(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"userId": "u-7"}).
		SignedString([]byte("test-secret"))
	require.NoError(t, err)

	started := make(chan struct{}, 1)
	marked := make(chan string, 1)
	mux := http.NewServeMux()
	mux.HandleFunc("POST /users/login", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"accessToken": token, "refreshToken": "r"})
	})
	mux.HandleFunc("/notifications", func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()
		ctx := r.Context()

		var start map[string]any
		if err := wsjson.Read(ctx, conn, &start); err != nil {
			return
		}
		started <- struct{}{}

		var msg struct {
			Event string `json:"event"`
			Data  struct {
				NotificationID string `json:"notification_id"`
			} `json:"data"`
		}
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			return
		}
		if msg.Event == "markAsRead" {
			marked <- msg.Data.NotificationID
		}
		_ = wsjson.Write(ctx, conn, map[string]any{
			"event": "notificationMarkedAsRead",
			"data":  map[string]any{"id": msg.Data.NotificationID},
		})
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	useServer(t, srv.URL)

	require.NoError(t, runCLI(context.Background(), "login", "carol", "--password", "x").err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stdin, ids := io.Pipe()
	defer ids.Close()

	var out, errOut syncBuffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(stdin)
	cmd.SetArgs([]string{"watch", "--mark-read"})

	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("stream never started")
	}
	_, err = io.WriteString(ids, "\n  42 \n")
	require.NoError(t, err)

	select {
	case id := <-marked:
		assert.Equal(t, "42", id)
	case <-time.After(5 * time.Second):
		t.Fatal("markAsRead never reached the server")
	}
	assert.Eventually(t, func() bool {
		return strings.Contains(errOut.String(), "Notification 42 marked as read")
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop on cancel")
	}
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "short", preview("short"))
	assert.Equal(t, "abcdefghijkl", preview("abcdefghijkl"))
	assert.Equal(t, "abcdefghijkl...", preview("abcdefghijklm"))
}

func TestWriteBody(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeBody(&buf, []byte(`{"a":1}`)))
	assert.Equal(t, "{\n  \"a\": 1\n}\n", buf.String())

	buf.Reset()
	require.NoError(t, writeBody(&buf, []byte("plain text")))
	assert.Equal(t, "plain text\n", buf.String())

	buf.Reset()
	require.NoError(t, writeBody(&buf, nil))
	assert.Empty(t, buf.String())
}

func TestNotificationText(t *testing.T) {
	assert.Equal(t, "quiz graded", notificationText(json.RawMessage(`{"message":"quiz graded"}`)))
	assert.Equal(t, "You have a new notification", notificationText(json.RawMessage(`{"id":1}`)))
	assert.Equal(t, "You have a new notification", notificationText(json.RawMessage(`"x"`)))
}

func TestRequestCmd_BodyFromStdin(t *testing.T) {
	fake := newFakeAPI(t)
	useServer(t, fake.URL)

	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(`{"name":"from-stdin"}`))
	cmd.SetArgs([]string{"post", "/groups/create", "-"})

	require.NoError(t, cmd.Execute(), errOut.String())
	assert.Equal(t, `{"name":"from-stdin"}`, fake.lastBody.Load())
}

func TestSendRaw_NotFound(t *testing.T) {
	fake := newFakeAPI(t)
	useServer(t, fake.URL)

	res := runCLI(context.Background(), "delete", "/missing")
	var se *api.StatusError
	require.True(t, errors.As(res.err, &se))
	assert.Equal(t, http.StatusNotFound, se.StatusCode)
	assert.Contains(t, res.stderr, "API call failed")
}
