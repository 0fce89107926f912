package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-authgate/api-client/gateway"
)

// recorder answers every request with status and body and keeps the last
// request it saw.
type recorder struct {
	status int
	body   string
	err    error
	last   *gateway.Request
}

func (r *recorder) Do(_ context.Context, req *gateway.Request) (*http.Response, error) {
	r.last = req
	if r.err != nil {
		return nil, r.err
	}
	status := r.status
	if status == 0 {
		status = http.StatusOK
	}
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(r.body)),
	}, nil
}

func TestEndpoints(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		call   func(c *Client) (json.RawMessage, error)
		method string
		path   string
		body   string
	}{
		{"me", func(c *Client) (json.RawMessage, error) { return c.Me(ctx) }, "GET", "/users/me", ""},
		{"profile", func(c *Client) (json.RawMessage, error) { return c.Profile(ctx) }, "GET", "/users/profile", ""},
		{"user", func(c *Client) (json.RawMessage, error) { return c.User(ctx, "42") }, "GET", "/users/42", ""},
		{"edit name", func(c *Client) (json.RawMessage, error) { return c.EditName(ctx, "bob") }, "PATCH", "/users/edit-name", `{"newName":"bob"}`},
		{"edit password", func(c *Client) (json.RawMessage, error) { return c.EditPassword(ctx, "pw") }, "PATCH", "/users/edit-password", `{"newPassword":"pw"}`},
		{"delete account", func(c *Client) (json.RawMessage, error) { return c.DeleteAccount(ctx) }, "DELETE", "/users", ""},
		{"user avatar", func(c *Client) (json.RawMessage, error) { return c.UserAvatar(ctx, "7") }, "GET", "/users/avatar/7", ""},
		{"add friend", func(c *Client) (json.RawMessage, error) { return c.AddFriend(ctx, "7") }, "POST", "/friends/7", `{}`},
		{"remove friend", func(c *Client) (json.RawMessage, error) { return c.RemoveFriend(ctx, "7") }, "DELETE", "/friends/7", ""},
		{"search users", func(c *Client) (json.RawMessage, error) { return c.SearchUsers(ctx, "a b&c") }, "GET", "/friends/search?name=a+b%26c", ""},
		{"create group", func(c *Client) (json.RawMessage, error) { return c.CreateGroup(ctx, "g", "") }, "POST", "/groups", `{"name":"g"}`},
		{"group members", func(c *Client) (json.RawMessage, error) { return c.GroupMembers(ctx, "3") }, "GET", "/groups/3/members", ""},
		{"join group", func(c *Client) (json.RawMessage, error) { return c.JoinGroup(ctx, "3") }, "POST", "/groups/3/member", `{}`},
		{"edit group name", func(c *Client) (json.RawMessage, error) { return c.EditGroupName(ctx, "3", "x") }, "PATCH", "/groups/3/edit-name", `{"newName":"x"}`},
		{"remove member", func(c *Client) (json.RawMessage, error) { return c.RemoveMember(ctx, "3", "9") }, "DELETE", "/groups/3/member/9", ""},
		{"current group", func(c *Client) (json.RawMessage, error) { return c.CurrentGroup(ctx) }, "GET", "/groups/current", ""},
		{"leave group", func(c *Client) (json.RawMessage, error) { return c.LeaveGroup(ctx) }, "POST", "/groups/leave", `{}`},
		{"mark read", func(c *Client) (json.RawMessage, error) { return c.MarkNotificationRead(ctx, "5") }, "PUT", "/notifications/read/5", ""},
		{"mark all read", func(c *Client) (json.RawMessage, error) { return c.MarkAllNotificationsRead(ctx) }, "PUT", "/notifications/read-all", ""},
		{"delete notification", func(c *Client) (json.RawMessage, error) { return c.DeleteNotification(ctx, "5") }, "DELETE", "/notifications/5", ""},
		{"tests", func(c *Client) (json.RawMessage, error) { return c.Tests(ctx, "math") }, "POST", "/tests/test", `{"subject":"math"}`},
		{"save results", func(c *Client) (json.RawMessage, error) {
			return c.SaveResults(ctx, Result{TestID: "1", Score: 3, MaxScore: 5, TimeSpent: 60})
		}, "POST", "/tests/results", `{"testId":"1","score":3,"maxScore":5,"timeSpent":60}`},
		{"group chat", func(c *Client) (json.RawMessage, error) { return c.GroupChat(ctx, "3") }, "GET", "/chats/group/3", ""},
		{"send message", func(c *Client) (json.RawMessage, error) { return c.SendMessage(ctx, "3", "hi") }, "POST", "/chats/message", `{"group_id":"3","message":"hi"}`},
		{"achievement", func(c *Client) (json.RawMessage, error) { return c.Achievement(ctx, "1") }, "GET", "/achievements/detail/1", ""},
		{"escaped id", func(c *Client) (json.RawMessage, error) { return c.User(ctx, "a/b") }, "GET", "/users/a%2Fb", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{body: `{"ok":true}`}
			got, err := tt.call(New(rec, nil))
			require.NoError(t, err)

			assert.JSONEq(t, `{"ok":true}`, string(got))
			assert.Equal(t, tt.method, rec.last.Method)
			assert.Equal(t, tt.path, rec.last.URL)
			if tt.body == "" {
				assert.Empty(t, rec.last.Body)
			} else {
				assert.JSONEq(t, tt.body, string(rec.last.Body))
			}
		})
	}
}

func TestCall_StatusError(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"message field", `{"message":"group is full"}`, "POST /groups/3/member: group is full (status 409)"},
		{"error field", `{"error":"nope"}`, "POST /groups/3/member: nope (status 409)"},
		{"plain text", `conflict`, "POST /groups/3/member: status 409"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{status: http.StatusConflict, body: tt.body}
			_, err := New(rec, nil).JoinGroup(context.Background(), "3")

			var se *StatusError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, http.StatusConflict, se.StatusCode)
			assert.Equal(t, tt.want, se.Error())
		})
	}
}

func TestCall_EmptyBody(t *testing.T) {
	rec := &recorder{status: http.StatusNoContent}
	got, err := New(rec, nil).DeleteAvatar(context.Background())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCall_GatewayErrorPassesThrough(t *testing.T) {
	rec := &recorder{err: gateway.ErrRefreshFailed}
	_, err := New(rec, nil).Friends(context.Background())
	assert.True(t, errors.Is(err, gateway.ErrRefreshFailed))
}

func TestCall_RawMessageBodyIsSentVerbatim(t *testing.T) {
	rec := &recorder{}
	_, err := New(rec, nil).Call(context.Background(), http.MethodPost, "/x", json.RawMessage(`{"a": 1}`))
	require.NoError(t, err)
	assert.Equal(t, `{"a": 1}`, string(rec.last.Body))
}
