package api

import (
	"context"
	"encoding/json"
)

// Me returns the signed-in user.
func (c *Client) Me(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, PathMe)
}

// Profile returns the signed-in user's profile with statistics.
func (c *Client) Profile(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, PathProfile)
}

// User returns another user's public profile.
func (c *Client) User(ctx context.Context, userID string) (json.RawMessage, error) {
	return c.get(ctx, join(pathUsers, userID))
}

func (c *Client) EditName(ctx context.Context, newName string) (json.RawMessage, error) {
	return c.patch(ctx, pathUsers+"/edit-name", map[string]string{"newName": newName})
}

func (c *Client) EditPassword(ctx context.Context, newPassword string) (json.RawMessage, error) {
	return c.patch(ctx, pathUsers+"/edit-password", map[string]string{"newPassword": newPassword})
}

// DeleteAccount removes the signed-in user. The session is not cleared.
func (c *Client) DeleteAccount(ctx context.Context) (json.RawMessage, error) {
	return c.delete(ctx, pathUsers)
}

func (c *Client) Avatar(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, pathUsers+"/avatar")
}

func (c *Client) UserAvatar(ctx context.Context, userID string) (json.RawMessage, error) {
	return c.get(ctx, join(pathUsers+"/avatar", userID))
}

func (c *Client) DeleteAvatar(ctx context.Context) (json.RawMessage, error) {
	return c.delete(ctx, pathUsers+"/avatar")
}
