package api

import (
	"context"
	"encoding/json"
)

// Friends lists the signed-in user's friends.
func (c *Client) Friends(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, pathFriends)
}

func (c *Client) AddFriend(ctx context.Context, userID string) (json.RawMessage, error) {
	return c.post(ctx, join(pathFriends, userID), struct{}{})
}

func (c *Client) RemoveFriend(ctx context.Context, userID string) (json.RawMessage, error) {
	return c.delete(ctx, join(pathFriends, userID))
}

// SearchUsers finds users by name.
func (c *Client) SearchUsers(ctx context.Context, name string) (json.RawMessage, error) {
	return c.get(ctx, withQuery(pathFriends+"/search", "name", name))
}

// CreateGroup creates a group. An empty description is omitted.
func (c *Client) CreateGroup(ctx context.Context, name, description string) (json.RawMessage, error) {
	body := struct {
		Name        string `json:"name"`
		Description string `json:"description,omitempty"`
	}{name, description}
	return c.post(ctx, pathGroups, body)
}

func (c *Client) Groups(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, pathGroups)
}

func (c *Client) Group(ctx context.Context, groupID string) (json.RawMessage, error) {
	return c.get(ctx, join(pathGroups, groupID))
}

func (c *Client) DeleteGroup(ctx context.Context, groupID string) (json.RawMessage, error) {
	return c.delete(ctx, join(pathGroups, groupID))
}

func (c *Client) GroupMembers(ctx context.Context, groupID string) (json.RawMessage, error) {
	return c.get(ctx, join(pathGroups, groupID, "members"))
}

func (c *Client) JoinGroup(ctx context.Context, groupID string) (json.RawMessage, error) {
	return c.post(ctx, join(pathGroups, groupID, "member"), struct{}{})
}

func (c *Client) EditGroupName(ctx context.Context, groupID, newName string) (json.RawMessage, error) {
	return c.patch(ctx, join(pathGroups, groupID, "edit-name"), map[string]string{"newName": newName})
}

func (c *Client) EditGroupDescription(ctx context.Context, groupID, description string) (json.RawMessage, error) {
	return c.patch(ctx, join(pathGroups, groupID, "edit-description"), map[string]string{"newDescription": description})
}

// RemoveMember removes userID from groupID. Only the group owner may.
func (c *Client) RemoveMember(ctx context.Context, groupID, userID string) (json.RawMessage, error) {
	return c.delete(ctx, join(pathGroups, groupID, "member", userID))
}

func (c *Client) SearchGroups(ctx context.Context, name string) (json.RawMessage, error) {
	return c.get(ctx, withQuery(pathGroups+"/search", "name", name))
}

// CurrentGroup returns the group the signed-in user belongs to.
func (c *Client) CurrentGroup(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, pathGroups+"/current")
}

func (c *Client) LeaveGroup(ctx context.Context) (json.RawMessage, error) {
	return c.post(ctx, pathGroups+"/leave", struct{}{})
}
