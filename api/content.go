package api

import (
	"context"
	"encoding/json"
)

func (c *Client) Notifications(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, pathNotify)
}

func (c *Client) MarkNotificationRead(ctx context.Context, id string) (json.RawMessage, error) {
	return c.put(ctx, join(pathNotify, "read", id), nil)
}

func (c *Client) MarkAllNotificationsRead(ctx context.Context) (json.RawMessage, error) {
	return c.put(ctx, pathNotify+"/read-all", nil)
}

func (c *Client) DeleteNotification(ctx context.Context, id string) (json.RawMessage, error) {
	return c.delete(ctx, join(pathNotify, id))
}

// Subjects lists the subjects tests are grouped by.
func (c *Client) Subjects(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, pathTests+"/subjects")
}

// Tests lists the tests of a subject.
func (c *Client) Tests(ctx context.Context, subject string) (json.RawMessage, error) {
	return c.post(ctx, pathTests+"/test", map[string]string{"subject": subject})
}

func (c *Client) Questions(ctx context.Context, testID string) (json.RawMessage, error) {
	return c.post(ctx, pathTests+"/questions", map[string]string{"id": testID})
}

func (c *Client) Answers(ctx context.Context, questionID string) (json.RawMessage, error) {
	return c.post(ctx, pathTests+"/answers", map[string]string{"id": questionID})
}

// SubmitAnswers has the server grade userAnswers, keyed by question id.
func (c *Client) SubmitAnswers(ctx context.Context, testID string, userAnswers map[string]any) (json.RawMessage, error) {
	body := struct {
		TestID      string         `json:"testId"`
		UserAnswers map[string]any `json:"userAnswers"`
	}{testID, userAnswers}
	return c.post(ctx, pathTests+"/check-answers", body)
}

// Result is a graded attempt to be saved.
type Result struct {
	TestID    string `json:"testId"`
	Score     int    `json:"score"`
	MaxScore  int    `json:"maxScore"`
	TimeSpent int    `json:"timeSpent"` // seconds
}

func (c *Client) SaveResults(ctx context.Context, r Result) (json.RawMessage, error) {
	return c.post(ctx, pathTests+"/results", r)
}

func (c *Client) Chats(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, pathChats)
}

func (c *Client) GroupChat(ctx context.Context, groupID string) (json.RawMessage, error) {
	return c.get(ctx, join(pathChats, "group", groupID))
}

func (c *Client) SendMessage(ctx context.Context, groupID, message string) (json.RawMessage, error) {
	body := struct {
		GroupID string `json:"group_id"`
		Message string `json:"message"`
	}{groupID, message}
	return c.post(ctx, pathChats+"/message", body)
}

func (c *Client) Achievements(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, pathAchievements)
}

func (c *Client) Achievement(ctx context.Context, id string) (json.RawMessage, error) {
	return c.get(ctx, join(pathAchievements, "detail", id))
}

func (c *Client) UserAchievements(ctx context.Context, userID string) (json.RawMessage, error) {
	return c.get(ctx, join(pathAchievements, "user", userID))
}
