package taskpulsesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal TaskPulse HTTP API client.
type Client struct {
	BaseURL    string
	Actor      string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, actor string) *Client {
	return &Client{
		BaseURL: baseURL,
		Actor:   actor,
		Timeout: 10 * time.Second,
	}
}

// Task represents the API task model (partial).
type Task struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	Priority      string   `json:"priority"`
	Status        string   `json:"status"`
	TaskType      string   `json:"task_type"`
	DueDate       *string  `json:"due_date,omitempty"`
	DueTime       *string  `json:"due_time,omitempty"`
	CompletedDate *string  `json:"completed_date,omitempty"`
	AssignedTo    string   `json:"assigned_to"`
	Labels        []string `json:"labels,omitempty"`
}

// TaskRequest represents a delegation request.
type TaskRequest struct {
	ID            string  `json:"id"`
	Title         string  `json:"title"`
	FromUser      string  `json:"from_user"`
	ToUser        string  `json:"to_user"`
	Status        string  `json:"status"`
	TaskID        *string `json:"task_id,omitempty"`
	DeclineReason *string `json:"decline_reason,omitempty"`
}

// Stats represents a user's productivity summary.
type Stats struct {
	TotalTasks     int     `json:"total_tasks"`
	CompletedTasks int     `json:"completed_tasks"`
	CompletionRate float64 `json:"completion_rate"`
	Streak         int     `json:"streak"`
	Karma          int     `json:"karma"`
	Level          string  `json:"level"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	UserEmail  string         `json:"user_email"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// CompletedTask pairs a completed task with the recurrence instance it
// spawned, if any.
type CompletedTask struct {
	Task         Task  `json:"task"`
	NextInstance *Task `json:"next_instance,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateTask creates a task for the given assignee.
func (c *Client) CreateTask(ctx context.Context, title, assignee string) (Task, error) {
	body := map[string]any{
		"title":       title,
		"assigned_to": assignee,
	}
	var resp Task
	err := c.do(ctx, http.MethodPost, "v1/tasks", body, &resp)
	return resp, err
}

// GetTask fetches a task by id.
func (c *Client) GetTask(ctx context.Context, id string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodGet, "v1/tasks/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// CompleteTask marks a task done and returns the next recurrence
// instance when one was spawned.
func (c *Client) CompleteTask(ctx context.Context, id string) (CompletedTask, error) {
	var resp CompletedTask
	endpoint := fmt.Sprintf("v1/tasks/%s/complete", url.PathEscape(id))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// SendRequest delegates a task to another user.
func (c *Client) SendRequest(ctx context.Context, title, toUser string) (TaskRequest, error) {
	body := map[string]any{
		"title":     title,
		"from_user": c.Actor,
		"to_user":   toUser,
	}
	var resp TaskRequest
	err := c.do(ctx, http.MethodPost, "v1/requests", body, &resp)
	return resp, err
}

// AcceptRequest accepts a pending request; the server creates the task.
func (c *Client) AcceptRequest(ctx context.Context, id string) (TaskRequest, error) {
	var resp struct {
		Request TaskRequest `json:"request"`
		Task    Task        `json:"task"`
	}
	endpoint := fmt.Sprintf("v1/requests/%s/accept", url.PathEscape(id))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp.Request, err
}

// DeclineRequest declines a pending request.
func (c *Client) DeclineRequest(ctx context.Context, id, reason string) (TaskRequest, error) {
	body := map[string]any{"reason": reason}
	var resp TaskRequest
	endpoint := fmt.Sprintf("v1/requests/%s/decline", url.PathEscape(id))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// Inbox returns pending requests addressed to a user.
func (c *Client) Inbox(ctx context.Context, user string) ([]TaskRequest, error) {
	var resp []TaskRequest
	endpoint := "v1/requests/inbox?user=" + url.QueryEscape(user)
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Stats returns productivity stats for a user.
func (c *Client) Stats(ctx context.Context, user string) (Stats, error) {
	var resp Stats
	endpoint := fmt.Sprintf("v1/users/%s/stats", url.PathEscape(user))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Events returns recent events, newest first.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	endpoint := "v1/events"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Actor != "" {
		req.Header.Set("X-Actor", c.Actor)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
