package todosdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Client is a minimal HTTP client for the task store API.
type Client struct {
	// BasePath is the path prefix all task routes hang off, e.g. "http://localhost:8080/api".
	BasePath    string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
	// ListAttempts bounds retries of List on transport errors and 5xx responses.
	ListAttempts uint
}

// New creates a client with sane defaults. The returned client is safe for
// concurrent use; do not change its fields once requests are in flight.
func New(basePath string) *Client {
	timeout := 10 * time.Second
	return &Client{
		BasePath:     basePath,
		Timeout:      timeout,
		HTTPClient:   &http.Client{Timeout: timeout},
		ListAttempts: 3,
	}
}

// Task represents the store's task model.
type Task struct {
	ID          int64  `json:"id"`
	UserID      string `json:"user_id,omitempty"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	DueDate     string `json:"due_date,omitempty"`
	Completed   bool   `json:"completed"`
	CreatedAt   string `json:"created_at,omitempty"`
	UpdatedAt   string `json:"updated_at,omitempty"`
}

// CreateTaskInput carries the fields accepted by Create. Empty optional fields are omitted.
type CreateTaskInput struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	DueDate     string `json:"due_date,omitempty"`
}

// ErrNotFound matches any APIError with status 404.
var ErrNotFound = errors.New("not found")

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	return e.Message
}

func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// Payload is a decoded response body. Bodies that are not JSON objects or
// arrays end up in Raw with Fields empty.
type Payload struct {
	Fields map[string]json.RawMessage
	Array  json.RawMessage
	Raw    string
}

// List returns all tasks of a user.
func (c *Client) List(ctx context.Context, userID string) ([]Task, error) {
	attempts := c.ListAttempts
	if attempts == 0 {
		attempts = 1
	}
	return backoff.Retry(ctx, func() ([]Task, error) {
		p, err := c.do(ctx, http.MethodGet, c.tasksPath(userID), nil)
		if err != nil {
			var apiErr *APIError
			if errors.As(err, &apiErr) && apiErr.StatusCode < 500 {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		tasks, err := decodeTaskList(p)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		return tasks, nil
	}, backoff.WithBackOff(newListBackOff()), backoff.WithMaxTries(attempts))
}

// Create adds a task.
func (c *Client) Create(ctx context.Context, userID string, in CreateTaskInput) (Task, error) {
	p, err := c.do(ctx, http.MethodPost, c.tasksPath(userID), in)
	if err != nil {
		return Task{}, err
	}
	return decodeTask(p)
}

// Delete removes a task.
func (c *Client) Delete(ctx context.Context, userID string, taskID int64) error {
	_, err := c.do(ctx, http.MethodDelete, c.taskPath(userID, taskID), nil)
	return err
}

// SetCompleted sets the completion flag of a task and returns the updated task.
func (c *Client) SetCompleted(ctx context.Context, userID string, taskID int64, completed bool) (Task, error) {
	body := map[string]any{"completed": completed}
	p, err := c.do(ctx, http.MethodPatch, c.taskPath(userID, taskID), body)
	if err != nil {
		return Task{}, err
	}
	return decodeTask(p)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any) (Payload, error) {
	hc := c.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return Payload{}, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return Payload{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := hc.Do(req)
	if err != nil {
		return Payload{}, fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return Payload{}, fmt.Errorf("read response: %w", err)
	}
	p := ParsePayload(b)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return p, &APIError{
			StatusCode: resp.StatusCode,
			Message:    ErrorMessage(p, resp.StatusCode),
			Body:       string(b),
		}
	}
	return p, nil
}

// ParsePayload decodes a response body without ever failing: an empty body is
// an empty object and anything unparseable is kept as raw text.
func ParsePayload(b []byte) Payload {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) == 0 {
		return Payload{Fields: map[string]json.RawMessage{}}
	}
	switch trimmed[0] {
	case '{':
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &fields); err == nil {
			return Payload{Fields: fields}
		}
	case '[':
		if json.Valid(trimmed) {
			return Payload{Fields: map[string]json.RawMessage{}, Array: json.RawMessage(trimmed)}
		}
	}
	return Payload{Fields: map[string]json.RawMessage{}, Raw: string(b)}
}

// errorFields lists, in priority order, the fields upstreams use for error text.
var errorFields = []string{"detail", "error", "message"}

// ErrorMessage extracts a human-readable error from a failed response.
func ErrorMessage(p Payload, status int) string {
	for _, name := range errorFields {
		raw, ok := p.Fields[name]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil && strings.TrimSpace(s) != "" {
			return s
		}
	}
	if raw := strings.TrimSpace(p.Raw); raw != "" {
		return raw
	}
	return fmt.Sprintf("request failed (%d)", status)
}

func decodeTaskList(p Payload) ([]Task, error) {
	src := p.Array
	if src == nil {
		src = p.Fields["tasks"]
	}
	if len(src) == 0 || string(src) == "null" {
		return []Task{}, nil
	}
	var tasks []Task
	if err := json.Unmarshal(src, &tasks); err != nil {
		return nil, fmt.Errorf("decode task list: %w", err)
	}
	return tasks, nil
}

func decodeTask(p Payload) (Task, error) {
	var t Task
	if len(p.Fields) == 0 {
		return t, nil
	}
	b, err := json.Marshal(p.Fields)
	if err != nil {
		return t, err
	}
	if err := json.Unmarshal(b, &t); err != nil {
		return t, fmt.Errorf("decode task: %w", err)
	}
	return t, nil
}

func newListBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = time.Second
	return b
}

func (c *Client) tasksPath(userID string) string {
	return fmt.Sprintf("%s/tasks", url.PathEscape(userID))
}

func (c *Client) taskPath(userID string, taskID int64) string {
	return fmt.Sprintf("%s/tasks/%s", url.PathEscape(userID), url.PathEscape(strconv.FormatInt(taskID, 10)))
}

func (c *Client) base() string {
	return strings.TrimRight(c.BasePath, "/")
}
