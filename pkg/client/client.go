// Package client is a thin Go SDK over relayqd's HTTP API, for programmatic
// worker processes that would rather call typed methods than hand-build
// requests. It holds no state beyond an http.Client and the server's base
// URL — the server is always the source of truth.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/relayq/relayq/internal/model"
)

// Client submits and manages jobs against a running relayqd server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient builds a Client targeting baseURL (e.g. "http://127.0.0.1:8023").
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// WithHTTPClient overrides the default http.Client, e.g. for custom
// transports or shorter timeouts.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// Enqueue submits a new job to queue and returns its assigned id.
func (c *Client) Enqueue(ctx context.Context, queue string, req model.CreateRequest) (int64, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return 0, fmt.Errorf("marshal create request: %w", err)
	}

	var resp struct {
		ID int64 `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/queue/"+queue+"/job", body, http.StatusCreated, &resp); err != nil {
		return 0, fmt.Errorf("enqueue job: %w", err)
	}
	return resp.ID, nil
}

// Reserve claims the next queued job on queue, or returns (nil, nil) when
// the queue is empty.
func (c *Client) Reserve(ctx context.Context, queue string) (*model.Job, error) {
	r, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/queue/"+queue+"/job", nil)
	if err != nil {
		return nil, fmt.Errorf("build reserve request: %w", err)
	}
	resp, err := c.httpClient.Do(r)
	if err != nil {
		return nil, fmt.Errorf("reserve job: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errorFromResponse(resp)
	}

	var job model.Job
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		return nil, fmt.Errorf("decode reserved job: %w", err)
	}
	return &job, nil
}

// Heartbeat refreshes a running job's deadline.
func (c *Client) Heartbeat(ctx context.Context, id int64) error {
	return c.patch(ctx, id, model.PatchRequest{Heartbeat: true})
}

// Complete marks id completed, recording output (may be nil).
func (c *Client) Complete(ctx context.Context, id int64, output json.RawMessage) error {
	status := model.StatusCompleted
	return c.patch(ctx, id, model.PatchRequest{Status: &status, Output: output})
}

// Fail marks id failed, recording output (may be nil); the engine's retry
// decision at that moment either schedules a retry, which the retry control
// loop later requeues, or makes the failure terminal.
func (c *Client) Fail(ctx context.Context, id int64, output json.RawMessage) error {
	status := model.StatusFailed
	return c.patch(ctx, id, model.PatchRequest{Status: &status, Output: output})
}

// Cancel marks id cancelled.
func (c *Client) Cancel(ctx context.Context, id int64) error {
	status := model.StatusCancelled
	return c.patch(ctx, id, model.PatchRequest{Status: &status})
}

func (c *Client) patch(ctx context.Context, id int64, patch model.PatchRequest) error {
	body, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("marshal patch request: %w", err)
	}
	if err := c.do(ctx, http.MethodPatch, "/job/"+strconv.FormatInt(id, 10), body, http.StatusOK, nil); err != nil {
		return fmt.Errorf("patch job %d: %w", id, err)
	}
	return nil
}

// GetJob fetches a job's current record.
func (c *Client) GetJob(ctx context.Context, id int64) (*model.Job, error) {
	var job model.Job
	if err := c.do(ctx, http.MethodGet, "/job/"+strconv.FormatInt(id, 10), nil, http.StatusOK, &job); err != nil {
		return nil, fmt.Errorf("get job %d: %w", id, err)
	}
	return &job, nil
}

// DeleteJob hard-deletes a job's record.
func (c *Client) DeleteJob(ctx context.Context, id int64) error {
	if err := c.do(ctx, http.MethodDelete, "/job/"+strconv.FormatInt(id, 10), nil, http.StatusNoContent, nil); err != nil {
		return fmt.Errorf("delete job %d: %w", id, err)
	}
	return nil
}

// Tagged returns the ids of every job carrying tag.
func (c *Client) Tagged(ctx context.Context, tag string) ([]int64, error) {
	var ids []int64
	if err := c.do(ctx, http.MethodGet, "/tag/"+tag, nil, http.StatusOK, &ids); err != nil {
		return nil, fmt.Errorf("get tagged %q: %w", tag, err)
	}
	return ids, nil
}

// Health reports whether the server considers itself reachable to Redis.
func (c *Client) Health(ctx context.Context) error {
	r, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("build health request: %w", err)
	}
	resp, err := c.httpClient.Do(r)
	if err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errorFromResponse(resp)
	}
	return nil
}

// do issues a request and, on a non-matching status, decodes the server's
// error body into a returned error. out may be nil when the caller doesn't
// need the response body.
func (c *Client) do(ctx context.Context, method, path string, body []byte, wantStatus int, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		reqBody = bytes.NewReader(body)
	}
	r, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		r.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(r)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		return errorFromResponse(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// ServerError is returned when the server answers with a non-success status
// carrying a structured {"error": "..."} body.
type ServerError struct {
	StatusCode int
	Message    string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server responded %d: %s", e.StatusCode, e.Message)
}

func errorFromResponse(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&body)
	return &ServerError{StatusCode: resp.StatusCode, Message: body.Error}
}
