package execution

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"sphere_canvas/internal/domain"
)

const (
	defaultTimeout           = 10 * time.Second
	maxHTTPErrorBodyReadSize = 64 * 1024
)

type ClientConfig struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *log.Logger
}

// Client talks to the workflow execution API.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *log.Logger
}

func NewClient(cfg ClientConfig) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("empty API base URL")
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("invalid API base URL %q: %w", base, err)
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL: base,
		http:    httpClient,
		logger:  cfg.Logger,
	}, nil
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

type createWorkflowRequest struct {
	WorkflowID  string `json:"workflow_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (c *Client) CreateWorkflow(ctx context.Context, wf domain.Workflow) error {
	req := createWorkflowRequest{
		WorkflowID:  wf.WorkflowID,
		Name:        wf.Name,
		Description: wf.Description,
	}
	if err := c.do(ctx, http.MethodPost, "/api/workflows", req, nil); err != nil {
		return fmt.Errorf("create workflow %s: %w", wf.WorkflowID, err)
	}
	return nil
}

func (c *Client) AddTask(ctx context.Context, workflowID string, task domain.CompiledTask) error {
	path := "/api/workflows/" + url.PathEscape(workflowID) + "/tasks"
	if err := c.do(ctx, http.MethodPost, path, task, nil); err != nil {
		return fmt.Errorf("add task %s: %w", task.TaskID, err)
	}
	return nil
}

func (c *Client) Execute(ctx context.Context, workflowID string) (domain.ExecutionResult, error) {
	var out domain.ExecutionResult
	path := "/api/workflows/" + url.PathEscape(workflowID) + "/execute"
	if err := c.do(ctx, http.MethodPost, path, struct{}{}, &out); err != nil {
		return domain.ExecutionResult{}, fmt.Errorf("execute workflow %s: %w", workflowID, err)
	}
	return out, nil
}

func (c *Client) ListAgents(ctx context.Context) ([]domain.Agent, error) {
	var out struct {
		Agents []domain.Agent `json:"agents"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/agents", nil, &out); err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	return out.Agents, nil
}

func (c *Client) Health(ctx context.Context) (domain.Health, error) {
	var out domain.Health
	if err := c.do(ctx, http.MethodGet, "/api/health", nil, &out); err != nil {
		return domain.Health{}, fmt.Errorf("health check: %w", err)
	}
	return out, nil
}

// WorkflowStatus fetches the progress of a workflow. The server answers unknown ids with a 200
// carrying an error field; that is reported as a 404 APIError.
func (c *Client) WorkflowStatus(ctx context.Context, workflowID string) (domain.WorkflowStatus, error) {
	var out domain.WorkflowStatus
	path := "/api/workflows/" + url.PathEscape(workflowID) + "/status"
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return domain.WorkflowStatus{}, fmt.Errorf("workflow status %s: %w", workflowID, err)
	}
	if out.Error != "" {
		return domain.WorkflowStatus{}, fmt.Errorf("workflow status %s: %w", workflowID, &APIError{StatusCode: http.StatusNotFound, Message: out.Error})
	}
	return out, nil
}

func (c *Client) DeleteWorkflow(ctx context.Context, workflowID string) error {
	path := "/api/workflows/" + url.PathEscape(workflowID)
	if err := c.do(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("delete workflow %s: %w", workflowID, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, in any, out any) error {
	var payload io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		payload = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Printf("api request failed method=%s path=%s err=%v", method, path, err)
		return err
	}
	defer resp.Body.Close()
	c.logger.Printf("api request method=%s path=%s status=%d duration=%s", method, path, resp.StatusCode, time.Since(started).Round(time.Millisecond))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxHTTPErrorBodyReadSize))
		return newAPIError(resp.StatusCode, body)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// APIError is a non-2xx answer from the execution API. Message is the server's error text when it
// sent one.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api status=%d", e.StatusCode)
	}
	return fmt.Sprintf("api status=%d: %s", e.StatusCode, e.Message)
}

func newAPIError(status int, body []byte) *APIError {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	msg := ""
	if err := json.Unmarshal(body, &payload); err == nil {
		msg = firstNonEmpty(payload.Error, payload.Message)
	} else {
		msg = strings.TrimSpace(string(body))
		if len(msg) > 200 {
			msg = msg[:197] + "..."
		}
	}
	return &APIError{StatusCode: status, Message: msg}
}

// ServerMessage returns the message the server attached to err, if any.
func ServerMessage(err error) (string, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message, true
	}
	return "", false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
