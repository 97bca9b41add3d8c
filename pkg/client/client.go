package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/taktline/takt/internal/manager"
	"github.com/taktline/takt/internal/process"
	"github.com/taktline/takt/internal/store"
)

// Client talks to a running takt daemon over HTTP.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

// Config holds client configuration.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// DefaultConfig returns default client configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://localhost:8080",
		Timeout: 10 * time.Second,
	}
}

func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:8080"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

// SetToken installs the bearer token used for authenticated calls.
func (c *Client) SetToken(token string) { c.token = token }

// Token returns the bearer token obtained by Login.
func (c *Client) Token() string { return c.token }

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		buf := &bytes.Buffer{}
		if err := json.NewEncoder(buf).Encode(body); err != nil {
			return err
		}
		rd = buf
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		var er struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&er) == nil && er.Error != "" {
			return fmt.Errorf("%s %s: %s (HTTP %d)", method, path, er.Error, resp.StatusCode)
		}
		return fmt.Errorf("%s %s: HTTP %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Login obtains and installs an API token.
func (c *Client) Login(ctx context.Context, username, password string) error {
	var resp struct {
		Token string `json:"token"`
	}
	err := c.do(ctx, http.MethodPost, "/auth/login", map[string]string{
		"username": username,
		"password": password,
	}, &resp)
	if err != nil {
		return err
	}
	c.token = resp.Token
	return nil
}

// Register creates a new process. Requires a supervisor token.
func (c *Client) Register(ctx context.Context, spec process.Spec) (process.Snapshot, error) {
	var out process.Snapshot
	err := c.do(ctx, http.MethodPost, "/processes", spec, &out)
	return out, err
}

// Processes lists every tracked process with its live estimate.
func (c *Client) Processes(ctx context.Context) ([]manager.Status, error) {
	var out []manager.Status
	err := c.do(ctx, http.MethodGet, "/processes", nil, &out)
	return out, err
}

// Process returns one process with its live estimate.
func (c *Client) Process(ctx context.Context, id string) (manager.Status, error) {
	var out manager.Status
	err := c.do(ctx, http.MethodGet, "/processes/"+id, nil, &out)
	return out, err
}

func (c *Client) Start(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/processes/"+id+"/start", nil, nil)
}

func (c *Client) Pause(ctx context.Context, id, justification string) error {
	return c.do(ctx, http.MethodPost, "/processes/"+id+"/pause", map[string]string{"justification": justification}, nil)
}

func (c *Client) Resume(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/processes/"+id+"/resume", nil, nil)
}

func (c *Client) Finish(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/processes/"+id+"/finish", nil, nil)
}

func (c *Client) Adjust(ctx context.Context, id string, delta float64) error {
	return c.do(ctx, http.MethodPost, "/processes/"+id+"/adjust", map[string]float64{"delta": delta}, nil)
}

// Timer drives a sub-timer, e.g. "setup_start" or "quality_call".
func (c *Client) Timer(ctx context.Context, id, op string) error {
	return c.do(ctx, http.MethodPost, "/processes/"+id+"/timer/"+op, nil, nil)
}

// CheckIn opens a presence record for a worker.
func (c *Client) CheckIn(ctx context.Context, workerID, processID string, role store.Role) (store.PresenceRecord, error) {
	var out store.PresenceRecord
	err := c.do(ctx, http.MethodPost, "/presence/check-in", map[string]string{
		"worker_id":  workerID,
		"process_id": processID,
		"role":       string(role),
	}, &out)
	return out, err
}

// CheckOut closes the worker's open record.
func (c *Client) CheckOut(ctx context.Context, workerID, justification string) (store.PresenceRecord, error) {
	var out store.PresenceRecord
	err := c.do(ctx, http.MethodPost, "/presence/check-out", map[string]string{
		"worker_id":     workerID,
		"justification": justification,
	}, &out)
	return out, err
}

// Crew lists the open presence records on a process.
func (c *Client) Crew(ctx context.Context, processID string) ([]store.PresenceRecord, error) {
	var out []store.PresenceRecord
	err := c.do(ctx, http.MethodGet, "/processes/"+processID+"/presence", nil, &out)
	return out, err
}

// BulkExit checks out every worker on the process under one authorization.
func (c *Client) BulkExit(ctx context.Context, processID, credential, justification string) (manager.BulkExitResult, error) {
	var out manager.BulkExitResult
	err := c.do(ctx, http.MethodPost, "/processes/"+processID+"/bulk-exit", map[string]string{
		"credential":    credential,
		"justification": justification,
	}, &out)
	return out, err
}

// Justifications fetches the canned texts for a category.
func (c *Client) Justifications(ctx context.Context, category string) ([]string, error) {
	var resp struct {
		Texts []string `json:"texts"`
	}
	err := c.do(ctx, http.MethodGet, "/justifications?category="+category, nil, &resp)
	return resp.Texts, err
}
