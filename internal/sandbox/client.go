package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"repolaunch-server/internal/config"
)

// Client is the HTTP implementation of Executor, driving a sandbox control
// API. Each session maps to one sandbox, addressed by session id.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient builds a sandbox control API client from configuration.
func NewClient(cfg *config.Config) *Client {
	return &Client{
		baseURL: cfg.Sandbox.BaseURL,
		token:   cfg.Sandbox.Token,
		// Long default so exec timeouts are governed per call, not by the
		// transport.
		httpClient: &http.Client{Timeout: 10 * time.Minute},
	}
}

type cloneRequest struct {
	URL     string `json:"url"`
	Workdir string `json:"workdir"`
	Depth   int    `json:"depth"`
}

// Clone checks the repository out with a shallow depth of 1.
func (c *Client) Clone(ctx context.Context, sessionID, cloneURL, workdir string) error {
	req := cloneRequest{URL: cloneURL, Workdir: workdir, Depth: 1}
	return c.post(ctx, fmt.Sprintf("/sandboxes/%s/clone", sessionID), req, nil)
}

type writeFileRequest struct {
	Path    string `json:"path"`
	Content []byte `json:"content"` // base64 over the wire
}

// WriteFile places content at path inside the sandbox.
func (c *Client) WriteFile(ctx context.Context, sessionID, path string, content []byte) error {
	req := writeFileRequest{Path: path, Content: content}
	return c.post(ctx, fmt.Sprintf("/sandboxes/%s/files", sessionID), req, nil)
}

type execRequest struct {
	Command        string `json:"command"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// Exec runs a shell command inside the sandbox with an explicit timeout.
func (c *Client) Exec(ctx context.Context, sessionID, command string, timeout time.Duration) (*ExecResult, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout+10*time.Second)
	defer cancel()

	req := execRequest{Command: command, TimeoutSeconds: int(timeout.Seconds())}
	var result ExecResult
	if err := c.post(ctx, fmt.Sprintf("/sandboxes/%s/exec", sessionID), req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

type exposeRequest struct {
	Port int `json:"port"`
}

type exposeResponse struct {
	URL string `json:"url"`
}

// ExposePort publishes a TCP port and returns the public preview URL.
func (c *Client) ExposePort(ctx context.Context, sessionID string, port int) (string, error) {
	var result exposeResponse
	if err := c.post(ctx, fmt.Sprintf("/sandboxes/%s/expose", sessionID), exposeRequest{Port: port}, &result); err != nil {
		return "", err
	}
	return result.URL, nil
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewBuffer(jsonBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sandbox request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("sandbox API error: status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
