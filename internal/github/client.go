// Package github is the repository metadata provider: a typed client for the
// GitHub REST v3 API covering the three calls the analyze phase needs —
// repository info, tree listing and selected file contents.
package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"repolaunch-server/internal/config"
)

// ErrRepoNotFound covers repositories that do not exist or are private; the
// API does not distinguish the two for unauthenticated callers.
var ErrRepoNotFound = errors.New("repository not found")

// Repository is the subset of repo metadata the analyzer consumes.
type Repository struct {
	FullName      string `json:"full_name"`
	DefaultBranch string `json:"default_branch"`
	Language      string `json:"language"`
	Description   string `json:"description"`
	Size          int    `json:"size"`
}

// Client talks to the GitHub REST API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient builds a GitHub API client from configuration. The token is
// optional and only raises rate limits.
func NewClient(cfg *config.Config) *Client {
	return &Client{
		baseURL: cfg.GitHub.APIBaseURL,
		token:   cfg.GitHub.Token,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// GetRepository fetches repository metadata. Returns ErrRepoNotFound for
// missing or private repositories.
func (c *Client) GetRepository(ctx context.Context, owner, repo string) (*Repository, error) {
	var result Repository
	path := fmt.Sprintf("/repos/%s/%s", url.PathEscape(owner), url.PathEscape(repo))
	if err := c.getJSON(ctx, path, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

type treeResponse struct {
	Tree []struct {
		Path string `json:"path"`
		Type string `json:"type"`
	} `json:"tree"`
	Truncated bool `json:"truncated"`
}

// ListTree returns the file paths at the root commit of the given branch.
// Only blobs are returned; directories are dropped.
func (c *Client) ListTree(ctx context.Context, owner, repo, branch string) ([]string, error) {
	var result treeResponse
	path := fmt.Sprintf("/repos/%s/%s/git/trees/%s",
		url.PathEscape(owner), url.PathEscape(repo), url.PathEscape(branch))
	if err := c.getJSON(ctx, path+"?recursive=1", &result); err != nil {
		return nil, err
	}

	paths := make([]string, 0, len(result.Tree))
	for _, entry := range result.Tree {
		if entry.Type == "blob" {
			paths = append(paths, entry.Path)
		}
	}
	return paths, nil
}

// GetFileContent fetches the raw contents of a single file on the default
// branch. Returns ErrRepoNotFound when the file does not exist.
func (c *Client) GetFileContent(ctx context.Context, owner, repo, path string) (string, error) {
	endpoint := fmt.Sprintf("%s/repos/%s/%s/contents/%s",
		c.baseURL, url.PathEscape(owner), url.PathEscape(repo), path)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/vnd.github.raw+json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("github request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", ErrRepoNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("github API error: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("github request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrRepoNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("github API error: status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}
