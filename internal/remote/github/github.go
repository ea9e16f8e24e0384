// Package github mirrors the budget document to a file in a GitHub
// repository through the contents API: GET returns base64 content plus a
// SHA revision token, PUT replaces the file and requires the token.
package github

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sewardrichard/cost2class/internal/core"
	"github.com/sewardrichard/cost2class/internal/remote"
)

const (
	defaultBaseURL = "https://api.github.com"
	defaultPath    = "data.json"
	commitMessage  = "Update budget data via Cost2Class"
)

type Client struct {
	owner   string
	repo    string
	token   string
	path    string
	baseURL string
	httpc   *http.Client
}

// Ensure interface conformance
var _ remote.DocumentStore = (*Client)(nil)

// New builds a contents-API client from the sync configuration. The
// transport timeout bounds every round trip; there is no retry.
func New(cfg core.SyncConfig) *Client {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		path = defaultPath
	}
	return &Client{
		owner:   strings.TrimSpace(cfg.Owner),
		repo:    strings.TrimSpace(cfg.Repo),
		token:   strings.TrimSpace(cfg.Token),
		path:    path,
		baseURL: defaultBaseURL,
		httpc:   &http.Client{Timeout: 15 * time.Second},
	}
}

// NewWithBaseURL is New against a different API endpoint. Tests point it
// at an httptest server.
func NewWithBaseURL(cfg core.SyncConfig, baseURL string) *Client {
	c := New(cfg)
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

func (c *Client) fileURL() string {
	return fmt.Sprintf("%s/repos/%s/%s/contents/%s", c.baseURL, c.owner, c.repo, c.path)
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("Content-Type", "application/json")
}

// Fetch reads the remote document and its revision token.
func (c *Client) Fetch(ctx context.Context) (remote.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.fileURL(), nil)
	if err != nil {
		return remote.Document{}, fmt.Errorf("%w: build request: %v", remote.ErrUnavailable, err)
	}
	c.setHeaders(req)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return remote.Document{}, fmt.Errorf("%w: %v", remote.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return remote.Document{}, remote.ErrNoDocument
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return remote.Document{}, fmt.Errorf("%w: fetch status %d", remote.ErrUnavailable, resp.StatusCode)
	}

	var body struct {
		Content string `json:"content"`
		SHA     string `json:"sha"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return remote.Document{}, fmt.Errorf("%w: decode response: %v", remote.ErrUnavailable, err)
	}

	// The API wraps base64 content with newlines.
	raw, err := base64.StdEncoding.DecodeString(strings.Map(dropSpace, body.Content))
	if err != nil {
		return remote.Document{}, fmt.Errorf("%w: decode content: %v", remote.ErrUnavailable, err)
	}

	var state core.BudgetState
	if err := json.Unmarshal(raw, &state); err != nil {
		return remote.Document{}, fmt.Errorf("%w: decode budget document: %v", remote.ErrUnavailable, err)
	}
	state.Normalize()

	slog.DebugContext(ctx, "Fetched remote budget document", "sha", body.SHA)
	return remote.Document{State: state, SHA: body.SHA}, nil
}

// Put replaces the remote document. An empty sha creates the file; a stale
// sha is rejected by the API and surfaces as ErrConflict.
func (c *Client) Put(ctx context.Context, state core.BudgetState, sha string) (string, error) {
	raw, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode budget document: %w", err)
	}

	payload := map[string]string{
		"message": commitMessage,
		"content": base64.StdEncoding.EncodeToString(raw),
	}
	if sha != "" {
		payload["sha"] = sha
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.fileURL(), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: build request: %v", remote.ErrUnavailable, err)
	}
	c.setHeaders(req)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", remote.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusConflict || resp.StatusCode == http.StatusUnprocessableEntity:
		return "", fmt.Errorf("%w: status %d", remote.ErrConflict, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return "", fmt.Errorf("%w: put status %d", remote.ErrUnavailable, resp.StatusCode)
	}

	var result struct {
		Content struct {
			SHA string `json:"sha"`
		} `json:"content"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", remote.ErrUnavailable, err)
	}

	slog.DebugContext(ctx, "Pushed budget document to remote", "sha", result.Content.SHA)
	return result.Content.SHA, nil
}

func dropSpace(r rune) rune {
	if r == '\n' || r == '\r' || r == ' ' || r == '\t' {
		return -1
	}
	return r
}
