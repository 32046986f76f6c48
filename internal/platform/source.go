package platform

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// SourceClient talks to the source-hosting platform: repositories, issues,
// and file contents.
type SourceClient struct {
	client *Client
}

// NewSourceClient creates a source-hosting adapter rooted at baseURL.
func NewSourceClient(baseURL string, timeout time.Duration) *SourceClient {
	return &SourceClient{client: NewClient("source", baseURL, timeout)}
}

// Repository is a hosted source repository.
type Repository struct {
	FullName    string `json:"full_name"`
	Description string `json:"description,omitempty"`
	Private     bool   `json:"private"`
	UpdatedAt   string `json:"updated_at,omitempty"`
}

// Issue is a tracked issue on a repository.
type Issue struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	State  string `json:"state"`
	Body   string `json:"body,omitempty"`
	URL    string `json:"html_url,omitempty"`
}

// ListRepositories returns the caller's repositories.
func (s *SourceClient) ListRepositories(ctx context.Context, token string) ([]Repository, error) {
	var repos []Repository
	if err := s.client.Do(ctx, http.MethodGet, "/user/repos?sort=updated&per_page=50", token, nil, &repos); err != nil {
		return nil, err
	}
	return repos, nil
}

// ListIssues returns open issues on a repository identified as "owner/name".
func (s *SourceClient) ListIssues(ctx context.Context, token, repo string) ([]Issue, error) {
	path := fmt.Sprintf("/repos/%s/issues?state=open&per_page=50", repoPath(repo))
	var issues []Issue
	if err := s.client.Do(ctx, http.MethodGet, path, token, nil, &issues); err != nil {
		return nil, err
	}
	return issues, nil
}

// CreateIssue opens a new issue on a repository.
func (s *SourceClient) CreateIssue(ctx context.Context, token, repo, title, body string) (*Issue, error) {
	path := fmt.Sprintf("/repos/%s/issues", repoPath(repo))
	payload := map[string]string{"title": title}
	if body != "" {
		payload["body"] = body
	}
	var issue Issue
	if err := s.client.Do(ctx, http.MethodPost, path, token, payload, &issue); err != nil {
		return nil, err
	}
	return &issue, nil
}

// GetFileContents fetches one file from a repository at an optional ref and
// returns its decoded text.
func (s *SourceClient) GetFileContents(ctx context.Context, token, repo, filePath, ref string) (string, error) {
	path := fmt.Sprintf("/repos/%s/contents/%s", repoPath(repo), url.PathEscape(filePath))
	if ref != "" {
		path += "?ref=" + url.QueryEscape(ref)
	}
	var resp struct {
		Encoding string `json:"encoding"`
		Content  string `json:"content"`
	}
	if err := s.client.Do(ctx, http.MethodGet, path, token, nil, &resp); err != nil {
		return "", err
	}
	if resp.Encoding != "base64" {
		return resp.Content, nil
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(resp.Content, "\n", ""))
	if err != nil {
		return "", fmt.Errorf("source: failed to decode file contents: %w", err)
	}
	return string(decoded), nil
}

// repoPath escapes an "owner/name" pair segment by segment.
func repoPath(repo string) string {
	parts := strings.SplitN(repo, "/", 2)
	for i := range parts {
		parts[i] = url.PathEscape(parts[i])
	}
	return strings.Join(parts, "/")
}
