package platform

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// DatabaseClient talks to the managed database platform: branches, databases
// within a branch, and one-shot SQL execution.
type DatabaseClient struct {
	client *Client
}

// NewDatabaseClient creates a database platform adapter rooted at baseURL.
func NewDatabaseClient(baseURL string, timeout time.Duration) *DatabaseClient {
	return &DatabaseClient{client: NewClient("database", baseURL, timeout)}
}

// Branch is an isolated copy-on-write branch of a database project.
type Branch struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Primary   bool   `json:"primary,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

// Database is a logical database on a branch.
type Database struct {
	Name  string `json:"name"`
	Owner string `json:"owner_name,omitempty"`
}

// QueryResult carries the rows of one executed statement.
type QueryResult struct {
	Fields []string                 `json:"fields"`
	Rows   []map[string]interface{} `json:"rows"`
}

// ListBranches returns the branches of a database project.
func (d *DatabaseClient) ListBranches(ctx context.Context, token, projectID string) ([]Branch, error) {
	path := fmt.Sprintf("/projects/%s/branches", url.PathEscape(projectID))
	var resp struct {
		Branches []Branch `json:"branches"`
	}
	if err := d.client.Do(ctx, http.MethodGet, path, token, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Branches, nil
}

// ListDatabases returns the databases on a branch.
func (d *DatabaseClient) ListDatabases(ctx context.Context, token, projectID, branchID string) ([]Database, error) {
	path := fmt.Sprintf("/projects/%s/branches/%s/databases",
		url.PathEscape(projectID), url.PathEscape(branchID))
	var resp struct {
		Databases []Database `json:"databases"`
	}
	if err := d.client.Do(ctx, http.MethodGet, path, token, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Databases, nil
}

// ExecuteSQL runs one SQL statement against a branch database and returns its
// rows. The statement is sent as-is; the platform enforces its own limits.
func (d *DatabaseClient) ExecuteSQL(ctx context.Context, token, projectID, branchID, database, statement string) (*QueryResult, error) {
	path := fmt.Sprintf("/projects/%s/branches/%s/sql", url.PathEscape(projectID), url.PathEscape(branchID))
	body := map[string]string{
		"database": database,
		"query":    statement,
	}
	var result QueryResult
	if err := d.client.Do(ctx, http.MethodPost, path, token, body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
