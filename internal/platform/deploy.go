package platform

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// DeployClient talks to the deployment platform: projects, their deployments,
// and triggering new deploys.
type DeployClient struct {
	client *Client
}

// NewDeployClient creates a deployment platform adapter rooted at baseURL.
func NewDeployClient(baseURL string, timeout time.Duration) *DeployClient {
	return &DeployClient{client: NewClient("deploy", baseURL, timeout)}
}

// Project is a deployable project on the platform.
type Project struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Framework string `json:"framework,omitempty"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

// Deployment is one build/release of a project.
type Deployment struct {
	ID        string `json:"id"`
	URL       string `json:"url,omitempty"`
	State     string `json:"state"`
	CreatedAt string `json:"createdAt,omitempty"`
}

// ListProjects returns the caller's projects.
func (d *DeployClient) ListProjects(ctx context.Context, token string) ([]Project, error) {
	var resp struct {
		Projects []Project `json:"projects"`
	}
	if err := d.client.Do(ctx, http.MethodGet, "/v9/projects", token, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Projects, nil
}

// ListDeployments returns recent deployments for a project.
func (d *DeployClient) ListDeployments(ctx context.Context, token, projectID string, limit int) ([]Deployment, error) {
	if limit <= 0 {
		limit = 10
	}
	path := fmt.Sprintf("/v6/deployments?projectId=%s&limit=%d", url.QueryEscape(projectID), limit)
	var resp struct {
		Deployments []Deployment `json:"deployments"`
	}
	if err := d.client.Do(ctx, http.MethodGet, path, token, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Deployments, nil
}

// TriggerDeploy starts a new deployment of the named project from a git ref.
func (d *DeployClient) TriggerDeploy(ctx context.Context, token, projectName, ref string) (*Deployment, error) {
	body := map[string]interface{}{
		"name": projectName,
	}
	if ref != "" {
		body["gitSource"] = map[string]string{"ref": ref}
	}
	var dep Deployment
	if err := d.client.Do(ctx, http.MethodPost, "/v13/deployments", token, body, &dep); err != nil {
		return nil, err
	}
	return &dep, nil
}
