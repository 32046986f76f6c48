package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gridloom/lattice/internal/api/mcp"
	"github.com/gridloom/lattice/internal/platform"
)

// PlatformTools wraps the external platform adapters as MCP tools. Every tool
// takes the caller's bearer token and passes it through verbatim.
type PlatformTools struct {
	deploy   *platform.DeployClient
	database *platform.DatabaseClient
	source   *platform.SourceClient
}

// NewPlatformTools creates the platform tool group. Any adapter may be nil;
// its tools are then not registered.
func NewPlatformTools(deploy *platform.DeployClient, database *platform.DatabaseClient, source *platform.SourceClient) *PlatformTools {
	return &PlatformTools{deploy: deploy, database: database, source: source}
}

// DeployProjectsArgs are the arguments for deploy_list_projects.
type DeployProjectsArgs struct {
	Token string `json:"token"`
}

// DeployDeploymentsArgs are the arguments for deploy_list_deployments.
type DeployDeploymentsArgs struct {
	Token     string `json:"token"`
	ProjectID string `json:"project_id"`
	Limit     int    `json:"limit,omitempty"`
}

// DeployTriggerArgs are the arguments for deploy_trigger.
type DeployTriggerArgs struct {
	Token       string `json:"token"`
	ProjectName string `json:"project_name"`
	Ref         string `json:"ref,omitempty"`
}

// DBBranchesArgs are the arguments for db_list_branches.
type DBBranchesArgs struct {
	Token     string `json:"token"`
	ProjectID string `json:"project_id"`
}

// DBDatabasesArgs are the arguments for db_list_databases.
type DBDatabasesArgs struct {
	Token     string `json:"token"`
	ProjectID string `json:"project_id"`
	BranchID  string `json:"branch_id"`
}

// DBExecuteArgs are the arguments for db_execute_sql.
type DBExecuteArgs struct {
	Token     string `json:"token"`
	ProjectID string `json:"project_id"`
	BranchID  string `json:"branch_id"`
	Database  string `json:"database"`
	Statement string `json:"statement"`
}

// SourceReposArgs are the arguments for source_list_repos.
type SourceReposArgs struct {
	Token string `json:"token"`
}

// SourceIssuesArgs are the arguments for source_list_issues.
type SourceIssuesArgs struct {
	Token string `json:"token"`
	Repo  string `json:"repo"`
}

// SourceCreateIssueArgs are the arguments for source_create_issue.
type SourceCreateIssueArgs struct {
	Token string `json:"token"`
	Repo  string `json:"repo"`
	Title string `json:"title"`
	Body  string `json:"body,omitempty"`
}

// SourceFileArgs are the arguments for source_get_file.
type SourceFileArgs struct {
	Token string `json:"token"`
	Repo  string `json:"repo"`
	Path  string `json:"path"`
	Ref   string `json:"ref,omitempty"`
}

// SourceFileResult is the result of source_get_file.
type SourceFileResult struct {
	Repo    string `json:"repo"`
	Path    string `json:"path"`
	Content string `json:"content"`
}

// Register adds the platform tool groups to the registry.
func (p *PlatformTools) Register(reg *mcp.Registry) {
	if p.deploy != nil {
		p.registerDeploy(reg)
	}
	if p.database != nil {
		p.registerDatabase(reg)
	}
	if p.source != nil {
		p.registerSource(reg)
	}
}

func (p *PlatformTools) registerDeploy(reg *mcp.Registry) {
	reg.Register(mcp.Descriptor{
		Name:        "deploy_list_projects",
		Description: "List projects on the deployment platform.",
		InputSchema: objectSchema(map[string]interface{}{
			"token": stringProp("Deployment platform API token"),
		}, "token"),
		Handler: func(ctx context.Context, raw json.RawMessage) (interface{}, error) {
			var args DeployProjectsArgs
			if err := json.Unmarshal(raw, &args); err != nil {
				return nil, fmt.Errorf("invalid arguments: %w", err)
			}
			return p.deploy.ListProjects(ctx, args.Token)
		},
	})
	reg.Register(mcp.Descriptor{
		Name:        "deploy_list_deployments",
		Description: "List recent deployments of a project.",
		InputSchema: objectSchema(map[string]interface{}{
			"token":      stringProp("Deployment platform API token"),
			"project_id": stringProp("Project id"),
			"limit":      map[string]interface{}{"type": "number", "description": "Maximum results (default 10)"},
		}, "token", "project_id"),
		Handler: func(ctx context.Context, raw json.RawMessage) (interface{}, error) {
			var args DeployDeploymentsArgs
			if err := json.Unmarshal(raw, &args); err != nil {
				return nil, fmt.Errorf("invalid arguments: %w", err)
			}
			return p.deploy.ListDeployments(ctx, args.Token, args.ProjectID, args.Limit)
		},
	})
	reg.Register(mcp.Descriptor{
		Name:        "deploy_trigger",
		Description: "Trigger a new deployment of a project, optionally from a git ref.",
		InputSchema: objectSchema(map[string]interface{}{
			"token":        stringProp("Deployment platform API token"),
			"project_name": stringProp("Project name"),
			"ref":          stringProp("Git ref to deploy (optional)"),
		}, "token", "project_name"),
		Handler: func(ctx context.Context, raw json.RawMessage) (interface{}, error) {
			var args DeployTriggerArgs
			if err := json.Unmarshal(raw, &args); err != nil {
				return nil, fmt.Errorf("invalid arguments: %w", err)
			}
			return p.deploy.TriggerDeploy(ctx, args.Token, args.ProjectName, args.Ref)
		},
	})
}

func (p *PlatformTools) registerDatabase(reg *mcp.Registry) {
	reg.Register(mcp.Descriptor{
		Name:        "db_list_branches",
		Description: "List branches of a managed database project.",
		InputSchema: objectSchema(map[string]interface{}{
			"token":      stringProp("Database platform API token"),
			"project_id": stringProp("Database project id"),
		}, "token", "project_id"),
		Handler: func(ctx context.Context, raw json.RawMessage) (interface{}, error) {
			var args DBBranchesArgs
			if err := json.Unmarshal(raw, &args); err != nil {
				return nil, fmt.Errorf("invalid arguments: %w", err)
			}
			return p.database.ListBranches(ctx, args.Token, args.ProjectID)
		},
	})
	reg.Register(mcp.Descriptor{
		Name:        "db_list_databases",
		Description: "List databases on a branch of a managed database project.",
		InputSchema: objectSchema(map[string]interface{}{
			"token":      stringProp("Database platform API token"),
			"project_id": stringProp("Database project id"),
			"branch_id":  stringProp("Branch id"),
		}, "token", "project_id", "branch_id"),
		Handler: func(ctx context.Context, raw json.RawMessage) (interface{}, error) {
			var args DBDatabasesArgs
			if err := json.Unmarshal(raw, &args); err != nil {
				return nil, fmt.Errorf("invalid arguments: %w", err)
			}
			return p.database.ListDatabases(ctx, args.Token, args.ProjectID, args.BranchID)
		},
	})
	reg.Register(mcp.Descriptor{
		Name:        "db_execute_sql",
		Description: "Execute one SQL statement against a branch database and return its rows.",
		InputSchema: objectSchema(map[string]interface{}{
			"token":      stringProp("Database platform API token"),
			"project_id": stringProp("Database project id"),
			"branch_id":  stringProp("Branch id"),
			"database":   stringProp("Database name"),
			"statement":  stringProp("SQL statement"),
		}, "token", "project_id", "branch_id", "database", "statement"),
		Handler: func(ctx context.Context, raw json.RawMessage) (interface{}, error) {
			var args DBExecuteArgs
			if err := json.Unmarshal(raw, &args); err != nil {
				return nil, fmt.Errorf("invalid arguments: %w", err)
			}
			return p.database.ExecuteSQL(ctx, args.Token, args.ProjectID, args.BranchID, args.Database, args.Statement)
		},
	})
}

func (p *PlatformTools) registerSource(reg *mcp.Registry) {
	reg.Register(mcp.Descriptor{
		Name:        "source_list_repos",
		Description: "List the caller's repositories on the source-hosting platform.",
		InputSchema: objectSchema(map[string]interface{}{
			"token": stringProp("Source platform API token"),
		}, "token"),
		Handler: func(ctx context.Context, raw json.RawMessage) (interface{}, error) {
			var args SourceReposArgs
			if err := json.Unmarshal(raw, &args); err != nil {
				return nil, fmt.Errorf("invalid arguments: %w", err)
			}
			return p.source.ListRepositories(ctx, args.Token)
		},
	})
	reg.Register(mcp.Descriptor{
		Name:        "source_list_issues",
		Description: "List open issues on a repository (owner/name).",
		InputSchema: objectSchema(map[string]interface{}{
			"token": stringProp("Source platform API token"),
			"repo":  stringProp("Repository as owner/name"),
		}, "token", "repo"),
		Handler: func(ctx context.Context, raw json.RawMessage) (interface{}, error) {
			var args SourceIssuesArgs
			if err := json.Unmarshal(raw, &args); err != nil {
				return nil, fmt.Errorf("invalid arguments: %w", err)
			}
			return p.source.ListIssues(ctx, args.Token, args.Repo)
		},
	})
	reg.Register(mcp.Descriptor{
		Name:        "source_create_issue",
		Description: "Open a new issue on a repository (owner/name).",
		InputSchema: objectSchema(map[string]interface{}{
			"token": stringProp("Source platform API token"),
			"repo":  stringProp("Repository as owner/name"),
			"title": stringProp("Issue title"),
			"body":  stringProp("Issue body (optional)"),
		}, "token", "repo", "title"),
		Handler: func(ctx context.Context, raw json.RawMessage) (interface{}, error) {
			var args SourceCreateIssueArgs
			if err := json.Unmarshal(raw, &args); err != nil {
				return nil, fmt.Errorf("invalid arguments: %w", err)
			}
			return p.source.CreateIssue(ctx, args.Token, args.Repo, args.Title, args.Body)
		},
	})
	reg.Register(mcp.Descriptor{
		Name:        "source_get_file",
		Description: "Fetch one file's contents from a repository (owner/name) at an optional ref.",
		InputSchema: objectSchema(map[string]interface{}{
			"token": stringProp("Source platform API token"),
			"repo":  stringProp("Repository as owner/name"),
			"path":  stringProp("File path within the repository"),
			"ref":   stringProp("Branch, tag, or commit (optional)"),
		}, "token", "repo", "path"),
		Handler: func(ctx context.Context, raw json.RawMessage) (interface{}, error) {
			var args SourceFileArgs
			if err := json.Unmarshal(raw, &args); err != nil {
				return nil, fmt.Errorf("invalid arguments: %w", err)
			}
			content, err := p.source.GetFileContents(ctx, args.Token, args.Repo, args.Path, args.Ref)
			if err != nil {
				return nil, err
			}
			return &SourceFileResult{Repo: args.Repo, Path: args.Path, Content: content}, nil
		},
	})
}
