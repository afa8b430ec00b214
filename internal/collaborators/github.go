package collaborators

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ocx-labs/plaid/internal/module"
)

// GitHub implements the operations spec.md §4.4.9 groups under the GitHub
// collaborator: repository collaborator management, file/commit reads,
// and pull-request comments. Grounded on
// original_source/runtime/plaid/src/apis/github/repos.rs's operation set.
type GitHub struct {
	BaseURL string // e.g. "https://api.github.com"
	Token   string
	client  *http.Client
}

// NewGitHub constructs a GitHub collaborator bound to the aggregate's
// shared, timeout-bound HTTP client.
func NewGitHub(baseURL, token string, client *http.Client) *GitHub {
	return &GitHub{BaseURL: baseURL, Token: token, client: client}
}

func (g *GitHub) Name() string { return "github" }

type githubAddUserParams struct {
	Owner      string `json:"owner"`
	Repo       string `json:"repo"`
	Username   string `json:"username"`
	Permission string `json:"permission"`
}

type githubFetchFileParams struct {
	Owner string `json:"owner"`
	Repo  string `json:"repo"`
	Path  string `json:"path"`
	Ref   string `json:"ref"`
}

type githubCommentParams struct {
	Owner  string `json:"owner"`
	Repo   string `json:"repo"`
	Number int64  `json:"pull_number"`
	Body   string `json:"body"`
}

func (g *GitHub) Call(ctx context.Context, caller *module.Module, operation, params string) (string, error) {
	switch operation {
	case "add_user_to_repo":
		var p githubAddUserParams
		if err := json.Unmarshal([]byte(params), &p); err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidParams, err)
		}
		if err := validIdentifier(p.Owner); err != nil {
			return "", err
		}
		if err := validIdentifier(p.Repo); err != nil {
			return "", err
		}
		if err := validIdentifier(p.Username); err != nil {
			return "", err
		}
		if !authorizedDestination(caller.AccessoryData, "github_write_repos", p.Owner+"/"+p.Repo) {
			return "", ErrNotAuthorized
		}
		url := fmt.Sprintf("%s/repos/%s/%s/collaborators/%s", g.BaseURL, p.Owner, p.Repo, p.Username)
		return doJSON(ctx, g.client, http.MethodPut, url, g.headers(), map[string]string{"permission": p.Permission})

	case "remove_user_from_repo":
		var p githubAddUserParams
		if err := json.Unmarshal([]byte(params), &p); err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidParams, err)
		}
		if !authorizedDestination(caller.AccessoryData, "github_write_repos", p.Owner+"/"+p.Repo) {
			return "", ErrNotAuthorized
		}
		url := fmt.Sprintf("%s/repos/%s/%s/collaborators/%s", g.BaseURL, p.Owner, p.Repo, p.Username)
		return doJSON(ctx, g.client, http.MethodDelete, url, g.headers(), nil)

	case "get_repository_collaborators":
		var p struct{ Owner, Repo string }
		if err := json.Unmarshal([]byte(params), &p); err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidParams, err)
		}
		url := fmt.Sprintf("%s/repos/%s/%s/collaborators", g.BaseURL, p.Owner, p.Repo)
		return doJSON(ctx, g.client, http.MethodGet, url, g.headers(), nil)

	case "fetch_file":
		var p githubFetchFileParams
		if err := json.Unmarshal([]byte(params), &p); err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidParams, err)
		}
		url := fmt.Sprintf("%s/repos/%s/%s/contents/%s?ref=%s", g.BaseURL, p.Owner, p.Repo, p.Path, p.Ref)
		return doJSON(ctx, g.client, http.MethodGet, url, g.headers(), nil)

	case "fetch_commit":
		var p struct{ Owner, Repo, SHA string }
		if err := json.Unmarshal([]byte(params), &p); err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidParams, err)
		}
		url := fmt.Sprintf("%s/repos/%s/%s/commits/%s", g.BaseURL, p.Owner, p.Repo, p.SHA)
		return doJSON(ctx, g.client, http.MethodGet, url, g.headers(), nil)

	case "comment_on_pull_request":
		var p githubCommentParams
		if err := json.Unmarshal([]byte(params), &p); err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidParams, err)
		}
		if err := validNumericID(p.Number); err != nil {
			return "", err
		}
		url := fmt.Sprintf("%s/repos/%s/%s/issues/%d/comments", g.BaseURL, p.Owner, p.Repo, p.Number)
		return doJSON(ctx, g.client, http.MethodPost, url, g.headers(), map[string]string{"body": p.Body})

	default:
		return "", fmt.Errorf("%w: github has no operation %q", ErrInvalidParams, operation)
	}
}

func (g *GitHub) headers() map[string]string {
	return map[string]string{
		"Authorization": "Bearer " + g.Token,
		"X-GitHub-Api-Version": "2022-11-28",
	}
}
