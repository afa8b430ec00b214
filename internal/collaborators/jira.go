package collaborators

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ocx-labs/plaid/internal/module"
)

// Jira implements issue creation/comment/transition operations, grounded
// on original_source/runtime/plaid/src/apis/jira/mod.rs's operation set.
type Jira struct {
	BaseURL string
	Email   string
	Token   string
	client  *http.Client
}

func NewJira(baseURL, email, token string, client *http.Client) *Jira {
	return &Jira{BaseURL: baseURL, Email: email, Token: token, client: client}
}

func (j *Jira) Name() string { return "jira" }

func (j *Jira) Call(ctx context.Context, caller *module.Module, operation, params string) (string, error) {
	switch operation {
	case "create_issue":
		var p struct {
			Project string                 `json:"project"`
			Summary string                 `json:"summary"`
			Fields  map[string]interface{} `json:"fields"`
		}
		if err := json.Unmarshal([]byte(params), &p); err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidParams, err)
		}
		if err := validIdentifier(p.Project); err != nil {
			return "", err
		}
		body := map[string]interface{}{
			"fields": mergeFields(p.Fields, map[string]interface{}{
				"project":   map[string]string{"key": p.Project},
				"summary":   p.Summary,
				"issuetype": map[string]string{"name": "Task"},
			}),
		}
		return doJSON(ctx, j.client, http.MethodPost, j.BaseURL+"/rest/api/3/issue", j.headers(), body)

	case "add_comment":
		var p struct{ IssueKey, Body string }
		if err := json.Unmarshal([]byte(params), &p); err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidParams, err)
		}
		if err := validIdentifier(p.IssueKey); err != nil {
			return "", err
		}
		url := fmt.Sprintf("%s/rest/api/3/issue/%s/comment", j.BaseURL, p.IssueKey)
		return doJSON(ctx, j.client, http.MethodPost, url, j.headers(), map[string]string{"body": p.Body})

	case "get_issue":
		var p struct{ IssueKey string }
		if err := json.Unmarshal([]byte(params), &p); err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidParams, err)
		}
		url := fmt.Sprintf("%s/rest/api/3/issue/%s", j.BaseURL, p.IssueKey)
		return doJSON(ctx, j.client, http.MethodGet, url, j.headers(), nil)

	default:
		return "", fmt.Errorf("%w: jira has no operation %q", ErrInvalidParams, operation)
	}
}

func (j *Jira) headers() map[string]string {
	return map[string]string{"Authorization": "Basic " + basicAuth(j.Email, j.Token)}
}

func mergeFields(override, base map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}
