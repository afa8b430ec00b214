package collaborators

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ocx-labs/plaid/internal/module"
)

// Okta implements group-membership operations, grounded on
// original_source/runtime/plaid/src/apis/okta/groups.rs.
type Okta struct {
	BaseURL string
	Token   string
	client  *http.Client
}

func NewOkta(baseURL, token string, client *http.Client) *Okta {
	return &Okta{BaseURL: baseURL, Token: token, client: client}
}

func (o *Okta) Name() string { return "okta" }

func (o *Okta) Call(ctx context.Context, caller *module.Module, operation, params string) (string, error) {
	switch operation {
	case "add_user_to_group":
		var p struct{ GroupID, UserID string }
		if err := json.Unmarshal([]byte(params), &p); err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidParams, err)
		}
		if err := validIdentifier(p.GroupID); err != nil {
			return "", err
		}
		if err := validIdentifier(p.UserID); err != nil {
			return "", err
		}
		if !authorizedDestination(caller.AccessoryData, "okta_manage_groups", p.GroupID) {
			return "", ErrNotAuthorized
		}
		url := fmt.Sprintf("%s/api/v1/groups/%s/users/%s", o.BaseURL, p.GroupID, p.UserID)
		return doJSON(ctx, o.client, http.MethodPut, url, o.headers(), nil)

	case "list_group_members":
		var p struct{ GroupID string }
		if err := json.Unmarshal([]byte(params), &p); err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidParams, err)
		}
		url := fmt.Sprintf("%s/api/v1/groups/%s/users", o.BaseURL, p.GroupID)
		return doJSON(ctx, o.client, http.MethodGet, url, o.headers(), nil)

	default:
		return "", fmt.Errorf("%w: okta has no operation %q", ErrInvalidParams, operation)
	}
}

func (o *Okta) headers() map[string]string {
	return map[string]string{"Authorization": "SSWS " + o.Token}
}
