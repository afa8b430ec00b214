package collaborators

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ocx-labs/plaid/internal/module"
)

// Slack implements message posting and channel lookup, the operations a
// rule most commonly needs for human-in-the-loop notification.
type Slack struct {
	BaseURL string
	Token   string
	client  *http.Client
}

func NewSlack(baseURL, token string, client *http.Client) *Slack {
	return &Slack{BaseURL: baseURL, Token: token, client: client}
}

func (s *Slack) Name() string { return "slack" }

func (s *Slack) Call(ctx context.Context, caller *module.Module, operation, params string) (string, error) {
	switch operation {
	case "post_message":
		var p struct {
			Channel string `json:"channel"`
			Text    string `json:"text"`
		}
		if err := json.Unmarshal([]byte(params), &p); err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidParams, err)
		}
		if err := validIdentifier(p.Channel); err != nil {
			return "", err
		}
		if !authorizedDestination(caller.AccessoryData, "slack_post_channels", p.Channel) {
			return "", ErrNotAuthorized
		}
		body := map[string]string{"channel": p.Channel, "text": p.Text}
		return doJSON(ctx, s.client, http.MethodPost, s.BaseURL+"/api/chat.postMessage", s.headers(), body)

	case "lookup_user_by_email":
		var p struct{ Email string }
		if err := json.Unmarshal([]byte(params), &p); err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidParams, err)
		}
		url := s.BaseURL + "/api/users.lookupByEmail?email=" + p.Email
		return doJSON(ctx, s.client, http.MethodGet, url, s.headers(), nil)

	default:
		return "", fmt.Errorf("%w: slack has no operation %q", ErrInvalidParams, operation)
	}
}

func (s *Slack) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + s.Token}
}
