package collaborators

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ocx-labs/plaid/internal/module"
)

// PagerDuty implements incident creation/acknowledgement.
type PagerDuty struct {
	BaseURL string
	Token   string
	client  *http.Client
}

func NewPagerDuty(baseURL, token string, client *http.Client) *PagerDuty {
	return &PagerDuty{BaseURL: baseURL, Token: token, client: client}
}

func (p *PagerDuty) Name() string { return "pagerduty" }

func (p *PagerDuty) Call(ctx context.Context, caller *module.Module, operation, params string) (string, error) {
	switch operation {
	case "trigger_incident":
		var req struct {
			RoutingKey  string `json:"routing_key"`
			Summary     string `json:"summary"`
			Severity    string `json:"severity"`
			Source      string `json:"source"`
		}
		if err := json.Unmarshal([]byte(params), &req); err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidParams, err)
		}
		body := map[string]interface{}{
			"routing_key":  req.RoutingKey,
			"event_action": "trigger",
			"payload": map[string]string{
				"summary":  req.Summary,
				"severity": req.Severity,
				"source":   req.Source,
			},
		}
		return doJSON(ctx, p.client, http.MethodPost, p.BaseURL+"/v2/enqueue", p.headers(), body)

	case "acknowledge_incident":
		var req struct{ IncidentID string }
		if err := json.Unmarshal([]byte(params), &req); err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidParams, err)
		}
		if err := validIdentifier(req.IncidentID); err != nil {
			return "", err
		}
		url := fmt.Sprintf("%s/incidents/%s", p.BaseURL, req.IncidentID)
		return doJSON(ctx, p.client, http.MethodPut, url, p.headers(), map[string]string{"status": "acknowledged"})

	default:
		return "", fmt.Errorf("%w: pagerduty has no operation %q", ErrInvalidParams, operation)
	}
}

func (p *PagerDuty) headers() map[string]string {
	return map[string]string{"Authorization": "Token token=" + p.Token}
}
