package collaborators

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ocx-labs/plaid/internal/module"
)

// Splunk implements search-job submission and event ingestion (HEC).
type Splunk struct {
	BaseURL string
	Token   string
	client  *http.Client
}

func NewSplunk(baseURL, token string, client *http.Client) *Splunk {
	return &Splunk{BaseURL: baseURL, Token: token, client: client}
}

func (s *Splunk) Name() string { return "splunk" }

func (s *Splunk) Call(ctx context.Context, caller *module.Module, operation, params string) (string, error) {
	switch operation {
	case "submit_event":
		var p struct {
			Index string                 `json:"index"`
			Event map[string]interface{} `json:"event"`
		}
		if err := json.Unmarshal([]byte(params), &p); err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidParams, err)
		}
		body := map[string]interface{}{"index": p.Index, "event": p.Event}
		return doJSON(ctx, s.client, http.MethodPost, s.BaseURL+"/services/collector/event", s.headers(), body)

	case "run_search":
		var p struct{ Query string }
		if err := json.Unmarshal([]byte(params), &p); err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidParams, err)
		}
		body := map[string]string{"search": p.Query, "output_mode": "json"}
		return doJSON(ctx, s.client, http.MethodPost, s.BaseURL+"/services/search/jobs", s.headers(), body)

	default:
		return "", fmt.Errorf("%w: splunk has no operation %q", ErrInvalidParams, operation)
	}
}

func (s *Splunk) headers() map[string]string {
	return map[string]string{"Authorization": "Splunk " + s.Token}
}
