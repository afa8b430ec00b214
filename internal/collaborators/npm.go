package collaborators

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ocx-labs/plaid/internal/module"
)

// NPM implements read-only package-metadata lookups against a registry,
// grounded on original_source/runtime/plaid/src/apis/npm/npm_web_client.rs.
// The lookups have no side effects, but collaborator_call refuses every
// collaborator, this one included, to a module in test mode.
type NPM struct {
	RegistryURL string
	client      *http.Client
}

func NewNPM(registryURL string, client *http.Client) *NPM {
	return &NPM{RegistryURL: registryURL, client: client}
}

func (n *NPM) Name() string { return "npm" }

func (n *NPM) Call(ctx context.Context, caller *module.Module, operation, params string) (string, error) {
	switch operation {
	case "get_package_metadata":
		var p struct{ Package string }
		if err := json.Unmarshal([]byte(params), &p); err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidParams, err)
		}
		if err := validIdentifier(p.Package); err != nil {
			return "", err
		}
		url := fmt.Sprintf("%s/%s", n.RegistryURL, p.Package)
		return doJSON(ctx, n.client, http.MethodGet, url, nil, nil)

	case "get_package_versions":
		var p struct{ Package string }
		if err := json.Unmarshal([]byte(params), &p); err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidParams, err)
		}
		if err := validIdentifier(p.Package); err != nil {
			return "", err
		}
		url := fmt.Sprintf("%s/%s", n.RegistryURL, p.Package)
		raw, err := doJSON(ctx, n.client, http.MethodGet, url, nil, nil)
		if err != nil {
			return "", err
		}
		var doc struct {
			Versions map[string]json.RawMessage `json:"versions"`
		}
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			return "", fmt.Errorf("collaborators: npm response decode: %w", err)
		}
		versions := make([]string, 0, len(doc.Versions))
		for v := range doc.Versions {
			versions = append(versions, v)
		}
		out, _ := json.Marshal(versions)
		return string(out), nil

	default:
		return "", fmt.Errorf("%w: npm has no operation %q", ErrInvalidParams, operation)
	}
}
