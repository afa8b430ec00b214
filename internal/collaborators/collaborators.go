// Package collaborators implements the "Collaborator calls" host-ABI
// category: one named operation set per third-party service a rule may
// reach, each taking and returning JSON strings. The wire format of any
// given vendor API is out of scope (spec.md §1 Non-goals); what this
// package guarantees is the shape the host ABI consumes: validated input,
// an authorization check against the calling module, a context-bound
// HTTP or RPC call, and a JSON (or structured ApiError) result.
package collaborators

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/ocx-labs/plaid/internal/module"
)

// ApiError is the error space collaborator operations return, mapped by
// the host ABI caller onto hostabi.ErrorCode: ErrTestMode becomes
// hostabi.TestMode, ErrNotConfigured becomes hostabi.ApiNotConfigured,
// anything else becomes hostabi.InternalApiError.
var (
	ErrTestMode        = errors.New("collaborators: side-effecting call refused in test mode")
	ErrNotConfigured   = errors.New("collaborators: requested api not configured")
	ErrNotAuthorized   = errors.New("collaborators: module not authorized for this destination")
	ErrInvalidParams   = errors.New("collaborators: invalid operation parameters")
)

// Collaborator is a named external service a rule can call into. Each
// implementation owns its own HTTP client, base URL and credentials.
type Collaborator interface {
	// Name is the stable identifier used in config and in the ABI function
	// namespace, e.g. "github", "jira".
	Name() string

	// Call performs a single named operation with JSON-encoded params and
	// returns a JSON-encoded result or an ApiError. callerModule is passed
	// for per-module authorization checks (e.g. "may this module write to
	// this destination").
	Call(ctx context.Context, callerModule *module.Module, operation string, params string) (string, error)
}

// Registry holds the set of configured collaborators, looked up by name
// from the host ABI's collaborator-call capability. Adapted from the
// teacher's plugin registry (sorted registration, name-indexed lookup);
// here priority ordering is irrelevant (collaborators are looked up by
// exact name, never probed in sequence), so Register simply rejects
// duplicate names.
type Registry struct {
	mu   sync.RWMutex
	byName map[string]Collaborator
	names  []string
}

// NewRegistry returns an empty collaborator registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Collaborator)}
}

// Register adds a collaborator under its own Name(). Registering a second
// collaborator under the same name is a configuration error.
func (r *Registry) Register(c Collaborator) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[c.Name()]; exists {
		return fmt.Errorf("collaborators: %q already registered", c.Name())
	}
	r.byName[c.Name()] = c
	r.names = append(r.names, c.Name())
	sort.Strings(r.names)
	return nil
}

// Call dispatches to the named collaborator, returning ErrNotConfigured if
// no collaborator with that name was registered.
func (r *Registry) Call(ctx context.Context, callerModule *module.Module, name, operation, params string) (string, error) {
	r.mu.RLock()
	c, ok := r.byName[name]
	r.mu.RUnlock()
	if !ok {
		return "", ErrNotConfigured
	}
	return c.Call(ctx, callerModule, operation, params)
}

// Names returns the sorted list of registered collaborator names, used for
// diagnostics and the readiness log line.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Api aggregates every configured collaborator behind one handle, matching
// spec.md §4.4.9's "one Api aggregate struct". It is constructed once at
// startup from config.CollaboratorsConfig and shared read-only across all
// invocations.
type Api struct {
	Registry *Registry
	client   *http.Client
}

// NewApi builds the aggregate with a shared HTTP client whose timeout
// bounds every collaborator call, per spec.md §5's "all external HTTP
// clients are built with a configured request timeout".
func NewApi(timeout time.Duration) *Api {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Api{
		Registry: NewRegistry(),
		client:   &http.Client{Timeout: timeout},
	}
}

// HTTPClient returns the shared, timeout-bound client every collaborator
// should use to avoid constructing its own.
func (a *Api) HTTPClient() *http.Client { return a.client }
