package collaborators

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocx-labs/plaid/internal/module"
)

type stubCollaborator struct {
	name string
}

func (s *stubCollaborator) Name() string { return s.name }

func (s *stubCollaborator) Call(_ context.Context, _ *module.Module, operation, params string) (string, error) {
	return `{"operation":"` + operation + `","params":"` + params + `"}`, nil
}

func TestRegistryRegisterAndCall(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&stubCollaborator{name: "github"}))

	out, err := r.Call(context.Background(), &module.Module{Name: "m"}, "github", "list_prs", `{"repo":"o/r"}`)
	require.NoError(t, err)
	assert.Contains(t, out, "list_prs")
}

func TestRegistryRejectsDuplicateName(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&stubCollaborator{name: "github"}))
	err := r.Register(&stubCollaborator{name: "github"})
	assert.Error(t, err)
}

func TestRegistryCallUnconfiguredReturnsErrNotConfigured(t *testing.T) {
	r := NewRegistry()
	_, err := r.Call(context.Background(), &module.Module{}, "jira", "op", "{}")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestRegistryNamesSorted(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&stubCollaborator{name: "slack"}))
	require.NoError(t, r.Register(&stubCollaborator{name: "github"}))
	require.NoError(t, r.Register(&stubCollaborator{name: "jira"}))

	assert.Equal(t, []string{"github", "jira", "slack"}, r.Names())
}

func TestNewApiDefaultsTimeout(t *testing.T) {
	api := NewApi(0)
	assert.Equal(t, 15*time.Second, api.HTTPClient().Timeout)
}

func TestNewApiHonorsExplicitTimeout(t *testing.T) {
	api := NewApi(3 * time.Second)
	assert.Equal(t, 3*time.Second, api.HTTPClient().Timeout)
}
