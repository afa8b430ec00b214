package loader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocx-labs/plaid/internal/module"
)

func TestRegistryByNameAndByLogtype(t *testing.T) {
	reg := newRegistry()
	a := &module.Module{Name: "alert-on-push", Logtype: "github"}
	b := &module.Module{Name: "alert-on-merge", Logtype: "github"}
	c := &module.Module{Name: "ingest-slack", Logtype: "slack"}

	reg.register(a)
	reg.register(b)
	reg.register(c)

	got, ok := reg.ByName("alert-on-push")
	require.True(t, ok)
	assert.Same(t, a, got)

	_, ok = reg.ByName("does-not-exist")
	assert.False(t, ok)

	githubModules := reg.ByLogtype("github")
	assert.ElementsMatch(t, []*module.Module{a, b}, githubModules)

	assert.Empty(t, reg.ByLogtype("unknown-logtype"))
	assert.Equal(t, 3, reg.Len())
}

func TestRegistryByLogtypePreservesRegistrationOrder(t *testing.T) {
	reg := newRegistry()
	first := &module.Module{Name: "first", Logtype: "webhook"}
	second := &module.Module{Name: "second", Logtype: "webhook"}

	reg.register(first)
	reg.register(second)

	got := reg.ByLogtype("webhook")
	require.Len(t, got, 2)
	assert.Equal(t, "first", got[0].Name)
	assert.Equal(t, "second", got[1].Name)
}
