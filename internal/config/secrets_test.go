package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSecretsMissingFileYieldsEmptyStore(t *testing.T) {
	store, err := LoadSecrets(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Empty(t, store.For("github"))
}

func TestLoadSecretsEmptyPathYieldsEmptyStore(t *testing.T) {
	store, err := LoadSecrets("")
	require.NoError(t, err)
	assert.Empty(t, store.For(""))
}

func TestForMergesUniversalAndLogtype(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
universal:
  github_token: universal-token
  shared_key: shared-value
logtypes:
  github:
    github_token: github-specific-token
`), 0o600))

	store, err := LoadSecrets(path)
	require.NoError(t, err)

	merged := store.For("github")
	assert.Equal(t, "github-specific-token", merged["github_token"], "logtype entry overrides universal")
	assert.Equal(t, "shared-value", merged["shared_key"])

	other := store.For("slack")
	assert.Equal(t, "universal-token", other["github_token"], "non-matching logtype falls back to universal")
}

func TestForWithEmptyLogtypeReturnsUniversalOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
universal:
  aws_region: us-east-1
logtypes:
  github:
    aws_region: us-west-2
`), 0o600))

	store, err := LoadSecrets(path)
	require.NoError(t, err)

	assert.Equal(t, "us-east-1", store.For("")["aws_region"])
}
