package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plaid.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadAppliesDefaultsToEmptyConfig(t *testing.T) {
	path := writeConfigFile(t, "")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "./modules", cfg.Loader.ModuleDir)
	assert.Equal(t, "wazero", cfg.Loader.CompilerBackend)
	assert.Equal(t, uint64(10_000_000), cfg.Loader.DefaultComputationLimit)
	assert.Equal(t, uint32(16), cfg.Loader.DefaultPageLimit)
	assert.Equal(t, 4, cfg.Dispatcher.WorkerCount)
	assert.Equal(t, 256, cfg.Dispatcher.QueueDepth)
	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, "lru", cfg.Cache.Backend)
	assert.Equal(t, 1024, cfg.Cache.LRUEntries)
	assert.Equal(t, uint32(5), cfg.Logback.DefaultBudget)
	assert.Equal(t, ":8433", cfg.Webhook.ListenAddr)
	assert.Equal(t, "us-central1", cfg.CloudTasks.LocationID)
	assert.Equal(t, "plaid-logbacks", cfg.CloudTasks.QueueID)
	assert.Equal(t, "/tmp/plaid-ready", cfg.Server.ReadinessFilePath)
	assert.False(t, cfg.IsProduction())
}

func TestLoadDoesNotOverrideExplicitValues(t *testing.T) {
	path := writeConfigFile(t, `
loader:
  module_dir: /opt/plaid/modules
storage:
  backend: postgres
dispatcher:
  worker_count: 9
server:
  env: production
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/opt/plaid/modules", cfg.Loader.ModuleDir)
	assert.Equal(t, "postgres", cfg.Storage.Backend)
	assert.Equal(t, 9, cfg.Dispatcher.WorkerCount)
	assert.True(t, cfg.IsProduction())
	// Untouched sections still pick up their defaults.
	assert.Equal(t, "lru", cfg.Cache.Backend)
}

func TestLoadMissingFileReturnsError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	assert.Error(t, err)
}

func TestApplyEnvOverridesTakesPrecedenceOverYAML(t *testing.T) {
	path := writeConfigFile(t, `
storage:
  backend: postgres
`)

	t.Setenv("PLAID_STORAGE_BACKEND", "spanner")
	t.Setenv("PLAID_DISPATCHER_WORKERS", "12")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "spanner", cfg.Storage.Backend)
	assert.Equal(t, 12, cfg.Dispatcher.WorkerCount)
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("PLAID_TEST_STRING", "value")
	assert.Equal(t, "value", getEnv("PLAID_TEST_STRING", "default"))
	assert.Equal(t, "default", getEnv("PLAID_TEST_STRING_UNSET", "default"))

	t.Setenv("PLAID_TEST_BOOL", "1")
	assert.True(t, getEnvBool("PLAID_TEST_BOOL", false))
	assert.False(t, getEnvBool("PLAID_TEST_BOOL_UNSET", false))

	t.Setenv("PLAID_TEST_INT", "42")
	assert.Equal(t, 42, getEnvInt("PLAID_TEST_INT", 0))

	t.Setenv("PLAID_TEST_INT_BAD", "not-a-number")
	assert.Equal(t, 7, getEnvInt("PLAID_TEST_INT_BAD", 7))

	t.Setenv("PLAID_TEST_UINT", "100")
	assert.Equal(t, uint64(100), getEnvUint("PLAID_TEST_UINT", 0))
}
