// Package config loads Plaid's YAML configuration and applies environment
// overrides, following the layered config/secrets split used throughout the
// runtime's ambient stack.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// Config is the top-level runtime configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Loader        LoaderConfig        `yaml:"loader"`
	Dispatcher    DispatcherConfig    `yaml:"dispatcher"`
	Storage       StorageConfig       `yaml:"storage"`
	Cache         CacheConfig         `yaml:"cache"`
	Logback       LogbackConfig       `yaml:"logback"`
	Webhook       WebhookConfig       `yaml:"webhook"`
	PubSub        PubSubConfig        `yaml:"pubsub"`
	CloudTasks    CloudTasksConfig    `yaml:"cloud_tasks"`
	Websocket     WebsocketConfig     `yaml:"websocket"`
	Interval      IntervalConfig      `yaml:"interval"`
	Identity      IdentityConfig      `yaml:"identity"`
	Secrets       SecretsConfig       `yaml:"secrets"`
	Signing       SigningConfig       `yaml:"signing"`
	Collaborators CollaboratorsConfig `yaml:"collaborators"`
}

type ServerConfig struct {
	Env               string `yaml:"env"`
	ReadinessFilePath string `yaml:"readiness_file_path"`
}

// LoaderConfig governs module directory scanning, limit resolution, and the
// accessory data/secrets/persistent-response layering applied at load time.
type LoaderConfig struct {
	ModuleDir               string                   `yaml:"module_dir"`
	CompilerBackend         string                   `yaml:"compiler_backend"`
	DefaultComputationLimit uint64                   `yaml:"default_computation_limit"`
	DefaultPageLimit        uint32                   `yaml:"default_page_limit"`
	LogtypeLimits           map[string]LimitOverride `yaml:"logtype_limits"`
	ModuleLimits            map[string]LimitOverride `yaml:"module_limits"`

	// LogtypeOverrides maps a module filename to the logtype it should be
	// registered under, for modules whose filename prefix isn't their
	// logtype.
	LogtypeOverrides map[string]string `yaml:"logtype_overrides"`

	// DefaultStorageLimit is the module storage quota in bytes; nil means
	// unlimited. LogtypeStorageLimits and ModuleStorageLimits override it
	// by the same module-override -> logtype-override -> default
	// precedence as the computation and page limits.
	DefaultStorageLimit  *uint64           `yaml:"default_storage_limit"`
	LogtypeStorageLimits map[string]uint64 `yaml:"logtype_storage_limits"`
	ModuleStorageLimits  map[string]uint64 `yaml:"module_storage_limits"`

	// UniversalAccessoryData applies to every module; LogtypeAccessoryData
	// and ModuleAccessoryData layer on top, each overriding on key
	// collision, module taking precedence over logtype over universal.
	UniversalAccessoryData map[string]string            `yaml:"universal_accessory_data"`
	LogtypeAccessoryData   map[string]map[string]string `yaml:"accessory_data_logtype_overrides"`
	ModuleAccessoryData    map[string]map[string]string `yaml:"accessory_data_module_overrides"`

	// PersistentResponseSize gives the max bytes a module's GET-response
	// cell may hold; a module absent from this map gets no cell.
	PersistentResponseSize map[string]uint64 `yaml:"persistent_response_size"`

	// TestMode, when true, loads every module without this name present
	// in TestModeExemptions in test mode (side-effecting capabilities
	// refused).
	TestMode           bool     `yaml:"test_mode"`
	TestModeExemptions []string `yaml:"test_mode_exemptions"`

	// ConcurrencyUnsafeModules lists module filenames that must never run
	// two invocations concurrently within this process.
	ConcurrencyUnsafeModules []string `yaml:"concurrency_unsafe_modules"`
}

// LimitOverride is an optional per-logtype or per-module limit override.
type LimitOverride struct {
	ComputationLimit *uint64 `yaml:"computation_limit"`
	PageLimit        *uint32 `yaml:"page_limit"`
}

type DispatcherConfig struct {
	WorkerCount int `yaml:"worker_count"`
	QueueDepth  int `yaml:"queue_depth"`
}

type StorageConfig struct {
	Backend  string         `yaml:"backend"` // "memory" | "postgres" | "spanner"
	Postgres PostgresConfig `yaml:"postgres"`
	Spanner  SpannerConfig  `yaml:"spanner"`
}

type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

type SpannerConfig struct {
	ProjectID  string `yaml:"project_id"`
	InstanceID string `yaml:"instance_id"`
	DatabaseID string `yaml:"database_id"`
}

type CacheConfig struct {
	Backend    string      `yaml:"backend"` // "lru" | "redis"
	LRUEntries int         `yaml:"lru_entries"`
	Redis      RedisConfig `yaml:"redis"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type LogbackConfig struct {
	DefaultBudget uint32 `yaml:"default_budget"`
}

type WebhookConfig struct {
	ListenAddr        string           `yaml:"listen_addr"`
	PersistentWaitSec int              `yaml:"persistent_wait_sec"`
	Routes            []GetRouteConfig `yaml:"get_routes"`
	RateLimit         RateLimitConfig  `yaml:"rate_limit"`
}

// GetRouteConfig binds one GET path to a pinned rule, per spec.md §6's
// "GET that should be answered by rule R" contract.
type GetRouteConfig struct {
	Path          string `yaml:"path"`
	Module        string `yaml:"module"`
	UsePersistent bool   `yaml:"use_persistent"`
	CallOnNone    bool   `yaml:"call_on_none"`
}

type RateLimitConfig struct {
	MaxCallsPerMinute int `yaml:"max_calls_per_minute"`
	BurstSize         int `yaml:"burst_size"`
}

type PubSubConfig struct {
	ProjectID     string   `yaml:"project_id"`
	Subscriptions []string `yaml:"subscriptions"`
	Logtype       string   `yaml:"logtype"`
	Enabled       bool     `yaml:"enabled"`
}

// IntervalConfig governs the timer-driven heartbeat data source.
type IntervalConfig struct {
	PeriodSec int    `yaml:"period_sec"`
	Logtype   string `yaml:"logtype"`
	Enabled   bool   `yaml:"enabled"`
}

type CloudTasksConfig struct {
	ProjectID  string `yaml:"project_id"`
	LocationID string `yaml:"location_id"`
	QueueID    string `yaml:"queue_id"`
	Enabled    bool   `yaml:"enabled"`
}

type WebsocketConfig struct {
	// Upstreams maps a logtype to the upstream websocket URL that feeds it.
	Upstreams map[string]string `yaml:"upstreams"`
}

type IdentityConfig struct {
	SPIFFEEnabled    bool   `yaml:"spiffe_enabled"`
	SPIFFESocketPath string `yaml:"spiffe_socket_path"`
	TrustDomain      string `yaml:"trust_domain"`
}

type SecretsConfig struct {
	FilePath string `yaml:"file_path"`
	EnvFile  string `yaml:"env_file"`
}

type SigningConfig struct {
	Enabled            bool     `yaml:"enabled"`
	RequiredSignatures int      `yaml:"required_signatures"`
	Namespace          string   `yaml:"namespace"`
	SignaturesDir      string   `yaml:"signatures_dir"`
	AuthorizedSigners  []string `yaml:"authorized_signers"` // hex-encoded ed25519 public keys
}

type CollaboratorsConfig struct {
	GitHub     GitHubConfig     `yaml:"github"`
	Jira       JiraConfig       `yaml:"jira"`
	Slack      SlackConfig      `yaml:"slack"`
	Okta       OktaConfig       `yaml:"okta"`
	PagerDuty  PagerDutyConfig  `yaml:"pagerduty"`
	Splunk     SplunkConfig     `yaml:"splunk"`
	NPM        NPMConfig        `yaml:"npm"`
	Blockchain BlockchainConfig `yaml:"blockchain"`
	BigQuery   BigQueryConfig   `yaml:"bigquery"`
	GoogleDocs GoogleDocsConfig `yaml:"google_docs"`
}

type GitHubConfig struct {
	BaseURL string `yaml:"base_url"`
	Token   string `yaml:"-"` // resolved from secrets, never from yaml
}

type JiraConfig struct {
	BaseURL string `yaml:"base_url"`
}

type SlackConfig struct {
	BaseURL string `yaml:"base_url"`
}

type OktaConfig struct {
	BaseURL string `yaml:"base_url"`
}

type PagerDutyConfig struct {
	BaseURL string `yaml:"base_url"`
}

type SplunkConfig struct {
	BaseURL string `yaml:"base_url"`
}

type NPMConfig struct {
	RegistryURL string `yaml:"registry_url"`
}

type BlockchainConfig struct {
	RPCURL string `yaml:"rpc_url"`
}

type BigQueryConfig struct {
	ProjectID string `yaml:"project_id"`
}

type GoogleDocsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Load reads the YAML configuration file at path, then applies environment
// overrides and defaults.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	var cfg Config
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}

	if cfg.Secrets.EnvFile != "" {
		if err := godotenv.Load(cfg.Secrets.EnvFile); err != nil && !os.IsNotExist(err) {
			slog.Warn("config: failed to load env file", "path", cfg.Secrets.EnvFile, "error", err)
		}
	}

	cfg.applyEnvOverrides()
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyEnvOverrides() {
	c.Server.Env = getEnv("PLAID_ENV", c.Server.Env)
	c.Loader.ModuleDir = getEnv("PLAID_MODULE_DIR", c.Loader.ModuleDir)
	c.Loader.CompilerBackend = getEnv("PLAID_COMPILER_BACKEND", c.Loader.CompilerBackend)
	if v := getEnvUint("PLAID_DEFAULT_COMPUTATION_LIMIT", 0); v > 0 {
		c.Loader.DefaultComputationLimit = v
	}
	if v := getEnvInt("PLAID_DISPATCHER_WORKERS", 0); v > 0 {
		c.Dispatcher.WorkerCount = v
	}
	if v := getEnvInt("PLAID_DISPATCHER_QUEUE_DEPTH", 0); v > 0 {
		c.Dispatcher.QueueDepth = v
	}
	c.Storage.Backend = getEnv("PLAID_STORAGE_BACKEND", c.Storage.Backend)
	c.Storage.Postgres.DSN = getEnv("PLAID_POSTGRES_DSN", c.Storage.Postgres.DSN)
	c.Storage.Spanner.ProjectID = getEnv("PLAID_SPANNER_PROJECT_ID", c.Storage.Spanner.ProjectID)
	c.Storage.Spanner.InstanceID = getEnv("PLAID_SPANNER_INSTANCE_ID", c.Storage.Spanner.InstanceID)
	c.Storage.Spanner.DatabaseID = getEnv("PLAID_SPANNER_DATABASE_ID", c.Storage.Spanner.DatabaseID)
	c.Cache.Backend = getEnv("PLAID_CACHE_BACKEND", c.Cache.Backend)
	c.Cache.Redis.Addr = getEnv("PLAID_REDIS_ADDR", c.Cache.Redis.Addr)
	c.Webhook.ListenAddr = getEnv("PLAID_WEBHOOK_LISTEN_ADDR", c.Webhook.ListenAddr)
	if projectID := getEnv("PLAID_GCP_PROJECT_ID", ""); projectID != "" {
		c.PubSub.ProjectID = projectID
		c.CloudTasks.ProjectID = projectID
	}
	c.PubSub.Enabled = getEnvBool("PLAID_PUBSUB_ENABLED", c.PubSub.Enabled)
	c.CloudTasks.Enabled = getEnvBool("PLAID_CLOUD_TASKS_ENABLED", c.CloudTasks.Enabled)
	c.Identity.SPIFFEEnabled = getEnvBool("PLAID_SPIFFE_ENABLED", c.Identity.SPIFFEEnabled)
	c.Identity.TrustDomain = getEnv("PLAID_TRUST_DOMAIN", c.Identity.TrustDomain)
	c.Secrets.FilePath = getEnv("PLAID_SECRETS_FILE", c.Secrets.FilePath)
}

func (c *Config) applyDefaults() {
	if c.Loader.ModuleDir == "" {
		c.Loader.ModuleDir = "./modules"
	}
	if c.Loader.CompilerBackend == "" {
		c.Loader.CompilerBackend = "wazero"
	}
	if c.Loader.DefaultComputationLimit == 0 {
		c.Loader.DefaultComputationLimit = 10_000_000
	}
	if c.Loader.DefaultPageLimit == 0 {
		c.Loader.DefaultPageLimit = 16 // 1 MiB
	}
	if c.Dispatcher.WorkerCount == 0 {
		c.Dispatcher.WorkerCount = 4
	}
	if c.Dispatcher.QueueDepth == 0 {
		c.Dispatcher.QueueDepth = 256
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = "memory"
	}
	if c.Cache.Backend == "" {
		c.Cache.Backend = "lru"
	}
	if c.Cache.LRUEntries == 0 {
		c.Cache.LRUEntries = 1024
	}
	if c.Logback.DefaultBudget == 0 {
		c.Logback.DefaultBudget = 5
	}
	if c.Webhook.ListenAddr == "" {
		c.Webhook.ListenAddr = ":8433"
	}
	if c.Webhook.PersistentWaitSec == 0 {
		c.Webhook.PersistentWaitSec = 30
	}
	if c.CloudTasks.LocationID == "" {
		c.CloudTasks.LocationID = "us-central1"
	}
	if c.CloudTasks.QueueID == "" {
		c.CloudTasks.QueueID = "plaid-logbacks"
	}
	if c.Signing.RequiredSignatures == 0 {
		c.Signing.RequiredSignatures = 1
	}
	if c.Signing.Namespace == "" {
		c.Signing.Namespace = "plaid-module-signature"
	}
	if c.Signing.SignaturesDir == "" {
		c.Signing.SignaturesDir = "./module_signatures"
	}
	if c.Interval.PeriodSec == 0 {
		c.Interval.PeriodSec = 60
	}
	if c.Server.ReadinessFilePath == "" {
		c.Server.ReadinessFilePath = "/tmp/plaid-ready"
	}
}

func (c *Config) IsProduction() bool { return c.Server.Env == "production" }

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		return val == "true" || val == "1"
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvUint(key string, defaultVal uint64) uint64 {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.ParseUint(val, 10, 64); err == nil {
			return i
		}
	}
	return defaultVal
}
