// Command plaidd is Plaid's runtime process: it loads compiled rule
// modules, wires every configured ambient service (storage, cache,
// collaborators, metrics), and starts the dispatcher and HTTP front end.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ocx-labs/plaid/internal/cache"
	"github.com/ocx-labs/plaid/internal/collaborators"
	"github.com/ocx-labs/plaid/internal/config"
	"github.com/ocx-labs/plaid/internal/datasource"
	"github.com/ocx-labs/plaid/internal/dispatcher"
	"github.com/ocx-labs/plaid/internal/identitytrust"
	"github.com/ocx-labs/plaid/internal/loader"
	"github.com/ocx-labs/plaid/internal/logback"
	"github.com/ocx-labs/plaid/internal/message"
	"github.com/ocx-labs/plaid/internal/metrics"
	"github.com/ocx-labs/plaid/internal/sandbox"
	"github.com/ocx-labs/plaid/internal/storage"
	"github.com/ocx-labs/plaid/internal/webhookfront"
)

func main() {
	configPath := flag.String("config", "./plaid.yaml", "path to the runtime configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("plaidd: load config: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.IsProduction()),
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := buildStorage(ctx, cfg.Storage)
	if err != nil {
		logger.Error("plaidd: storage backend init failed", "backend", cfg.Storage.Backend, "error", err)
		os.Exit(1)
	}
	logger.Info("plaidd: storage backend ready", "backend", cfg.Storage.Backend, "persistent", backend.IsPersistent())

	cacheImpl, closeCache := buildCache(cfg.Cache, logger)
	if closeCache != nil {
		defer closeCache()
	}
	logger.Info("plaidd: cache backend ready", "backend", cfg.Cache.Backend)

	secrets, err := config.LoadSecrets(cfg.Secrets.FilePath)
	if err != nil {
		logger.Error("plaidd: load secrets failed", "error", err)
		os.Exit(1)
	}

	var idSource *identitytrust.Source
	if cfg.Identity.SPIFFEEnabled {
		idSource, err = identitytrust.New(ctx, cfg.Identity.SPIFFESocketPath, cfg.Identity.TrustDomain)
		if err != nil {
			logger.Warn("plaidd: spiffe workload identity unavailable, continuing without it", "error", err)
		} else {
			defer idSource.Close()
			logger.Info("plaidd: spiffe workload identity established", "trust_domain", cfg.Identity.TrustDomain)
		}
	}

	collabApi := buildCollaborators(cfg.Collaborators, secrets, idSource, logger)
	logger.Info("plaidd: collaborators registered", "names", collabApi.Registry.Names())

	met := metrics.New()

	reg, err := loader.Load(ctx, cfg, secrets, backend, logger)
	if err != nil {
		logger.Error("plaidd: module load failed", "error", err)
		os.Exit(1)
	}
	logger.Info("plaidd: modules loaded", "count", reg.Len())

	deps := sandbox.Dependencies{
		Storage:       backend,
		Cache:         cacheImpl,
		Collaborators: collabApi,
		Metrics:       met,
		Logger:        logger,
	}

	// deps.Logback is left nil: New installs the dispatcher as the log_back sink.
	disp := dispatcher.New(cfg.Dispatcher.WorkerCount, cfg.Dispatcher.QueueDepth, reg, deps, met, logger)

	if cfg.CloudTasks.Enabled && cfg.CloudTasks.ProjectID != "" {
		callbackURL := "http://" + cfg.Webhook.ListenAddr + "/internal/logback"
		sched, err := logback.NewScheduler(ctx, cfg.CloudTasks.ProjectID, cfg.CloudTasks.LocationID, cfg.CloudTasks.QueueID, callbackURL, logger)
		if err != nil {
			logger.Warn("plaidd: cloud tasks scheduler unavailable, delayed logbacks use in-process timers", "error", err)
		} else {
			defer sched.Close()
			disp.Delayed = sched
			logger.Info("plaidd: delayed logback delivery via cloud tasks", "queue", cfg.CloudTasks.QueueID)
		}
	}

	disp.Start(ctx)
	defer disp.Stop()

	stopSources := startDataSources(ctx, cfg, disp, logger)
	defer stopSources()

	front := webhookfront.New(cfg.Webhook, reg, disp, logger)

	mux := http.NewServeMux()
	mux.Handle("/", front.Handler())
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:         cfg.Webhook.ListenAddr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		logger.Info("plaidd: shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("plaidd: http shutdown error", "error", err)
		}
	}()

	if err := writeReadinessFile(cfg.Server.ReadinessFilePath); err != nil {
		logger.Warn("plaidd: failed to write readiness file", "path", cfg.Server.ReadinessFilePath, "error", err)
	} else {
		logger.Info("plaidd: readiness file written", "path", cfg.Server.ReadinessFilePath)
	}

	logger.Info("plaidd: listening", "addr", cfg.Webhook.ListenAddr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("plaidd: server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("plaidd: stopped")
}

func logLevel(production bool) slog.Level {
	if production {
		return slog.LevelInfo
	}
	return slog.LevelDebug
}

func buildStorage(ctx context.Context, cfg config.StorageConfig) (storage.Backend, error) {
	switch cfg.Backend {
	case "postgres":
		return storage.NewPostgres(ctx, cfg.Postgres.DSN)
	case "spanner":
		return storage.NewSpanner(ctx, cfg.Spanner.ProjectID, cfg.Spanner.InstanceID, cfg.Spanner.DatabaseID)
	default:
		return storage.NewMemory(), nil
	}
}

func buildCache(cfg config.CacheConfig, logger *slog.Logger) (cache.Cache, func()) {
	if cfg.Backend == "redis" && cfg.Redis.Addr != "" {
		r := cache.NewRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, 0)
		return r, func() {
			if err := r.Close(); err != nil {
				logger.Warn("plaidd: redis close failed", "error", err)
			}
		}
	}
	return cache.NewLRU(cfg.LRUEntries), nil
}

// buildCollaborators registers every collaborator whose base URL (or
// equivalent "this is configured" signal) is present, reading credentials
// from the secrets file's universal set under conventional key names.
func buildCollaborators(cfg config.CollaboratorsConfig, secrets *config.SecretsStore, idSource *identitytrust.Source, logger *slog.Logger) *collaborators.Api {
	api := collaborators.NewApi(15 * time.Second)
	universal := secrets.For("")
	client := api.HTTPClient()

	register := func(name string, c collaborators.Collaborator) {
		if err := api.Registry.Register(c); err != nil {
			logger.Warn("plaidd: collaborator registration failed", "name", name, "error", err)
		}
	}

	if cfg.GitHub.BaseURL != "" {
		register("github", collaborators.NewGitHub(cfg.GitHub.BaseURL, universal["github_token"], client))
	}
	if cfg.Jira.BaseURL != "" {
		register("jira", collaborators.NewJira(cfg.Jira.BaseURL, universal["jira_email"], universal["jira_token"], client))
	}
	if cfg.Slack.BaseURL != "" {
		register("slack", collaborators.NewSlack(cfg.Slack.BaseURL, universal["slack_token"], client))
	}
	if cfg.Okta.BaseURL != "" {
		// Okta is frequently an internal identity endpoint behind mTLS
		// rather than a public SaaS API; use the workload identity client
		// when SPIFFE is configured, falling back to the shared client.
		oktaClient := client
		if idSource != nil {
			if mtlsClient, err := idSource.ClientFor(); err != nil {
				logger.Warn("plaidd: okta mtls client unavailable, using plain client", "error", err)
			} else {
				oktaClient = mtlsClient
			}
		}
		register("okta", collaborators.NewOkta(cfg.Okta.BaseURL, universal["okta_token"], oktaClient))
	}
	if cfg.PagerDuty.BaseURL != "" {
		register("pagerduty", collaborators.NewPagerDuty(cfg.PagerDuty.BaseURL, universal["pagerduty_token"], client))
	}
	if cfg.Splunk.BaseURL != "" {
		register("splunk", collaborators.NewSplunk(cfg.Splunk.BaseURL, universal["splunk_token"], client))
	}
	if cfg.NPM.RegistryURL != "" {
		register("npm", collaborators.NewNPM(cfg.NPM.RegistryURL, client))
	}
	if cfg.Blockchain.RPCURL != "" {
		register("blockchain", collaborators.NewBlockchain(cfg.Blockchain.RPCURL, client))
	}
	if cfg.BigQuery.ProjectID != "" {
		if bq, err := collaborators.NewBigQuery(context.Background(), cfg.BigQuery.ProjectID, universal["google_credentials_file"]); err != nil {
			logger.Warn("plaidd: bigquery collaborator unavailable", "error", err)
		} else {
			register("bigquery", bq)
		}
	}
	if cfg.GoogleDocs.Enabled {
		if gd, err := collaborators.NewGoogleDocs(context.Background(), universal["google_credentials_file"]); err != nil {
			logger.Warn("plaidd: google docs collaborator unavailable", "error", err)
		} else {
			register("google_docs", gd)
		}
	}
	if region := universal["aws_region"]; region != "" {
		if aws, err := collaborators.NewAWS(context.Background(), region); err != nil {
			logger.Warn("plaidd: aws collaborator unavailable", "error", err)
		} else {
			register("aws", aws)
		}
	}

	return api
}

// startDataSources launches every configured inbound generator and returns a
// function that releases their resources. Each source enqueues directly onto
// the dispatcher, matching the webhook front end's ingestion path.
func startDataSources(ctx context.Context, cfg *config.Config, disp *dispatcher.Dispatcher, logger *slog.Logger) func() {
	var closers []func()

	for logtype, url := range cfg.Websocket.Upstreams {
		src := &datasource.WebsocketSource{
			URL:     url,
			Logtype: logtype,
			Sink:    disp,
			Logger:  logger,
			Budget:  budgetFor(cfg),
		}
		go src.Run(ctx)
		logger.Info("plaidd: websocket data source started", "logtype", logtype, "url", url)
	}

	if cfg.PubSub.Enabled && cfg.PubSub.ProjectID != "" {
		src := &datasource.PubSubSource{
			ProjectID:     cfg.PubSub.ProjectID,
			Subscriptions: cfg.PubSub.Subscriptions,
			Logtype:       cfg.PubSub.Logtype,
			Sink:          disp,
			Logger:        logger,
			Budget:        budgetFor(cfg),
		}
		if err := src.Start(ctx); err != nil {
			logger.Warn("plaidd: pubsub data source failed to start", "error", err)
		} else {
			closers = append(closers, func() { src.Close() })
			logger.Info("plaidd: pubsub data source started", "subscriptions", cfg.PubSub.Subscriptions)
		}
	}

	if cfg.Interval.Enabled {
		src := &datasource.IntervalSource{
			Period:  time.Duration(cfg.Interval.PeriodSec) * time.Second,
			Logtype: cfg.Interval.Logtype,
			Sink:    disp,
			Logger:  logger,
			Budget:  budgetFor(cfg),
		}
		go src.Run(ctx)
		logger.Info("plaidd: interval data source started", "period_sec", cfg.Interval.PeriodSec, "logtype", cfg.Interval.Logtype)
	}

	return func() {
		for _, c := range closers {
			c()
		}
	}
}

// budgetFor applies the configured default logback budget to messages
// originating from data sources, which are untrusted input like any
// webhook call.
func budgetFor(cfg *config.Config) message.LogbacksAllowed {
	return message.Limited(cfg.Logback.DefaultBudget)
}

func writeReadinessFile(path string) error {
	if path == "" {
		return nil
	}
	return os.WriteFile(path, []byte("READY"), 0o644)
}
