// Package app wires the configured gateways, ledger, and domain services
// into the API server, the background worker, or the dev-data seed, the
// three runtime modes a single ingestord binary supports.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/corvexa/ingestord/internal/audit"
	"github.com/corvexa/ingestord/internal/authtoken"
	"github.com/corvexa/ingestord/internal/chunker"
	"github.com/corvexa/ingestord/internal/config"
	"github.com/corvexa/ingestord/internal/embeddings"
	"github.com/corvexa/ingestord/internal/httpserver"
	"github.com/corvexa/ingestord/internal/ingestworker"
	"github.com/corvexa/ingestord/internal/ledger"
	"github.com/corvexa/ingestord/internal/loader"
	"github.com/corvexa/ingestord/internal/objectstore"
	"github.com/corvexa/ingestord/internal/platform"
	"github.com/corvexa/ingestord/internal/pool"
	"github.com/corvexa/ingestord/internal/queue"
	"github.com/corvexa/ingestord/internal/reaper"
	"github.com/corvexa/ingestord/internal/seed"
	"github.com/corvexa/ingestord/internal/telemetry"
	"github.com/corvexa/ingestord/internal/vectorstore"
	"github.com/corvexa/ingestord/pkg/document"
	"github.com/corvexa/ingestord/pkg/ingestion"
	"github.com/corvexa/ingestord/pkg/knowledgebase"
	"github.com/corvexa/ingestord/pkg/poolstats"
)

// Run is the main application entry point. It reads config, connects to
// infrastructure, and starts the appropriate mode (api, worker, or seed).
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting ingestord",
		"mode", cfg.Mode,
		"listen", cfg.ListenAddr(),
	)

	db, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	rdb, err := platform.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error("closing redis", "error", err)
		}
	}()

	if err := platform.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("migrations applied")

	metricsReg := telemetry.NewMetricsRegistry(telemetry.All()...)

	switch cfg.Mode {
	case "api":
		return runAPI(ctx, cfg, logger, db, rdb, metricsReg)
	case "worker":
		return runWorker(ctx, cfg, logger, db, rdb)
	case "seed":
		return seed.Run(ctx, db, logger)
	default:
		return fmt.Errorf("unknown mode: %s", cfg.Mode)
	}
}

// newGateways constructs the three external gateways shared by both
// runtime modes.
func newGateways(ctx context.Context, cfg *config.Config) (*objectstore.Gateway, *queue.Gateway, *vectorstore.Gateway, error) {
	objectStore, err := objectstore.New(ctx, objectstore.Config{
		Bucket:               cfg.ObjectStoreBucket,
		Region:               cfg.ObjectStoreRegion,
		Endpoint:             cfg.ObjectStoreEndpoint,
		AccessKeyID:          cfg.ObjectStoreAccessKeyID,
		SecretAccessKey:      cfg.ObjectStoreSecretAccessKey,
		PresignedURLLifetime: time.Duration(cfg.PresignedURLLifetimeSeconds) * time.Second,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("creating object store gateway: %w", err)
	}

	q, err := queue.New(ctx, queue.Config{
		QueueURL: cfg.QueueURL,
		Endpoint: cfg.QueueEndpoint,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("creating queue gateway: %w", err)
	}

	vs, err := vectorstore.New(vectorstore.Config{
		URL:            cfg.VectorStoreURL,
		APIKey:         cfg.VectorStoreAPIKey,
		ModelDimension: cfg.ModelDimension,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("creating vector store gateway: %w", err)
	}

	return objectStore, q, vs, nil
}

func runAPI(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client, metricsReg *prometheus.Registry) error {
	objectStore, q, vs, err := newGateways(ctx, cfg)
	if err != nil {
		return err
	}

	store := ledger.New(db)

	keyMgr := authtoken.NewManager(db)
	if err := keyMgr.Init(ctx); err != nil {
		return fmt.Errorf("initializing encryption key manager: %w", err)
	}
	authenticator := authtoken.NewAuthenticator(db, keyMgr)

	auditWriter := audit.NewWriter(db, logger)
	auditWriter.Start(ctx)
	defer auditWriter.Close()

	poolEngine := pool.New(pool.Config{
		MinPoolSize:              cfg.MinPoolSize,
		MaxPoolSize:              cfg.MaxPoolSize,
		TimeThreshold:            time.Duration(cfg.TimeThresholdMinutes) * time.Minute,
		MaxConcurrentProvisioner: cfg.MaxConcurrentProvisioner,
	}, store, vs, rdb, logger)
	go func() {
		if err := poolEngine.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("pool engine stopped", "error", err)
		}
	}()

	srv := httpserver.NewServer(cfg, logger, db, rdb, objectStore, q, vs, metricsReg)

	// Mounted under a fresh sub-router so Authenticate can be registered
	// before any route — APIRouter itself already carries the unauthenticated
	// /ping route from NewServer, and chi forbids adding middleware after
	// routes exist on a mux.
	authed := chi.NewRouter()
	authed.Use(httpserver.Authenticate(authenticator))

	documentService := document.New(store, objectStore)
	documentHandler := document.NewHandler(documentService, auditWriter, logger)
	authed.Mount("/documents", documentHandler.Routes())

	knowledgeBaseService := knowledgebase.New(store, poolEngine)
	knowledgeBaseHandler := knowledgebase.NewHandler(knowledgeBaseService, auditWriter, logger)
	authed.Mount("/knowledge-bases", knowledgeBaseHandler.Routes())

	ingestionService := ingestion.New(store, q)
	ingestionHandler := ingestion.NewHandler(ingestionService, auditWriter, logger)
	authed.Mount("/knowledge-bases/{kb_id}/documents", ingestionHandler.Routes())

	poolStatsService := poolstats.New(store, time.Duration(cfg.TimeThresholdMinutes)*time.Minute)
	poolStatsHandler := poolstats.NewHandler(poolStatsService, logger)
	authed.Mount("/pool-stats", poolStatsHandler.Routes())

	auditHandler := audit.NewHandler(db, logger)
	authed.Mount("/audit-log", auditHandler.Routes())

	srv.APIRouter.Mount("/", authed)

	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      srv,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func runWorker(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client) error {
	objectStore, q, vs, err := newGateways(ctx, cfg)
	if err != nil {
		return err
	}

	store := ledger.New(db)

	embedder, err := embeddings.New(embeddings.Config{
		APIKey:         cfg.OpenAIAPIKey,
		Model:          cfg.EmbeddingsModel,
		ModelDimension: cfg.ModelDimension,
	})
	if err != nil {
		return fmt.Errorf("creating embeddings provider: %w", err)
	}

	ch := chunker.New(chunker.DefaultConfig(), embedder)
	loaders := loader.NewRegistry()

	worker := ingestworker.New(ingestworker.Config{
		MaxConcurrentFiles: int64(cfg.MaxConcurrentProvisioner),
		TempDir:            "",
	}, q, objectStore, loaders, ch, embedder, vs, store, logger)

	reap := reaper.New(store, objectStore, logger)

	poolEngine := pool.New(pool.Config{
		MinPoolSize:              cfg.MinPoolSize,
		MaxPoolSize:              cfg.MaxPoolSize,
		TimeThreshold:            time.Duration(cfg.TimeThresholdMinutes) * time.Minute,
		MaxConcurrentProvisioner: cfg.MaxConcurrentProvisioner,
	}, store, vs, rdb, logger)

	errCh := make(chan error, 3)
	go func() { errCh <- worker.Run(ctx) }()
	go func() { errCh <- reap.Run(ctx) }()
	go func() { errCh <- poolEngine.Run(ctx) }()

	logger.Info("worker started")

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	}
}
