package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/minio/minio-go/v7"

	"github.com/parcelflow-labs/parcelflow-go/internal/lineage"
	"github.com/parcelflow-labs/parcelflow-go/internal/platform/env"
	"github.com/parcelflow-labs/parcelflow-go/internal/platform/httpserver"
	"github.com/parcelflow-labs/parcelflow-go/internal/platform/objectstore"
	"github.com/parcelflow-labs/parcelflow-go/internal/platform/postgres"
	"github.com/parcelflow-labs/parcelflow-go/internal/runner"
	"github.com/parcelflow-labs/parcelflow-go/internal/sink"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx := context.Background()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := env.String("PARCELFLOW_HTTP_ADDR", ":8080")
	definitionsDir := env.String("PARCELFLOW_DEFINITIONS_DIR", "definitions")
	shutdownTimeout, err := env.Duration("PARCELFLOW_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}

	dbCfg, err := postgres.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid database config", "error", err)
		os.Exit(2)
	}
	db, err := postgres.Open(ctx, dbCfg)
	if err != nil {
		logger.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	storeCfg, err := objectstore.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid object store config", "error", err)
		os.Exit(2)
	}
	storeClient, err := objectstore.NewMinIOClient(storeCfg)
	if err != nil {
		logger.Error("object store client init failed", "error", err)
		os.Exit(2)
	}
	startupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if err := objectstore.EnsureBuckets(startupCtx, storeClient, storeCfg); err != nil {
		cancel()
		logger.Error("object store unavailable", "error", err)
		os.Exit(1)
	}
	cancel()

	warehouse, err := sink.NewPostgres(db)
	if err != nil {
		logger.Error("warehouse sink init failed", "error", err)
		os.Exit(2)
	}
	schemaCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if err := warehouse.EnsureSchema(schemaCtx); err != nil {
		cancel()
		logger.Error("warehouse schema setup failed", "error", err)
		os.Exit(1)
	}
	if err := lineage.EnsureSchema(schemaCtx, db); err != nil {
		cancel()
		logger.Error("lineage schema setup failed", "error", err)
		os.Exit(1)
	}
	cancel()

	lake, err := sink.NewObjectStore(storeClient, storeCfg.BucketLake, "clean")
	if err != nil {
		logger.Error("lake sink init failed", "error", err)
		os.Exit(2)
	}
	outputs, err := sink.NewMulti(warehouse, lake)
	if err != nil {
		logger.Error("sink init failed", "error", err)
		os.Exit(2)
	}
	quarantine, err := sink.NewObjectQuarantine(storeClient, storeCfg.BucketQuarantine)
	if err != nil {
		logger.Error("quarantine init failed", "error", err)
		os.Exit(2)
	}

	batchRunner, err := runner.New(logger, outputs, runner.WithQuarantine(quarantine))
	if err != nil {
		logger.Error("runner init failed", "error", err)
		os.Exit(2)
	}

	steps, err := defaultStepCatalog()
	if err != nil {
		logger.Error("step catalog init failed", "error", err)
		os.Exit(2)
	}
	ruleCatalog, err := defaultRuleCatalog()
	if err != nil {
		logger.Error("rule catalog init failed", "error", err)
		os.Exit(2)
	}
	registry, err := defaultIndexRegistry()
	if err != nil {
		logger.Error("index registry init failed", "error", err)
		os.Exit(2)
	}

	pipelines, err := loadDefinitions(definitionsDir, steps, ruleCatalog, registry)
	if err != nil {
		logger.Error("invalid pipeline definitions", "dir", definitionsDir, "error", err)
		os.Exit(2)
	}
	for name := range pipelines {
		logger.Info("pipeline loaded", "pipeline", name)
	}

	fetch := func(ctx context.Context, key string) (io.ReadCloser, error) {
		return storeClient.GetObject(ctx, storeCfg.BucketLake, key, minio.GetObjectOptions{})
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", httpserver.Healthz("pipeline-runner"))
	mux.HandleFunc(
		"/readyz",
		httpserver.Readyz(
			"pipeline-runner",
			httpserver.ReadinessCheck{
				Name: "postgres",
				Check: func(ctx context.Context) error {
					checkCtx, cancel := context.WithTimeout(ctx, 750*time.Millisecond)
					defer cancel()
					return db.PingContext(checkCtx)
				},
			},
			httpserver.ReadinessCheck{
				Name: "minio",
				Check: func(ctx context.Context) error {
					checkCtx, cancel := context.WithTimeout(ctx, 750*time.Millisecond)
					defer cancel()
					return objectstore.CheckBuckets(checkCtx, storeClient, storeCfg)
				},
			},
		),
	)

	api := newPipelineAPI(logger, batchRunner, newPostgresRunStore(db), fetch, pipelines, storeCfg.BucketLake)
	api.register(mux)

	cfg := httpserver.Config{
		Service:         "pipeline-runner",
		Addr:            addr,
		ShutdownTimeout: shutdownTimeout,
	}

	if err := httpserver.Run(ctx, logger, cfg, httpserver.Wrap(logger, "pipeline-runner", mux)); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}
