package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/askdb/askdb/internal/api"
	"github.com/askdb/askdb/internal/api/uistatic"
	"github.com/askdb/askdb/internal/archive"
	"github.com/askdb/askdb/internal/assistant"
	"github.com/askdb/askdb/internal/config"
	"github.com/askdb/askdb/internal/database"
	"github.com/askdb/askdb/internal/history"
	"github.com/askdb/askdb/internal/llm"
	"github.com/askdb/askdb/internal/nl2sql"
	"github.com/askdb/askdb/internal/observability"
	"github.com/askdb/askdb/internal/query/sqldb"
	"github.com/askdb/askdb/internal/samples"
	"github.com/askdb/askdb/internal/schema"
	s3store "github.com/askdb/askdb/internal/storage/s3"
)

func main() {
	cfg, err := config.LoadFromEnv("askdb-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	handle, err := database.Open(ctx, database.DBConfig{
		Driver:          cfg.Database.Driver,
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		logger.Error("failed to open database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = handle.Close() }()

	model, err := llm.New(ctx, cfg.AI)
	if err != nil {
		logger.Error("failed to initialize model client", slog.Any("error", err))
		os.Exit(1)
	}

	catalog, err := samples.Load(cfg.UI.SamplesFile)
	if err != nil {
		logger.Error("failed to load sample questions", slog.Any("error", err))
		os.Exit(1)
	}

	deps := assistant.Dependencies{
		Database: handle,
		Schema: schema.NewDescriber(handle, schema.Options{
			Schema:        cfg.Database.Schema,
			IncludeTables: cfg.Database.IncludeTables,
			SampleRows:    cfg.Database.SampleRows,
		}),
		Generator: nl2sql.NewGenerator(model, handle.Dialect.DisplayName()),
		Executor:  sqldb.NewEngine(handle.DB, cfg.Database.MaxRows),
		Model:     model,
		Logger:    logger,
		ReadOnly:  cfg.Guard.ReadOnly,
	}

	archiveDone := make(chan struct{})
	var archiveStore api.Pinger
	if cfg.Archive.Enabled {
		store, err := s3store.New(ctx, s3store.Config{
			Endpoint:         cfg.ObjectStore.Endpoint,
			Region:           cfg.ObjectStore.Region,
			Bucket:           cfg.ObjectStore.Bucket,
			AccessKeyID:      cfg.ObjectStore.AccessKeyID,
			SecretAccessKey:  cfg.ObjectStore.SecretAccessKey,
			UseSSL:           cfg.ObjectStore.UseSSL,
			Prefix:           cfg.ObjectStore.Prefix,
			AutoCreateBucket: cfg.ObjectStore.AutoCreateBucket,
		})
		if err != nil {
			logger.Error("failed to initialize object store", slog.Any("error", err))
			os.Exit(1)
		}
		archiver, err := archive.New(store, archive.Config{
			BatchSize:     cfg.Archive.BatchSize,
			FlushInterval: cfg.Archive.FlushInterval,
		}, logger)
		if err != nil {
			logger.Error("failed to initialize transcript archive", slog.Any("error", err))
			os.Exit(1)
		}
		deps.Sink = archiver
		archiveStore = store
		go func() {
			defer close(archiveDone)
			logger.Info("starting transcript archive", slog.String("location", store.Location()))
			_ = archiver.Run(ctx)
		}()
	} else {
		close(archiveDone)
	}

	core, err := assistant.New(ctx, deps)
	if err != nil {
		logger.Error("failed to initialize assistant", slog.Any("error", err))
		os.Exit(1)
	}

	handler := api.NewHandler(cfg, api.Dependencies{
		Logger:    logger,
		Assistant: core,
		History:   history.New(cfg.UI.HistoryLimit),
		Samples:   catalog,
		UI:        uistatic.Handler(),
		Readiness: api.CombineReadinessChecks(
			api.CheckDatabase(handle),
			api.CheckModelConfigured(cfg),
			api.CheckArchive(archiveStore),
		),
		DependencyTimeout: time.Second,
	})
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	go func() {
		logger.Info("starting api server",
			slog.String("addr", cfg.HTTP.Address),
			slog.String("model", model.Info().Model),
			slog.Bool("read_only", cfg.Guard.ReadOnly),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
	<-archiveDone
}
