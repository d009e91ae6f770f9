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

	"github.com/textsql/textsql/internal/api"
	"github.com/textsql/textsql/internal/auth"
	catalogpostgres "github.com/textsql/textsql/internal/catalog/postgres"
	"github.com/textsql/textsql/internal/config"
	"github.com/textsql/textsql/internal/dataset"
	"github.com/textsql/textsql/internal/dataset/duckdb"
	"github.com/textsql/textsql/internal/nl2sql"
	"github.com/textsql/textsql/internal/observability"
	"github.com/textsql/textsql/internal/pipeline"
	"github.com/textsql/textsql/internal/query/sqlite"
	"github.com/textsql/textsql/internal/storage"
	s3store "github.com/textsql/textsql/internal/storage/s3"
)

func main() {
	cfg, err := config.LoadFromEnv("textsql-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	catalogDB, err := catalogpostgres.Open(context.Background(), cfg.Catalog)
	if err != nil {
		logger.Error("failed to open catalog db", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = catalogDB.Close() }()
	catalogRepo := catalogpostgres.NewRepository(catalogDB)

	issuer, err := auth.NewTokenIssuer(cfg.Auth.Secret, cfg.Auth.TokenTTL)
	if err != nil {
		logger.Error("failed to initialize token issuer", slog.Any("error", err))
		os.Exit(1)
	}
	var provider auth.ProviderVerifier
	if cfg.Auth.ProviderStub {
		logger.Warn("stub identity provider enabled; /api/auth/google accepts any token")
		provider = auth.StubVerifier{}
	}
	authService, err := auth.NewService(auth.ServiceOptions{
		Users:    catalogRepo,
		Tokens:   issuer,
		Provider: provider,
		Logger:   logger,
	})
	if err != nil {
		logger.Error("failed to initialize auth service", slog.Any("error", err))
		os.Exit(1)
	}
	if created, err := authService.EnsureDemoUser(context.Background(), cfg.Auth.Demo); err != nil {
		logger.Error("failed to ensure demo user", slog.Any("error", err))
		os.Exit(1)
	} else if created {
		logger.Info("demo user created", slog.String("username", cfg.Auth.Demo.Username))
	}

	if cfg.Store.SeedSample {
		seeded, err := sqlite.EnsureSample(context.Background(), cfg.Store.DefaultPath)
		if err != nil {
			logger.Error("failed to seed default store", slog.String("path", cfg.Store.DefaultPath), slog.Any("error", err))
			os.Exit(1)
		}
		if seeded {
			logger.Info("default store seeded with sample data", slog.String("path", cfg.Store.DefaultPath))
		}
	}

	model, err := nl2sql.NewModel(cfg.AI, logger)
	if err != nil {
		logger.Error("failed to initialize model client", slog.Any("error", err))
		os.Exit(1)
	}

	introspector := sqlite.Introspector{}
	questions, err := pipeline.New(pipeline.Options{
		Introspector: introspector,
		Translator:   model,
		Explainer:    model,
		Executor: sqlite.NewExecutor(sqlite.ExecutorOptions{
			ReadOnly:          cfg.Store.ReadOnly,
			AllowedStatements: cfg.Store.AllowedStatements,
			Logger:            logger,
		}),
		Logger: logger,
	})
	if err != nil {
		logger.Error("failed to initialize pipeline", slog.Any("error", err))
		os.Exit(1)
	}

	var archive storage.Archive
	if cfg.ObjectStore.Enabled {
		objectStore, err := s3store.New(context.Background(), cfg.ObjectStore)
		if err != nil {
			logger.Error("failed to initialize upload archive", slog.Any("error", err))
			os.Exit(1)
		}
		archive = objectStore
	}
	datasets, err := dataset.NewService(dataset.Options{
		MaxBytes: cfg.Upload.MaxBytes,
		Importer: duckdb.NewImporter(logger),
		Archive:  archive,
		Logger:   logger,
	})
	if err != nil {
		logger.Error("failed to initialize dataset service", slog.Any("error", err))
		os.Exit(1)
	}

	deps := api.Dependencies{
		Logger:          logger,
		Auth:            authService,
		ProviderEnabled: authService.ProviderEnabled(),
		Catalog:         catalogRepo,
		Questions:       questions,
		Introspector:    introspector,
		Probe:           sqlite.Probe,
		Model:           model,
		Datasets:        datasets,
		Readiness: api.CombineReadinessChecks(
			catalogRepo.HealthCheck,
			func(ctx context.Context) error { return sqlite.Probe(ctx, cfg.Store.DefaultPath) },
		),
		DependencyTimeout: time.Second,
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server",
			slog.String("addr", cfg.HTTP.Address),
			slog.Bool("ai_enabled", cfg.AI.Enabled()),
			slog.Bool("archive_enabled", datasets.ArchiveEnabled()),
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
}
