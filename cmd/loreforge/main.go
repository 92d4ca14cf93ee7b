// Package main is the entry point for the loreforge server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/loreforge/loreforge/internal/config"
	"github.com/loreforge/loreforge/internal/crypto"
	"github.com/loreforge/loreforge/internal/database"
	"github.com/loreforge/loreforge/internal/events"
	"github.com/loreforge/loreforge/internal/http/handlers"
	"github.com/loreforge/loreforge/internal/http/routes"
	"github.com/loreforge/loreforge/internal/llm"
	"github.com/loreforge/loreforge/internal/logging"
	"github.com/loreforge/loreforge/internal/pipeline"
	"github.com/loreforge/loreforge/internal/ratelimit"
	"github.com/loreforge/loreforge/internal/repository"
	"github.com/loreforge/loreforge/internal/scraper"
	"github.com/loreforge/loreforge/internal/version"
	"github.com/loreforge/loreforge/internal/worker"
)

func main() {
	logger := logging.SetDefault()

	v := version.Get()
	logger.Info("starting loreforge",
		"version", v.Version,
		"commit", v.Commit,
		"built", v.Date,
		"go_version", v.GoVersion,
	)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	db, err := database.New(cfg.DatabaseURL, database.Options{
		MaxOpenConns: cfg.DBMaxOpen,
		MaxIdleConns: cfg.DBMaxIdle,
	})
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := database.MigrateWithLogger(db, logger); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	schemaVersion, err := database.GetLatestSchemaVersion(db)
	if err != nil {
		logger.Warn("failed to get schema version", "error", err)
	} else if schemaVersion != "" {
		migrationCount, _ := database.GetMigrationCount(db)
		logger.Info("database schema ready", "schema_version", schemaVersion, "migrations_applied", migrationCount)
	}

	repos := repository.NewRepositories(db)

	// Crash recovery: jobs that were running (or mid-cancel) when the
	// previous process died go back to pending, and their links with them.
	resetJobs, err := repos.Job.ResetInProgress(context.Background())
	if err != nil {
		logger.Warn("failed to reset interrupted jobs", "error", err)
	} else if resetJobs > 0 {
		logger.Info("requeued interrupted jobs", "count", resetJobs)
	}
	resetLinks, err := repos.Link.ResetProcessing(context.Background(), "")
	if err != nil {
		logger.Warn("failed to reset processing links", "error", err)
	} else if resetLinks > 0 {
		logger.Info("reverted processing links", "count", resetLinks)
	}

	encryptor, err := crypto.NewEncryptor(cfg.EncryptionKey)
	if err != nil {
		logger.Error("failed to initialize encryptor", "error", err)
		os.Exit(1)
	}

	registry := llm.InitRegistry(cfg.ProviderTimeout, cfg.ProviderSlowTimeout)
	broadcaster := events.NewBroadcaster(logger)
	limiter := ratelimit.NewLimiter()
	pageScraper := scraper.New(cfg.ScrapeTimeout)

	pipe := pipeline.New(
		repos,
		registry,
		pageScraper,
		limiter,
		broadcaster,
		encryptor,
		pipeline.Config{
			EntryBatchSize:   cfg.EntryBatchSize,
			EntryConcurrency: int64(cfg.EntryConcurrency),
		},
		logger,
	)

	jobWorker := worker.New(repos.Job, broadcaster, worker.Config{
		PollInterval:       cfg.WorkerPollInterval,
		CancelPollInterval: cfg.CancelPollInterval,
	}, logger)
	pipe.RegisterHandlers(jobWorker)

	ctx, cancel := context.WithCancel(context.Background())
	jobWorker.Start(ctx)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Link", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	router.Use(httprate.LimitByIP(300, time.Minute))

	humaConfig := huma.DefaultConfig("Loreforge API", v.Version)
	humaConfig.Info.Description = "Generates lorebooks and character cards from web sources with an LLM pipeline."
	api := humachi.New(router, humaConfig)

	h := handlers.New(repos, registry, broadcaster, encryptor, cfg.AppVersion, cfg.RuntimeEnv, logger)
	routes.Register(api, h)
	routes.RegisterRaw(router, h)

	server := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Port),
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
		<-sigChan

		logger.Info("shutting down server")

		cancel()
		jobWorker.Stop()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", "error", err)
		}
	}()

	logger.Info("starting server", "port", cfg.Port, "env", cfg.AppEnv)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
