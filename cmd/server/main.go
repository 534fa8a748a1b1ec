// Package main is the entrypoint for the RankPulse API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rankpulse/rankpulse/internal/api"
	"github.com/rankpulse/rankpulse/internal/api/handler"
	mw "github.com/rankpulse/rankpulse/internal/api/middleware"
	"github.com/rankpulse/rankpulse/internal/cache"
	"github.com/rankpulse/rankpulse/internal/config"
	"github.com/rankpulse/rankpulse/internal/google"
	"github.com/rankpulse/rankpulse/internal/ingest"
	"github.com/rankpulse/rankpulse/internal/jobs"
	"github.com/rankpulse/rankpulse/internal/keywords"
	"github.com/rankpulse/rankpulse/internal/store"
	"github.com/rankpulse/rankpulse/pkg/retry"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config — fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "site_url", cfg.Google.SiteURL, "env", cfg.Server.Env,
		"ads_configured", cfg.Google.AdsConfigured())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Create store and Google clients
	pgStore := store.NewPostgresStore(pool, store.WithChunkSize(cfg.Sync.ChunkSize))

	tokens := google.NewTokenSource(ctx, cfg.Google)
	gsc := google.NewSearchConsoleClient(google.DefaultSearchConsoleEndpoint, tokens,
		retry.Policy{
			Retries:   cfg.Sync.Retries,
			BaseDelay: cfg.Sync.BaseDelay,
			Notify:    notifyRetry("search console"),
		},
		cfg.Google.Timeout)

	// 6. Build the job machinery
	registry := jobs.NewMemoryRegistry()
	ingestor := ingest.New(gsc, pgStore)

	keywordsDefaults := handler.KeywordsDefaults{
		Configured: cfg.Google.AdsConfigured(),
		WorkerBin:  cfg.Keywords.WorkerBin,
		Options: keywords.Options{
			PerLocationLimit: cfg.Keywords.PerLocationLimit,
			OverallLimit:     cfg.Keywords.OverallLimit,
			Delay:            cfg.Keywords.Delay,
			Brand:            cfg.Keywords.Brand,
			SaveIdeas:        true,
			UpdateServices:   true,
		},
	}
	var orchestrator handler.KeywordsRunner
	if keywordsDefaults.Configured {
		ads := google.NewAdsClient(google.DefaultAdsEndpoint, tokens,
			retry.Policy{
				Retries:   cfg.Keywords.Retries,
				BaseDelay: cfg.Keywords.BaseDelay,
				Notify:    notifyRetry("google ads"),
			},
			cfg.Google)
		geo := keywords.NewGeoResolver(ads, redisCache, cfg.Google.CountryCode)
		orchestrator = keywords.New(pgStore, ads, geo)
	}

	// 7. Build router with dependencies
	auth := mw.NewAuth(pgStore)
	rateLimit := mw.NewRateLimit(redisCache, 60)

	deps := api.Dependencies{
		Auth:      auth,
		RateLimit: rateLimit,

		HealthHandler: handler.NewHealthHandler(pgStore, redisCache),
		SyncHandler: handler.NewSyncHandler(ingestor, registry, redisCache, handler.SyncDefaults{
			SiteURL:  cfg.Google.SiteURL,
			Days:     cfg.Sync.Days,
			Country:  cfg.Sync.Country,
			RowLimit: cfg.Sync.RowLimit,
			DayDelay: cfg.Sync.DayDelay,
		}),
		KeywordsHandler:  handler.NewKeywordsHandler(orchestrator, registry, redisCache, keywordsDefaults),
		JobHandler:       handler.NewJobHandler(registry, redisCache),
		StreamHandler:    handler.NewStreamHandler(registry),
		SitesHandler:     handler.NewSitesHandler(gsc),
		CreateKeyHandler: handler.NewCreateKeyHandler(pgStore),
	}

	router := api.NewRouter(deps)

	// 8. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:        addr,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// No write timeout: SSE streams stay open as long as the job runs.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

func notifyRetry(api string) func(attempt, retries int, delay time.Duration, err error) {
	return func(attempt, retries int, delay time.Duration, err error) {
		slog.Warn("retrying upstream call",
			"api", api,
			"attempt", attempt,
			"retries", retries,
			"delay", delay.Round(time.Millisecond).String(),
			"error", err,
		)
	}
}
