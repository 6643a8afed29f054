package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/neexbeast/flight-explorer/internal/api"
	"github.com/neexbeast/flight-explorer/internal/cache"
	"github.com/neexbeast/flight-explorer/internal/config"
	"github.com/neexbeast/flight-explorer/internal/explore"
	"github.com/neexbeast/flight-explorer/internal/metrics"
	"github.com/neexbeast/flight-explorer/internal/orchestrator"
	"github.com/neexbeast/flight-explorer/internal/skypicker"
	"github.com/neexbeast/flight-explorer/internal/storage"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	if err := run(log); err != nil {
		log.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx := context.Background()

	// Connect to PostgreSQL.
	pool, err := storage.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	applied, err := storage.RunMigrations(ctx, pool, cfg.MigrationsDir)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	log.Info("migrations applied", "applied", applied)

	// Connect to Redis.
	redisClient, err := cache.Connect(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer func() { _ = redisClient.Close() }()

	// Wire dependencies.
	m := metrics.New()
	repo := storage.NewRepository(pool)
	locations := skypicker.NewLocationsClientWithURL(cfg.BaseURL, log)
	images := cache.NewImageCache(redisClient, locations, cfg.ImageCacheTTL, log).WithObserver(m.ObserveImageLookup)

	orch := orchestrator.New(orchestrator.Deps{
		Searcher:   skypicker.NewSearchClientWithURL(cfg.BaseURL),
		Discoverer: locations,
		Images:     images,
		Flights:    repo,
		Explorer:   explore.NewTracker(repo),
		Airports:   repo,
		Metrics:    m,
	}, orchestrator.Config{
		Origin:        cfg.Origin,
		Timeout:       cfg.SearchTimeout,
		BatchSize:     cfg.BatchSize,
		FallbackTerm:  cfg.FallbackTerm,
		FallbackLimit: cfg.FallbackLimit,
	}, log)
	defer orch.Wait()

	handlers := api.NewHandlers(orch, orchestrator.NewFavorites(repo), repo, log)
	router := api.NewRouter(handlers, cfg.BearerToken, pool, cache.Pinger{Client: redisClient}, m.Handler(), log)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Initial load, like the first screen of the app.
	orch.Refresh(ctx)

	// Graceful shutdown on SIGINT / SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error("server goroutine panicked", "recover", r)
				errCh <- fmt.Errorf("server panicked: %v", r)
			}
		}()
		log.Info("server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("listening: %w", err)
		}
	}()

	select {
	case sig := <-quit:
		log.Info("shutdown signal received", "signal", sig)
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}

	log.Info("server shut down cleanly")
	return nil
}
