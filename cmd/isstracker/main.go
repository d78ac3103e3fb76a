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

	"github.com/joho/godotenv"

	"github.com/arshansani/ISS-Tracker/internal/api"
	"github.com/arshansani/ISS-Tracker/internal/auth"
	"github.com/arshansani/ISS-Tracker/internal/config"
	"github.com/arshansani/ISS-Tracker/internal/geocode"
	"github.com/arshansani/ISS-Tracker/internal/metrics"
	"github.com/arshansani/ISS-Tracker/internal/observability"
	"github.com/arshansani/ISS-Tracker/internal/oem"
	"github.com/arshansani/ISS-Tracker/internal/query"
	"github.com/arshansani/ISS-Tracker/internal/stream"
)

func main() {
	// .env is optional; a missing file is not an error.
	_ = godotenv.Load()

	bootLogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := config.Load(bootLogger)
	if err != nil {
		bootLogger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), logger)
	if err != nil {
		logger.Error("tracing initialization failed", "error", err)
		os.Exit(1)
	}

	store := oem.NewStore()

	var snapshot *oem.Snapshot
	if cfg.SnapshotDir != "" {
		snapshot, err = oem.OpenSnapshot(cfg.SnapshotDir)
		if err != nil {
			logger.Warn("snapshot cache unavailable, continuing without it",
				"dir", cfg.SnapshotDir, "error", err)
			snapshot = nil
		}
	}

	fetcher := oem.NewFetcher(cfg.FeedURL, logger)
	refresher := oem.NewRefresher(fetcher, store, snapshot, oem.RefreshConfig{
		Interval:    cfg.RefreshInterval,
		FeedFile:    cfg.FeedFile,
		SnapshotTTL: cfg.SnapshotTTL,
	}, logger)

	// Load the first dataset: snapshot cache if fresh, otherwise fetch.
	// Startup continues without data; endpoints serve 503 until a
	// refresh succeeds.
	if err := refresher.Bootstrap(ctx); err != nil {
		logger.Warn("no ephemeris available at startup", "error", err)
	}

	var resolver geocode.Resolver = geocode.Noop{}
	if cfg.Geocoder == config.GeocoderNominatim {
		resolver = geocode.NewCached(geocode.NewNominatim("", logger), 0)
		logger.Info("reverse geocoding enabled", "backend", cfg.Geocoder)
	}

	svc := query.NewService(store)

	streamHandler := stream.NewHandler(svc, stream.Config{
		MaxConcurrentPerIP: cfg.StreamMaxPerIP,
		UpdateInterval:     cfg.StreamInterval,
		KeepaliveInterval:  30 * time.Second,
	}, logger)

	srv := api.NewServer(cfg.Addr(), auth.Config{Token: cfg.APIToken}, api.Deps{
		Logger:   logger,
		Query:    svc,
		Store:    store,
		Resolver: resolver,
		Stream:   streamHandler,
		Refresh:  refresher,
	})

	// Start the background refresh loop.
	go refresher.Run(ctx)

	// Background goroutine to update the dataset age gauge.
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if age := store.AgeSeconds(); age >= 0 {
					metrics.SetDatasetAge(age)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		logger.Info("starting server",
			"addr", cfg.Addr(),
			"auth_enabled", cfg.APIToken != "",
			"geocoder", cfg.Geocoder,
			"refresh_interval_seconds", cfg.RefreshInterval.Seconds(),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server listen error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.HTTPServer().Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	observability.ShutdownWithTimeout(context.Background(), shutdownTracing, logger)

	if snapshot != nil {
		if err := snapshot.Close(); err != nil {
			logger.Warn("snapshot close error", "error", err)
		}
	}

	logger.Info("server stopped")
}
