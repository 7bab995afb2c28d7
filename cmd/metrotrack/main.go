package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"metrotrack/internal/cache"
	"metrotrack/internal/config"
	"metrotrack/internal/handler"
	"metrotrack/internal/hub"
	"metrotrack/internal/realtime"
	"metrotrack/internal/server"
	"metrotrack/internal/sighting"
	"metrotrack/internal/storage"
	"metrotrack/internal/tracking"
	"metrotrack/internal/transit"
)

func main() {
	cfg := config.Load()

	// CLI flags
	configPath := flag.String("config", os.Getenv("METROTRACK_CONFIG"), "YAML config file overlaid on the environment")
	flag.IntVar(&cfg.Port, "port", cfg.Port, "HTTP server port")
	flag.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database path")
	flag.Parse()

	if *configPath != "" {
		if err := cfg.LoadFile(*configPath); err != nil {
			slog.Error("failed to load config", "path", *configPath, "error", err)
			os.Exit(1)
		}
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}
	logger := cfg.Logger()

	// Cancelled on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := storage.Open(cfg.DBPath, logger)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if !db.HasData(ctx) {
		logger.Warn("catalog is empty, routing will fail until stations are loaded", "db", cfg.DBPath)
	}

	wsHub := hub.New(logger)
	go wsHub.Run(ctx)

	tracker := tracking.New(tracking.Options{
		Retention:       cfg.Tracking.ReportRetention,
		StaleAfter:      cfg.Tracking.StaleAfter,
		SpeedRetention:  cfg.Tracking.SpeedRetention,
		CleanupInterval: cfg.Tracking.CleanupInterval,
		Broadcaster:     wsHub,
	}, logger)
	go tracker.Run(ctx)

	// Route cache: Redis when shared across instances, otherwise in-process.
	var routeCache transit.ResultCache
	if cfg.Redis.Enabled {
		rc, err := cache.NewRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Routing.CacheTTL, logger)
		if err != nil {
			logger.Error("failed to connect to redis", "addr", cfg.Redis.Addr, "error", err)
			os.Exit(1)
		}
		defer rc.Close()
		routeCache = rc
	} else {
		mc := cache.NewMemory(cfg.Routing.CacheTTL)
		go mc.Run(ctx, time.Minute)
		routeCache = mc
	}

	penalty := time.Duration(cfg.Routing.TransferPenaltySeconds) * time.Second
	router := transit.NewRouter(db, routeCache, penalty, logger)
	estimator := sighting.NewEstimator(db, db, logger)

	var feedStats *realtime.Stats
	if cfg.Feed.VehiclePositionsURL != "" {
		feedStats = realtime.NewStats()
		fetcher := realtime.NewFetcher(cfg.Feed.VehiclePositionsURL, cfg.Feed.CityID,
			cfg.Feed.PollInterval, tracker, feedStats, logger)
		go fetcher.Start(ctx)
	}

	h := handler.New(db, router, tracker, estimator, wsHub, feedStats, cfg, logger)
	srv := server.New(cfg, h, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", "error", err)
		}
	}
}
