package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Aaditya1273/TrustGraphV7/internal/api"
	"github.com/Aaditya1273/TrustGraphV7/internal/cache"
	"github.com/Aaditya1273/TrustGraphV7/internal/config"
	"github.com/Aaditya1273/TrustGraphV7/internal/events"
	"github.com/Aaditya1273/TrustGraphV7/internal/ledger"
	"github.com/Aaditya1273/TrustGraphV7/internal/metrics"
	"github.com/Aaditya1273/TrustGraphV7/internal/store"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	db, err := store.Open(ctx, cfg.Database.Driver, cfg.Database.URL)
	if err != nil {
		logger.Error("failed to open database", "driver", cfg.Database.Driver, "error", err)
		os.Exit(1)
	}
	defer db.Close()
	logger.Info("connected to database", "driver", cfg.Database.Driver)

	// Events (optional)
	var eventsClient events.Client
	if cfg.NATS.URL != "" {
		nc, err := events.NewNATSClient(ctx, cfg.NATS.URL, logger)
		if err != nil {
			logger.Warn("failed to connect to nats, running without events", "error", err)
		} else {
			eventsClient = nc
			defer nc.Close()
			logger.Info("connected to nats")
		}
	}

	// Snapshot cache: Redis when configured, otherwise in-process
	var snapshotCache cache.SnapshotCache = cache.NewMemoryCache(cfg.RedisTTL())
	if cfg.Redis.URL != "" {
		rc, err := cache.NewRedisClient(ctx, cfg.Redis.URL)
		if err != nil {
			logger.Warn("failed to connect to redis, using in-process cache", "error", err)
		} else {
			snapshotCache = cache.NewRedisCache(rc, cfg.RedisTTL())
			defer rc.Close()
			logger.Info("connected to redis")
		}
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	// Ledger
	svc, err := ledger.New(ctx, db, eventsClient, snapshotCache, m, ledger.Config{
		Ranking:         cfg.RankingOptions(),
		Weights:         cfg.Scoring.Weights,
		MinHighTrust:    cfg.Stake.MinHighTrust,
		SlashingRate:    cfg.Stake.SlashingRate,
		SampleSize:      cfg.Scoring.SampleSize,
		RefreshInterval: cfg.RefreshInterval(),
	}, logger)
	if err != nil {
		logger.Error("failed to start ledger", "error", err)
		os.Exit(1)
	}
	svc.Start(ctx)
	defer svc.Stop()
	svc.SetupSubscriptions()
	logger.Info("ledger started",
		"damping_factor", cfg.Ranking.DampingFactor,
		"iterations", cfg.Ranking.Iterations,
		"refresh_interval", cfg.RefreshInterval(),
	)

	// API server
	apiServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: api.NewRouter(svc, cfg.Server.AdminToken, logger),
	}

	// Metrics server
	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.MetricsPort),
		Handler: api.NewMetricsRouter(),
	}

	go func() {
		logger.Info("API server starting", "port", cfg.Server.Port)
		if err := apiServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("API server error", "error", err)
		}
	}()

	go func() {
		logger.Info("metrics server starting", "port", cfg.Server.MetricsPort)
		if err := metricsServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	_ = apiServer.Shutdown(shutdownCtx)
	_ = metricsServer.Shutdown(shutdownCtx)

	logger.Info("shutdown complete")
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
