// Harrier - Real-time transaction risk scoring.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/opensource-finance/harrier/internal/api"
	"github.com/opensource-finance/harrier/internal/bus"
	"github.com/opensource-finance/harrier/internal/cache"
	"github.com/opensource-finance/harrier/internal/detector"
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/engine"
	"github.com/opensource-finance/harrier/internal/features"
	"github.com/opensource-finance/harrier/internal/history"
	"github.com/opensource-finance/harrier/internal/metrics"
	"github.com/opensource-finance/harrier/internal/policy"
	"github.com/opensource-finance/harrier/internal/repository"
	"github.com/opensource-finance/harrier/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	logLevel := slog.LevelInfo
	if os.Getenv("HARRIER_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("starting harrier",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	cfg := domain.DefaultConfig()
	if os.Getenv("HARRIER_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// History provider backed by storage, so detection sees prior activity
	// even when callers omit the historical slice.
	provider, err := history.NewStoreProvider(repo, cacheImpl)
	if err != nil {
		slog.Error("failed to initialize history provider", "error", err)
		os.Exit(1)
	}

	// Feature engineer
	engineer, err := features.NewEngineer(cfg.Detection, provider)
	if err != nil {
		slog.Error("failed to initialize feature engineer", "error", err)
		os.Exit(1)
	}

	// Policy engine, policies loaded from database
	policies, err := policy.NewEngine(100)
	if err != nil {
		slog.Error("failed to initialize policy engine", "error", err)
		os.Exit(1)
	}
	if err := loadPoliciesFromDatabase(ctx, repo, policies); err != nil {
		slog.Error("failed to load policies", "error", err)
		os.Exit(1)
	}
	slog.Info("policy engine initialized", "policies_count", policies.PoliciesCount())

	// Metrics
	stats := metrics.NewInMemory()

	// Detection engine with the three reference detectors
	det, err := engine.NewDetectionEngine(cfg.Detection, engineer,
		[]detector.Detector{
			detector.NewStatistical(cfg.Detection),
			detector.NewBehavioral(),
			detector.NewML(),
		},
		engine.WithPolicies(policies),
		engine.WithRecorder(stats),
		engine.WithLogger(logger),
	)
	if err != nil {
		slog.Error("failed to initialize detection engine", "error", err)
		os.Exit(1)
	}
	slog.Info("detection engine initialized",
		"detectors", det.Detectors(),
		"alert_threshold", det.AlertThreshold(),
	)

	// Async worker (Pro tier)
	var asyncWorker *worker.Worker
	if cfg.Tier == domain.TierPro || os.Getenv("HARRIER_ASYNC_WORKER") == "true" {
		asyncWorker = worker.NewWorker(busImpl, repo, det)

		var tenantIDs []string
		if envTenants := os.Getenv("HARRIER_TENANTS"); envTenants != "" {
			tenantIDs = strings.Split(envTenants, ",")
		}

		if err := asyncWorker.Start(worker.Config{TenantIDs: tenantIDs}); err != nil {
			slog.Error("failed to start async worker", "error", err)
		} else {
			slog.Info("async worker started", "tenant_count", len(tenantIDs))
		}
	}

	// HTTP server
	srv := api.NewServer(cfg.Server, repo, cacheImpl, busImpl, det, policies, stats, Version)

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("harrier is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	<-ctx.Done()
	slog.Info("shutting down...")

	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("harrier shutdown complete")
}

// loadPoliciesFromDatabase loads global override policies into the engine.
// Policies are configured via POST /policies - no hardcoded defaults.
func loadPoliciesFromDatabase(ctx context.Context, repo domain.Repository, policies *policy.Engine) error {
	stored, err := repo.ListPolicies(ctx, api.GlobalTenantID)
	if err != nil {
		slog.Warn("failed to list policies from database", "error", err)
		return nil // Start empty - policies can be added via API
	}

	if len(stored) > 0 {
		for _, cfg := range stored {
			if cfg.TenantID == api.GlobalTenantID {
				cfg.TenantID = ""
			}
		}
		slog.Info("loading policies from database", "count", len(stored))
		return policies.LoadPolicies(stored)
	}

	slog.Info("no policies in database - configure via POST /policies API")
	return nil
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║               🦅 HARRIER                  ║")
	fmt.Println("  ║      Transaction Risk Scoring Engine      ║")
	fmt.Println("  ║       Every transaction, scored.          ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /detect               - Score a transaction")
	fmt.Println("    POST /detect/batch         - Score a batch of transactions")
	fmt.Println("    GET  /detections/{id}      - Get detection by ID")
	fmt.Println("    GET  /transactions/{id}    - Get transaction by ID")
	fmt.Println("    GET  /alerts               - List alerts")
	fmt.Println("    POST /alerts/{id}/resolve  - Resolve an alert")
	fmt.Println("    GET  /policies             - List override policies")
	fmt.Println("    POST /policies             - Create an override policy")
	fmt.Println("    POST /policies/reload      - Hot-reload policies from database")
	fmt.Println("    GET  /metrics/stats        - Pipeline statistics")
	fmt.Println("    GET  /health               - Health check")
	fmt.Println()
}
