package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/pulsefeed/pulse/internal/cache"
	"github.com/pulsefeed/pulse/internal/db"
	"github.com/pulsefeed/pulse/internal/jobs"
	"github.com/pulsefeed/pulse/pkg/config"
	"github.com/pulsefeed/pulse/pkg/logging"
	"github.com/pulsefeed/pulse/pkg/telemetry"
)

// Standalone job runner for deployments that keep reconciliation and
// cache recovery out of the API process.
func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := logging.InitLogger(&cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logging.GetLogger().Sync()

	logger := logging.GetLogger()
	logger.Info("Starting Pulse Reconciler")

	telemetryShutdown, err := telemetry.Init(&cfg.Telemetry)
	if err != nil {
		logger.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	defer telemetryShutdown()

	database, err := db.New(&cfg.Database, cfg.Logging.Level)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close()

	cacheStore, err := cache.New(&cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer cacheStore.Close()

	repo := db.NewRepository(database.DB)
	voteRepo := db.NewVoteRepository(repo)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	scheduler := jobs.NewTickerScheduler()
	reconciler := jobs.NewReconciler(cacheStore, voteRepo)
	recovery := jobs.NewRecoveryMonitor(cacheStore, cfg.Cache.FlushMaxRetries, cfg.Cache.FlushBackoff)

	go scheduler.RunEvery(ctx, "reconcile", cfg.Cache.ReconcileInterval, reconciler.Run)
	go scheduler.RunEvery(ctx, "cache-recovery", cfg.Cache.RecoveryProbeInterval, recovery.Probe)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down reconciler...")
	cancel()
	logger.Info("Reconciler exited")
}
