package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/pulsefeed/pulse/internal/api"
	"github.com/pulsefeed/pulse/internal/auth"
	"github.com/pulsefeed/pulse/internal/cache"
	"github.com/pulsefeed/pulse/internal/db"
	"github.com/pulsefeed/pulse/internal/engage"
	"github.com/pulsefeed/pulse/internal/jobs"
	"github.com/pulsefeed/pulse/pkg/config"
	"github.com/pulsefeed/pulse/pkg/logging"
	"github.com/pulsefeed/pulse/pkg/telemetry"
)

func main() {
	// Load .env file if present
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	if err := logging.InitLogger(&cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logging.GetLogger().Sync()

	logger := logging.GetLogger()
	logger.Info("Starting Pulse API Server")

	// Initialize telemetry
	telemetryShutdown, err := telemetry.Init(&cfg.Telemetry)
	if err != nil {
		logger.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	defer telemetryShutdown()

	// Store of record
	database, err := db.New(&cfg.Database, cfg.Logging.Level)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close()

	if err := database.Migrate(); err != nil {
		logger.Fatal("Failed to migrate database", zap.Error(err))
	}

	// Engagement-counter cache
	cacheStore, err := cache.New(&cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer cacheStore.Close()

	// Wire services
	repo := db.NewRepository(database.DB)
	postRepo := db.NewPostRepository(repo)
	voteRepo := db.NewVoteRepository(repo)
	userRepo := db.NewUserRepository(repo)

	assembler := engage.NewAssembler(postRepo, voteRepo)
	postService := engage.NewService(cacheStore, assembler, postRepo, cfg.Cache.TTL)
	toggleEngine := engage.NewEngine(cacheStore, assembler, voteRepo, cfg.Cache.TTL)
	tokens := auth.NewManager(&cfg.Auth)

	// Background jobs
	jobCtx, cancelJobs := context.WithCancel(context.Background())
	defer cancelJobs()

	scheduler := jobs.NewTickerScheduler()
	reconciler := jobs.NewReconciler(cacheStore, voteRepo)
	recovery := jobs.NewRecoveryMonitor(cacheStore, cfg.Cache.FlushMaxRetries, cfg.Cache.FlushBackoff)

	go scheduler.RunEvery(jobCtx, "reconcile", cfg.Cache.ReconcileInterval, reconciler.Run)
	go scheduler.RunEvery(jobCtx, "cache-recovery", cfg.Cache.RecoveryProbeInterval, recovery.Probe)

	// Create Gin router
	if cfg.Logging.Level == "DEBUG" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	apiRouter := api.NewRouter(postService, toggleEngine, userRepo, tokens)
	apiRouter.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		logger.Info("Server starting", zap.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	cancelJobs()

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
