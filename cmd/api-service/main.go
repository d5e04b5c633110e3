package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuongbtq/assessment-pipeline/internal/api/handler"
	"github.com/cuongbtq/assessment-pipeline/internal/api/router"
	"github.com/cuongbtq/assessment-pipeline/internal/bootstrap"
	"github.com/cuongbtq/assessment-pipeline/internal/config"
	"github.com/cuongbtq/assessment-pipeline/internal/worker"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	// Parse command-line flags
	defaultConfigPath := os.Getenv("API_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/api-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateAPIConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := bootstrap.NewLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()
	svcLogger := appLogger.WithAttrs(slog.String("service", "api-service"))

	svcLogger.Info("Starting API service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
		slog.String("storage_driver", cfg.Storage.Driver),
		slog.String("quota_driver", cfg.Quota.Driver),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	components, err := bootstrap.Build(ctx, cfg, svcLogger.Logger)
	if err != nil {
		return err
	}
	defer components.Close()

	// Embedded worker shares the in-process stores
	var embedded *worker.Worker
	workerErr := make(chan error, 1)
	if cfg.Worker.Embedded {
		embedded = components.NewWorker()
		go func() {
			if err := embedded.Start(ctx); err != nil {
				workerErr <- err
			}
		}()
	}

	r := initRouter(cfg, svcLogger.Logger, components)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	svcLogger.Info("Starting HTTP server",
		slog.String("address", addr),
		slog.Duration("read_timeout", cfg.Server.ReadTimeout),
		slog.Duration("write_timeout", cfg.Server.WriteTimeout),
		slog.Bool("embedded_worker", cfg.Worker.Embedded),
	)

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		svcLogger.Info("Shutting down server")
	case err := <-serverErr:
		svcLogger.Error("Server failed", slog.Any("error", err))
		runErr = err
	case err := <-workerErr:
		svcLogger.Error("Embedded worker failed", slog.Any("error", err))
		runErr = err
	}

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		svcLogger.Error("Server forced to shutdown", slog.Any("error", err))
		runErr = errors.Join(runErr, err)
	}

	if embedded != nil {
		stopWorker(shutdownCtx, embedded, svcLogger.Logger)
	}

	svcLogger.Info("Server shutdown complete")
	return runErr
}

// initRouter initializes the Gin router with all routes and middleware
func initRouter(cfg *config.Config, logger *slog.Logger, components *bootstrap.Components) *gin.Engine {
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	opts := router.Options{
		MetricsHandler: components.MetricsHandler(),
	}
	if cfg.RateLimit.Enabled {
		opts.RateLimiter = router.NewClientRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, cfg.RateLimit.IdleTTL)
	}

	return router.SetupRouter(&handler.Dependencies{
		Logger:       logger,
		Service:      components.NewService(),
		HealthChecks: components.HealthChecks,
	}, opts)
}

// stopWorker waits for in-flight jobs until ctx expires
func stopWorker(ctx context.Context, w *worker.Worker, logger *slog.Logger) {
	done := make(chan struct{})
	go func() {
		w.Stop()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("Worker stopped gracefully")
	case <-ctx.Done():
		logger.Warn("Worker shutdown timeout exceeded, forcing exit")
	}
}
