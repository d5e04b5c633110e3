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

	"github.com/cuongbtq/assessment-pipeline/internal/bootstrap"
	"github.com/cuongbtq/assessment-pipeline/internal/config"
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
	defaultConfigPath := os.Getenv("WORKER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/worker-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := bootstrap.NewLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()
	svcLogger := appLogger.WithAttrs(slog.String("service", "worker-service"))

	svcLogger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	components, err := bootstrap.Build(ctx, cfg, svcLogger.Logger)
	if err != nil {
		return err
	}
	defer components.Close()

	metricsSrv := startMetricsServer(cfg, components, svcLogger.Logger)

	workerInstance := components.NewWorker()

	// Start worker in a goroutine
	errChan := make(chan error, 1)
	go func() {
		if err := workerInstance.Start(ctx); err != nil {
			errChan <- err
		}
	}()

	svcLogger.Info("Worker service started successfully",
		slog.Int("concurrency", cfg.Worker.Concurrency),
		slog.Duration("poll_interval", cfg.Worker.PollInterval),
	)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-quit:
		svcLogger.Info("Received signal, shutting down gracefully",
			slog.String("signal", sig.String()),
		)
	case err := <-errChan:
		svcLogger.Error("Worker error",
			slog.Any("error", err),
		)
		runErr = err
	}

	// Cancel context to stop claiming new jobs
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownTimeout)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		workerInstance.Stop()
		close(done)
	}()

	select {
	case <-done:
		svcLogger.Info("Worker stopped gracefully")
	case <-shutdownCtx.Done():
		svcLogger.Warn("Worker shutdown timeout exceeded, forcing exit")
	}

	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			svcLogger.Error("Metrics server forced to shutdown", slog.Any("error", err))
		}
	}

	svcLogger.Info("Worker service shutdown complete")
	return runErr
}

// startMetricsServer serves Prometheus metrics on a dedicated port
func startMetricsServer(cfg *config.Config, components *bootstrap.Components, logger *slog.Logger) *http.Server {
	h := components.MetricsHandler()
	if h == nil {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(cfg.Metrics.Path, h)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", slog.Any("error", err))
		}
	}()

	logger.Info("Serving metrics",
		slog.String("address", srv.Addr),
		slog.String("path", cfg.Metrics.Path),
	)
	return srv
}
