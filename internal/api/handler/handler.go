package handler

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/assessment-pipeline/internal/pipeline"
)

// HealthCheck reports whether a backing service is reachable
type HealthCheck func(ctx context.Context) error

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger       *slog.Logger
	Service      *pipeline.Service
	HealthChecks map[string]HealthCheck
}

// Handler serves the pipeline HTTP API
type Handler struct {
	logger       *slog.Logger
	service      *pipeline.Service
	healthChecks map[string]HealthCheck
}

// NewHandler creates a new Handler instance
func NewHandler(deps *Dependencies) *Handler {
	return &Handler{
		logger:       deps.Logger,
		service:      deps.Service,
		healthChecks: deps.HealthChecks,
	}
}
