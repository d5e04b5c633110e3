package router

import (
	"net/http"

	"github.com/cuongbtq/assessment-pipeline/internal/api/handler"
	"github.com/gin-gonic/gin"
)

// Options holds router settings that are not handler dependencies
type Options struct {
	// MetricsHandler serves GET /metrics when set
	MetricsHandler http.Handler
	// RateLimiter throttles /api/v1 per client when set
	RateLimiter *ClientRateLimiter
}

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies, opts Options) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	h := handler.NewHandler(deps)

	r.GET("/health", h.Health)
	if opts.MetricsHandler != nil {
		r.GET("/metrics", gin.WrapH(opts.MetricsHandler))
	}

	v1 := r.Group("/api/v1")
	if opts.RateLimiter != nil {
		v1.Use(RateLimitMiddleware(opts.RateLimiter, deps.Logger))
	}
	{
		v1.POST("/jobs", h.SubmitJob)
		v1.GET("/dead-letters", h.ListDeadLetters)

		tenants := v1.Group("/tenants/:tenant_id")
		{
			tenants.GET("/quota", h.GetQuota)
			tenants.POST("/quota/usage", h.RecordUsage)
			tenants.DELETE("/quota", h.ResetQuota)
			tenants.GET("/jobs", h.ListPending)
			tenants.GET("/results", h.ListResults)
			tenants.GET("/notifications", h.ListNotifications)
		}
	}

	return r
}
