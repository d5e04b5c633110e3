package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Health handles GET /health. Each configured backend is pinged; any
// failure turns the response into 503.
func (h *Handler) Health(c *gin.Context) {
	checks := make(gin.H, len(h.healthChecks))
	status := http.StatusOK

	for name, check := range h.healthChecks {
		if err := check(c.Request.Context()); err != nil {
			h.logger.Warn("Health check failed",
				slog.String("check", name),
				slog.String("error", err.Error()),
			)
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	state := "healthy"
	if status != http.StatusOK {
		state = "unhealthy"
	}
	c.JSON(status, gin.H{
		"status":  state,
		"service": "assessment-api-service",
		"checks":  checks,
	})
}
