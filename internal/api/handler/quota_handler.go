package handler

import (
	"log/slog"
	"net/http"

	"github.com/cuongbtq/assessment-pipeline/internal/api/dto"
	"github.com/gin-gonic/gin"
)

// GetQuota handles GET /api/v1/tenants/:tenant_id/quota
func (h *Handler) GetQuota(c *gin.Context) {
	var q dto.QuotaQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query parameters"})
		return
	}
	at, err := dto.ParseAt(q.At)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "at must be an RFC3339 timestamp"})
		return
	}

	d := h.service.CheckQuota(c.Request.Context(), c.Param("tenant_id"), at, q.Limit)
	c.JSON(http.StatusOK, dto.QuotaResponse{Decision: d, Message: d.Message()})
}

// RecordUsage handles POST /api/v1/tenants/:tenant_id/quota/usage.
// The body is optional.
func (h *Handler) RecordUsage(c *gin.Context) {
	var q dto.QuotaQuery
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&q); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
	}
	at, err := dto.ParseAt(q.At)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "at must be an RFC3339 timestamp"})
		return
	}

	usage := h.service.RecordUsage(c.Request.Context(), c.Param("tenant_id"), at, q.Limit)
	c.JSON(http.StatusOK, usage)
}

// ResetQuota handles DELETE /api/v1/tenants/:tenant_id/quota
func (h *Handler) ResetQuota(c *gin.Context) {
	tenantID := c.Param("tenant_id")
	if err := h.service.ResetQuota(c.Request.Context(), tenantID); err != nil {
		h.logger.Error("Failed to reset quota",
			slog.String("tenant_id", tenantID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Failed to reset quota"})
		return
	}
	c.Status(http.StatusNoContent)
}
