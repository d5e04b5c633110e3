package handler

import (
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/cuongbtq/assessment-pipeline/internal/api/dto"
	"github.com/cuongbtq/assessment-pipeline/internal/domain"
	"github.com/cuongbtq/assessment-pipeline/internal/pipeline"
	"github.com/gin-gonic/gin"
)

// SubmitJob handles POST /api/v1/jobs.
// The tenant's quota is checked first; a denied run returns 429.
func (h *Handler) SubmitJob(c *gin.Context) {
	var req dto.SubmitJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	at, err := dto.ParseAt(req.At)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "at must be an RFC3339 timestamp"})
		return
	}

	resp, err := h.service.Submit(c.Request.Context(), pipeline.SubmitRequest{
		TenantID:   req.TenantID,
		Kind:       req.Kind,
		Payload:    req.Payload,
		Now:        at,
		Limit:      req.Limit,
		MaxRetries: req.MaxRetries,
	})
	if err != nil {
		var exceeded *pipeline.QuotaExceededError
		if errors.As(err, &exceeded) {
			c.Header("Retry-After", strconv.Itoa(retryAfterSeconds(exceeded.Decision.ResetsAt, at)))
			c.JSON(http.StatusTooManyRequests, dto.QuotaExceededResponse{
				Error:    exceeded.Error(),
				UsesLeft: exceeded.Decision.UsesLeft,
				Limit:    exceeded.Decision.Limit,
				ResetsAt: exceeded.Decision.ResetsAt,
			})
			return
		}
		h.logger.Error("Failed to submit job", slog.String("error", err.Error()))
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrStorageUnavailable) {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"error": "Failed to submit job"})
		return
	}

	c.JSON(http.StatusAccepted, dto.SubmitJobResponse{
		JobID:      resp.Job.ID,
		TenantID:   resp.Job.TenantID,
		Kind:       resp.Job.Kind,
		MaxRetries: resp.Job.MaxRetries,
		EnqueuedAt: resp.Job.EnqueuedAt,
		Usage:      resp.Usage,
	})
}

// ListPending handles GET /api/v1/tenants/:tenant_id/jobs
func (h *Handler) ListPending(c *gin.Context) {
	jobs, err := h.service.ListPending(c.Request.Context(), domain.NormalizeTenant(c.Param("tenant_id")))
	if err != nil {
		h.fail(c, "Failed to list jobs", err)
		return
	}
	depth, err := h.service.QueueDepth(c.Request.Context())
	if err != nil {
		h.fail(c, "Failed to list jobs", err)
		return
	}
	c.JSON(http.StatusOK, dto.ListPendingResponse{Jobs: jobs, Depth: depth})
}

// ListResults handles GET /api/v1/tenants/:tenant_id/results
func (h *Handler) ListResults(c *gin.Context) {
	var q dto.ListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query parameters"})
		return
	}

	results, err := h.service.ListResults(c.Request.Context(), c.Param("tenant_id"), q.Limit)
	if err != nil {
		h.fail(c, "Failed to list results", err)
		return
	}
	c.JSON(http.StatusOK, dto.ListResultsResponse{Results: results})
}

// ListNotifications handles GET /api/v1/tenants/:tenant_id/notifications
func (h *Handler) ListNotifications(c *gin.Context) {
	var q dto.ListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query parameters"})
		return
	}

	records, err := h.service.ListNotifications(c.Request.Context(), domain.NotificationFilter{
		TenantID: domain.NormalizeTenant(c.Param("tenant_id")),
		JobID:    q.JobID,
		Limit:    q.Limit,
	})
	if err != nil {
		h.fail(c, "Failed to list notifications", err)
		return
	}
	c.JSON(http.StatusOK, dto.ListNotificationsResponse{Notifications: records})
}

// ListDeadLetters handles GET /api/v1/dead-letters
func (h *Handler) ListDeadLetters(c *gin.Context) {
	var q dto.ListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query parameters"})
		return
	}

	entries, err := h.service.ListDeadLetters(c.Request.Context(), q.Limit)
	if err != nil {
		h.fail(c, "Failed to list dead letters", err)
		return
	}
	c.JSON(http.StatusOK, dto.ListDeadLettersResponse{DeadLetters: entries})
}

func (h *Handler) fail(c *gin.Context, msg string, err error) {
	h.logger.Error(msg,
		slog.String("path", c.Request.URL.Path),
		slog.String("error", err.Error()),
	)
	c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
}

// retryAfterSeconds is the wait until resetsAt, measured from the request's
// pinned time when one was given. Never less than one second.
func retryAfterSeconds(resetsAt, at time.Time) int {
	ref := at
	if ref.IsZero() {
		ref = time.Now()
	}
	secs := int(math.Ceil(resetsAt.Sub(ref).Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}
