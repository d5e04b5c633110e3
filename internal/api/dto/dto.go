package dto

import (
	"encoding/json"
	"time"

	"github.com/cuongbtq/assessment-pipeline/internal/domain"
	"github.com/cuongbtq/assessment-pipeline/internal/quota"
)

// QuotaQuery is accepted by GET .../quota and POST .../quota/usage.
// At is RFC3339; when empty the server clock is used.
type QuotaQuery struct {
	At    string `form:"at" json:"at"`
	Limit int    `form:"limit" json:"limit" binding:"omitempty,min=1"`
}

type SubmitJobRequest struct {
	TenantID   string          `json:"tenant_id"`
	Kind       string          `json:"kind"`
	Payload    json.RawMessage `json:"payload" binding:"required"`
	At         string          `json:"at"`
	Limit      int             `json:"limit" binding:"omitempty,min=1"`
	MaxRetries int             `json:"max_retries" binding:"omitempty,min=1,max=20"`
}

type ListQuery struct {
	Limit int    `form:"limit" binding:"omitempty,min=1,max=500"`
	JobID string `form:"job_id"`
}

type QuotaResponse struct {
	quota.Decision
	Message string `json:"message"`
}

type SubmitJobResponse struct {
	JobID      string      `json:"job_id"`
	TenantID   string      `json:"tenant_id"`
	Kind       string      `json:"kind"`
	MaxRetries int         `json:"max_retries"`
	EnqueuedAt time.Time   `json:"enqueued_at"`
	Usage      quota.Usage `json:"usage"`
}

type QuotaExceededResponse struct {
	Error    string    `json:"error"`
	UsesLeft int       `json:"uses_left"`
	Limit    int       `json:"limit"`
	ResetsAt time.Time `json:"resets_at"`
}

type ListResultsResponse struct {
	Results []domain.JobResult `json:"results"`
}

type ListNotificationsResponse struct {
	Notifications []domain.NotificationRecord `json:"notifications"`
}

type ListDeadLettersResponse struct {
	DeadLetters []domain.DeadLetter `json:"dead_letters"`
}

type ListPendingResponse struct {
	Jobs  []domain.Job `json:"jobs"`
	Depth int          `json:"depth"`
}

// ParseAt reads an optional RFC3339 instant. Empty input yields the zero time.
func ParseAt(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}
