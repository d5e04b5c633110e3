package domain

import (
	"encoding/json"
	"time"
)

// Job is one unit of submitted work held in the queue until a worker claims it
type Job struct {
	ID          string          `json:"id" db:"job_id"`
	TenantID    string          `json:"tenant_id" db:"tenant_id"`
	Kind        string          `json:"kind" db:"kind"`
	Payload     json.RawMessage `json:"payload" db:"payload"`
	RetryCount  int             `json:"retry_count" db:"retry_count"`
	MaxRetries  int             `json:"max_retries" db:"max_retries"`
	EnqueuedAt  time.Time       `json:"enqueued_at" db:"enqueued_at"`
	AvailableAt time.Time       `json:"available_at" db:"available_at"`
	LastError   string          `json:"last_error,omitempty" db:"last_error"`
}

// JobResult is written once per completed job and never modified
type JobResult struct {
	JobID     string    `json:"job_id" db:"job_id"`
	TenantID  string    `json:"tenant_id" db:"tenant_id"`
	Status    string    `json:"status" db:"status"`
	System    string    `json:"system,omitempty" db:"system"`
	Score     int       `json:"score" db:"score"`
	Summary   string    `json:"summary" db:"summary"`
	Timestamp time.Time `json:"timestamp" db:"created_at"`
}

// DeadLetter holds a job that exhausted its retries or could never be processed
type DeadLetter struct {
	ID       string    `json:"id"`
	Job      Job       `json:"job"`
	Reason   string    `json:"reason"`
	FailedAt time.Time `json:"failed_at"`
}

// Outcome is what a processor hands back for a successful job. The worker
// turns it into a JobResult and a NotificationRecord.
type Outcome struct {
	System    string
	Score     int
	Summary   string
	Recipient string
	Subject   string
	Body      string
}
