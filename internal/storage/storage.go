// Package storage declares the persistence contracts shared by the quota
// policy, the pipeline service and the worker. Implementations live in the
// memory, postgres and redis subpackages.
package storage

import (
	"context"

	"github.com/cuongbtq/assessment-pipeline/internal/domain"
)

// QuotaUpdateFunc computes the next record from the current one. found is
// false when the tenant has no stored record yet.
type QuotaUpdateFunc func(current domain.QuotaRecord, found bool) domain.QuotaRecord

// QuotaStore keeps one QuotaRecord per tenant.
type QuotaStore interface {
	GetQuota(ctx context.Context, tenantID string) (domain.QuotaRecord, bool, error)
	// UpdateQuota applies fn atomically with respect to other updates of the same tenant.
	UpdateQuota(ctx context.Context, tenantID string, fn QuotaUpdateFunc) (domain.QuotaRecord, error)
	DeleteQuota(ctx context.Context, tenantID string) error
}

// JobQueue is a durable FIFO of pending jobs.
type JobQueue interface {
	// Enqueue persists job at the tail before returning. Missing ID and
	// timestamps are filled in on the passed job.
	Enqueue(ctx context.Context, job *domain.Job) error
	// Dequeue removes and returns the oldest available job, or nil when
	// nothing is ready. A job is handed to at most one caller.
	Dequeue(ctx context.Context) (*domain.Job, error)
	Len(ctx context.Context) (int, error)
	ListPending(ctx context.Context, tenantID string) ([]domain.Job, error)
}

// ResultLog is the append-only log of completed jobs.
type ResultLog interface {
	AppendResult(ctx context.Context, result domain.JobResult) error
	// ListResults returns newest first. limit <= 0 means no limit.
	ListResults(ctx context.Context, tenantID string, limit int) ([]domain.JobResult, error)
}

// NotificationSink is the append-only staging log for outbound notifications.
type NotificationSink interface {
	RecordNotification(ctx context.Context, n domain.NotificationRecord) (domain.NotificationRecord, error)
	// ListNotifications returns newest first.
	ListNotifications(ctx context.Context, filter domain.NotificationFilter) ([]domain.NotificationRecord, error)
}

// DeadLetterStore keeps jobs that will not be attempted again.
type DeadLetterStore interface {
	PutDeadLetter(ctx context.Context, entry domain.DeadLetter) (domain.DeadLetter, error)
	// ListDeadLetters returns newest first. limit <= 0 means no limit.
	ListDeadLetters(ctx context.Context, limit int) ([]domain.DeadLetter, error)
}
