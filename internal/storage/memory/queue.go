package memory

import (
	"context"
	"sync"
	"time"

	"github.com/cuongbtq/assessment-pipeline/internal/domain"
	"github.com/google/uuid"
)

// Queue is an in-process FIFO job queue. It is not durable across restarts
// and is meant for development and tests.
type Queue struct {
	mu    sync.Mutex
	items []domain.Job
	now   func() time.Time
}

// NewQueue creates an empty Queue
func NewQueue() *Queue {
	return &Queue{now: time.Now}
}

// WithClock replaces the clock used to decide whether delayed jobs are ready
func (q *Queue) WithClock(now func() time.Time) *Queue {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.now = now
	return q
}

// Enqueue appends job to the tail
func (q *Queue) Enqueue(_ context.Context, job *domain.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now().UTC()
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = now
	}
	if job.AvailableAt.IsZero() {
		job.AvailableAt = now
	}

	q.items = append(q.items, cloneJob(*job))
	return nil
}

// Dequeue removes the oldest job that is ready to run
func (q *Queue) Dequeue(_ context.Context) (*domain.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	for i, job := range q.items {
		if job.AvailableAt.After(now) {
			continue
		}
		q.items = append(q.items[:i], q.items[i+1:]...)
		return &job, nil
	}
	return nil, nil
}

// Len returns the number of queued jobs, including delayed ones
func (q *Queue) Len(_ context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items), nil
}

// ListPending returns queued jobs in queue order. An empty tenantID lists all.
func (q *Queue) ListPending(_ context.Context, tenantID string) ([]domain.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]domain.Job, 0, len(q.items))
	for _, job := range q.items {
		if tenantID != "" && job.TenantID != tenantID {
			continue
		}
		out = append(out, cloneJob(job))
	}
	return out, nil
}

func cloneJob(job domain.Job) domain.Job {
	if job.Payload != nil {
		job.Payload = append([]byte(nil), job.Payload...)
	}
	return job
}
