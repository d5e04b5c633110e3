package memory

import (
	"context"
	"sync"
	"time"

	"github.com/cuongbtq/assessment-pipeline/internal/domain"
	"github.com/google/uuid"
)

// ResultLog is an in-process append-only result log
type ResultLog struct {
	mu      sync.RWMutex
	results []domain.JobResult
}

// NewResultLog creates an empty ResultLog
func NewResultLog() *ResultLog {
	return &ResultLog{}
}

// AppendResult appends result to the log
func (l *ResultLog) AppendResult(_ context.Context, result domain.JobResult) error {
	if result.Timestamp.IsZero() {
		result.Timestamp = time.Now().UTC()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.results = append(l.results, result)
	return nil
}

// ListResults returns the tenant's results newest first
func (l *ResultLog) ListResults(_ context.Context, tenantID string, limit int) ([]domain.JobResult, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]domain.JobResult, 0)
	for i := len(l.results) - 1; i >= 0; i-- {
		if tenantID != "" && l.results[i].TenantID != tenantID {
			continue
		}
		out = append(out, l.results[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// NotificationSink is an in-process notification staging log
type NotificationSink struct {
	mu      sync.RWMutex
	records []domain.NotificationRecord
}

// NewNotificationSink creates an empty NotificationSink
func NewNotificationSink() *NotificationSink {
	return &NotificationSink{}
}

// RecordNotification appends n, assigning an ID and timestamp if missing
func (s *NotificationSink) RecordNotification(_ context.Context, n domain.NotificationRecord) (domain.NotificationRecord, error) {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, n)
	return n, nil
}

// ListNotifications returns matching records newest first
func (s *NotificationSink) ListNotifications(_ context.Context, filter domain.NotificationFilter) ([]domain.NotificationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.NotificationRecord, 0)
	for i := len(s.records) - 1; i >= 0; i-- {
		if !filter.Matches(s.records[i]) {
			continue
		}
		out = append(out, s.records[i])
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

// DeadLetterStore is an in-process dead-letter store
type DeadLetterStore struct {
	mu      sync.RWMutex
	entries []domain.DeadLetter
}

// NewDeadLetterStore creates an empty DeadLetterStore
func NewDeadLetterStore() *DeadLetterStore {
	return &DeadLetterStore{}
}

// PutDeadLetter stores entry, assigning an ID and timestamp if missing
func (s *DeadLetterStore) PutDeadLetter(_ context.Context, entry domain.DeadLetter) (domain.DeadLetter, error) {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.FailedAt.IsZero() {
		entry.FailedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return entry, nil
}

// ListDeadLetters returns entries newest first
func (s *DeadLetterStore) ListDeadLetters(_ context.Context, limit int) ([]domain.DeadLetter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.DeadLetter, 0)
	for i := len(s.entries) - 1; i >= 0; i-- {
		out = append(out, s.entries[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
