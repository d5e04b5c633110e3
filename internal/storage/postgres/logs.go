package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cuongbtq/assessment-pipeline/internal/domain"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// ResultLog appends to job_results
type ResultLog struct {
	db *sqlx.DB
}

func NewResultLog(db *sqlx.DB) *ResultLog {
	return &ResultLog{db: db}
}

func (l *ResultLog) AppendResult(ctx context.Context, r domain.JobResult) error {
	query := `
		INSERT INTO job_results (job_id, tenant_id, status, system, score, summary, created_at)
		VALUES (:job_id, :tenant_id, :status, :system, :score, :summary, :created_at)
	`
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now().UTC()
	}
	if _, err := l.db.NamedExecContext(ctx, query, r); err != nil {
		return domain.StorageError("append result", err)
	}
	return nil
}

func (l *ResultLog) ListResults(ctx context.Context, tenantID string, limit int) ([]domain.JobResult, error) {
	query := `
		SELECT job_id, tenant_id, status, system, score, summary, created_at
		FROM job_results
		WHERE ($1 = '' OR tenant_id = $1)
		ORDER BY created_at DESC, id DESC
	`
	args := []any{tenantID}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	results := []domain.JobResult{}
	if err := l.db.SelectContext(ctx, &results, query, args...); err != nil {
		return nil, domain.StorageError("list results", err)
	}
	return results, nil
}

// NotificationSink appends to notifications
type NotificationSink struct {
	db *sqlx.DB
}

func NewNotificationSink(db *sqlx.DB) *NotificationSink {
	return &NotificationSink{db: db}
}

func (s *NotificationSink) RecordNotification(ctx context.Context, n domain.NotificationRecord) (domain.NotificationRecord, error) {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now().UTC()
	}

	query := `
		INSERT INTO notifications (notification_id, tenant_id, job_id, channel, recipient, subject, body, created_at)
		VALUES (:notification_id, :tenant_id, :job_id, :channel, :recipient, :subject, :body, :created_at)
	`
	if _, err := s.db.NamedExecContext(ctx, query, n); err != nil {
		return domain.NotificationRecord{}, domain.StorageError("record notification", err)
	}
	return n, nil
}

func (s *NotificationSink) ListNotifications(ctx context.Context, filter domain.NotificationFilter) ([]domain.NotificationRecord, error) {
	var (
		conds []string
		args  []any
	)
	if filter.TenantID != "" {
		args = append(args, filter.TenantID)
		conds = append(conds, fmt.Sprintf("tenant_id = $%d", len(args)))
	}
	if filter.JobID != "" {
		args = append(args, filter.JobID)
		conds = append(conds, fmt.Sprintf("job_id = $%d", len(args)))
	}

	query := `SELECT notification_id, tenant_id, job_id, channel, recipient, subject, body, created_at FROM notifications`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY seq DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	records := []domain.NotificationRecord{}
	if err := s.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, domain.StorageError("list notifications", err)
	}
	return records, nil
}

// DeadLetterStore appends to dead_letters. The job snapshot is stored as JSON.
type DeadLetterStore struct {
	db *sqlx.DB
}

func NewDeadLetterStore(db *sqlx.DB) *DeadLetterStore {
	return &DeadLetterStore{db: db}
}

type deadLetterRow struct {
	ID       string    `db:"dead_letter_id"`
	Job      string    `db:"job"`
	Reason   string    `db:"reason"`
	FailedAt time.Time `db:"failed_at"`
}

func (s *DeadLetterStore) PutDeadLetter(ctx context.Context, entry domain.DeadLetter) (domain.DeadLetter, error) {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.FailedAt.IsZero() {
		entry.FailedAt = time.Now().UTC()
	}

	job, err := json.Marshal(entry.Job)
	if err != nil {
		return domain.DeadLetter{}, fmt.Errorf("failed to marshal dead-lettered job: %w", err)
	}

	query := `
		INSERT INTO dead_letters (dead_letter_id, job_id, tenant_id, job, reason, failed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := s.db.ExecContext(ctx, query, entry.ID, entry.Job.ID, entry.Job.TenantID, string(job), entry.Reason, entry.FailedAt); err != nil {
		return domain.DeadLetter{}, domain.StorageError("put dead letter", err)
	}
	return entry, nil
}

func (s *DeadLetterStore) ListDeadLetters(ctx context.Context, limit int) ([]domain.DeadLetter, error) {
	query := `SELECT dead_letter_id, job, reason, failed_at FROM dead_letters ORDER BY seq DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	var rows []deadLetterRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, domain.StorageError("list dead letters", err)
	}

	out := make([]domain.DeadLetter, 0, len(rows))
	for _, r := range rows {
		entry := domain.DeadLetter{ID: r.ID, Reason: r.Reason, FailedAt: r.FailedAt}
		if err := json.Unmarshal([]byte(r.Job), &entry.Job); err != nil {
			return nil, fmt.Errorf("failed to decode dead letter %s: %w", r.ID, err)
		}
		out = append(out, entry)
	}
	return out, nil
}
