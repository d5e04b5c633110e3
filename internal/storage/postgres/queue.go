package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/cuongbtq/assessment-pipeline/internal/domain"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const jobColumns = `job_id, tenant_id, kind, payload, retry_count, max_retries, enqueued_at, available_at, last_error`

// jobRow mirrors job_queue. Payload is kept as TEXT so malformed payloads
// survive the round trip and reach the dead-letter store intact.
type jobRow struct {
	ID          string    `db:"job_id"`
	TenantID    string    `db:"tenant_id"`
	Kind        string    `db:"kind"`
	Payload     string    `db:"payload"`
	RetryCount  int       `db:"retry_count"`
	MaxRetries  int       `db:"max_retries"`
	EnqueuedAt  time.Time `db:"enqueued_at"`
	AvailableAt time.Time `db:"available_at"`
	LastError   string    `db:"last_error"`
}

func (r jobRow) toDomain() domain.Job {
	return domain.Job{
		ID:          r.ID,
		TenantID:    r.TenantID,
		Kind:        r.Kind,
		Payload:     json.RawMessage(r.Payload),
		RetryCount:  r.RetryCount,
		MaxRetries:  r.MaxRetries,
		EnqueuedAt:  r.EnqueuedAt,
		AvailableAt: r.AvailableAt,
		LastError:   r.LastError,
	}
}

// Queue is a FIFO backed by job_queue. Order follows the seq column, so a
// re-enqueued job goes to the tail.
type Queue struct {
	db     *sqlx.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewQueue creates a new Queue instance
func NewQueue(db *sqlx.DB, logger *slog.Logger) *Queue {
	return &Queue{db: db, logger: logger, now: time.Now}
}

func (q *Queue) Enqueue(ctx context.Context, job *domain.Job) error {
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

	payload := string(job.Payload)
	if payload == "" {
		payload = "{}"
	}

	query := `
		INSERT INTO job_queue (` + jobColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := q.db.ExecContext(ctx, query,
		job.ID, job.TenantID, job.Kind, payload,
		job.RetryCount, job.MaxRetries, job.EnqueuedAt, job.AvailableAt, job.LastError,
	)
	if err != nil {
		return domain.StorageError("enqueue job", err)
	}

	q.logger.Debug("Job enqueued",
		slog.String("job_id", job.ID),
		slog.String("tenant_id", job.TenantID),
		slog.Int("retry_count", job.RetryCount),
	)
	return nil
}

// Dequeue deletes and returns the oldest ready job. SKIP LOCKED lets
// concurrent workers pass over a row another transaction is claiming.
func (q *Queue) Dequeue(ctx context.Context) (*domain.Job, error) {
	query := `
		DELETE FROM job_queue
		WHERE seq = (
			SELECT seq FROM job_queue
			WHERE available_at <= $1
			ORDER BY seq
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + jobColumns

	var row jobRow
	if err := q.db.GetContext(ctx, &row, query, q.now().UTC()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, domain.StorageError("dequeue job", err)
	}

	job := row.toDomain()
	return &job, nil
}

func (q *Queue) Len(ctx context.Context) (int, error) {
	var n int
	if err := q.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM job_queue`); err != nil {
		return 0, domain.StorageError("count jobs", err)
	}
	return n, nil
}

func (q *Queue) ListPending(ctx context.Context, tenantID string) ([]domain.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM job_queue
		WHERE ($1 = '' OR tenant_id = $1)
		ORDER BY seq
	`

	var rows []jobRow
	if err := q.db.SelectContext(ctx, &rows, query, tenantID); err != nil {
		return nil, domain.StorageError("list pending jobs", err)
	}

	jobs := make([]domain.Job, 0, len(rows))
	for _, r := range rows {
		jobs = append(jobs, r.toDomain())
	}
	return jobs, nil
}
