package postgres

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/cuongbtq/assessment-pipeline/internal/domain"
	"github.com/cuongbtq/assessment-pipeline/internal/storage"
	"github.com/jmoiron/sqlx"
)

// QuotaStore keeps quota records in the quota_usage table. A row with an
// empty day_key is a placeholder created to take the row lock and counts as
// not found.
type QuotaStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewQuotaStore creates a new QuotaStore instance
func NewQuotaStore(db *sqlx.DB, logger *slog.Logger) *QuotaStore {
	return &QuotaStore{db: db, logger: logger}
}

func (s *QuotaStore) GetQuota(ctx context.Context, tenantID string) (domain.QuotaRecord, bool, error) {
	query := `
		SELECT tenant_id, day_key, count, updated_at
		FROM quota_usage
		WHERE tenant_id = $1
	`

	var rec domain.QuotaRecord
	if err := s.db.GetContext(ctx, &rec, query, tenantID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.QuotaRecord{TenantID: tenantID}, false, nil
		}
		return domain.QuotaRecord{}, false, domain.StorageError("get quota", err)
	}
	if rec.DayKey == "" {
		return domain.QuotaRecord{TenantID: tenantID}, false, nil
	}
	return rec, true, nil
}

// UpdateQuota locks the tenant's row for the duration of fn
func (s *QuotaStore) UpdateQuota(ctx context.Context, tenantID string, fn storage.QuotaUpdateFunc) (domain.QuotaRecord, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return domain.QuotaRecord{}, domain.StorageError("begin quota transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	ensure := `
		INSERT INTO quota_usage (tenant_id, day_key, count, updated_at)
		VALUES ($1, '', 0, NOW())
		ON CONFLICT (tenant_id) DO NOTHING
	`
	if _, err := tx.ExecContext(ctx, ensure, tenantID); err != nil {
		return domain.QuotaRecord{}, domain.StorageError("ensure quota row", err)
	}

	lock := `
		SELECT tenant_id, day_key, count, updated_at
		FROM quota_usage
		WHERE tenant_id = $1
		FOR UPDATE
	`
	var current domain.QuotaRecord
	if err := tx.GetContext(ctx, &current, lock, tenantID); err != nil {
		return domain.QuotaRecord{}, domain.StorageError("lock quota row", err)
	}

	found := current.DayKey != ""
	if !found {
		current = domain.QuotaRecord{TenantID: tenantID}
	}

	next := fn(current, found)
	next.TenantID = tenantID
	next.UpdatedAt = time.Now().UTC()

	update := `
		UPDATE quota_usage
		SET day_key = $2, count = $3, updated_at = $4
		WHERE tenant_id = $1
	`
	if _, err := tx.ExecContext(ctx, update, tenantID, next.DayKey, next.Count, next.UpdatedAt); err != nil {
		return domain.QuotaRecord{}, domain.StorageError("update quota", err)
	}

	if err := tx.Commit(); err != nil {
		return domain.QuotaRecord{}, domain.StorageError("commit quota transaction", err)
	}

	s.logger.Debug("Quota updated",
		slog.String("tenant_id", tenantID),
		slog.String("day_key", next.DayKey),
		slog.Int("count", next.Count),
	)
	return next, nil
}

func (s *QuotaStore) DeleteQuota(ctx context.Context, tenantID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM quota_usage WHERE tenant_id = $1`, tenantID); err != nil {
		return domain.StorageError("delete quota", err)
	}
	return nil
}
