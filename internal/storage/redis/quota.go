// Package redis implements the quota store on Redis hashes.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/cuongbtq/assessment-pipeline/internal/domain"
	"github.com/cuongbtq/assessment-pipeline/internal/storage"
)

const (
	defaultKeyPrefix = "quota:"
	// Counters are only meaningful for one UTC day; keep a spare day for clock skew.
	defaultTTL        = 48 * time.Hour
	maxUpdateAttempts = 50
	fieldDayKey       = "day_key"
	fieldCount        = "count"
	fieldUpdatedAt    = "updated_at"
)

var errTooMuchContention = errors.New("too many concurrent quota updates")

// QuotaStore keeps one hash per tenant and updates it inside WATCH/MULTI,
// retrying when another client touched the key first.
type QuotaStore struct {
	client    *goredis.Client
	logger    *slog.Logger
	keyPrefix string
	ttl       time.Duration
}

// NewQuotaStore creates a new QuotaStore instance. An empty prefix and a
// zero ttl select the defaults.
func NewQuotaStore(client *goredis.Client, logger *slog.Logger, keyPrefix string, ttl time.Duration) *QuotaStore {
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &QuotaStore{client: client, logger: logger, keyPrefix: keyPrefix, ttl: ttl}
}

func (s *QuotaStore) key(tenantID string) string {
	return s.keyPrefix + tenantID
}

func (s *QuotaStore) GetQuota(ctx context.Context, tenantID string) (domain.QuotaRecord, bool, error) {
	vals, err := s.client.HGetAll(ctx, s.key(tenantID)).Result()
	if err != nil {
		return domain.QuotaRecord{}, false, domain.StorageError("get quota", err)
	}
	rec, found, err := decodeRecord(tenantID, vals)
	if err != nil {
		return domain.QuotaRecord{}, false, domain.StorageError("decode quota", err)
	}
	return rec, found, nil
}

func (s *QuotaStore) UpdateQuota(ctx context.Context, tenantID string, fn storage.QuotaUpdateFunc) (domain.QuotaRecord, error) {
	key := s.key(tenantID)
	var next domain.QuotaRecord

	txf := func(tx *goredis.Tx) error {
		vals, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return err
		}
		current, found, err := decodeRecord(tenantID, vals)
		if err != nil {
			return err
		}

		next = fn(current, found)
		next.TenantID = tenantID
		next.UpdatedAt = time.Now().UTC()

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.HSet(ctx, key,
				fieldDayKey, next.DayKey,
				fieldCount, next.Count,
				fieldUpdatedAt, next.UpdatedAt.Format(time.RFC3339Nano),
			)
			pipe.Expire(ctx, key, s.ttl)
			return nil
		})
		return err
	}

	for attempt := 1; attempt <= maxUpdateAttempts; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return next, nil
		}
		if errors.Is(err, goredis.TxFailedErr) {
			s.logger.Debug("Quota update conflicted, retrying",
				slog.String("tenant_id", tenantID),
				slog.Int("attempt", attempt),
			)
			continue
		}
		return domain.QuotaRecord{}, domain.StorageError("update quota", err)
	}

	return domain.QuotaRecord{}, domain.StorageError("update quota", errTooMuchContention)
}

func (s *QuotaStore) DeleteQuota(ctx context.Context, tenantID string) error {
	if err := s.client.Del(ctx, s.key(tenantID)).Err(); err != nil {
		return domain.StorageError("delete quota", err)
	}
	return nil
}

func decodeRecord(tenantID string, vals map[string]string) (domain.QuotaRecord, bool, error) {
	rec := domain.QuotaRecord{TenantID: tenantID}
	if len(vals) == 0 {
		return rec, false, nil
	}

	rec.DayKey = vals[fieldDayKey]
	if raw := vals[fieldCount]; raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return rec, false, fmt.Errorf("invalid count %q: %w", raw, err)
		}
		rec.Count = n
	}
	if raw := vals[fieldUpdatedAt]; raw != "" {
		if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			rec.UpdatedAt = ts
		}
	}
	return rec, true, nil
}
