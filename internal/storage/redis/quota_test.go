package redis

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/assessment-pipeline/internal/domain"
)

func newTestStore(t *testing.T) (*QuotaStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	return NewQuotaStore(client, logger, "", 0), mr
}

func increment(cur domain.QuotaRecord, _ bool) domain.QuotaRecord {
	cur.DayKey = "2025-03-01"
	cur.Count++
	return cur
}

func TestQuotaStore_GetMissing(t *testing.T) {
	store, _ := newTestStore(t)

	rec, found, err := store.GetQuota(context.Background(), "org-a")

	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, "org-a", rec.TenantID)
	assert.Equal(t, 0, rec.Count)
}

func TestQuotaStore_UpdateThenGet(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	var foundFlags []bool
	for i := 0; i < 2; i++ {
		_, err := store.UpdateQuota(ctx, "org-a", func(cur domain.QuotaRecord, found bool) domain.QuotaRecord {
			foundFlags = append(foundFlags, found)
			return increment(cur, found)
		})
		require.NoError(t, err)
	}

	rec, found, err := store.GetQuota(ctx, "org-a")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 2, rec.Count)
	assert.Equal(t, "2025-03-01", rec.DayKey)
	assert.False(t, rec.UpdatedAt.IsZero())
	assert.Equal(t, []bool{false, true}, foundFlags)

	assert.Equal(t, "2", mr.HGet("quota:org-a", "count"))
	assert.Equal(t, defaultTTL, mr.TTL("quota:org-a"))
}

func TestQuotaStore_ConcurrentUpdatesAreAtomic(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	const goroutines, perGoroutine = 8, 5
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				_, err := store.UpdateQuota(ctx, "org-a", increment)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	rec, _, err := store.GetQuota(ctx, "org-a")
	require.NoError(t, err)
	assert.Equal(t, goroutines*perGoroutine, rec.Count)
}

func TestQuotaStore_Delete(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	_, err := store.UpdateQuota(ctx, "org-a", increment)
	require.NoError(t, err)
	require.NoError(t, store.DeleteQuota(ctx, "org-a"))

	assert.False(t, mr.Exists("quota:org-a"))
	_, found, err := store.GetQuota(ctx, "org-a")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestQuotaStore_CorruptCount(t *testing.T) {
	store, mr := newTestStore(t)
	mr.HSet("quota:org-a", "day_key", "2025-03-01", "count", "many")

	_, _, err := store.GetQuota(context.Background(), "org-a")
	assert.ErrorIs(t, err, domain.ErrStorageUnavailable)
}

func TestQuotaStore_Unavailable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { client.Close() })
	store := NewQuotaStore(client, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)), "", 0)
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, _, err = store.GetQuota(ctx, "org-a")
	assert.ErrorIs(t, err, domain.ErrStorageUnavailable)

	_, err = store.UpdateQuota(ctx, "org-a", increment)
	assert.ErrorIs(t, err, domain.ErrStorageUnavailable)
}
