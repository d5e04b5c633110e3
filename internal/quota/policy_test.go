package quota

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/cuongbtq/assessment-pipeline/internal/domain"
	"github.com/cuongbtq/assessment-pipeline/internal/storage"
	"github.com/cuongbtq/assessment-pipeline/internal/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func newTestPolicy(store storage.QuotaStore, clock time.Time) *Policy {
	return NewPolicy(&Config{
		Store:      store,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		DailyLimit: 3,
		Clock:      func() time.Time { return clock },
	})
}

type failingStore struct{}

func (failingStore) GetQuota(context.Context, string) (domain.QuotaRecord, bool, error) {
	return domain.QuotaRecord{}, false, errors.New("connection refused")
}

func (failingStore) UpdateQuota(context.Context, string, storage.QuotaUpdateFunc) (domain.QuotaRecord, error) {
	return domain.QuotaRecord{}, errors.New("connection refused")
}

func (failingStore) DeleteQuota(context.Context, string) error {
	return errors.New("connection refused")
}

func TestPolicy_FreshTenantHasFullAllowance(t *testing.T) {
	p := newTestPolicy(memory.NewQuotaStore(), at("2025-01-01T08:00:00Z"))

	d := p.Check(context.Background(), "org-a", WithTime(at("2025-01-01T08:00:00Z")))

	assert.True(t, d.Allowed)
	assert.Equal(t, 3, d.UsesLeft)
	assert.Equal(t, 0, d.Count)
	assert.Equal(t, "2025-01-01", d.DayKey)
	assert.Equal(t, at("2025-01-02T00:00:00Z"), d.ResetsAt)
}

func TestPolicy_LimitReachedAfterLRecords(t *testing.T) {
	limits := []int{1, 3, 5}
	for _, limit := range limits {
		ctx := context.Background()
		p := newTestPolicy(memory.NewQuotaStore(), at("2025-01-01T08:00:00Z"))

		for i := 0; i < limit; i++ {
			p.Record(ctx, "org-a", WithLimit(limit))
		}

		d := p.Check(ctx, "org-a", WithLimit(limit))
		assert.False(t, d.Allowed, "limit %d", limit)
		assert.Equal(t, 0, d.UsesLeft, "limit %d", limit)
		assert.Equal(t, limit, d.Count, "limit %d", limit)
	}
}

func TestPolicy_ConcreteScenario(t *testing.T) {
	ctx := context.Background()
	p := newTestPolicy(memory.NewQuotaStore(), at("2025-01-01T08:00:00Z"))

	u := p.Record(ctx, "org-a", WithTime(at("2025-01-01T08:00:00Z")))
	assert.Equal(t, 1, u.Count)
	assert.Equal(t, 2, u.UsesLeft)

	p.Record(ctx, "org-a", WithTime(at("2025-01-01T09:00:00Z")))
	u = p.Record(ctx, "org-a", WithTime(at("2025-01-01T10:00:00Z")))
	assert.Equal(t, 3, u.Count)
	assert.Equal(t, 0, u.UsesLeft)

	d := p.Check(ctx, "org-a", WithTime(at("2025-01-01T23:00:00Z")))
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Message(), "resets at 2025-01-02T00:00:00Z")

	d = p.Check(ctx, "org-a", WithTime(at("2025-01-02T00:01:00Z")))
	assert.True(t, d.Allowed)
	assert.Equal(t, 3, d.UsesLeft)
}

func TestPolicy_DayRollover(t *testing.T) {
	ctx := context.Background()
	p := newTestPolicy(memory.NewQuotaStore(), at("2025-02-01T08:00:00Z"))

	p.Record(ctx, "org-day", WithTime(at("2025-02-01T08:00:00Z")))
	p.Record(ctx, "org-day", WithTime(at("2025-02-01T09:00:00Z")))

	d := p.Check(ctx, "org-day", WithTime(at("2025-02-01T10:00:00Z")))
	assert.Equal(t, 1, d.UsesLeft)

	d = p.Check(ctx, "org-day", WithTime(at("2025-02-02T08:00:00Z")))
	assert.Equal(t, 3, d.UsesLeft)
	assert.True(t, d.Allowed)

	u := p.Record(ctx, "org-day", WithTime(at("2025-02-02T08:00:00Z")))
	assert.Equal(t, 1, u.Count)
	assert.Equal(t, "2025-02-02", u.DayKey)
}

func TestPolicy_ImplicitTimeReusesStoredDay(t *testing.T) {
	ctx := context.Background()
	// The clock is already on the next day; implicit calls must stay on the stored day.
	p := newTestPolicy(memory.NewQuotaStore(), at("2025-01-02T03:00:00Z"))

	p.Record(ctx, "org-test", WithTime(at("2025-01-01T08:00:00Z")))
	d := p.Check(ctx, "org-test", WithTime(at("2025-01-01T08:00:00Z")))
	assert.Equal(t, 2, d.UsesLeft)

	p.Record(ctx, "org-test")
	p.Record(ctx, "org-test")

	d = p.Check(ctx, "org-test")
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.UsesLeft)
	assert.Equal(t, "2025-01-01", d.DayKey)
}

func TestPolicy_ImplicitTimeWithoutHistoryUsesClock(t *testing.T) {
	p := newTestPolicy(memory.NewQuotaStore(), at("2025-03-04T12:00:00Z"))

	d := p.Check(context.Background(), "org-new")

	assert.Equal(t, "2025-03-04", d.DayKey)
	assert.Equal(t, 3, d.UsesLeft)
}

func TestPolicy_ChecksAreIdempotent(t *testing.T) {
	ctx := context.Background()
	store := memory.NewQuotaStore()
	p := newTestPolicy(store, at("2025-01-01T08:00:00Z"))

	p.Record(ctx, "org-a")
	before, _, err := store.GetQuota(ctx, "org-a")
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		d := p.Check(ctx, "org-a")
		assert.Equal(t, 1, d.Count)
	}
	// A check on a later day must not roll the stored record either.
	p.Check(ctx, "org-a", WithTime(at("2025-01-05T08:00:00Z")))

	after, _, err := store.GetQuota(ctx, "org-a")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestPolicy_EmptyTenantFallsBackToAnonymous(t *testing.T) {
	ctx := context.Background()
	store := memory.NewQuotaStore()
	p := newTestPolicy(store, at("2025-01-01T08:00:00Z"))

	u := p.Record(ctx, "  ")
	assert.Equal(t, domain.AnonymousTenant, u.TenantID)

	_, found, err := store.GetQuota(ctx, domain.AnonymousTenant)
	require.NoError(t, err)
	assert.True(t, found)
}

func TestPolicy_RecordDoesNotGate(t *testing.T) {
	ctx := context.Background()
	p := newTestPolicy(memory.NewQuotaStore(), at("2025-01-01T08:00:00Z"))

	for i := 0; i < 5; i++ {
		p.Record(ctx, "org-a")
	}
	u := p.Record(ctx, "org-a")

	assert.Equal(t, 6, u.Count)
	assert.Equal(t, 0, u.UsesLeft)
}

func TestPolicy_Reset(t *testing.T) {
	ctx := context.Background()
	p := newTestPolicy(memory.NewQuotaStore(), at("2025-01-01T08:00:00Z"))

	for i := 0; i < 3; i++ {
		p.Record(ctx, "org-a")
	}
	require.False(t, p.Check(ctx, "org-a").Allowed)

	require.NoError(t, p.Reset(ctx, "org-a"))

	d := p.Check(ctx, "org-a")
	assert.True(t, d.Allowed)
	assert.Equal(t, 3, d.UsesLeft)
}

func TestPolicy_FailsOpenWhenStoreUnavailable(t *testing.T) {
	ctx := context.Background()
	p := newTestPolicy(failingStore{}, at("2025-01-01T08:00:00Z"))

	d := p.Check(ctx, "org-a")
	assert.True(t, d.Allowed)
	assert.True(t, d.Degraded)
	assert.Equal(t, 3, d.UsesLeft)

	u := p.Record(ctx, "org-a")
	assert.True(t, u.Degraded)
	assert.Equal(t, 1, u.Count)
	assert.Equal(t, 2, u.UsesLeft)

	assert.Error(t, p.Reset(ctx, "org-a"))
}

func TestPolicy_ConcurrentRecordsDoNotLoseUpdates(t *testing.T) {
	ctx := context.Background()
	p := newTestPolicy(memory.NewQuotaStore(), at("2025-01-01T08:00:00Z"))

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Record(ctx, "org-a", WithTime(at("2025-01-01T08:00:00Z")))
		}()
	}
	wg.Wait()

	d := p.Check(ctx, "org-a", WithLimit(n+1))
	assert.Equal(t, n, d.Count)
	assert.Equal(t, 1, d.UsesLeft)
}

func TestDayKey(t *testing.T) {
	tests := []struct {
		name string
		in   time.Time
		want string
	}{
		{name: "utc morning", in: at("2025-01-01T08:00:00Z"), want: "2025-01-01"},
		{name: "just before midnight", in: at("2025-01-01T23:59:59Z"), want: "2025-01-01"},
		{name: "offset crosses day", in: at("2025-01-01T20:00:00-05:00"), want: "2025-01-02"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DayKey(tt.in))
		})
	}
}

func TestResetsAt_InvalidKey(t *testing.T) {
	assert.True(t, ResetsAt("not-a-day").IsZero())
}
