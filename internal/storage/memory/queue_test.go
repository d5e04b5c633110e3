package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cuongbtq/assessment-pipeline/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_FIFO(t *testing.T) {
	ctx := context.Background()
	q := NewQueue()

	for _, id := range []string{"A", "B", "C"} {
		require.NoError(t, q.Enqueue(ctx, &domain.Job{ID: id, TenantID: "org-a", Kind: domain.JobKindAnalysis}))
	}

	for _, want := range []string{"A", "B", "C"} {
		job, err := q.Dequeue(ctx)
		require.NoError(t, err)
		require.NotNil(t, job)
		assert.Equal(t, want, job.ID)
	}

	job, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Nil(t, job, "empty queue should return no job")
}

func TestQueue_EnqueueAssignsIDAndTimestamps(t *testing.T) {
	ctx := context.Background()
	fixed := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)
	q := NewQueue().WithClock(func() time.Time { return fixed })

	job := &domain.Job{TenantID: "org-a", Kind: domain.JobKindAnalysis}
	require.NoError(t, q.Enqueue(ctx, job))

	assert.NotEmpty(t, job.ID)
	assert.Equal(t, fixed, job.EnqueuedAt)
	assert.Equal(t, fixed, job.AvailableAt)

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestQueue_DelayedJobIsSkippedUntilAvailable(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)
	q := NewQueue().WithClock(func() time.Time { return now })

	require.NoError(t, q.Enqueue(ctx, &domain.Job{ID: "delayed", AvailableAt: now.Add(time.Minute)}))
	require.NoError(t, q.Enqueue(ctx, &domain.Job{ID: "ready"}))

	job, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "ready", job.ID)

	job, err = q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Nil(t, job)

	now = now.Add(2 * time.Minute)
	job, err = q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "delayed", job.ID)
}

func TestQueue_AtMostOneClaim(t *testing.T) {
	ctx := context.Background()
	q := NewQueue()

	const jobs = 5
	const callers = 20
	for i := 0; i < jobs; i++ {
		require.NoError(t, q.Enqueue(ctx, &domain.Job{TenantID: "org-a"}))
	}

	var (
		wg      sync.WaitGroup
		got     atomic.Int32
		mu      sync.Mutex
		claimed = make(map[string]int)
		start   = make(chan struct{})
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			job, err := q.Dequeue(ctx)
			if err != nil || job == nil {
				return
			}
			got.Add(1)
			mu.Lock()
			claimed[job.ID]++
			mu.Unlock()
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(jobs), got.Load())
	assert.Len(t, claimed, jobs)
	for id, n := range claimed {
		assert.Equal(t, 1, n, "job %s claimed more than once", id)
	}
}

func TestQueue_ListPendingFiltersByTenant(t *testing.T) {
	ctx := context.Background()
	q := NewQueue()

	require.NoError(t, q.Enqueue(ctx, &domain.Job{ID: "1", TenantID: "org-a"}))
	require.NoError(t, q.Enqueue(ctx, &domain.Job{ID: "2", TenantID: "org-b"}))
	require.NoError(t, q.Enqueue(ctx, &domain.Job{ID: "3", TenantID: "org-a"}))

	jobs, err := q.ListPending(ctx, "org-a")
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "1", jobs[0].ID)
	assert.Equal(t, "3", jobs[1].ID)

	all, err := q.ListPending(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
