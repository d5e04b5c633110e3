package bootstrap

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/assessment-pipeline/internal/config"
	"github.com/cuongbtq/assessment-pipeline/internal/domain"
	"github.com/cuongbtq/assessment-pipeline/internal/metrics"
	"github.com/cuongbtq/assessment-pipeline/internal/notify"
	"github.com/cuongbtq/assessment-pipeline/internal/pipeline"
)

func testConfig() *config.Config {
	return &config.Config{
		Storage: config.StorageConfig{Driver: config.DriverMemory},
		Quota:   config.QuotaConfig{Driver: config.DriverMemory, DailyLimit: 3},
		Worker: config.WorkerConfig{
			Embedded:     true,
			ID:           "worker-test",
			Concurrency:  1,
			PollInterval: 10 * time.Millisecond,
			JobTimeout:   time.Second,
			MaxRetries:   2,
			Backoff:      config.BackoffConfig{Initial: time.Millisecond, Max: 10 * time.Millisecond},
		},
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBuild_MemoryPipelineEndToEnd(t *testing.T) {
	cfg := testConfig()
	cfg.Metrics.Enabled = true

	c, err := Build(context.Background(), cfg, discardLogger())
	require.NoError(t, err)
	defer c.Close()

	assert.IsType(t, &notify.LogForwarder{}, c.Forwarder)
	assert.Empty(t, c.HealthChecks)
	require.NotNil(t, c.Registry)

	svc := c.NewService()
	w := c.NewWorker()
	ctx := context.Background()
	day := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		_, err := svc.Submit(ctx, pipeline.SubmitRequest{
			TenantID: "org-a",
			Kind:     domain.JobKindAnalysis,
			Payload:  json.RawMessage(`{"name":"q3.xlsx","org_email":"ops@org-a.test"}`),
			Now:      day,
		})
		require.NoError(t, err)
	}

	_, err = svc.Submit(ctx, pipeline.SubmitRequest{
		TenantID: "org-a",
		Kind:     domain.JobKindAnalysis,
		Payload:  json.RawMessage(`{"name":"q4.xlsx"}`),
		Now:      day,
	})
	var exceeded *pipeline.QuotaExceededError
	require.ErrorAs(t, err, &exceeded)

	for {
		processed, err := w.DequeueAndProcess(ctx)
		require.NoError(t, err)
		if !processed {
			break
		}
	}

	results, err := svc.ListResults(ctx, "org-a", 0)
	require.NoError(t, err)
	assert.Len(t, results, 3)

	notes, err := svc.ListNotifications(ctx, domain.NotificationFilter{TenantID: "org-a"})
	require.NoError(t, err)
	require.Len(t, notes, 3)
	assert.Equal(t, domain.ChannelEmail, notes[0].Channel)
	assert.Equal(t, "ops@org-a.test", notes[0].Recipient)

	rec := httptest.NewRecorder()
	c.MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "pipeline_jobs_completed_total 3")
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestBuild_MetricsDisabled(t *testing.T) {
	c, err := Build(context.Background(), testConfig(), discardLogger())
	require.NoError(t, err)
	defer c.Close()

	assert.Nil(t, c.Registry)
	assert.Nil(t, c.MetricsHandler())
	assert.Equal(t, metrics.NoopSink{}, c.Metrics)
}

func TestBuild_RedisQuotaStore(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := testConfig()
	cfg.Quota.Driver = config.DriverRedis
	cfg.Quota.KeyPrefix = "test:quota:"
	cfg.Redis.Addr = mr.Addr()

	c, err := Build(context.Background(), cfg, discardLogger())
	require.NoError(t, err)
	defer c.Close()

	require.Contains(t, c.HealthChecks, "redis")
	assert.NoError(t, c.HealthChecks["redis"](context.Background()))

	usage := c.NewPolicy().Record(context.Background(), "org-b")
	assert.Equal(t, 1, usage.Count)
	assert.False(t, usage.Degraded)
	assert.True(t, mr.Exists("test:quota:org-b"))
}

func TestBuild_RedisUnavailable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	cfg := testConfig()
	cfg.Quota.Driver = config.DriverRedis
	cfg.Redis.Addr = addr
	cfg.Redis.DialTimeout = 100 * time.Millisecond

	c, err := Build(context.Background(), cfg, discardLogger())
	require.Error(t, err)
	assert.Nil(t, c)
	assert.Contains(t, err.Error(), "failed to initialize Redis")
}

func TestBuild_UnsupportedDriver(t *testing.T) {
	cfg := testConfig()
	cfg.Storage.Driver = "sqlite"

	_, err := Build(context.Background(), cfg, discardLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported storage driver")
}

func TestNewLogger(t *testing.T) {
	log, err := NewLogger(&config.LoggingConfig{Level: "debug", Format: "json", Output: "stderr"})
	require.NoError(t, err)
	assert.True(t, log.Enabled(context.Background(), slog.LevelDebug))
}
