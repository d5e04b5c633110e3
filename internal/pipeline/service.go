// Package pipeline is the submission front of the system: it gates a run on
// the tenant's daily quota, enqueues the job and consumes one unit of quota.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cuongbtq/assessment-pipeline/internal/domain"
	"github.com/cuongbtq/assessment-pipeline/internal/metrics"
	"github.com/cuongbtq/assessment-pipeline/internal/quota"
	"github.com/cuongbtq/assessment-pipeline/internal/storage"
)

// QuotaExceededError is returned by Submit when the tenant has no runs left
type QuotaExceededError struct {
	Decision quota.Decision
}

func (e *QuotaExceededError) Error() string {
	return e.Decision.Message()
}

func (e *QuotaExceededError) Unwrap() error {
	return domain.ErrQuotaExceeded
}

// SubmitRequest describes one metered run
type SubmitRequest struct {
	TenantID string
	Kind     string
	Payload  json.RawMessage
	// Now pins the quota day. Zero means the service clock.
	Now time.Time
	// Limit overrides the daily limit for this call when positive.
	Limit int
	// MaxRetries overrides the service default when positive.
	MaxRetries int
}

// SubmitResponse is the accepted job and the quota left afterwards
type SubmitResponse struct {
	Job   domain.Job  `json:"job"`
	Usage quota.Usage `json:"usage"`
}

// Config holds service dependencies
type Config struct {
	Logger        *slog.Logger
	Policy        *quota.Policy
	Queue         storage.JobQueue
	Results       storage.ResultLog
	Notifications storage.NotificationSink
	DeadLetters   storage.DeadLetterStore
	Metrics       metrics.Sink
	MaxRetries    int
	// Clock defaults to the policy clock.
	Clock func() time.Time
}

// Service exposes the pipeline operations used by the HTTP API
type Service struct {
	logger        *slog.Logger
	policy        *quota.Policy
	queue         storage.JobQueue
	results       storage.ResultLog
	notifications storage.NotificationSink
	deadLetters   storage.DeadLetterStore
	metrics       metrics.Sink
	maxRetries    int
	now           func() time.Time
}

// NewService creates a new Service
func NewService(cfg *Config) *Service {
	s := &Service{
		logger:        cfg.Logger,
		policy:        cfg.Policy,
		queue:         cfg.Queue,
		results:       cfg.Results,
		notifications: cfg.Notifications,
		deadLetters:   cfg.DeadLetters,
		metrics:       cfg.Metrics,
		maxRetries:    cfg.MaxRetries,
		now:           cfg.Clock,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.metrics == nil {
		s.metrics = metrics.NoopSink{}
	}
	if s.maxRetries <= 0 {
		s.maxRetries = domain.DefaultMaxRetries
	}
	if s.now == nil {
		s.now = s.policy.Now
	}
	return s
}

// quotaOptions always pins the call to an instant so a tenant's stored day
// rolls over once the clock passes midnight UTC.
func (s *Service) quotaOptions(now time.Time, limit int) []quota.Option {
	if now.IsZero() {
		now = s.now()
	}
	opts := []quota.Option{quota.WithTime(now)}
	if limit > 0 {
		opts = append(opts, quota.WithLimit(limit))
	}
	return opts
}

// Submit checks the tenant's quota, enqueues the job and records the usage.
// A denied check returns *QuotaExceededError. An enqueue failure is returned
// as is and does not consume quota.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (SubmitResponse, error) {
	tenantID := domain.NormalizeTenant(req.TenantID)
	opts := s.quotaOptions(req.Now, req.Limit)

	decision := s.policy.Check(ctx, tenantID, opts...)
	if !decision.Allowed {
		return SubmitResponse{}, &QuotaExceededError{Decision: decision}
	}

	kind := strings.TrimSpace(req.Kind)
	if kind == "" {
		kind = domain.JobKindAnalysis
	}
	maxRetries := req.MaxRetries
	if maxRetries <= 0 {
		maxRetries = s.maxRetries
	}

	job := &domain.Job{
		TenantID:   tenantID,
		Kind:       kind,
		Payload:    req.Payload,
		MaxRetries: maxRetries,
	}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		s.logger.Error("Failed to enqueue job",
			slog.String("tenant_id", tenantID),
			slog.String("error", err.Error()),
		)
		return SubmitResponse{}, fmt.Errorf("failed to enqueue job: %w", err)
	}
	s.metrics.JobEnqueued(kind)

	usage := s.policy.Record(ctx, tenantID, opts...)

	s.logger.Info("Job submitted",
		slog.String("job_id", job.ID),
		slog.String("tenant_id", tenantID),
		slog.String("kind", kind),
		slog.Int("uses_left", usage.UsesLeft),
	)

	return SubmitResponse{Job: *job, Usage: usage}, nil
}

// CheckQuota reports the tenant's remaining runs without consuming one
func (s *Service) CheckQuota(ctx context.Context, tenantID string, now time.Time, limit int) quota.Decision {
	return s.policy.Check(ctx, tenantID, s.quotaOptions(now, limit)...)
}

// RecordUsage consumes one run outside of Submit
func (s *Service) RecordUsage(ctx context.Context, tenantID string, now time.Time, limit int) quota.Usage {
	return s.policy.Record(ctx, tenantID, s.quotaOptions(now, limit)...)
}

func (s *Service) ResetQuota(ctx context.Context, tenantID string) error {
	return s.policy.Reset(ctx, tenantID)
}

func (s *Service) ListResults(ctx context.Context, tenantID string, limit int) ([]domain.JobResult, error) {
	results, err := s.results.ListResults(ctx, domain.NormalizeTenant(tenantID), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}
	return results, nil
}

func (s *Service) ListNotifications(ctx context.Context, filter domain.NotificationFilter) ([]domain.NotificationRecord, error) {
	records, err := s.notifications.ListNotifications(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return records, nil
}

func (s *Service) ListDeadLetters(ctx context.Context, limit int) ([]domain.DeadLetter, error) {
	entries, err := s.deadLetters.ListDeadLetters(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list dead letters: %w", err)
	}
	return entries, nil
}

// ListPending returns the tenant's queued jobs. An empty tenantID lists all.
func (s *Service) ListPending(ctx context.Context, tenantID string) ([]domain.Job, error) {
	jobs, err := s.queue.ListPending(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending jobs: %w", err)
	}
	return jobs, nil
}

// QueueDepth returns the number of queued jobs and updates the depth gauge
func (s *Service) QueueDepth(ctx context.Context) (int, error) {
	n, err := s.queue.Len(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read queue depth: %w", err)
	}
	s.metrics.QueueDepthUpdate(n)
	return n, nil
}
