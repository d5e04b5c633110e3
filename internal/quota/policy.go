// Package quota meters rate-limited actions per tenant per UTC day.
//
// The policy is a meter, not a gate: Check answers whether one more run is
// allowed and Record consumes one unconditionally. Callers check first and
// record after the action succeeded. Counters roll over lazily when the
// resolved day differs from the stored one; nothing runs on a timer.
//
// Storage failures never surface to callers. They are logged and the
// decision is computed as if the tenant had zero usage, with Degraded set.
package quota

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/assessment-pipeline/internal/domain"
	"github.com/cuongbtq/assessment-pipeline/internal/metrics"
	"github.com/cuongbtq/assessment-pipeline/internal/storage"
)

// Decision is the outcome of a quota check
type Decision struct {
	TenantID string    `json:"tenant_id"`
	Allowed  bool      `json:"allowed"`
	UsesLeft int       `json:"uses_left"`
	Count    int       `json:"count"`
	Limit    int       `json:"limit"`
	DayKey   string    `json:"day_key"`
	ResetsAt time.Time `json:"resets_at"`
	Degraded bool      `json:"degraded,omitempty"`
}

// Message returns the user-facing text for a denied decision
func (d Decision) Message() string {
	if d.Allowed {
		return fmt.Sprintf("%d of %d runs left today", d.UsesLeft, d.Limit)
	}
	return fmt.Sprintf("daily limit of %d reached, resets at %s", d.Limit, d.ResetsAt.Format(time.RFC3339))
}

// Usage is the state after a recorded run
type Usage struct {
	TenantID string `json:"tenant_id"`
	UsesLeft int    `json:"uses_left"`
	Count    int    `json:"count"`
	Limit    int    `json:"limit"`
	DayKey   string `json:"day_key"`
	Degraded bool   `json:"degraded,omitempty"`
}

// Option adjusts a single Check or Record call
type Option func(*callOptions)

type callOptions struct {
	now   time.Time
	limit int
}

// WithTime pins the call to an explicit instant. Without it the tenant's
// stored day is reused, so reads never roll the day over on their own.
func WithTime(now time.Time) Option {
	return func(o *callOptions) {
		o.now = now
	}
}

// WithLimit overrides the policy's daily limit for one call. Non-positive values are ignored.
func WithLimit(limit int) Option {
	return func(o *callOptions) {
		if limit > 0 {
			o.limit = limit
		}
	}
}

// Config holds policy configuration
type Config struct {
	Store      storage.QuotaStore
	Logger     *slog.Logger
	Metrics    metrics.Sink
	DailyLimit int
	Clock      func() time.Time
}

// Policy applies a daily limit against a QuotaStore
type Policy struct {
	store      storage.QuotaStore
	logger     *slog.Logger
	metrics    metrics.Sink
	dailyLimit int
	clock      func() time.Time
}

// NewPolicy creates a new Policy
func NewPolicy(cfg *Config) *Policy {
	p := &Policy{
		store:      cfg.Store,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
		dailyLimit: cfg.DailyLimit,
		clock:      cfg.Clock,
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.metrics == nil {
		p.metrics = metrics.NoopSink{}
	}
	if p.dailyLimit <= 0 {
		p.dailyLimit = domain.DefaultDailyLimit
	}
	if p.clock == nil {
		p.clock = time.Now
	}
	return p
}

// Now reads the policy clock
func (p *Policy) Now() time.Time {
	return p.clock()
}

// DailyLimit returns the configured default limit
func (p *Policy) DailyLimit() int {
	return p.dailyLimit
}

func (p *Policy) options(opts []Option) callOptions {
	o := callOptions{limit: p.dailyLimit}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// resolveDayKey picks the day the call applies to. An explicit time always
// wins; otherwise the stored day is kept and only a tenant without history
// falls back to the clock.
func (p *Policy) resolveDayKey(o callOptions, stored domain.QuotaRecord, found bool) string {
	if !o.now.IsZero() {
		return DayKey(o.now)
	}
	if found && stored.DayKey != "" {
		return stored.DayKey
	}
	return DayKey(p.clock())
}

// Check reports whether tenantID may perform one more run. It never writes.
func (p *Policy) Check(ctx context.Context, tenantID string, opts ...Option) Decision {
	tenantID = domain.NormalizeTenant(tenantID)
	o := p.options(opts)

	rec, found, err := p.store.GetQuota(ctx, tenantID)
	degraded := false
	if err != nil {
		p.logger.Error("Quota store unavailable, failing open on check",
			slog.String("tenant_id", tenantID),
			slog.String("error", err.Error()),
		)
		p.metrics.QuotaDegraded("check")
		rec, found, degraded = domain.QuotaRecord{}, false, true
	}

	dayKey := p.resolveDayKey(o, rec, found)
	count := rec.CountFor(dayKey)

	d := Decision{
		TenantID: tenantID,
		Allowed:  count < o.limit,
		UsesLeft: max(0, o.limit-count),
		Count:    count,
		Limit:    o.limit,
		DayKey:   dayKey,
		ResetsAt: ResetsAt(dayKey),
		Degraded: degraded,
	}

	p.metrics.QuotaChecked(d.Allowed)
	if !d.Allowed {
		p.logger.Info("Quota exhausted",
			slog.String("tenant_id", tenantID),
			slog.String("day_key", dayKey),
			slog.Int("count", count),
			slog.Int("limit", o.limit),
		)
	}
	return d
}

// Record consumes one run for tenantID. It increments even when the limit
// is already reached; gating is the caller's job.
func (p *Policy) Record(ctx context.Context, tenantID string, opts ...Option) Usage {
	tenantID = domain.NormalizeTenant(tenantID)
	o := p.options(opts)

	updated, err := p.store.UpdateQuota(ctx, tenantID, func(cur domain.QuotaRecord, found bool) domain.QuotaRecord {
		dayKey := p.resolveDayKey(o, cur, found)
		return domain.QuotaRecord{
			TenantID:  tenantID,
			DayKey:    dayKey,
			Count:     cur.CountFor(dayKey) + 1,
			UpdatedAt: p.clock().UTC(),
		}
	})
	if err != nil {
		p.logger.Error("Quota store unavailable, usage not persisted",
			slog.String("tenant_id", tenantID),
			slog.String("error", err.Error()),
		)
		p.metrics.QuotaDegraded("record")
		dayKey := p.resolveDayKey(o, domain.QuotaRecord{}, false)
		return Usage{
			TenantID: tenantID,
			UsesLeft: max(0, o.limit-1),
			Count:    1,
			Limit:    o.limit,
			DayKey:   dayKey,
			Degraded: true,
		}
	}

	p.metrics.QuotaRecorded()
	p.logger.Debug("Quota usage recorded",
		slog.String("tenant_id", tenantID),
		slog.String("day_key", updated.DayKey),
		slog.Int("count", updated.Count),
	)

	return Usage{
		TenantID: tenantID,
		UsesLeft: max(0, o.limit-updated.Count),
		Count:    updated.Count,
		Limit:    o.limit,
		DayKey:   updated.DayKey,
	}
}

// Reset removes the tenant's record entirely
func (p *Policy) Reset(ctx context.Context, tenantID string) error {
	tenantID = domain.NormalizeTenant(tenantID)
	if err := p.store.DeleteQuota(ctx, tenantID); err != nil {
		return fmt.Errorf("failed to reset quota: %w", err)
	}

	p.logger.Info("Quota reset",
		slog.String("tenant_id", tenantID),
	)
	return nil
}
