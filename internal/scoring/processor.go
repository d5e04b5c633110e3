package scoring

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cuongbtq/assessment-pipeline/internal/domain"
)

// AnalysisPayload is the payload of an analysis job
type AnalysisPayload struct {
	Name     string             `json:"name"`
	System   string             `json:"system"`
	OrgID    string             `json:"org_id"`
	OrgEmail string             `json:"org_email"`
	NotifyTo string             `json:"notify_to"`
	Metrics  map[string]float64 `json:"metrics"`
	Weights  map[string]float64 `json:"weights"`
}

// Label names the upload in user-facing text
func (p AnalysisPayload) Label() string {
	if name := strings.TrimSpace(p.Name); name != "" {
		return name
	}
	if system := strings.TrimSpace(p.System); system != "" {
		return system
	}
	return "your upload"
}

// Recipient prefers the explicit notification address over the org email
func (p AnalysisPayload) Recipient() string {
	if to := strings.TrimSpace(p.NotifyTo); to != "" {
		return to
	}
	return strings.TrimSpace(p.OrgEmail)
}

// ParseAnalysisPayload decodes and validates an analysis payload. Anything
// that is not a JSON object, or that names neither a file nor a system, is
// malformed.
func ParseAnalysisPayload(raw json.RawMessage) (AnalysisPayload, error) {
	var p AnalysisPayload
	trimmed := strings.TrimSpace(string(raw))
	if !strings.HasPrefix(trimmed, "{") {
		return p, fmt.Errorf("%w: payload must be a JSON object", domain.ErrMalformedJob)
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("%w: %v", domain.ErrMalformedJob, err)
	}
	if strings.TrimSpace(p.Name) == "" && strings.TrimSpace(p.System) == "" {
		return p, fmt.Errorf("%w: payload needs a name or a system", domain.ErrMalformedJob)
	}
	return p, nil
}

// RecipientOf extracts the notification address from a raw payload, or ""
// when the payload cannot be read.
func RecipientOf(raw json.RawMessage) string {
	var p AnalysisPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return ""
	}
	return p.Recipient()
}

// AnalysisProcessor scores analysis jobs
type AnalysisProcessor struct {
	logger *slog.Logger
	delay  time.Duration
}

// NewAnalysisProcessor creates a processor. delay simulates slow work and may be zero.
func NewAnalysisProcessor(logger *slog.Logger, delay time.Duration) *AnalysisProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &AnalysisProcessor{logger: logger, delay: delay}
}

// Process scores the job's system and drafts the completion notification
func (p *AnalysisProcessor) Process(ctx context.Context, job *domain.Job) (*domain.Outcome, error) {
	if job.Kind != domain.JobKindAnalysis {
		return nil, fmt.Errorf("%w: unknown job kind %q", domain.ErrMalformedJob, job.Kind)
	}

	payload, err := ParseAnalysisPayload(job.Payload)
	if err != nil {
		return nil, err
	}

	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return nil, fmt.Errorf("analysis canceled: %w", ctx.Err())
		}
	}

	system := NormalizeSystemKey(payload.System)
	if strings.TrimSpace(payload.System) == "" {
		system = DetectSystems(payload.Name)[0]
	}

	metrics := payload.Metrics
	if len(metrics) == 0 {
		seed := payload.OrgID
		if seed == "" {
			seed = job.TenantID
		}
		metrics = make(map[string]float64)
		for k, v := range DeterministicMetrics(seed, system) {
			metrics[k] = float64(v)
		}
	}

	scored := ScoreSystem(metrics, payload.Weights, nil)

	p.logger.Debug("Scored analysis",
		slog.String("job_id", job.ID),
		slog.String("system", system),
		slog.Int("score", scored.Score),
		slog.String("rationale", scored.Rationale),
	)

	label := payload.Label()
	summary := "Auto-generated analysis for " + label
	return &domain.Outcome{
		System:    system,
		Score:     scored.Score,
		Summary:   summary,
		Recipient: payload.Recipient(),
		Subject:   "Analysis ready for " + label,
		Body:      fmt.Sprintf("Your analysis is ready. Score: %d%%\n\nSummary: %s", scored.Score, summary),
	}, nil
}

// Recipient returns the address failure notices for job should go to
func (p *AnalysisProcessor) Recipient(job *domain.Job) string {
	return RecipientOf(job.Payload)
}
