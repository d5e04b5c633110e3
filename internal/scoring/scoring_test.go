package scoring

import (
	"context"
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/assessment-pipeline/internal/domain"
)

func TestNormalizeSystemKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "investigation"},
		{"  ", "investigation"},
		{"Dependencies", "interdependency"},
		{"dependency", "interdependency"},
		{"analysis", "investigation"},
		{"research", "investigation"},
		{"insights", "interpretation"},
		{"Reporting", "illustration"},
		{"visualization", "illustration"},
		{"coordination", "inlignment"},
		{"strategy", "inlignment"},
		{"alignment", "inlignment"},
		{"inlign", "inlignment"},
		{"orchestration", "orchestration"},
		{"custom", "custom"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeSystemKey(tt.in))
		})
	}
}

func TestDetectSystems(t *testing.T) {
	t.Run("matches names in the text", func(t *testing.T) {
		assert.Equal(t, []string{"orchestration"}, DetectSystems("Orchestration_Q3.xlsx"))
		assert.Equal(t, []string{"investigation", "inlignment"}, DetectSystems("investig + alignment.csv"))
	})

	t.Run("falls back to two distinct systems deterministically", func(t *testing.T) {
		first := DetectSystems("quarterly.csv")
		second := DetectSystems("quarterly.csv")

		require.Len(t, first, 2)
		assert.Equal(t, first, second)
		assert.NotEqual(t, first[0], first[1])
		assert.True(t, IsCanonical(first[0]))
		assert.True(t, IsCanonical(first[1]))
	})
}

func TestDeterministicMetrics(t *testing.T) {
	m := DeterministicMetrics("org-a", "orchestration")

	assert.Equal(t, m, DeterministicMetrics("org-a", "orchestration"))
	assert.GreaterOrEqual(t, m["throughput"], 55)
	assert.LessOrEqual(t, m["throughput"], 95)
	assert.GreaterOrEqual(t, m["cycle_time"], 50)
	assert.LessOrEqual(t, m["cycle_time"], 95)
	assert.GreaterOrEqual(t, m["quality"], 45)
	assert.LessOrEqual(t, m["quality"], 94)
	assert.GreaterOrEqual(t, m["predictability"], 40)
	assert.LessOrEqual(t, m["predictability"], 94)
}

func TestScoreSystem(t *testing.T) {
	t.Run("unweighted mean with ratios scaled", func(t *testing.T) {
		s := ScoreSystem(map[string]float64{"a": 0.5, "b": 80}, nil, nil)

		assert.Equal(t, 65, s.Score)
		assert.Equal(t, 1.0, s.Coverage)
		assert.Equal(t, "Top drivers: b (80), a (50)", s.Rationale)
	})

	t.Run("weights shift the mean and driver order", func(t *testing.T) {
		s := ScoreSystem(map[string]float64{"a": 50, "b": 80}, map[string]float64{"a": 3}, nil)

		assert.Equal(t, 58, s.Score)
		require.Len(t, s.Drivers, 2)
		assert.Equal(t, "a", s.Drivers[0].Key)
	})

	t.Run("invalid values are dropped from coverage", func(t *testing.T) {
		s := ScoreSystem(map[string]float64{"a": 70, "b": math.NaN()}, nil, nil)

		assert.Equal(t, 70, s.Score)
		assert.Equal(t, 0.5, s.Coverage)
	})

	t.Run("coverage against required keys", func(t *testing.T) {
		s := ScoreSystem(map[string]float64{"a": 70}, nil, []string{"a", "b", "c", "d"})
		assert.Equal(t, 0.25, s.Coverage)
	})

	t.Run("values are clipped", func(t *testing.T) {
		s := ScoreSystem(map[string]float64{"a": 250}, nil, nil)
		assert.Equal(t, 100, s.Score)
	})

	t.Run("no data", func(t *testing.T) {
		s := ScoreSystem(nil, nil, nil)
		assert.Equal(t, 0, s.Score)
		assert.Equal(t, "No data", s.Rationale)
	})
}

func TestScoreSystem_UnusualWeights(t *testing.T) {
	tests := []struct {
		name    string
		metrics map[string]float64
		weights map[string]float64
		want    int
	}{
		{
			name:    "huge weights do not overflow",
			metrics: map[string]float64{"a": 50, "b": 80},
			weights: map[string]float64{"a": 1e308, "b": 1e308},
			want:    65,
		},
		{
			name:    "huge weight dominates a tiny one",
			metrics: map[string]float64{"a": 20, "b": 100},
			weights: map[string]float64{"a": math.MaxFloat64, "b": 1e-308},
			want:    20,
		},
		{
			name:    "infinite weight counts as one",
			metrics: map[string]float64{"a": 50, "b": 80},
			weights: map[string]float64{"a": math.Inf(1), "b": math.Inf(-1)},
			want:    65,
		},
		{
			name:    "negative weight drops the metric",
			metrics: map[string]float64{"a": 20, "b": 100},
			weights: map[string]float64{"b": -5},
			want:    20,
		},
		{
			name:    "all weights negative falls back to the plain mean",
			metrics: map[string]float64{"a": 20, "b": 100},
			weights: map[string]float64{"a": -1, "b": -2},
			want:    60,
		},
		{
			name:    "zero weights fall back to the plain mean",
			metrics: map[string]float64{"a": 20, "b": 100},
			weights: map[string]float64{"a": 0, "b": 0},
			want:    60,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := ScoreSystem(tt.metrics, tt.weights, nil)

			assert.Equal(t, tt.want, s.Score)
			assert.GreaterOrEqual(t, s.Score, 0)
			assert.LessOrEqual(t, s.Score, 100)
			for _, d := range s.Drivers {
				assert.False(t, math.IsNaN(d.Weighted) || math.IsInf(d.Weighted, 0), d.Key)
			}
			_, err := json.Marshal(s)
			assert.NoError(t, err)
		})
	}
}

func TestAnalysisProcessor_Process(t *testing.T) {
	p := NewAnalysisProcessor(nil, 0)

	tests := []struct {
		name    string
		job     domain.Job
		wantErr error
		check   func(t *testing.T, out *domain.Outcome)
	}{
		{
			name: "named upload with recipient",
			job: domain.Job{
				ID: "j1", TenantID: "org-a", Kind: domain.JobKindAnalysis,
				Payload: json.RawMessage(`{"name":"orchestration.xlsx","org_email":"ops@a.test","notify_to":"lead@a.test"}`),
			},
			check: func(t *testing.T, out *domain.Outcome) {
				assert.Equal(t, "orchestration", out.System)
				assert.Equal(t, "Auto-generated analysis for orchestration.xlsx", out.Summary)
				assert.Equal(t, "lead@a.test", out.Recipient)
				assert.Equal(t, "Analysis ready for orchestration.xlsx", out.Subject)
				assert.Contains(t, out.Body, "Your analysis is ready. Score: ")
				assert.Contains(t, out.Body, "\n\nSummary: Auto-generated analysis for orchestration.xlsx")
				assert.GreaterOrEqual(t, out.Score, 0)
				assert.LessOrEqual(t, out.Score, 100)
			},
		},
		{
			name: "system only with explicit metrics",
			job: domain.Job{
				ID: "j2", TenantID: "org-b", Kind: domain.JobKindAnalysis,
				Payload: json.RawMessage(`{"system":"reporting","metrics":{"quality":0.9,"throughput":70}}`),
			},
			check: func(t *testing.T, out *domain.Outcome) {
				assert.Equal(t, "illustration", out.System)
				assert.Equal(t, 80, out.Score)
				assert.Empty(t, out.Recipient)
				assert.Equal(t, "Analysis ready for reporting", out.Subject)
			},
		},
		{
			name:    "unknown kind",
			job:     domain.Job{Kind: "render", Payload: json.RawMessage(`{"name":"x"}`)},
			wantErr: domain.ErrMalformedJob,
		},
		{
			name:    "payload is not an object",
			job:     domain.Job{Kind: domain.JobKindAnalysis, Payload: json.RawMessage(`[1,2]`)},
			wantErr: domain.ErrMalformedJob,
		},
		{
			name:    "payload without name or system",
			job:     domain.Job{Kind: domain.JobKindAnalysis, Payload: json.RawMessage(`{"org_email":"a@b.c"}`)},
			wantErr: domain.ErrMalformedJob,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := p.Process(context.Background(), &tt.job)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, out)
				return
			}
			require.NoError(t, err)
			tt.check(t, out)
		})
	}
}

func TestAnalysisProcessor_Deterministic(t *testing.T) {
	p := NewAnalysisProcessor(nil, 0)
	job := &domain.Job{TenantID: "org-a", Kind: domain.JobKindAnalysis, Payload: json.RawMessage(`{"system":"orchestration"}`)}

	first, err := p.Process(context.Background(), job)
	require.NoError(t, err)
	second, err := p.Process(context.Background(), job)
	require.NoError(t, err)

	assert.Equal(t, first.Score, second.Score)
}

func TestAnalysisProcessor_DelayHonoursContext(t *testing.T) {
	p := NewAnalysisProcessor(nil, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Process(ctx, &domain.Job{Kind: domain.JobKindAnalysis, Payload: json.RawMessage(`{"name":"x"}`)})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRecipientOf(t *testing.T) {
	assert.Equal(t, "ops@a.test", RecipientOf(json.RawMessage(`{"org_email":"ops@a.test"}`)))
	assert.Empty(t, RecipientOf(json.RawMessage(`not json`)))
}
