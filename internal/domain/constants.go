package domain

import "strings"

// JobStatusCompleted marks a result produced by a successful run
const JobStatusCompleted = "completed"

// Job kinds accepted by the pipeline
const (
	JobKindAnalysis = "analysis"
)

// Notification channels
const (
	ChannelEmail    = "email"
	ChannelInternal = "internal"
)

// AnonymousTenant is used when a caller does not identify itself.
const AnonymousTenant = "anonymous"

// DefaultDailyLimit is the number of metered runs a tenant gets per UTC day.
const DefaultDailyLimit = 3

// DefaultMaxRetries is applied to jobs enqueued without an explicit retry budget.
const DefaultMaxRetries = 3

// NormalizeTenant trims the identifier and falls back to AnonymousTenant.
func NormalizeTenant(tenantID string) string {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return AnonymousTenant
	}
	return tenantID
}
