package metrics

import "time"

// Sink defines the interface for recording metrics.
// All methods are fire-and-forget: implementations MUST NOT block or propagate errors.
type Sink interface {
	// Quota metrics
	QuotaChecked(allowed bool)
	QuotaRecorded()
	QuotaDegraded(op string)

	// Queue metrics
	JobEnqueued(kind string)
	QueueDepthUpdate(depth int)

	// Worker metrics
	JobCompleted(duration time.Duration)
	JobRetried()
	JobDeadLettered(reason string)
	InFlightIncr()
	InFlightDecr()

	// Notification metrics
	NotificationRecorded(channel string)
	NotificationForwardFailed()
	NotificationRecordFailed()
}

// Dead-letter reasons for JobDeadLettered.
const (
	ReasonMalformed        = "malformed"
	ReasonRetriesExhausted = "retries_exhausted"
	ReasonRequeueFailed    = "requeue_failed"
)
