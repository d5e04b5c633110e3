package metrics

import "time"

// NoopSink discards every metric.
type NoopSink struct{}

var _ Sink = NoopSink{}

func (NoopSink) QuotaChecked(bool)           {}
func (NoopSink) QuotaRecorded()              {}
func (NoopSink) QuotaDegraded(string)        {}
func (NoopSink) JobEnqueued(string)          {}
func (NoopSink) QueueDepthUpdate(int)        {}
func (NoopSink) JobCompleted(time.Duration)  {}
func (NoopSink) JobRetried()                 {}
func (NoopSink) JobDeadLettered(string)      {}
func (NoopSink) InFlightIncr()               {}
func (NoopSink) InFlightDecr()               {}
func (NoopSink) NotificationRecorded(string) {}
func (NoopSink) NotificationForwardFailed()  {}
func (NoopSink) NotificationRecordFailed()   {}
