package metrics

import (
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusSink implements Sink using the Prometheus client library.
// Registration errors are logged but never propagated.
type PrometheusSink struct {
	logger *slog.Logger

	quotaChecksTotal   *prometheus.CounterVec
	quotaRecordsTotal  prometheus.Counter
	quotaDegradedTotal *prometheus.CounterVec

	jobsEnqueuedTotal *prometheus.CounterVec
	queueDepth        prometheus.Gauge

	jobsCompletedTotal    prometheus.Counter
	jobDuration           prometheus.Histogram
	jobRetriesTotal       prometheus.Counter
	jobsDeadLetteredTotal *prometheus.CounterVec
	jobsInFlight          prometheus.Gauge

	notificationsTotal          *prometheus.CounterVec
	notificationForwardFailures prometheus.Counter
	notificationRecordFailures  prometheus.Counter
}

var _ Sink = (*PrometheusSink)(nil)

// NewPrometheusSink creates a new Prometheus metrics sink registered on reg.
func NewPrometheusSink(reg prometheus.Registerer, logger *slog.Logger) *PrometheusSink {
	if logger == nil {
		logger = slog.Default()
	}
	s := &PrometheusSink{logger: logger}
	s.initQuotaMetrics(reg)
	s.initQueueMetrics(reg)
	s.initWorkerMetrics(reg)
	s.initNotificationMetrics(reg)
	return s
}

func (s *PrometheusSink) initQuotaMetrics(reg prometheus.Registerer) {
	s.quotaChecksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_quota_checks_total",
		Help: "Total number of quota checks by outcome.",
	}, []string{"allowed"})
	s.quotaRecordsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pipeline_quota_records_total",
		Help: "Total number of recorded metered runs.",
	})
	s.quotaDegradedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_quota_degraded_total",
		Help: "Quota operations that failed open because storage was unavailable.",
	}, []string{"op"})

	s.register(reg, s.quotaChecksTotal, "pipeline_quota_checks_total")
	s.register(reg, s.quotaRecordsTotal, "pipeline_quota_records_total")
	s.register(reg, s.quotaDegradedTotal, "pipeline_quota_degraded_total")
}

func (s *PrometheusSink) initQueueMetrics(reg prometheus.Registerer) {
	s.jobsEnqueuedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_jobs_enqueued_total",
		Help: "Total number of jobs enqueued by kind.",
	}, []string{"kind"})
	s.queueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pipeline_queue_depth",
		Help: "Number of jobs waiting in the queue.",
	})

	s.register(reg, s.jobsEnqueuedTotal, "pipeline_jobs_enqueued_total")
	s.register(reg, s.queueDepth, "pipeline_queue_depth")
}

func (s *PrometheusSink) initWorkerMetrics(reg prometheus.Registerer) {
	s.jobsCompletedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pipeline_jobs_completed_total",
		Help: "Total number of jobs that produced a result.",
	})
	s.jobDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "pipeline_job_duration_seconds",
		Help:    "Processing time of completed jobs in seconds.",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})
	s.jobRetriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pipeline_job_retries_total",
		Help: "Total number of jobs re-enqueued after a processing failure.",
	})
	s.jobsDeadLetteredTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_jobs_dead_lettered_total",
		Help: "Total number of jobs moved to the dead-letter store by reason.",
	}, []string{"reason"})
	s.jobsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pipeline_jobs_in_flight",
		Help: "Number of jobs currently being processed.",
	})

	s.register(reg, s.jobsCompletedTotal, "pipeline_jobs_completed_total")
	s.register(reg, s.jobDuration, "pipeline_job_duration_seconds")
	s.register(reg, s.jobRetriesTotal, "pipeline_job_retries_total")
	s.register(reg, s.jobsDeadLetteredTotal, "pipeline_jobs_dead_lettered_total")
	s.register(reg, s.jobsInFlight, "pipeline_jobs_in_flight")
}

func (s *PrometheusSink) initNotificationMetrics(reg prometheus.Registerer) {
	s.notificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_notifications_total",
		Help: "Total number of notifications recorded by channel.",
	}, []string{"channel"})
	s.notificationForwardFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pipeline_notification_forward_failures_total",
		Help: "Notifications recorded but not handed to the delivery transport.",
	})

	s.notificationRecordFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pipeline_notification_record_failures_total",
		Help: "Notifications lost because the notification sink rejected them.",
	})

	s.register(reg, s.notificationsTotal, "pipeline_notifications_total")
	s.register(reg, s.notificationForwardFailures, "pipeline_notification_forward_failures_total")
	s.register(reg, s.notificationRecordFailures, "pipeline_notification_record_failures_total")
}

func (s *PrometheusSink) register(reg prometheus.Registerer, c prometheus.Collector, name string) {
	if reg == nil {
		return
	}
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			return
		}
		s.logger.Warn("Failed to register metric",
			slog.String("metric", name),
			slog.String("error", err.Error()),
		)
	}
}

func (s *PrometheusSink) QuotaChecked(allowed bool) {
	s.quotaChecksTotal.WithLabelValues(strconv.FormatBool(allowed)).Inc()
}

func (s *PrometheusSink) QuotaRecorded() {
	s.quotaRecordsTotal.Inc()
}

func (s *PrometheusSink) QuotaDegraded(op string) {
	s.quotaDegradedTotal.WithLabelValues(op).Inc()
}

func (s *PrometheusSink) JobEnqueued(kind string) {
	s.jobsEnqueuedTotal.WithLabelValues(kind).Inc()
}

func (s *PrometheusSink) QueueDepthUpdate(depth int) {
	s.queueDepth.Set(float64(depth))
}

func (s *PrometheusSink) JobCompleted(duration time.Duration) {
	s.jobsCompletedTotal.Inc()
	s.jobDuration.Observe(duration.Seconds())
}

func (s *PrometheusSink) JobRetried() {
	s.jobRetriesTotal.Inc()
}

func (s *PrometheusSink) JobDeadLettered(reason string) {
	s.jobsDeadLetteredTotal.WithLabelValues(reason).Inc()
}

func (s *PrometheusSink) InFlightIncr() {
	s.jobsInFlight.Inc()
}

func (s *PrometheusSink) InFlightDecr() {
	s.jobsInFlight.Dec()
}

func (s *PrometheusSink) NotificationRecorded(channel string) {
	s.notificationsTotal.WithLabelValues(channel).Inc()
}

func (s *PrometheusSink) NotificationForwardFailed() {
	s.notificationForwardFailures.Inc()
}

func (s *PrometheusSink) NotificationRecordFailed() {
	s.notificationRecordFailures.Inc()
}
