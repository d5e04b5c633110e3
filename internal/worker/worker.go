// Package worker drains the job queue out of band. Each pass claims one job,
// processes it, writes the result and stages exactly one notification.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/assessment-pipeline/internal/backoff"
	"github.com/cuongbtq/assessment-pipeline/internal/domain"
	"github.com/cuongbtq/assessment-pipeline/internal/metrics"
	"github.com/cuongbtq/assessment-pipeline/internal/notify"
	"github.com/cuongbtq/assessment-pipeline/internal/storage"
	"github.com/google/uuid"
)

// Processor does the actual work for a claimed job. Returning an error
// wrapping domain.ErrMalformedJob sends the job straight to the dead-letter
// store; any other error is retried.
type Processor interface {
	Process(ctx context.Context, job *domain.Job) (*domain.Outcome, error)
	// Recipient names who is told when job fails for good. "" means internal only.
	Recipient(job *domain.Job) string
}

// State is a worker slot's position in the processing cycle
type State string

const (
	StateIdle       State = "idle"
	StateClaimed    State = "claimed"
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
)

// Config holds worker configuration
type Config struct {
	Logger        *slog.Logger
	Queue         storage.JobQueue
	Results       storage.ResultLog
	Notifications storage.NotificationSink
	DeadLetters   storage.DeadLetterStore
	Forwarder     notify.Forwarder
	Processor     Processor
	Metrics       metrics.Sink
	Backoff       backoff.Strategy
	WorkerID      string
	Concurrency   int
	PollInterval  time.Duration
	JobTimeout    time.Duration
	Clock         func() time.Time
}

// Worker represents the background job worker
type Worker struct {
	logger        *slog.Logger
	queue         storage.JobQueue
	results       storage.ResultLog
	notifications storage.NotificationSink
	deadLetters   storage.DeadLetterStore
	forwarder     notify.Forwarder
	processor     Processor
	metrics       metrics.Sink
	backoff       backoff.Strategy
	workerID      string
	concurrency   int
	pollInterval  time.Duration
	jobTimeout    time.Duration
	now           func() time.Time

	wg       sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	w := &Worker{
		logger:        cfg.Logger,
		queue:         cfg.Queue,
		results:       cfg.Results,
		notifications: cfg.Notifications,
		deadLetters:   cfg.DeadLetters,
		forwarder:     cfg.Forwarder,
		processor:     cfg.Processor,
		metrics:       cfg.Metrics,
		backoff:       cfg.Backoff,
		workerID:      cfg.WorkerID,
		concurrency:   cfg.Concurrency,
		pollInterval:  cfg.PollInterval,
		jobTimeout:    cfg.JobTimeout,
		now:           cfg.Clock,
		stopChan:      make(chan struct{}),
	}

	if w.logger == nil {
		w.logger = slog.Default()
	}
	if w.forwarder == nil {
		w.forwarder = notify.NewLogForwarder(w.logger)
	}
	if w.metrics == nil {
		w.metrics = metrics.NoopSink{}
	}
	if w.backoff == nil {
		w.backoff = backoff.DefaultStrategy()
	}
	if w.workerID == "" {
		w.workerID = "worker-" + uuid.New().String()[:8]
	}
	if w.concurrency <= 0 {
		w.concurrency = 1
	}
	if w.pollInterval <= 0 {
		w.pollInterval = time.Second
	}
	if w.now == nil {
		w.now = time.Now
	}

	return w
}

// Start spawns the worker pool and blocks until ctx is canceled or Stop is called
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
		slog.Duration("poll_interval", w.pollInterval),
		slog.Duration("job_timeout", w.jobTimeout),
	)

	w.spawnWorkerPool(ctx)

	select {
	case <-ctx.Done():
		w.logger.Info("Worker context canceled, stopping...")
	case <-w.stopChan:
	}

	return nil
}

// Stop stops claiming new jobs and waits for in-flight passes to finish
func (w *Worker) Stop() {
	w.logger.Info("Stopping worker...")
	w.stopOnce.Do(func() {
		close(w.stopChan)
	})
	w.wg.Wait()
	w.logger.Info("Worker stopped")
}

// DequeueAndProcess runs one pass. It reports whether a job was claimed.
// The returned error describes what happened to that job (retried,
// dead-lettered) or why claiming failed; it never means the worker is unusable.
//
// Once a job is claimed, processing is detached from ctx's cancellation so
// a shutdown does not abandon it halfway. The job timeout still applies.
func (w *Worker) DequeueAndProcess(ctx context.Context) (bool, error) {
	job, err := w.queue.Dequeue(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to dequeue job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	w.metrics.InFlightIncr()
	defer w.metrics.InFlightDecr()
	w.logState(job, StateClaimed)

	if depth, err := w.queue.Len(ctx); err == nil {
		w.metrics.QueueDepthUpdate(depth)
	}

	return true, w.processJob(context.WithoutCancel(ctx), job)
}

func (w *Worker) logState(job *domain.Job, state State) {
	w.logger.Debug("Job state changed",
		slog.String("worker_id", w.workerID),
		slog.String("job_id", job.ID),
		slog.String("state", string(state)),
	)
}
