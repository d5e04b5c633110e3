package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/assessment-pipeline/internal/domain"
)

// spawnWorkerPool spawns N worker goroutines based on concurrency configuration
func (w *Worker) spawnWorkerPool(ctx context.Context) {
	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx, i)
	}

	w.logger.Info("Worker pool spawned",
		slog.Int("worker_count", w.concurrency),
	)
}

// workerLoop polls the queue until stopped, sleeping pollInterval whenever
// there was nothing to claim
func (w *Worker) workerLoop(ctx context.Context, workerNum int) {
	defer w.wg.Done()

	workerName := fmt.Sprintf("%s-%d", w.workerID, workerNum)
	w.logger.Debug("Worker goroutine started",
		slog.String("worker_name", workerName),
	)

	for {
		select {
		case <-w.stopChan:
			w.logger.Debug("Worker goroutine stopping - stopChan closed",
				slog.String("worker_name", workerName),
			)
			return
		case <-ctx.Done():
			w.logger.Debug("Worker goroutine stopping - context canceled",
				slog.String("worker_name", workerName),
			)
			return
		default:
		}

		processed, err := w.DequeueAndProcess(ctx)
		if err != nil {
			w.logPassError(workerName, err)
		}
		if processed {
			continue
		}

		timer := time.NewTimer(w.pollInterval)
		select {
		case <-w.stopChan:
			timer.Stop()
			return
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (w *Worker) logPassError(workerName string, err error) {
	var retryableErr *domain.RetryableError
	switch {
	case errors.As(err, &retryableErr):
		w.logger.Warn("Job failed, scheduled for retry",
			slog.String("worker_name", workerName),
			slog.String("error", err.Error()),
		)
	case errors.Is(err, domain.ErrMalformedJob), errors.Is(err, domain.ErrMaxRetriesExceeded):
		w.logger.Warn("Job dead-lettered",
			slog.String("worker_name", workerName),
			slog.String("error", err.Error()),
		)
	default:
		w.logger.Error("Worker pass failed",
			slog.String("worker_name", workerName),
			slog.String("error", err.Error()),
		)
	}
}
