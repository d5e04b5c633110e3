package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/assessment-pipeline/internal/domain"
	"github.com/cuongbtq/assessment-pipeline/internal/metrics"
)

const failureSubject = "Your request could not be completed"

// processJob processes a claimed job with timeout, then records its result
// and notification or routes the failure
func (w *Worker) processJob(ctx context.Context, job *domain.Job) error {
	started := w.now()
	w.logState(job, StateProcessing)

	jobCtx := ctx
	if w.jobTimeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, w.jobTimeout)
		defer cancel()
	}

	outcome, err := w.processor.Process(jobCtx, job)
	if err == nil && jobCtx.Err() != nil {
		err = fmt.Errorf("job exceeded timeout of %s: %w", w.jobTimeout, jobCtx.Err())
	}
	if err != nil {
		return w.handleFailure(ctx, job, err)
	}

	result := domain.JobResult{
		JobID:     job.ID,
		TenantID:  job.TenantID,
		Status:    domain.JobStatusCompleted,
		System:    outcome.System,
		Score:     outcome.Score,
		Summary:   outcome.Summary,
		Timestamp: w.now().UTC(),
	}
	if err := w.results.AppendResult(ctx, result); err != nil {
		return w.handleFailure(ctx, job, fmt.Errorf("failed to append result: %w", err))
	}

	// The result is durable from here on, so failures below must not retry the job.
	if err := w.notify(ctx, job, outcome.Recipient, outcome.Subject, outcome.Body); err != nil {
		return err
	}

	w.metrics.JobCompleted(w.now().Sub(started))
	w.logState(job, StateCompleted)
	w.logger.Info("Job completed successfully",
		slog.String("job_id", job.ID),
		slog.String("tenant_id", job.TenantID),
		slog.Int("score", outcome.Score),
	)
	w.logState(job, StateIdle)
	return nil
}

// handleFailure retries the job with backoff or dead-letters it
func (w *Worker) handleFailure(ctx context.Context, job *domain.Job, cause error) error {
	if errors.Is(cause, domain.ErrMalformedJob) {
		if err := w.deadLetter(ctx, job, cause, metrics.ReasonMalformed); err != nil {
			return err
		}
		return cause
	}

	if job.RetryCount < job.MaxRetries {
		next := *job
		next.RetryCount++
		next.LastError = cause.Error()
		next.AvailableAt = w.now().UTC().Add(w.backoff.Delay(next.RetryCount))

		if err := w.queue.Enqueue(ctx, &next); err != nil {
			w.logger.Error("Failed to requeue job, dead-lettering instead",
				slog.String("job_id", job.ID),
				slog.String("tenant_id", job.TenantID),
				slog.String("error", err.Error()),
			)
			requeueErr := fmt.Errorf("failed to requeue job %s: %w", job.ID, err)
			if dlErr := w.deadLetter(ctx, job, errors.Join(cause, requeueErr), metrics.ReasonRequeueFailed); dlErr != nil {
				return errors.Join(requeueErr, dlErr)
			}
			return requeueErr
		}

		w.metrics.JobRetried()
		w.logger.Info("Job will be retried",
			slog.String("job_id", job.ID),
			slog.Int("retry_count", next.RetryCount),
			slog.Int("max_retries", job.MaxRetries),
			slog.Time("available_at", next.AvailableAt),
		)
		return domain.NewRetryableError(fmt.Errorf("job execution failed: %w", cause))
	}

	w.logger.Warn("Job exceeded max retries",
		slog.String("job_id", job.ID),
		slog.Int("retry_count", job.RetryCount),
		slog.Int("max_retries", job.MaxRetries),
	)
	if err := w.deadLetter(ctx, job, cause, metrics.ReasonRetriesExhausted); err != nil {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrMaxRetriesExceeded, cause)
}

// deadLetter parks the job and tells the tenant it failed
func (w *Worker) deadLetter(ctx context.Context, job *domain.Job, cause error, reason string) error {
	failed := *job
	failed.LastError = cause.Error()

	entry, err := w.deadLetters.PutDeadLetter(ctx, domain.DeadLetter{
		Job:      failed,
		Reason:   reason,
		FailedAt: w.now().UTC(),
	})
	if err != nil {
		w.logger.Error("Failed to dead-letter job",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to dead-letter job %s: %w", job.ID, err)
	}

	w.metrics.JobDeadLettered(reason)
	w.logger.Warn("Job dead-lettered",
		slog.String("job_id", job.ID),
		slog.String("dead_letter_id", entry.ID),
		slog.String("reason", reason),
	)

	body := fmt.Sprintf("We could not complete your request after %d attempt(s).\n\nReason: %s", job.RetryCount+1, reason)
	return w.notify(ctx, job, w.processor.Recipient(job), failureSubject, body)
}

// notify stages one notification and forwards it best effort
func (w *Worker) notify(ctx context.Context, job *domain.Job, recipient, subject, body string) error {
	channel := domain.ChannelInternal
	if recipient != "" {
		channel = domain.ChannelEmail
	}

	record, err := w.notifications.RecordNotification(ctx, domain.NotificationRecord{
		TenantID:  job.TenantID,
		JobID:     job.ID,
		Channel:   channel,
		Recipient: recipient,
		Subject:   subject,
		Body:      body,
		Timestamp: w.now().UTC(),
	})
	if err != nil {
		w.metrics.NotificationRecordFailed()
		w.logger.Error("Notification lost, failed to record it",
			slog.String("job_id", job.ID),
			slog.String("tenant_id", job.TenantID),
			slog.String("channel", channel),
			slog.String("recipient", recipient),
			slog.String("subject", subject),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to record notification for job %s: %w", job.ID, err)
	}
	w.metrics.NotificationRecorded(channel)

	if err := w.forwarder.Forward(ctx, record); err != nil {
		w.metrics.NotificationForwardFailed()
		w.logger.Warn("Failed to forward notification",
			slog.String("notification_id", record.ID),
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
	}
	return nil
}
