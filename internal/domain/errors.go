package domain

import "errors"

var (
	// ErrStorageUnavailable wraps any persistence failure
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrMalformedJob is returned when a job is missing required fields; such jobs are never retried
	ErrMalformedJob = errors.New("malformed job")

	// ErrMaxRetriesExceeded is returned when a job failed and has no retries left
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")

	// ErrQuotaExceeded is returned by the submission path when the tenant has no runs left today
	ErrQuotaExceeded = errors.New("daily quota exceeded")
)

// RetryableError wraps transient errors that should trigger a requeue
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable error: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}

// StorageError marks err as a persistence failure while keeping the cause.
func StorageError(op string, err error) error {
	return &storageError{op: op, err: err}
}

type storageError struct {
	op  string
	err error
}

func (e *storageError) Error() string {
	return "failed to " + e.op + ": " + e.err.Error()
}

func (e *storageError) Unwrap() []error {
	return []error{ErrStorageUnavailable, e.err}
}
