package common

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// RetryableError wraps an error with retry-specific metadata.
type RetryableError struct {
	Err       error
	Retryable bool
}

func (e *RetryableError) Error() string {
	return e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// RetryOptions configures retry behavior for an operation.
type RetryOptions struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// WithRetry executes an operation with linear backoff: attempt n sleeps
// n+1 base delays before the next try. Non-retryable errors (see
// IsRetryable) abort immediately. When all attempts fail, the last error
// is wrapped in ErrUpstreamTimeout so callers can distinguish an exhausted
// upstream from a hard failure.
func WithRetry(ctx context.Context, operation func() error, opts RetryOptions) error {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = time.Second
	}

	var lastErr error

	for attempt := 0; attempt < opts.MaxAttempts; attempt++ {
		err := operation()
		if err == nil {
			return nil
		}

		if !IsRetryable(err) {
			return err
		}
		lastErr = err

		if attempt == opts.MaxAttempts-1 {
			break
		}

		delay := time.Duration(attempt+1) * opts.BaseDelay

		slog.Warn("operation failed, retrying",
			"attempt", attempt+1,
			"max_attempts", opts.MaxAttempts,
			"delay", delay,
			"error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	var inner error = lastErr
	var retryable *RetryableError
	if errors.As(lastErr, &retryable) {
		inner = retryable.Err
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrUpstreamTimeout, opts.MaxAttempts, inner)
}
