// Package common provides shared utilities and types used across the application.
package common

import (
	"errors"
	"fmt"
)

// Common application errors.
var (
	// Configuration errors.
	ErrMissingConfig = errors.New("missing configuration")
	ErrInvalidConfig = errors.New("invalid configuration")

	// Catalog errors.
	ErrNotFound        = errors.New("not found")
	ErrUpstreamTimeout = errors.New("upstream retries exhausted")
	ErrUpstreamHTTP    = errors.New("upstream returned an error status")
	ErrUpstreamFormat  = errors.New("upstream response is not valid JSON")
	ErrMetadataParse   = errors.New("metadata structure is invalid")
)

// UpstreamError carries diagnostic detail for a failed catalog call.
type UpstreamError struct {
	Err    error
	Kind   error
	Detail string
}

func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%v: %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("%v: %s", e.Kind, e.Detail)
}

func (e *UpstreamError) Unwrap() error {
	return e.Kind
}

// NewUpstreamError wraps an underlying error with one of the upstream
// error kinds above.
func NewUpstreamError(kind error, detail string, err error) error {
	return &UpstreamError{
		Kind:   kind,
		Detail: detail,
		Err:    err,
	}
}

// IsRetryable determines if an error should trigger a retry. Only transport
// failures are retried; an error status or malformed body from the upstream
// is final.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrUpstreamHTTP) ||
		errors.Is(err, ErrUpstreamFormat) ||
		errors.Is(err, ErrMissingConfig) {
		return false
	}

	var retryableErr *RetryableError
	if errors.As(err, &retryableErr) {
		return retryableErr.Retryable
	}

	return false
}
