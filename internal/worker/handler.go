package worker

import (
	"context"
	"errors"
)

// Job is a unit of periodic background work.
type Job interface {
	// Type returns the job identifier used in logs and metrics.
	Type() string

	// Run executes one pass. Return a PermanentError to stop scheduling
	// the job for the rest of the process lifetime.
	Run(ctx context.Context) error
}

// PermanentError wraps an error to indicate the job should not run again.
type PermanentError struct {
	Err error
}

// Error implements the error interface.
func (e *PermanentError) Error() string {
	return e.Err.Error()
}

// Unwrap allows errors.Is and errors.As to work with PermanentError.
func (e *PermanentError) Unwrap() error {
	return e.Err
}

// NewPermanentError creates a new PermanentError that wraps the given error.
func NewPermanentError(err error) error {
	return &PermanentError{Err: err}
}

// IsPermanent checks if an error is a PermanentError.
// Returns true if the error (or any error it wraps) is a PermanentError.
func IsPermanent(err error) bool {
	var permErr *PermanentError
	return errors.As(err, &permErr)
}
