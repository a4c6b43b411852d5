package errors

import (
	"errors"
	"fmt"
)

var (
	ErrJobNotFound          = errors.New("job not found")
	ErrJobActive            = errors.New("job is active")
	ErrJobFinished          = errors.New("job already finished")
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrUnsupportedOperation = errors.New("operation not supported")
	ErrShuttingDown         = errors.New("orchestrator is shutting down")
)

// ValidationError reports a bad or incompatible option set, rejected
// before any process is spawned.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid options: " + e.Reason
	}
	return fmt.Sprintf("invalid option %q: %s", e.Field, e.Reason)
}

// NewValidation builds a ValidationError for a single field.
func NewValidation(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// SpawnError reports that the downloader executable could not be started.
// It is terminal for the job and never retried automatically.
type SpawnError struct {
	Path string
	Err  error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %s: %v", e.Path, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}
