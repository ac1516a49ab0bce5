package models

import (
	"context"
	"errors"
	"fmt"
)

// Host-scoped and request-level errors.
var (
	ErrAuthFailed        = errors.New("authentication failed")
	ErrUnreachable       = errors.New("host unreachable")
	ErrTimeout           = errors.New("host operation timed out")
	ErrConfigUnavailable = errors.New("configuration unavailable")
	ErrRollback          = errors.New("rollback failed")
	ErrNoCheckpoint      = errors.New("no checkpoint")
	ErrInvalidRequest    = errors.New("invalid request")
	ErrNotFound          = errors.New("not found")
)

// ExecError reports a command that failed in the middle of a batch.
type ExecError struct {
	Index   int // zero-based position in the batch
	Command string
	Err     error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("command %d (%q) failed: %v", e.Index+1, e.Command, e.Err)
}

func (e *ExecError) Unwrap() error {
	return e.Err
}

// StatusFor classifies a host-scoped error.
func StatusFor(err error) Status {
	var execErr *ExecError
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return StatusTimeout
	case errors.Is(err, ErrAuthFailed):
		return StatusAuthFailed
	case errors.Is(err, ErrUnreachable):
		return StatusUnreachable
	case errors.As(err, &execErr):
		return StatusPartial
	case errors.Is(err, ErrConfigUnavailable):
		return StatusConfigUnavailable
	case errors.Is(err, ErrRollback):
		return StatusRollbackFailed
	case errors.Is(err, ErrNoCheckpoint):
		return StatusNoCheckpoint
	default:
		return StatusError
	}
}
