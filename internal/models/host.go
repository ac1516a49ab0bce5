package models

import (
	"fmt"
	"time"
)

// Credentials are forwarded opaquely to the transport for a single request.
type Credentials struct {
	User     string `json:"user"`
	Password string `json:"pwd"`
	Secret   string `json:"secret"` // elevation token, only used if the host asks for it
}

// HostTarget identifies one host of a fleet request.
type HostTarget struct {
	Address string
	Auth    Credentials
}

// ValidateTargets rejects an empty fleet, empty addresses and duplicates.
func ValidateTargets(targets []HostTarget) error {
	if len(targets) == 0 {
		return fmt.Errorf("%w: no target hosts", ErrInvalidRequest)
	}
	seen := make(map[string]struct{}, len(targets))
	for i, t := range targets {
		if t.Address == "" {
			return fmt.Errorf("%w: target %d has an empty address", ErrInvalidRequest, i+1)
		}
		if _, dup := seen[t.Address]; dup {
			return fmt.Errorf("%w: duplicate address %s", ErrInvalidRequest, t.Address)
		}
		seen[t.Address] = struct{}{}
	}
	return nil
}

// Status is the terminal state of one host's operation.
type Status string

// Host statuses.
const (
	StatusOK                Status = "ok"
	StatusAuthFailed        Status = "auth_failed"
	StatusUnreachable       Status = "unreachable"
	StatusTimeout           Status = "timeout"
	StatusPartial           Status = "partial"
	StatusConfigUnavailable Status = "config_unavailable"
	StatusRollbackFailed    Status = "rollback_failed"
	StatusNoCheckpoint      Status = "no_checkpoint"
	StatusSkipped           Status = "skipped"
	StatusError             Status = "error"
)

// HostResult holds the outcome of one host's operation.
type HostResult struct {
	Address      string
	Status       Status
	Output       []string
	ConfigBefore *string
	ConfigAfter  *string
	Diff         []string
	DiffStat     DiffStat
	Duration     time.Duration
	Err          error
}

// Failed reports whether the host did not reach a successful terminal state.
func (r HostResult) Failed() bool {
	return r.Status != StatusOK && r.Status != StatusNoCheckpoint && r.Status != StatusSkipped
}

// ErrorMessage returns the error text or an empty string.
func (r HostResult) ErrorMessage() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// DiffStat counts changed lines of a host's configuration diff.
type DiffStat struct {
	Added   int
	Changed int
	Deleted int
}
