// Package storage persists rollback checkpoints and job history.
package storage

import (
	"context"

	"github.com/fgeck/gofleet-homelab/internal/models"
)

// DefaultJobLimit is the page size used when a caller asks for no limit.
const DefaultJobLimit = 50

// Storage defines the interface for the storage layer.
// Implementations must be safe for concurrent use.
type Storage interface {
	// Close closes the storage connection.
	Close() error

	// Checkpoints. Saving replaces any previous checkpoint of the address.
	SaveCheckpoint(ctx context.Context, cp *models.Checkpoint) error
	GetCheckpoint(ctx context.Context, address string) (*models.Checkpoint, error)

	// Jobs, listed newest first.
	CreateJob(ctx context.Context, job *models.Job) error
	ListJobs(ctx context.Context, limit int) ([]*models.Job, error)
}
