package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/fgeck/gofleet-homelab/internal/models"
	"github.com/fgeck/gofleet-homelab/internal/storage"
)

// Store is an in-memory implementation of the storage interface. State is
// lost on restart.
type Store struct {
	mu sync.RWMutex

	checkpoints map[string]models.Checkpoint // key: address
	jobs        []models.Job
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		checkpoints: make(map[string]models.Checkpoint),
	}
}

func (s *Store) Close() error { return nil }

func (s *Store) SaveCheckpoint(ctx context.Context, cp *models.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpoints[cp.Address] = *cp
	return nil
}

func (s *Store) GetCheckpoint(ctx context.Context, address string) (*models.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp, exists := s.checkpoints[address]
	if !exists {
		return nil, models.ErrNotFound
	}
	return &cp, nil
}

func (s *Store) CreateJob(ctx context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, *job)
	return nil
}

func (s *Store) ListJobs(ctx context.Context, limit int) ([]*models.Job, error) {
	if limit <= 0 {
		limit = storage.DefaultJobLimit
	}

	s.mu.RLock()
	jobs := make([]*models.Job, 0, len(s.jobs))
	for i := len(s.jobs) - 1; i >= 0; i-- {
		job := s.jobs[i]
		jobs = append(jobs, &job)
	}
	s.mu.RUnlock()

	// later inserts win ties on start time
	sort.SliceStable(jobs, func(i, j int) bool {
		return jobs[i].StartedAt.After(jobs[j].StartedAt)
	})
	if len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}
