package sql

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/fgeck/gofleet-homelab/internal/models"
	"github.com/fgeck/gofleet-homelab/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ storage.Storage = (*Store)(nil)

func newSQLiteStore(t *testing.T) *Store {
	t.Helper()
	s, err := New("sqlite3", filepath.Join(t.TempDir(), "fleet.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestNew_UnknownDriver(t *testing.T) {
	_, err := New("oracle", "whatever")
	assert.Error(t, err)
}

func TestCheckpoint_Upsert(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)
	now := time.Now().UTC().Truncate(time.Second)

	_, err := s.GetCheckpoint(ctx, "10.0.0.1")
	assert.ErrorIs(t, err, models.ErrNotFound)

	require.NoError(t, s.SaveCheckpoint(ctx, &models.Checkpoint{
		Address: "10.0.0.1", Snapshot: "hostname r1\n", JobID: "job-1", CreatedAt: now,
	}))
	require.NoError(t, s.SaveCheckpoint(ctx, &models.Checkpoint{
		Address: "10.0.0.1", Snapshot: "hostname r1-new\n", JobID: "job-2", CreatedAt: now.Add(time.Minute),
	}))

	cp, err := s.GetCheckpoint(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, "hostname r1-new\n", cp.Snapshot)
	assert.Equal(t, "job-2", cp.JobID)
	assert.WithinDuration(t, now.Add(time.Minute), cp.CreatedAt, time.Second)
}

func TestJobs_ListNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)
	base := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		require.NoError(t, s.CreateJob(ctx, &models.Job{
			ID:         fmt.Sprintf("job-%d", i),
			Kind:       models.JobRun,
			Devices:    3,
			Succeeded:  2,
			Failed:     1,
			Dry:        i%2 == 0,
			StartedAt:  base.Add(time.Duration(i) * time.Minute),
			FinishedAt: base.Add(time.Duration(i)*time.Minute + time.Second),
		}))
	}

	jobs, err := s.ListJobs(ctx, 2)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "job-3", jobs[0].ID)
	assert.Equal(t, "job-2", jobs[1].ID)
	assert.Equal(t, models.JobRun, jobs[0].Kind)
	assert.False(t, jobs[0].Dry)
	assert.True(t, jobs[1].Dry)
	assert.Equal(t, 3, jobs[0].Devices)
	assert.Equal(t, 1, jobs[0].Failed)

	all, err := s.ListJobs(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestNew_ReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "fleet.db")

	s, err := New("sqlite3", path)
	require.NoError(t, err)
	require.NoError(t, s.SaveCheckpoint(ctx, &models.Checkpoint{Address: "a", Snapshot: "v1", CreatedAt: time.Now()}))
	require.NoError(t, s.Close())

	s, err = New("sqlite3", path)
	require.NoError(t, err)
	defer s.Close()

	cp, err := s.GetCheckpoint(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "v1", cp.Snapshot)
}
