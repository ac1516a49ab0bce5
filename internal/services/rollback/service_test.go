package rollback

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/fgeck/gofleet-homelab/internal/models"
	"github.com/fgeck/gofleet-homelab/internal/services/diff"
	"github.com/fgeck/gofleet-homelab/internal/services/dispatch"
	"github.com/fgeck/gofleet-homelab/internal/services/jobs"
	"github.com/fgeck/gofleet-homelab/internal/services/runner"
	"github.com/fgeck/gofleet-homelab/internal/services/ssh"
	"github.com/fgeck/gofleet-homelab/internal/storage/memory"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDevice keeps a running config; exec appends commands and rollback
// replaces the whole config.
type fakeDevice struct {
	mu       sync.Mutex
	config   string
	applied  []string
	applyErr error
}

func (d *fakeDevice) FetchConfig(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.config, nil
}

func (d *fakeDevice) Exec(ctx context.Context, commands []string) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, c := range commands {
		d.config += c + "\n"
	}
	return commands, nil
}

func (d *fakeDevice) ApplyRollback(ctx context.Context, snapshot string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.applied = append(d.applied, snapshot)
	if d.applyErr != nil {
		return fmt.Errorf("%w: %w", models.ErrRollback, d.applyErr)
	}
	d.config = snapshot
	return nil
}

func (d *fakeDevice) Close() error { return nil }

type mockSSHService struct {
	mu       sync.Mutex
	devices  map[string]*fakeDevice
	connects map[string]int
}

func newMockSSHService(devices map[string]*fakeDevice) *mockSSHService {
	return &mockSSHService{devices: devices, connects: make(map[string]int)}
}

func (m *mockSSHService) Connect(ctx context.Context, target models.HostTarget) (ssh.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connects[target.Address]++
	d, ok := m.devices[target.Address]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrUnreachable, target.Address)
	}
	return d, nil
}

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func fleet(addrs ...string) []models.HostTarget {
	out := make([]models.HostTarget, len(addrs))
	for i, a := range addrs {
		out[i] = models.HostTarget{Address: a}
	}
	return out
}

func newService(sshSvc ssh.Service, store *memory.Store) *Impl {
	logger := testLogger()
	return NewWithServices(
		logger,
		sshSvc,
		dispatch.New(logger, models.DispatchSettings{HostTimeout: time.Second}),
		jobs.New(logger, store, nil),
		store,
	)
}

func TestRollback_NoCheckpoint(t *testing.T) {
	store := memory.New()
	sshSvc := newMockSSHService(map[string]*fakeDevice{"r1": {config: "x"}})
	svc := newService(sshSvc, store)

	result, err := svc.Rollback(context.Background(), fleet("r1"))
	require.NoError(t, err)

	require.Len(t, result.Hosts, 1)
	assert.Equal(t, models.StatusNoCheckpoint, result.Hosts[0].Status)
	assert.NoError(t, result.Hosts[0].Err)
	assert.False(t, result.Hosts[0].Failed())
	assert.Equal(t, 0, sshSvc.connects["r1"], "hosts without a checkpoint are not contacted")
	assert.Equal(t, 0, result.Job.Failed)
}

func TestRollback_AppliesCheckpoint(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	dev := &fakeDevice{config: "hostname r1\nbroken\n"}
	svc := newService(newMockSSHService(map[string]*fakeDevice{"r1": dev}), store)
	require.NoError(t, store.SaveCheckpoint(ctx, &models.Checkpoint{Address: "r1", Snapshot: "hostname r1\n"}))

	result, err := svc.Rollback(ctx, fleet("r1"))
	require.NoError(t, err)

	assert.Equal(t, models.StatusOK, result.Hosts[0].Status)
	assert.Equal(t, "hostname r1\n", dev.config)

	// checkpoints are read, not consumed
	_, err = store.GetCheckpoint(ctx, "r1")
	assert.NoError(t, err)
}

func TestRollback_PerHostIndependence(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	devices := map[string]*fakeDevice{
		"ok":     {config: "changed"},
		"broken": {config: "changed", applyErr: errors.New("% Invalid input")},
	}
	svc := newService(newMockSSHService(devices), store)
	for _, addr := range []string{"ok", "broken", "gone"} {
		require.NoError(t, store.SaveCheckpoint(ctx, &models.Checkpoint{Address: addr, Snapshot: "good"}))
	}

	result, err := svc.Rollback(ctx, fleet("ok", "broken", "gone", "fresh"))
	require.NoError(t, err)

	statuses := make([]models.Status, len(result.Hosts))
	for i, h := range result.Hosts {
		statuses[i] = h.Status
	}
	assert.Equal(t, []models.Status{
		models.StatusOK,
		models.StatusRollbackFailed,
		models.StatusUnreachable,
		models.StatusNoCheckpoint,
	}, statuses)
	assert.Equal(t, "good", devices["ok"].config)
	assert.Equal(t, 2, result.Job.Failed)
	assert.Equal(t, 2, result.Job.Succeeded)
}

func TestRollback_AfterRunRestoresAfterSnapshot(t *testing.T) {
	ctx := context.Background()
	logger := testLogger()
	store := memory.New()
	dev := &fakeDevice{config: "hostname r1\n"}
	sshSvc := newMockSSHService(map[string]*fakeDevice{"r1": dev})

	run := runner.NewWithServices(
		logger,
		sshSvc,
		dispatch.New(logger, models.DispatchSettings{HostTimeout: time.Second}),
		diff.New(3),
		jobs.New(logger, store, nil),
		nil,
		nil,
		store,
	)
	runResult, err := run.Run(ctx, models.RunRequest{
		Targets:  fleet("r1"),
		Commands: []string{"ntp server 10.0.0.254"},
		Exec:     true,
		Config:   true,
	})
	require.NoError(t, err)
	require.Equal(t, models.StatusOK, runResult.Hosts[0].Status)
	afterSnapshot := *runResult.Hosts[0].ConfigAfter

	// drift after the run
	dev.config = "hostname r1\nmanual change\n"

	svc := newService(sshSvc, store)
	result, err := svc.Rollback(ctx, fleet("r1"))
	require.NoError(t, err)

	assert.Equal(t, models.StatusOK, result.Hosts[0].Status)
	assert.Equal(t, []string{afterSnapshot}, dev.applied)
	assert.Equal(t, afterSnapshot, dev.config)

	// applying the same snapshot again ends in the same state
	_, err = svc.Rollback(ctx, fleet("r1"))
	require.NoError(t, err)
	assert.Equal(t, afterSnapshot, dev.config)
}

func TestRollback_InvalidRequest(t *testing.T) {
	svc := newService(newMockSSHService(nil), memory.New())

	_, err := svc.Rollback(context.Background(), nil)
	assert.ErrorIs(t, err, models.ErrInvalidRequest)
}

func TestSummary(t *testing.T) {
	lines := Summary([]models.HostResult{
		{Address: "a", Status: models.StatusOK},
		{Address: "b", Status: models.StatusNoCheckpoint},
		{Address: "c", Status: models.StatusRollbackFailed, Err: errors.New("rollback failed: boom")},
	})

	assert.Equal(t, []string{
		"[a] rolled back",
		"[b] no checkpoint",
		"[c] rollback failed: rollback failed: boom",
	}, lines)
}
