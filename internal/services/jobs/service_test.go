package jobs

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/fgeck/gofleet-homelab/internal/models"
	"github.com/fgeck/gofleet-homelab/internal/storage/memory"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockTelegramService struct {
	sendFunc func(ctx context.Context, cfg models.TelegramConfig, msg models.TelegramMessage) (*models.TelegramResult, error)
	calls    int
}

func (m *mockTelegramService) SendNotification(ctx context.Context, cfg models.TelegramConfig, msg models.TelegramMessage) (*models.TelegramResult, error) {
	m.calls++
	if m.sendFunc != nil {
		return m.sendFunc(ctx, cfg, msg)
	}
	return &models.TelegramResult{MessageSent: true}, nil
}

type failingStore struct {
	*memory.Store
}

func (f failingStore) CreateJob(ctx context.Context, job *models.Job) error {
	return errors.New("disk full")
}

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func sampleResults() []models.HostResult {
	return []models.HostResult{
		{Address: "10.0.0.1", Status: models.StatusOK},
		{Address: "10.0.0.2", Status: models.StatusUnreachable},
		{Address: "10.0.0.3", Status: models.StatusNoCheckpoint},
	}
}

func TestStart(t *testing.T) {
	svc := New(testLogger(), memory.New(), nil)

	a := svc.Start(models.JobRun, true)
	b := svc.Start(models.JobRun, false)

	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, models.JobRun, a.Kind)
	assert.True(t, a.Dry)
	assert.False(t, a.StartedAt.IsZero())
}

func TestFinish_RecordsJob(t *testing.T) {
	store := memory.New()
	svc := New(testLogger(), store, nil)

	job := svc.Finish(context.Background(), svc.Start(models.JobRollback, false), sampleResults())

	assert.Equal(t, 3, job.Devices)
	assert.Equal(t, 2, job.Succeeded)
	assert.Equal(t, 1, job.Failed)
	assert.False(t, job.FinishedAt.Before(job.StartedAt))

	jobs, err := store.ListJobs(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, job.ID, jobs[0].ID)
}

func TestFinish_SendsNotification(t *testing.T) {
	var captured models.TelegramMessage
	tg := &mockTelegramService{
		sendFunc: func(ctx context.Context, cfg models.TelegramConfig, msg models.TelegramMessage) (*models.TelegramResult, error) {
			captured = msg
			return &models.TelegramResult{MessageSent: true}, nil
		},
	}
	svc := NewWithServices(testLogger(), memory.New(), tg, &models.TelegramConfig{BotToken: "t", ChatID: "c"})
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	ticks := []time.Time{base, base.Add(90 * time.Second)}
	svc.now = func() time.Time {
		next := ticks[0]
		ticks = ticks[1:]
		return next
	}

	job := svc.Finish(context.Background(), svc.Start(models.JobRun, false), sampleResults())

	assert.Equal(t, 1, tg.calls)
	assert.Equal(t, job.ID, captured.JobID)
	assert.Equal(t, 90*time.Second, captured.Duration)
	assert.Equal(t, []string{"10.0.0.2: unreachable"}, captured.Failures)
}

func TestFinish_ConnectJobsAreNotAnnounced(t *testing.T) {
	tg := &mockTelegramService{}
	svc := NewWithServices(testLogger(), memory.New(), tg, &models.TelegramConfig{})

	svc.Finish(context.Background(), svc.Start(models.JobConnect, false), sampleResults())

	assert.Equal(t, 0, tg.calls)
}

func TestFinish_NotifierErrorIsSwallowed(t *testing.T) {
	tg := &mockTelegramService{
		sendFunc: func(ctx context.Context, cfg models.TelegramConfig, msg models.TelegramMessage) (*models.TelegramResult, error) {
			return &models.TelegramResult{Error: errors.New("status 500")}, nil
		},
	}
	svc := NewWithServices(testLogger(), memory.New(), tg, &models.TelegramConfig{})

	job := svc.Finish(context.Background(), svc.Start(models.JobRun, false), sampleResults())

	assert.Equal(t, 1, tg.calls)
	assert.Equal(t, 3, job.Devices)
}

func TestFinish_StoreErrorIsSwallowed(t *testing.T) {
	svc := New(testLogger(), failingStore{memory.New()}, nil)

	job := svc.Finish(context.Background(), svc.Start(models.JobRun, false), sampleResults())

	assert.Equal(t, 3, job.Devices)
}

func TestFinish_CancelledContextStillRecords(t *testing.T) {
	store := memory.New()
	svc := New(testLogger(), store, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	svc.Finish(ctx, svc.Start(models.JobRun, false), sampleResults())

	jobs, err := store.ListJobs(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
}

func TestFinish_SlowNotifierIsCutOff(t *testing.T) {
	var hadDeadline bool
	tg := &mockTelegramService{
		sendFunc: func(ctx context.Context, cfg models.TelegramConfig, msg models.TelegramMessage) (*models.TelegramResult, error) {
			_, hadDeadline = ctx.Deadline()
			<-ctx.Done()
			return &models.TelegramResult{Error: ctx.Err()}, nil
		},
	}
	store := memory.New()
	svc := NewWithServices(testLogger(), store, tg, &models.TelegramConfig{BotToken: "t", ChatID: "c"})
	svc.notifyTimeout = 50 * time.Millisecond

	start := time.Now()
	job := svc.Finish(context.Background(), svc.Start(models.JobRun, false), sampleResults())

	assert.Less(t, time.Since(start), time.Second)
	assert.True(t, hadDeadline)
	assert.Equal(t, 1, tg.calls)

	// the job is recorded before the notifier is contacted
	jobs, err := store.ListJobs(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, job.ID, jobs[0].ID)
}
