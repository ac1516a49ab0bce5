// Package jobs records fleet requests in the job history and announces them.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/fgeck/gofleet-homelab/internal/models"
	"github.com/fgeck/gofleet-homelab/internal/services/telegram"
	"github.com/fgeck/gofleet-homelab/internal/storage"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultNotifyTimeout bounds how long a notification may hold up the
// response of the request it summarizes.
const DefaultNotifyTimeout = 5 * time.Second

// Service defines the interface for job bookkeeping.
type Service interface {
	// Start allocates a job for a request that is about to be dispatched.
	Start(kind models.JobKind, dry bool) models.Job
	// Finish tallies the results, persists the job and sends the summary.
	// Bookkeeping failures are logged and never change the request outcome.
	Finish(ctx context.Context, job models.Job, results []models.HostResult) models.Job
}

// Impl implements the jobs Service interface.
type Impl struct {
	store       storage.Storage
	telegramSvc telegram.Service
	telegramCfg *models.TelegramConfig
	logger      zerolog.Logger
	now         func() time.Time

	notifyTimeout time.Duration
}

// New creates a new job recorder. Notifications are disabled when
// telegramCfg is nil.
func New(logger zerolog.Logger, store storage.Storage, telegramCfg *models.TelegramConfig) *Impl {
	return NewWithServices(logger, store, telegram.New(logger), telegramCfg)
}

// NewWithServices creates a new job recorder with a custom notifier (for testing).
func NewWithServices(
	logger zerolog.Logger,
	store storage.Storage,
	telegramSvc telegram.Service,
	telegramCfg *models.TelegramConfig,
) *Impl {
	return &Impl{
		store:       store,
		telegramSvc: telegramSvc,
		telegramCfg: telegramCfg,
		logger:      logger,
		now:         time.Now,

		notifyTimeout: DefaultNotifyTimeout,
	}
}

func (s *Impl) Start(kind models.JobKind, dry bool) models.Job {
	return models.Job{
		ID:        uuid.NewString(),
		Kind:      kind,
		Dry:       dry,
		StartedAt: s.now(),
	}
}

func (s *Impl) Finish(ctx context.Context, job models.Job, results []models.HostResult) models.Job {
	job.FinishedAt = s.now()
	job.Tally(results)

	// the request may already be gone; history is still worth keeping
	ctx = context.WithoutCancel(ctx)

	if err := s.store.CreateJob(ctx, &job); err != nil {
		s.logger.Error().Err(err).Str("job_id", job.ID).Msg("failed to record job")
	}

	s.logger.Info().
		Str("job_id", job.ID).
		Str("kind", string(job.Kind)).
		Bool("dry", job.Dry).
		Int("devices", job.Devices).
		Int("succeeded", job.Succeeded).
		Int("failed", job.Failed).
		Dur("duration", job.FinishedAt.Sub(job.StartedAt)).
		Msg("job finished")

	if s.telegramCfg != nil && notifies(job.Kind) {
		s.sendNotification(ctx, job, results)
	}

	return job
}

func notifies(kind models.JobKind) bool {
	return kind == models.JobRun || kind == models.JobRollback
}

func (s *Impl) sendNotification(ctx context.Context, job models.Job, results []models.HostResult) {
	msg := models.TelegramMessage{
		JobID:     job.ID,
		Kind:      job.Kind,
		Dry:       job.Dry,
		StartTime: job.StartedAt,
		Duration:  job.FinishedAt.Sub(job.StartedAt),
		Devices:   job.Devices,
		Succeeded: job.Succeeded,
		Failed:    job.Failed,
	}
	for _, r := range results {
		if r.Failed() {
			msg.Failures = append(msg.Failures, fmt.Sprintf("%s: %s", r.Address, r.Status))
		}
	}

	ctx, cancel := context.WithTimeout(ctx, s.notifyTimeout)
	defer cancel()

	result, err := s.telegramSvc.SendNotification(ctx, *s.telegramCfg, msg)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to send Telegram notification")
		return
	}
	if result.Error != nil {
		s.logger.Error().Err(result.Error).Msg("failed to send Telegram notification")
		return
	}

	s.logger.Info().Msg("Telegram notification sent")
}
