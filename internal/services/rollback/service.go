// Package rollback restores hosts to their last checkpoint.
package rollback

import (
	"context"
	"errors"
	"fmt"

	"github.com/fgeck/gofleet-homelab/internal/models"
	"github.com/fgeck/gofleet-homelab/internal/services/dispatch"
	"github.com/fgeck/gofleet-homelab/internal/services/jobs"
	"github.com/fgeck/gofleet-homelab/internal/services/ssh"
	"github.com/fgeck/gofleet-homelab/internal/storage"
	"github.com/rs/zerolog"
)

// Service defines the interface for fleet rollback.
type Service interface {
	Rollback(ctx context.Context, targets []models.HostTarget) (*models.RunResult, error)
}

// Impl implements the rollback Service interface.
type Impl struct {
	sshSvc      ssh.Service
	dispatchSvc dispatch.Service
	jobsSvc     jobs.Service
	store       storage.Storage
	logger      zerolog.Logger
}

// New creates a new rollback service.
func New(logger zerolog.Logger, cfg models.FleetConfig, store storage.Storage) *Impl {
	return &Impl{
		sshSvc:      ssh.New(logger, cfg.SSH),
		dispatchSvc: dispatch.New(logger, cfg.Dispatch),
		jobsSvc:     jobs.New(logger, store, cfg.Telegram),
		store:       store,
		logger:      logger,
	}
}

// NewWithServices creates a new rollback service with custom services (for testing).
func NewWithServices(
	logger zerolog.Logger,
	sshSvc ssh.Service,
	dispatchSvc dispatch.Service,
	jobsSvc jobs.Service,
	store storage.Storage,
) *Impl {
	return &Impl{
		sshSvc:      sshSvc,
		dispatchSvc: dispatchSvc,
		jobsSvc:     jobsSvc,
		store:       store,
		logger:      logger,
	}
}

// Rollback applies each host's checkpoint independently. Hosts without a
// checkpoint end in StatusNoCheckpoint and are never contacted. There is no
// cross-host atomicity.
func (s *Impl) Rollback(ctx context.Context, targets []models.HostTarget) (*models.RunResult, error) {
	if err := models.ValidateTargets(targets); err != nil {
		return nil, err
	}

	job := s.jobsSvc.Start(models.JobRollback, false)
	s.logger.Info().Str("job_id", job.ID).Int("hosts", len(targets)).Msg("starting fleet rollback")

	results := s.dispatchSvc.Dispatch(ctx, targets, s.rollbackHost)
	job = s.jobsSvc.Finish(ctx, job, results)

	return &models.RunResult{Job: job, Hosts: results}, nil
}

func (s *Impl) rollbackHost(ctx context.Context, target models.HostTarget) models.HostResult {
	res := models.HostResult{Address: target.Address}

	cp, err := s.store.GetCheckpoint(ctx, target.Address)
	if errors.Is(err, models.ErrNotFound) {
		res.Status = models.StatusNoCheckpoint
		return res
	}
	if err != nil {
		res.Err = fmt.Errorf("loading checkpoint: %w", err)
		return res
	}

	session, err := s.sshSvc.Connect(ctx, target)
	if err != nil {
		res.Err = fmt.Errorf("connect: %w", err)
		return res
	}
	defer func() { _ = session.Close() }()

	if err := session.ApplyRollback(ctx, cp.Snapshot); err != nil {
		res.Err = err
		return res
	}

	s.logger.Info().
		Str("host", target.Address).
		Str("checkpoint_job", cp.JobID).
		Time("checkpoint_time", cp.CreatedAt).
		Msg("checkpoint applied")

	return res
}

// Summary renders one line per host in target order.
func Summary(results []models.HostResult) []string {
	lines := make([]string, len(results))
	for i, r := range results {
		switch {
		case r.Status == models.StatusNoCheckpoint:
			lines[i] = fmt.Sprintf("[%s] no checkpoint", r.Address)
		case r.Failed():
			lines[i] = fmt.Sprintf("[%s] rollback failed: %s", r.Address, r.ErrorMessage())
		default:
			lines[i] = fmt.Sprintf("[%s] rolled back", r.Address)
		}
	}
	return lines
}
