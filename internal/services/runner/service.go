// Package runner orchestrates fleet runs, connectivity checks and wake-ups.
package runner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fgeck/gofleet-homelab/internal/models"
	"github.com/fgeck/gofleet-homelab/internal/services/diff"
	"github.com/fgeck/gofleet-homelab/internal/services/dispatch"
	"github.com/fgeck/gofleet-homelab/internal/services/jobs"
	"github.com/fgeck/gofleet-homelab/internal/services/ssh"
	"github.com/fgeck/gofleet-homelab/internal/services/wol"
	"github.com/fgeck/gofleet-homelab/internal/storage"
	"github.com/rs/zerolog"
)

// Service defines the interface for the fleet runner.
type Service interface {
	Run(ctx context.Context, req models.RunRequest) (*models.RunResult, error)
	Connect(ctx context.Context, targets []models.HostTarget) (*models.RunResult, error)
	Wake(ctx context.Context, targets []models.HostTarget) (*models.RunResult, error)
}

// Impl implements the runner Service interface.
type Impl struct {
	sshSvc      ssh.Service
	dispatchSvc dispatch.Service
	diffSvc     diff.Service
	jobsSvc     jobs.Service
	wolSvc      wol.Service
	wolCfg      *models.WOLConfig
	store       storage.Storage
	logger      zerolog.Logger
}

// New creates a new runner service.
func New(logger zerolog.Logger, cfg models.FleetConfig, store storage.Storage) *Impl {
	return &Impl{
		sshSvc:      ssh.New(logger, cfg.SSH),
		dispatchSvc: dispatch.New(logger, cfg.Dispatch),
		diffSvc:     diff.New(cfg.Diff.Context),
		jobsSvc:     jobs.New(logger, store, cfg.Telegram),
		wolSvc:      wol.New(logger),
		wolCfg:      cfg.WOL,
		store:       store,
		logger:      logger,
	}
}

// NewWithServices creates a new runner service with custom services (for testing).
func NewWithServices(
	logger zerolog.Logger,
	sshSvc ssh.Service,
	dispatchSvc dispatch.Service,
	diffSvc diff.Service,
	jobsSvc jobs.Service,
	wolSvc wol.Service,
	wolCfg *models.WOLConfig,
	store storage.Storage,
) *Impl {
	return &Impl{
		sshSvc:      sshSvc,
		dispatchSvc: dispatchSvc,
		diffSvc:     diffSvc,
		jobsSvc:     jobsSvc,
		wolSvc:      wolSvc,
		wolCfg:      wolCfg,
		store:       store,
		logger:      logger,
	}
}

// Run executes a run request across the fleet. Host failures are reported in
// the results; only a malformed request returns an error.
func (s *Impl) Run(ctx context.Context, req models.RunRequest) (*models.RunResult, error) {
	if err := models.ValidateTargets(req.Targets); err != nil {
		return nil, err
	}
	req.Commands = cleanCommands(req.Commands)

	mode := req.Mode()
	job := s.jobsSvc.Start(models.JobRun, mode == models.ModeDry)
	steps := s.plan(req, job.ID)

	s.logger.Info().
		Str("job_id", job.ID).
		Str("mode", mode.String()).
		Bool("config", req.Config).
		Int("hosts", len(req.Targets)).
		Int("commands", len(req.Commands)).
		Strs("steps", stepNames(steps)).
		Msg("starting fleet run")

	results := s.dispatchSvc.Dispatch(ctx, req.Targets, s.pipeline(steps))
	job = s.jobsSvc.Finish(ctx, job, results)

	return &models.RunResult{Job: job, Hosts: results}, nil
}

// Connect authenticates against every host without running anything.
func (s *Impl) Connect(ctx context.Context, targets []models.HostTarget) (*models.RunResult, error) {
	if err := models.ValidateTargets(targets); err != nil {
		return nil, err
	}

	job := s.jobsSvc.Start(models.JobConnect, false)
	s.logger.Info().Str("job_id", job.ID).Int("hosts", len(targets)).Msg("checking connectivity")

	results := s.dispatchSvc.Dispatch(ctx, targets, s.pipeline(nil))
	job = s.jobsSvc.Finish(ctx, job, results)

	return &models.RunResult{Job: job, Hosts: results}, nil
}

// Wake sends Wake-on-LAN packets to the hosts that have a MAC configured and
// waits for them to come up. Other hosts are skipped.
func (s *Impl) Wake(ctx context.Context, targets []models.HostTarget) (*models.RunResult, error) {
	if s.wolCfg == nil {
		return nil, fmt.Errorf("%w: wake-on-lan is not configured", models.ErrInvalidRequest)
	}
	if err := models.ValidateTargets(targets); err != nil {
		return nil, err
	}

	job := s.jobsSvc.Start(models.JobWake, false)
	s.logger.Info().Str("job_id", job.ID).Int("hosts", len(targets)).Msg("waking fleet")

	results := s.dispatchSvc.Dispatch(ctx, targets, s.wakeHost)
	job = s.jobsSvc.Finish(ctx, job, results)

	return &models.RunResult{Job: job, Hosts: results}, nil
}

func (s *Impl) wakeHost(ctx context.Context, target models.HostTarget) models.HostResult {
	res := models.HostResult{Address: target.Address}

	// config keys are case-folded
	mac, ok := s.wolCfg.Hosts[strings.ToLower(target.Address)]
	if !ok {
		res.Status = models.StatusSkipped
		res.Output = []string{"no MAC address configured"}
		return res
	}

	result, err := s.wolSvc.Wake(ctx, *s.wolCfg, models.WOLTarget{Address: target.Address, MACAddress: mac})
	if err != nil {
		res.Err = fmt.Errorf("wake: %w", err)
		return res
	}
	if result.Error != nil {
		res.Err = fmt.Errorf("wake: %w", result.Error)
		return res
	}

	res.Output = []string{fmt.Sprintf("ready after %s", result.WaitDuration.Round(time.Millisecond))}
	return res
}

// hostRun carries one host's state through the pipeline.
type hostRun struct {
	session ssh.Session
	result  *models.HostResult
}

// step is one state transition of a host pipeline.
type step struct {
	name string
	run  func(ctx context.Context, h *hostRun) error
}

// plan lays out the per-host state machine for a request:
//
//	[config] fetch_before -> [exec] exec -> [config] fetch_after -> [config] diff -> [exec] checkpoint
//
// Only ModeExec ever places the exec step in the plan, so a dry run has no
// path that sends commands.
func (s *Impl) plan(req models.RunRequest, jobID string) []step {
	var steps []step

	if req.Config {
		steps = append(steps, step{"fetch_before", func(ctx context.Context, h *hostRun) error {
			cfg, err := h.session.FetchConfig(ctx)
			if err != nil {
				return err
			}
			h.result.ConfigBefore = &cfg
			return nil
		}})
	}

	if req.Mode() == models.ModeExec {
		commands := req.Commands
		steps = append(steps, step{"exec", func(ctx context.Context, h *hostRun) error {
			output, err := h.session.Exec(ctx, commands)
			h.result.Output = output
			return err
		}})
	}

	if req.Config {
		steps = append(steps,
			step{"fetch_after", func(ctx context.Context, h *hostRun) error {
				cfg, err := h.session.FetchConfig(ctx)
				if err != nil {
					return err
				}
				h.result.ConfigAfter = &cfg
				return nil
			}},
			step{"diff", func(_ context.Context, h *hostRun) error {
				addr := h.result.Address
				h.result.Diff = s.diffSvc.DiffLabeled(
					*h.result.ConfigBefore, *h.result.ConfigAfter,
					addr+" "+diff.DefaultFromLabel, addr+" "+diff.DefaultToLabel,
				)
				h.result.DiffStat = s.diffSvc.Stat(h.result.Diff)
				return nil
			}},
		)
	}

	if req.Mode() == models.ModeExec {
		steps = append(steps, step{"checkpoint", func(ctx context.Context, h *hostRun) error {
			return s.saveCheckpoint(ctx, h, jobID)
		}})
	}

	return steps
}

// saveCheckpoint stores the after-snapshot, fetching one when the request
// did not ask for configuration.
func (s *Impl) saveCheckpoint(ctx context.Context, h *hostRun, jobID string) error {
	snapshot := h.result.ConfigAfter
	if snapshot == nil {
		cfg, err := h.session.FetchConfig(ctx)
		if err != nil {
			return err
		}
		snapshot = &cfg
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	cp := &models.Checkpoint{
		Address:   h.result.Address,
		Snapshot:  *snapshot,
		JobID:     jobID,
		CreatedAt: time.Now(),
	}
	if err := s.store.SaveCheckpoint(ctx, cp); err != nil {
		return fmt.Errorf("saving checkpoint: %w", err)
	}

	s.logger.Debug().Str("host", cp.Address).Str("job_id", jobID).Msg("checkpoint saved")
	return nil
}

// pipeline turns a plan into a dispatch operation. The session lives for this
// one request and is released when the host finishes.
func (s *Impl) pipeline(steps []step) dispatch.Operation {
	return func(ctx context.Context, target models.HostTarget) models.HostResult {
		res := models.HostResult{Address: target.Address}

		session, err := s.sshSvc.Connect(ctx, target)
		if err != nil {
			res.Err = fmt.Errorf("connect: %w", err)
			return res
		}
		defer func() { _ = session.Close() }()

		h := &hostRun{session: session, result: &res}
		for _, st := range steps {
			// an abandoned host must not advance, least of all to checkpoint
			if err := ctx.Err(); err != nil {
				res.Err = fmt.Errorf("%s: %w", st.name, err)
				return res
			}
			if err := st.run(ctx, h); err != nil {
				res.Err = fmt.Errorf("%s: %w", st.name, err)
				return res
			}
		}
		return res
	}
}

func stepNames(steps []step) []string {
	names := make([]string, len(steps))
	for i, st := range steps {
		names[i] = st.name
	}
	return names
}

// cleanCommands drops blank lines; commands are otherwise sent verbatim.
func cleanCommands(commands []string) []string {
	out := make([]string, 0, len(commands))
	for _, c := range commands {
		if strings.TrimSpace(c) != "" {
			out = append(out, c)
		}
	}
	return out
}

// Flatten renders host results as a RunResponse: one labeled output block
// per host and the concatenated per-host diffs, both in target order.
func Flatten(results []models.HostResult) models.RunResponse {
	resp := models.RunResponse{
		Output: make([]string, 0, len(results)),
		Diff:   []string{},
	}
	for _, r := range results {
		resp.Output = append(resp.Output, OutputBlock(r))
		resp.Diff = append(resp.Diff, r.Diff...)
	}
	return resp
}

// OutputBlock renders one host as "<addr>:\n<output>", tagging failures with
// "<error: status>".
func OutputBlock(r models.HostResult) string {
	var b strings.Builder
	b.WriteString(r.Address)
	b.WriteString(":")

	if len(r.Output) > 0 {
		b.WriteString("\n")
		b.WriteString(strings.Join(r.Output, "\n"))
	}

	if r.Failed() {
		if len(r.Output) > 0 {
			b.WriteString("\n")
		} else {
			b.WriteString(" ")
		}
		b.WriteString("<error: ")
		b.WriteString(string(r.Status))
		b.WriteString(">")
	}

	return b.String()
}
