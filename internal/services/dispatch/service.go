// Package dispatch fans an operation out across a fleet of hosts.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fgeck/gofleet-homelab/internal/models"
	"github.com/fgeck/gofleet-homelab/internal/tracing"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// Operation performs one host's work and reports it as a HostResult. It
// should return promptly once ctx is done.
type Operation func(ctx context.Context, target models.HostTarget) models.HostResult

// Service defines the interface for fleet dispatch.
type Service interface {
	Dispatch(ctx context.Context, targets []models.HostTarget, op Operation) []models.HostResult
}

// Impl implements the dispatch Service interface.
type Impl struct {
	hostTimeout time.Duration
	maxInFlight int
	logger      zerolog.Logger
}

// New creates a new dispatcher.
func New(logger zerolog.Logger, settings models.DispatchSettings) *Impl {
	return &Impl{
		hostTimeout: settings.HostTimeout,
		maxInFlight: settings.MaxInFlight,
		logger:      logger,
	}
}

// Dispatch runs op for every target concurrently and returns exactly one
// result per target, in input order. Each task owns one slot of the result
// slice, so no locking is needed.
func (d *Impl) Dispatch(ctx context.Context, targets []models.HostTarget, op Operation) []models.HostResult {
	results := make([]models.HostResult, len(targets))

	var g errgroup.Group
	if d.maxInFlight > 0 {
		g.SetLimit(d.maxInFlight)
	}

	for i, target := range targets {
		i, target := i, target
		g.Go(func() error {
			results[i] = d.runOne(ctx, target, op)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// runOne isolates a single host: it enforces the host timeout, converts
// panics into results and never blocks longer than the timeout even if op
// ignores ctx.
func (d *Impl) runOne(ctx context.Context, target models.HostTarget, op Operation) models.HostResult {
	start := time.Now()

	ctx, span := tracing.StartSpan(ctx, "host", attribute.String("host.address", target.Address))

	hostCtx, cancel := ctx, context.CancelFunc(func() {})
	if d.hostTimeout > 0 {
		hostCtx, cancel = context.WithTimeout(ctx, d.hostTimeout)
	}
	defer cancel()

	done := make(chan models.HostResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- models.HostResult{
					Status: models.StatusError,
					Err:    fmt.Errorf("host operation panicked: %v", r),
				}
			}
		}()
		done <- op(hostCtx, target)
	}()

	var res models.HostResult
	select {
	case res = <-done:
	case <-hostCtx.Done():
		select {
		case res = <-done:
		default:
			res = abandoned(hostCtx.Err(), d.hostTimeout)
		}
	}

	res.Address = target.Address
	if res.Status == "" {
		res.Status = models.StatusFor(res.Err)
	}
	res.Duration = time.Since(start)

	span.SetAttributes(attribute.String("host.status", string(res.Status)))
	tracing.EndSpan(span, res.Err)

	event := d.logger.Info()
	if res.Failed() {
		event = d.logger.Warn().Err(res.Err)
	}
	event.
		Str("host", target.Address).
		Str("status", string(res.Status)).
		Dur("duration", res.Duration).
		Msg("host finished")

	return res
}

func abandoned(err error, timeout time.Duration) models.HostResult {
	if errors.Is(err, context.DeadlineExceeded) {
		return models.HostResult{
			Status: models.StatusTimeout,
			Err:    fmt.Errorf("%w after %s", models.ErrTimeout, timeout),
		}
	}
	return models.HostResult{
		Status: models.StatusError,
		Err:    fmt.Errorf("host operation abandoned: %w", err),
	}
}
