package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/fgeck/gofleet-homelab/internal/api"
	"github.com/fgeck/gofleet-homelab/internal/config"
	"github.com/fgeck/gofleet-homelab/internal/services/rollback"
	"github.com/fgeck/gofleet-homelab/internal/services/runner"
	"github.com/fgeck/gofleet-homelab/internal/tracing"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const shutdownGrace = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the fleet HTTP server",
	Long: `Start the HTTP server exposing:
  POST /connect          credential and reachability preflight
  POST /run              execute, config-diff or dry-run a command batch
  POST /rollback         restore hosts to their last checkpoint
  POST /wake             Wake-on-LAN configured hosts
  GET  /jobs             job history, newest first
  GET  /checkpoints/{ip} stored checkpoint of one host
  GET  /health           liveness`,
	RunE: serve,
}

func serve(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Tracing != nil && cfg.Tracing.Enabled {
		shutdownTracing, err := tracing.Init("gofleet-homelab", Version, cfg.Tracing.Output)
		if err != nil {
			log.Error().Err(err).Msg("failed to initialise tracing")
			return err
		}
		defer func() {
			if err := shutdownTracing(context.Background()); err != nil {
				log.Warn().Err(err).Msg("failed to flush traces")
			}
		}()
	}

	store, err := openStore(cfg.Storage)
	if err != nil {
		log.Error().Err(err).Msg("failed to open storage")
		return err
	}
	defer func() { _ = store.Close() }()

	router := api.NewRouter(
		log.Logger,
		store,
		runner.New(log.Logger, *cfg, store),
		rollback.New(log.Logger, *cfg, store),
	)

	srv := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Dur("host_timeout", cfg.Dispatch.HostTimeout).
			Int("max_in_flight", cfg.Dispatch.MaxInFlight).
			Int("response_capacity", config.ResponseCapacity(cfg)).
			Str("storage", cfg.Storage.Driver).
			Msg("fleet server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server failed")
			return err
		}
		return nil
	case <-ctx.Done():
		log.Warn().Msg("received signal, shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}

	log.Info().Msg("server stopped")
	return nil
}
