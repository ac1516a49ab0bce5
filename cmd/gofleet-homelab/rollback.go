package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/fgeck/gofleet-homelab/internal/services/rollback"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var rollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Restore a fleet to its last checkpoints",
	Long: `Restore every host in --hosts to the configuration captured after its last
successful run. Hosts without a checkpoint are reported and left untouched.`,
	RunE: rollbackFleet,
}

func rollbackFleet(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	targets, err := readTargets(hostsFile)
	if err != nil {
		return err
	}

	store, err := openStore(cfg.Storage)
	if err != nil {
		log.Error().Err(err).Msg("failed to open storage")
		return err
	}
	defer func() { _ = store.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, err := rollback.New(log.Logger, *cfg, store).Rollback(ctx, targets)
	if err != nil {
		log.Error().Err(err).Msg("rollback rejected")
		return err
	}

	for _, line := range rollback.Summary(result.Hosts) {
		fmt.Fprintln(cmd.OutOrStdout(), line)
	}

	if result.Job.Failed > 0 {
		return fmt.Errorf("%d of %d hosts failed to roll back", result.Job.Failed, result.Job.Devices)
	}
	return nil
}
