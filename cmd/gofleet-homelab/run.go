package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fgeck/gofleet-homelab/internal/models"
	"github.com/fgeck/gofleet-homelab/internal/services/runner"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// Credentials are read from the environment so they never show up in the
// process list.
const (
	envPassword = "GOFLEET_PASSWORD"
	envSecret   = "GOFLEET_SECRET"
)

var (
	hostsFile    string
	commandsFile string
	sshUser      string
	execFlag     bool
	configDiff   bool
	dryRun       bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a command batch across a fleet once",
	Long: `Run a command batch against every host in --hosts (one address per line):
  --exec          send the commands
  --config-diff   snapshot the configuration before and after and print a diff
  --dry           never send commands, even with --exec

The password is read from GOFLEET_PASSWORD and the elevation secret from GOFLEET_SECRET.`,
	RunE: runFleet,
}

func init() {
	runCmd.Flags().StringVar(&hostsFile, "hosts", "", "file with one host address per line (required)")
	runCmd.Flags().StringVar(&commandsFile, "commands", "", "file with one command per line")
	runCmd.Flags().StringVarP(&sshUser, "user", "u", "", "login user")
	runCmd.Flags().BoolVar(&execFlag, "exec", false, "send the commands to the hosts")
	runCmd.Flags().BoolVar(&configDiff, "config-diff", false, "diff the configuration before and after")
	runCmd.Flags().BoolVar(&dryRun, "dry", false, "dry run, commands are never sent")
	_ = runCmd.MarkFlagRequired("hosts")

	rollbackCmd.Flags().StringVar(&hostsFile, "hosts", "", "file with one host address per line (required)")
	rollbackCmd.Flags().StringVarP(&sshUser, "user", "u", "", "login user")
	_ = rollbackCmd.MarkFlagRequired("hosts")
}

func runFleet(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	targets, err := readTargets(hostsFile)
	if err != nil {
		return err
	}

	var commands []string
	if commandsFile != "" {
		if commands, err = readLines(commandsFile); err != nil {
			return err
		}
	}
	if execFlag && !dryRun && len(commands) == 0 {
		return fmt.Errorf("--exec needs a non-empty --commands file")
	}

	store, err := openStore(cfg.Storage)
	if err != nil {
		log.Error().Err(err).Msg("failed to open storage")
		return err
	}
	defer func() { _ = store.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, err := runner.New(log.Logger, *cfg, store).Run(ctx, models.RunRequest{
		Targets:  targets,
		Commands: commands,
		Exec:     execFlag,
		Config:   configDiff,
		Dry:      dryRun,
	})
	if err != nil {
		log.Error().Err(err).Msg("run rejected")
		return err
	}

	resp := runner.Flatten(result.Hosts)
	for _, block := range resp.Output {
		fmt.Fprintln(cmd.OutOrStdout(), block)
	}
	if len(resp.Diff) > 0 {
		fmt.Fprintln(cmd.OutOrStdout())
		for _, line := range resp.Diff {
			fmt.Fprintln(cmd.OutOrStdout(), line)
		}
	}

	if result.Job.Failed > 0 {
		return fmt.Errorf("%d of %d hosts failed", result.Job.Failed, result.Job.Devices)
	}
	return nil
}

// readTargets builds host targets from a host file and the credential
// environment.
func readTargets(path string) ([]models.HostTarget, error) {
	addrs, err := readLines(path)
	if err != nil {
		return nil, err
	}

	auth := models.Credentials{
		User:     sshUser,
		Password: os.Getenv(envPassword),
		Secret:   os.Getenv(envSecret),
	}

	targets := make([]models.HostTarget, 0, len(addrs))
	for _, addr := range addrs {
		targets = append(targets, models.HostTarget{Address: strings.TrimSpace(addr), Auth: auth})
	}
	return targets, nil
}

// readLines returns the non-blank lines of a file.
func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return lines, nil
}
