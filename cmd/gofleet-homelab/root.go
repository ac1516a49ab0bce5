package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/fgeck/gofleet-homelab/internal/config"
	"github.com/fgeck/gofleet-homelab/internal/models"
	"github.com/fgeck/gofleet-homelab/internal/storage"
	"github.com/fgeck/gofleet-homelab/internal/storage/memory"
	sqlstore "github.com/fgeck/gofleet-homelab/internal/storage/sql"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	// Version is set at build time.
	Version = "dev"

	// Configuration flags.
	configFile string
	verbose    bool
	quiet      bool
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "gofleet-homelab",
	Short: "A fleet command runner for homelab network devices and servers",
	Long: `gofleet-homelab runs command batches across a fleet of hosts over SSH:
  - Connectivity and credential preflight
  - Execute, config-diff and dry-run modes with per-host output
  - Rollback to the configuration captured after the last real run
  - Wake-on-LAN before connecting
  - Job history and Telegram notifications

Run it as an HTTP server (serve) or as a one-shot command (run, rollback).`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging()
	},
	SilenceUsage: true,
	Version:      Version,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (defaults apply when omitted)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose (debug) output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "enable quiet mode (errors only)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output logs in JSON format")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(rollbackCmd)
	rootCmd.AddCommand(validateCmd)
}

func setupLogging() {
	// Logs go to stderr so one-shot results on stdout stay pipeable.
	if jsonOutput {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	} else {
		output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
		output.FormatLevel = func(i interface{}) string {
			if s, ok := i.(string); ok {
				return strings.ToUpper(s)
			}
			return ""
		}
		log.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	// Set log level
	switch {
	case quiet:
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	case verbose:
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// loadConfig reads --config, or falls back to the defaults.
func loadConfig() (*models.FleetConfig, error) {
	if configFile == "" {
		log.Debug().Msg("no config file given, using defaults")
		return config.Default(), nil
	}

	parser := config.NewParser()
	cfg, err := parser.LoadFile(configFile)
	if err != nil {
		log.Error().Err(err).Str("file", configFile).Msg("failed to load config")
		return nil, err
	}

	log.Info().Str("config", configFile).Msg("configuration loaded")
	return cfg, nil
}

// openStore opens the checkpoint and job store selected by the config.
func openStore(cfg models.StorageConfig) (storage.Storage, error) {
	if cfg.Driver == "memory" {
		log.Warn().Msg("using in-memory storage, checkpoints are lost on exit")
		return memory.New(), nil
	}

	store, err := sqlstore.New(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", cfg.Driver, err)
	}

	log.Debug().Str("driver", cfg.Driver).Msg("storage opened")
	return store, nil
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
