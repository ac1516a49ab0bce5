package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/fgeck/gofleet-homelab/internal/config"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long:  `Validate the configuration file without contacting any host.`,
	RunE:  validateConfig,
}

func validateConfig(cmd *cobra.Command, args []string) error {
	if configFile == "" {
		log.Error().Msg("config file is required")
		return cmd.Help()
	}

	// Check if file exists
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		log.Error().Str("file", configFile).Msg("config file not found")
		return fmt.Errorf("config file not found: %s", configFile)
	}

	parser := config.NewParser()
	cfg, err := parser.LoadFile(configFile)
	if err != nil {
		log.Error().Err(err).Str("file", configFile).Msg("failed to parse config")
		return err
	}

	if err := config.Validate(cfg); err != nil {
		log.Error().Err(err).Msg("configuration validation failed")
		return err
	}

	out := cmd.OutOrStdout()

	// Print configuration summary
	fmt.Fprintln(out, "Configuration is valid!")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Server:")
	fmt.Fprintf(out, "  Listen: %s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Fprintf(out, "  Read/Write timeout: %s / %s\n", cfg.Server.ReadTimeout, cfg.Server.WriteTimeout)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Dispatch:")
	fmt.Fprintf(out, "  Host timeout: %s\n", cfg.Dispatch.HostTimeout)
	if cfg.Dispatch.MaxInFlight == 0 {
		fmt.Fprintln(out, "  Max in flight: unbounded")
	} else {
		fmt.Fprintf(out, "  Max in flight: %d\n", cfg.Dispatch.MaxInFlight)
	}
	if capacity := config.ResponseCapacity(cfg); capacity > 0 {
		fmt.Fprintf(out, "  Hosts per request within write timeout: %d\n", capacity)
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "SSH:")
	fmt.Fprintf(out, "  Port: %d\n", cfg.SSH.Port)
	fmt.Fprintf(out, "  Connect timeout: %s\n", cfg.SSH.ConnectTimeout)
	fmt.Fprintf(out, "  Config command: %s\n", cfg.SSH.ConfigCommand)
	switch {
	case cfg.SSH.ApplyCommand != "":
		fmt.Fprintf(out, "  Apply command: %s\n", cfg.SSH.ApplyCommand)
	case cfg.SSH.ConfigMode != "":
		fmt.Fprintf(out, "  Apply: shell stream in %q\n", cfg.SSH.ConfigMode)
	default:
		fmt.Fprintln(out, "  Apply: plain shell stream")
	}
	fmt.Fprintf(out, "  Host key checking: %v\n", cfg.SSH.KnownHosts != "")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Storage:")
	fmt.Fprintf(out, "  Driver: %s\n", cfg.Storage.Driver)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Optional Features:")
	fmt.Fprintf(out, "  Wake-on-LAN: %v\n", cfg.WOL != nil)
	fmt.Fprintf(out, "  Telegram: %v\n", cfg.Telegram != nil)
	fmt.Fprintf(out, "  Tracing: %v\n", cfg.Tracing != nil && cfg.Tracing.Enabled)

	if cfg.WOL != nil {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "WOL Configuration:")
		fmt.Fprintf(out, "  Broadcast IP: %s\n", cfg.WOL.BroadcastIP)
		if cfg.WOL.PollPort != 0 {
			fmt.Fprintf(out, "  Poll port: %d (timeout %s)\n", cfg.WOL.PollPort, cfg.WOL.Timeout)
		}
		addrs := make([]string, 0, len(cfg.WOL.Hosts))
		for addr := range cfg.WOL.Hosts {
			addrs = append(addrs, addr)
		}
		sort.Strings(addrs)
		for _, addr := range addrs {
			fmt.Fprintf(out, "  %s -> %s\n", addr, cfg.WOL.Hosts[addr])
		}
	}

	if cfg.Telegram != nil {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Telegram Configuration:")
		fmt.Fprintf(out, "  Chat ID: %s\n", cfg.Telegram.ChatID)
		fmt.Fprintf(out, "  Bot Token: (configured)\n")
	}

	return nil
}
