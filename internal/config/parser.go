// Package config provides configuration file parsing.
package config

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/fgeck/gofleet-homelab/internal/models"
	"github.com/spf13/viper"
)

// Defaults applied when a setting is absent.
const (
	DefaultServerHost     = "0.0.0.0"
	DefaultServerPort     = 8080
	DefaultReadTimeout    = 30 * time.Second
	DefaultWriteTimeout   = 5 * time.Minute
	DefaultHostTimeout    = 60 * time.Second
	DefaultMaxInFlight    = 32
	DefaultSSHPort        = 22
	DefaultConnectTimeout = 15 * time.Second
	DefaultConfigCommand  = "show running-config"
	DefaultConfigMode     = "configure terminal"
	DefaultDiffContext    = 3
	DefaultStorageDriver  = "sqlite3"
	DefaultSQLiteDSN      = "gofleet.db"
)

// Parser handles configuration file parsing.
type Parser struct {
	v *viper.Viper
}

// NewParser creates a new configuration parser.
func NewParser() *Parser {
	v := viper.New()
	v.SetConfigType("yaml")
	return &Parser{v: v}
}

// LoadFile loads configuration from a file path.
func (p *Parser) LoadFile(path string) (*models.FleetConfig, error) {
	p.v.SetConfigFile(path)

	if err := p.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return p.parse()
}

// LoadReader loads configuration from a reader (useful for testing).
func (p *Parser) LoadReader(content string) (*models.FleetConfig, error) {
	if err := p.v.ReadConfig(strings.NewReader(content)); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	return p.parse()
}

// Default returns the configuration used when no file is given.
func Default() *models.FleetConfig {
	cfg, err := NewParser().LoadReader("")
	if err != nil {
		// defaults alone always parse
		panic(err)
	}
	return cfg
}

//nolint:gocognit,gocyclo // parsing config requires checking many fields
func (p *Parser) parse() (*models.FleetConfig, error) {
	cfg := &models.FleetConfig{}

	// Parse server settings.
	cfg.Server = models.ServerConfig{
		Host:         p.v.GetString("server.host"),
		Port:         p.v.GetInt("server.port"),
		ReadTimeout:  p.v.GetDuration("server.read_timeout"),
		WriteTimeout: p.v.GetDuration("server.write_timeout"),
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = DefaultServerHost
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultServerPort
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultWriteTimeout
	}

	// Parse dispatch settings.
	cfg.Dispatch = models.DispatchSettings{
		HostTimeout: p.v.GetDuration("dispatch.host_timeout"),
		MaxInFlight: DefaultMaxInFlight,
	}
	if cfg.Dispatch.HostTimeout == 0 {
		cfg.Dispatch.HostTimeout = DefaultHostTimeout
	}
	if p.v.IsSet("dispatch.max_in_flight") {
		cfg.Dispatch.MaxInFlight = p.v.GetInt("dispatch.max_in_flight")
	}
	if cfg.Dispatch.MaxInFlight < 0 {
		return nil, fmt.Errorf("dispatch.max_in_flight must not be negative")
	}

	// Parse SSH transport settings.
	cfg.SSH = models.SSHSettings{
		Port:           p.v.GetInt("ssh.port"),
		ConnectTimeout: p.v.GetDuration("ssh.connect_timeout"),
		ConfigCommand:  p.v.GetString("ssh.config_command"),
		ApplyCommand:   p.v.GetString("ssh.apply_command"),
		KnownHosts:     p.expandEnv(p.v.GetString("ssh.known_hosts")),
	}
	if cfg.SSH.Port == 0 {
		cfg.SSH.Port = DefaultSSHPort
	}
	if cfg.SSH.ConnectTimeout == 0 {
		cfg.SSH.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.SSH.ConfigCommand == "" {
		cfg.SSH.ConfigCommand = DefaultConfigCommand
	}
	// an explicit empty config_mode streams into a plain shell
	cfg.SSH.ConfigMode = DefaultConfigMode
	if p.v.IsSet("ssh.config_mode") {
		cfg.SSH.ConfigMode = p.v.GetString("ssh.config_mode")
	}

	// Parse diff settings.
	cfg.Diff = models.DiffSettings{Context: DefaultDiffContext}
	if p.v.IsSet("diff.context") {
		cfg.Diff.Context = p.v.GetInt("diff.context")
	}

	// Parse storage settings.
	cfg.Storage = models.StorageConfig{
		Driver: p.v.GetString("storage.driver"),
		DSN:    p.expandEnv(p.v.GetString("storage.dsn")),
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = DefaultStorageDriver
	}
	switch cfg.Storage.Driver {
	case "memory":
	case "sqlite3":
		if cfg.Storage.DSN == "" {
			cfg.Storage.DSN = DefaultSQLiteDSN
		}
	case "postgres":
		if cfg.Storage.DSN == "" {
			return nil, fmt.Errorf("storage.dsn is required for the postgres driver")
		}
	default:
		return nil, fmt.Errorf("storage.driver must be one of: sqlite3, postgres, memory")
	}

	// Parse optional WOL config.
	if p.v.IsSet("wol") { //nolint:nestif // config parsing with defaults
		cfg.WOL = &models.WOLConfig{
			BroadcastIP:   p.v.GetString("wol.broadcast_ip"),
			PollPort:      p.v.GetInt("wol.poll_port"),
			Timeout:       p.v.GetDuration("wol.timeout"),
			PollInterval:  p.v.GetDuration("wol.poll_interval"),
			StabilizeWait: p.v.GetDuration("wol.stabilize_wait"),
			Hosts:         p.v.GetStringMapString("wol.hosts"),
		}

		if len(cfg.WOL.Hosts) == 0 {
			return nil, fmt.Errorf("wol.hosts is required when wol is configured")
		}
		for addr, mac := range cfg.WOL.Hosts {
			if _, err := net.ParseMAC(mac); err != nil {
				return nil, fmt.Errorf("wol.hosts.%s: invalid MAC address %q", addr, mac)
			}
		}

		// Set defaults.
		if cfg.WOL.BroadcastIP == "" {
			cfg.WOL.BroadcastIP = "255.255.255.255"
		}
		if cfg.WOL.Timeout == 0 {
			cfg.WOL.Timeout = 45 * time.Second
		}
		if cfg.WOL.PollInterval == 0 {
			cfg.WOL.PollInterval = 5 * time.Second
		}
	}

	// Parse optional Telegram config.
	if p.v.IsSet("telegram") {
		cfg.Telegram = &models.TelegramConfig{
			BotToken: p.expandEnv(p.v.GetString("telegram.bot_token")),
			ChatID:   p.expandEnv(p.v.GetString("telegram.chat_id")),
		}

		if cfg.Telegram.BotToken == "" {
			return nil, fmt.Errorf("telegram.bot_token is required when telegram is configured")
		}
		if cfg.Telegram.ChatID == "" {
			return nil, fmt.Errorf("telegram.chat_id is required when telegram is configured")
		}
	}

	// Parse optional tracing config.
	if p.v.IsSet("tracing") {
		cfg.Tracing = &models.TracingConfig{
			Enabled: p.v.GetBool("tracing.enabled"),
			Output:  p.expandEnv(p.v.GetString("tracing.output")),
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// expandEnv expands environment variables in the format ${VAR} or $VAR.
func (p *Parser) expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Validate performs validation on the loaded configuration.
func Validate(cfg *models.FleetConfig) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}

	if cfg.Dispatch.HostTimeout <= 0 {
		return fmt.Errorf("dispatch.host_timeout must be positive")
	}

	// A response must be writable once the slowest host has timed out. This
	// only holds for fleets of up to ResponseCapacity hosts: with
	// max_in_flight set, hosts run in waves and a response can take
	// ceil(hosts/max_in_flight) host timeouts.
	if cfg.Server.WriteTimeout > 0 && cfg.Server.WriteTimeout <= cfg.Dispatch.HostTimeout {
		return fmt.Errorf("server.write_timeout (%s) must exceed dispatch.host_timeout (%s)",
			cfg.Server.WriteTimeout, cfg.Dispatch.HostTimeout)
	}

	if cfg.SSH.ConfigCommand == "" {
		return fmt.Errorf("ssh.config_command is required")
	}

	if cfg.Storage.Driver != "memory" && cfg.Storage.DSN == "" {
		return fmt.Errorf("storage.dsn is required")
	}

	if cfg.WOL != nil {
		if budget := cfg.WOL.Timeout + cfg.WOL.StabilizeWait; budget >= cfg.Dispatch.HostTimeout {
			return fmt.Errorf("wol.timeout plus wol.stabilize_wait (%s) must be below dispatch.host_timeout (%s)",
				budget, cfg.Dispatch.HostTimeout)
		}
	}

	return nil
}

// ResponseCapacity is the largest fleet whose slowest possible response still
// fits in server.write_timeout. Zero means no limit.
func ResponseCapacity(cfg *models.FleetConfig) int {
	if cfg.Dispatch.MaxInFlight == 0 || cfg.Server.WriteTimeout == 0 || cfg.Dispatch.HostTimeout <= 0 {
		return 0
	}
	waves := int(cfg.Server.WriteTimeout / cfg.Dispatch.HostTimeout)
	return waves * cfg.Dispatch.MaxInFlight
}
