// Package models contains the data structures used throughout gofleet-homelab.
package models

import "time"

// FleetConfig holds the complete configuration for the fleet server and CLI.
type FleetConfig struct {
	Server   ServerConfig
	Dispatch DispatchSettings
	SSH      SSHSettings
	Diff     DiffSettings
	Storage  StorageConfig
	WOL      *WOLConfig      // nil if not configured
	Telegram *TelegramConfig // nil if not configured
	Tracing  *TracingConfig  // nil if not configured
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DispatchSettings controls fan-out across hosts.
type DispatchSettings struct {
	HostTimeout time.Duration // budget for one host's whole pipeline
	MaxInFlight int           // 0 means unbounded
}

// SSHSettings configures the default remote shell transport.
type SSHSettings struct {
	Port           int
	ConnectTimeout time.Duration
	ConfigCommand  string // prints the running configuration
	ApplyCommand   string // reads a configuration on stdin; empty streams it into a shell
	ConfigMode     string // entered before a streamed configuration, e.g. "configure terminal"
	KnownHosts     string // optional known_hosts file, host keys are not verified when empty
}

// DiffSettings controls unified diff rendering.
type DiffSettings struct {
	Context int
}

// StorageConfig selects the checkpoint and job store.
type StorageConfig struct {
	Driver string // "sqlite3", "postgres" or "memory"
	DSN    string
}

// TracingConfig enables OpenTelemetry span export.
type TracingConfig struct {
	Enabled bool
	Output  string // file path, stdout when empty
}
