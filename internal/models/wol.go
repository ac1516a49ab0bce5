package models

import "time"

// WOLConfig holds Wake-on-LAN configuration.
type WOLConfig struct {
	BroadcastIP   string
	PollPort      int               // TCP port polled until the host accepts connections
	Timeout       time.Duration     // max time to wait for the host
	PollInterval  time.Duration     // how often to poll
	StabilizeWait time.Duration     // wait after the host responds
	Hosts         map[string]string // address -> MAC
}

// WOLTarget is one host to wake.
type WOLTarget struct {
	Address    string
	MACAddress string
}

// WOLResult holds the result of a Wake-on-LAN operation.
type WOLResult struct {
	PacketSent   bool
	TargetReady  bool
	WaitDuration time.Duration
	Error        error
}
