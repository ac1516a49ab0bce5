package models

import "time"

// TelegramConfig holds Telegram notification configuration.
type TelegramConfig struct {
	BotToken string
	ChatID   string
}

// TelegramMessage holds the data for a job notification.
type TelegramMessage struct {
	JobID     string
	Kind      JobKind
	Dry       bool
	StartTime time.Time
	Duration  time.Duration
	Devices   int
	Succeeded int
	Failed    int

	// Addresses of failed hosts with their status.
	Failures []string
}

// TelegramResult holds the result of a Telegram notification.
type TelegramResult struct {
	MessageSent bool
	Error       error
}
