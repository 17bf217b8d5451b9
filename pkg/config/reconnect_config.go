package config

import "time"

// ReconnectConfig bounds the client reconnection policy
type ReconnectConfig struct {
	Attempts     int           `yaml:"attempts"`
	Timeout      time.Duration `yaml:"timeout"`       // Per-attempt dial timeout
	InitialDelay time.Duration `yaml:"initial_delay"` // Delay before the first retry
	MaxDelay     time.Duration `yaml:"max_delay"`
}
