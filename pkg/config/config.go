package config

import (
	"fmt"
	"os"
	"time"
)

// Config represents the main configuration for a collaboration node
type Config struct {
	Node          NodeConfig          `yaml:"node"`
	Collaboration CollaborationConfig `yaml:"collaboration"`
	Discovery     DiscoveryConfig     `yaml:"discovery"`
	Reconnect     ReconnectConfig     `yaml:"reconnect"`
	Build         BuildConfig         `yaml:"build"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// Well-known defaults shared by every instance on the LAN
const (
	DefaultSyncPort       = 8081
	DefaultDiscoveryPort  = 41234
	DefaultDiscoveryTag   = "sitecms-collab-discovery"
	MaxConnectionProfiles = 20
)

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	name, err := os.Hostname()
	if err != nil || name == "" {
		name = "sitecms"
	}

	return &Config{
		Node: NodeConfig{
			Name:    name,
			DataDir: "~/.sitecms",
		},
		Collaboration: CollaborationConfig{
			SyncPort:       DefaultSyncPort,
			AdvertiseIP:    "", // auto-detected
			AutoNegotiate:  true,
			AutoJoin:       true,
			MaxPeers:       32,
			WriteTimeout:   10 * time.Second,
			PingInterval:   30 * time.Second,
			SendQueueSize:  256,
			MaxMessageSize: 64 << 20,
		},
		Discovery: DiscoveryConfig{
			Enabled:          true,
			Port:             DefaultDiscoveryPort,
			BroadcastAddress: "255.255.255.255",
			Tag:              DefaultDiscoveryTag,
			AnnounceInterval: 3 * time.Second,
			Window:           2 * time.Second,
			ServerTTL:        15 * time.Second,
		},
		Reconnect: ReconnectConfig{
			Attempts:     5,
			Timeout:      10 * time.Second,
			InitialDelay: time.Second,
			MaxDelay:     10 * time.Second,
		},
		Build: BuildConfig{
			WorkDir: ".",
			Stages: []BuildStage{
				{Name: "install", Command: []string{"npm", "install"}},
				{Name: "build", Command: []string{"npx", "gatsby", "build"}},
				{Name: "deploy", Command: []string{"npx", "vercel", "--prod", "--yes"}},
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// SyncAddress returns the host:port the sync server binds to
func (c *Config) SyncAddress() string {
	return fmt.Sprintf(":%d", c.Collaboration.SyncPort)
}
