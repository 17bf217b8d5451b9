package config

import "time"

// DiscoveryConfig contains LAN beacon configuration
type DiscoveryConfig struct {
	Enabled          bool          `yaml:"enabled"`
	Port             int           `yaml:"port"`              // UDP port for announcements
	BroadcastAddress string        `yaml:"broadcast_address"` // Destination of announcements
	Tag              string        `yaml:"tag"`               // Fixed key that marks our datagrams
	AnnounceInterval time.Duration `yaml:"announce_interval"`
	Window           time.Duration `yaml:"window"`     // Quiet period before deciding the role
	ServerTTL        time.Duration `yaml:"server_ttl"` // 0 keeps discovered Hosts forever
}
