package config

import "time"

// CollaborationConfig contains the sync server and session settings
type CollaborationConfig struct {
	SyncPort       int           `yaml:"sync_port"`        // Port the Host accepts peers on (0 picks a free port)
	AdvertiseIP    string        `yaml:"advertise_ip"`     // IP announced on the LAN; auto-detected if empty
	AutoNegotiate  bool          `yaml:"auto_negotiate"`   // Decide Host/Client role on start
	AutoJoin       bool          `yaml:"auto_join"`        // Connect to the first discovered Host
	MaxPeers       int           `yaml:"max_peers"`        // Concurrent peer connections accepted by the Host
	WriteTimeout   time.Duration `yaml:"write_timeout"`    // Per-frame websocket write deadline
	PingInterval   time.Duration `yaml:"ping_interval"`    // Websocket keepalive
	SendQueueSize  int           `yaml:"send_queue_size"`  // Outbound frames buffered per peer
	MaxMessageSize int64         `yaml:"max_message_size"` // Largest inbound frame in bytes, sized for full-state hydration
}
