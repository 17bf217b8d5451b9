package config

// NodeConfig contains instance-specific configuration
type NodeConfig struct {
	Name    string `yaml:"name"`     // Display name shown to other peers
	DataDir string `yaml:"data_dir"` // Holds the local sqlite store
}
