package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ConfigDir returns the path to the sitecms config directory (~/.sitecms).
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to determine home directory: %w", err)
	}
	return filepath.Join(home, ".sitecms"), nil
}

// EnsureConfigDir creates the config directory if it does not exist.
func EnsureConfigDir() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("failed to create config directory %s: %w", dir, err)
	}
	return dir, nil
}

// DefaultPath returns the path to a config file inside the config directory.
// Absolute paths are returned unchanged.
func DefaultPath(component string) (string, error) {
	if filepath.IsAbs(component) {
		return component, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, component), nil
}

// ExpandPath expands environment variables and a leading ~ in path.
func ExpandPath(path string) (string, error) {
	expanded := os.ExpandEnv(path)
	if strings.HasPrefix(expanded, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		expanded = filepath.Join(home, expanded[1:])
	}
	return expanded, nil
}

// StorePath returns the location of the local sqlite store for this node.
func (c *Config) StorePath() (string, error) {
	dir, err := ExpandPath(c.Node.DataDir)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "collab.db"), nil
}
