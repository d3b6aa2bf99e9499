package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// Config file names looked up by LoadConfig, in order of preference
const (
	LocalConfigName   = "inspector.yml"
	DefaultConfigName = "inspector.defaults.yml"
)

// LoadConfig loads the inspector configuration from a directory, preferring a local
// inspector.yml over the shipped inspector.defaults.yml
func LoadConfig(configDir string) (*InspectorConfig, error) {
	absDir, err := filepath.Abs(configDir)
	if err != nil {
		return nil, fmt.Errorf("unable to get absolute path of config directory: %w", err)
	}

	for _, name := range []string{LocalConfigName, DefaultConfigName} {
		path := filepath.Join(absDir, name)
		if _, err := os.Stat(path); err == nil {
			fmt.Printf("Loading inspector configuration from '%s'...\n", path)
			cfg, err := LoadInspectorConfig(path)
			if err != nil {
				return nil, fmt.Errorf("failed to load inspector config: %w", err)
			}
			return cfg, nil
		}
	}
	return nil, fmt.Errorf("no %s or %s found in '%s'", LocalConfigName, DefaultConfigName, absDir)
}
