package config

import (
	"fmt"
	"log"
	"time"
)

// DatabaseConfig defines the PostgreSQL archive connection settings
type DatabaseConfig struct {
	DSN            string `yaml:"dsn"`             // PostgreSQL connection string, archive disabled when empty
	MaxConnections int    `yaml:"max_connections"` // Pool upper bound
	MinConnections int    `yaml:"min_connections"` // Connections kept open while idle
	MaxIdleTime    string `yaml:"max_idle_time"`
	MaxLifetime    string `yaml:"max_lifetime"`
}

// SetDefaults sets defaults sized for a single inspector writing small batches
func (c *DatabaseConfig) SetDefaults() {
	if c.MaxConnections <= 0 {
		c.MaxConnections = 4
		fmt.Printf("Warning: database.max_connections not set or invalid, defaulting to %d\n", c.MaxConnections)
	}
	if c.MinConnections <= 0 {
		c.MinConnections = 1
		fmt.Printf("Warning: database.min_connections not set or invalid, defaulting to %d\n", c.MinConnections)
	}
	if c.MaxIdleTime == "" {
		c.MaxIdleTime = "30m"
		fmt.Printf("Warning: database.max_idle_time not set, defaulting to %s\n", c.MaxIdleTime)
	}
	if c.MaxLifetime == "" {
		c.MaxLifetime = "1h"
		fmt.Printf("Warning: database.max_lifetime not set, defaulting to %s\n", c.MaxLifetime)
	}
}

// Validate checks the pool bounds and durations
func (c *DatabaseConfig) Validate() error {
	if c.DSN == "" {
		return fmt.Errorf("database DSN is required")
	}
	if c.MaxConnections <= 0 {
		return fmt.Errorf("database max_connections must be positive")
	}
	if c.MinConnections < 0 || c.MinConnections > c.MaxConnections {
		return fmt.Errorf("database min_connections (%d) must be between 0 and max_connections (%d)",
			c.MinConnections, c.MaxConnections)
	}
	if _, _, err := c.PoolDurations(); err != nil {
		return err
	}
	return nil
}

// PoolDurations parses max_idle_time and max_lifetime. An empty value yields zero.
func (c *DatabaseConfig) PoolDurations() (idle, lifetime time.Duration, err error) {
	if c.MaxIdleTime != "" {
		if idle, err = time.ParseDuration(c.MaxIdleTime); err != nil {
			return 0, 0, fmt.Errorf("database max_idle_time %q: %w", c.MaxIdleTime, err)
		}
	}
	if c.MaxLifetime != "" {
		if lifetime, err = time.ParseDuration(c.MaxLifetime); err != nil {
			return 0, 0, fmt.Errorf("database max_lifetime %q: %w", c.MaxLifetime, err)
		}
	}
	return idle, lifetime, nil
}

// LogConfiguration logs the pool settings, never the DSN
func (c *DatabaseConfig) LogConfiguration(logger *log.Logger) {
	logger.Printf("Archive database: max_conns=%d min_conns=%d max_idle=%s max_lifetime=%s dsn=[configured]",
		c.MaxConnections, c.MinConnections, c.MaxIdleTime, c.MaxLifetime)
}
