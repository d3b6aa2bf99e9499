package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// StoreConfig defines the LogStore and ingestion loop settings
type StoreConfig struct {
	LockTimeout   time.Duration `yaml:"lock_timeout"`   // Bounded wait for the store lock
	RetryDelay    time.Duration `yaml:"retry_delay"`    // Ingestion retry delay when the store is unavailable
	InboundBuffer int           `yaml:"inbound_buffer"` // Capacity of the inbound record channel
}

// SetDefaults sets reasonable default values for store configuration
func (c *StoreConfig) SetDefaults() {
	if c.LockTimeout <= 0 {
		c.LockTimeout = 250 * time.Millisecond
		fmt.Printf("Warning: store.lock_timeout not set, defaulting to %v\n", c.LockTimeout)
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 50 * time.Millisecond
		fmt.Printf("Warning: store.retry_delay not set, defaulting to %v\n", c.RetryDelay)
	}
	if c.InboundBuffer <= 0 {
		c.InboundBuffer = 1024
		fmt.Printf("Warning: store.inbound_buffer not set, defaulting to %d\n", c.InboundBuffer)
	}
}

// SessionConfig defines session file settings
type SessionConfig struct {
	FilenameFormat  string `yaml:"filename_format"`  // strftime pattern for session timestamps
	Directory       string `yaml:"directory"`        // Where sessions are saved by default
	PreserveSession bool   `yaml:"preserve_session"` // Autosave on shutdown, autoload on start
	AutosavePath    string `yaml:"autosave_path"`    // File used when preserve_session is set
}

// SetDefaults sets reasonable default values for session configuration
func (c *SessionConfig) SetDefaults() {
	if c.FilenameFormat == "" {
		c.FilenameFormat = "%Y-%m-%d_%H-%M-%S"
		fmt.Printf("Warning: session.filename_format not set, defaulting to %s\n", c.FilenameFormat)
	}
	if c.Directory == "" {
		c.Directory = "./sessions"
		fmt.Printf("Warning: session.directory not set, defaulting to %s\n", c.Directory)
	}
	if c.PreserveSession && c.AutosavePath == "" {
		c.AutosavePath = "./sessions/last.cdctrl"
		fmt.Printf("Warning: session.autosave_path not set, defaulting to %s\n", c.AutosavePath)
	}
}

// ArchiveConfig defines configuration for batching committed records to the archive sinks
type ArchiveConfig struct {
	BatchSize          int           `yaml:"batch_size"`
	BatchTimeout       time.Duration `yaml:"batch_timeout"`
	MaxBufferSize      int           `yaml:"max_buffer_size"`
	FlushChannelBuffer int           `yaml:"flush_channel_buffer"` // Buffer size for flush channel
}

// SetDefaults sets reasonable default values for archive configuration
func (c *ArchiveConfig) SetDefaults() {
	if c.BatchSize == 0 {
		c.BatchSize = 100
		fmt.Printf("Warning: archive.batch_size not set, defaulting to %d\n", c.BatchSize)
	}
	if c.BatchTimeout == 0 {
		c.BatchTimeout = time.Second
		fmt.Printf("Warning: archive.batch_timeout not set, defaulting to %v\n", c.BatchTimeout)
	}
	if c.MaxBufferSize == 0 {
		c.MaxBufferSize = 10000
		fmt.Printf("Warning: archive.max_buffer_size not set, defaulting to %d\n", c.MaxBufferSize)
	}
	if c.FlushChannelBuffer == 0 {
		c.FlushChannelBuffer = 16
		fmt.Printf("Warning: archive.flush_channel_buffer not set, defaulting to %d\n", c.FlushChannelBuffer)
	}
}

// HttpServerConfig defines HTTP server configuration
type HttpServerConfig struct {
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	MaxHeaderBytes int           `yaml:"max_header_bytes"`
}

// LoggingConfig defines where the inspector writes its own log
type LoggingConfig struct {
	File       string `yaml:"file"`         // Optional rotating log file, stdout only when empty
	MaxSizeMB  int    `yaml:"max_size_mb"`  // Rotate after this many megabytes
	MaxBackups int    `yaml:"max_backups"`  // Rotated files to keep
	MaxAgeDays int    `yaml:"max_age_days"` // Days to keep rotated files
}

// SetDefaults sets reasonable default values for logging configuration
func (c *LoggingConfig) SetDefaults() {
	if c.File == "" {
		return
	}
	if c.MaxSizeMB <= 0 {
		c.MaxSizeMB = 50
		fmt.Printf("Warning: logging.max_size_mb not set, defaulting to %d\n", c.MaxSizeMB)
	}
	if c.MaxBackups <= 0 {
		c.MaxBackups = 3
		fmt.Printf("Warning: logging.max_backups not set, defaulting to %d\n", c.MaxBackups)
	}
	if c.MaxAgeDays <= 0 {
		c.MaxAgeDays = 28
		fmt.Printf("Warning: logging.max_age_days not set, defaulting to %d\n", c.MaxAgeDays)
	}
}

// InspectorConfig defines all configuration for the log inspector
type InspectorConfig struct {
	HttpListenAddr string `yaml:"http_listen_addr"`
	GrpcListenAddr string `yaml:"grpc_listen_addr"`

	Store         StoreConfig         `yaml:"store"`
	Session       SessionConfig       `yaml:"session"`
	KafkaConsumer KafkaConsumerConfig `yaml:"kafka_consumer"`
	KafkaProducer KafkaProducerConfig `yaml:"kafka_producer"`
	Archive       ArchiveConfig       `yaml:"archive"`
	Database      DatabaseConfig      `yaml:"database"` // Optional PostgreSQL archive
	HttpServer    HttpServerConfig    `yaml:"http_server"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// ArchiveEnabled reports whether any archive sink is configured
func (c *InspectorConfig) ArchiveEnabled() bool {
	return c.Database.DSN != "" || c.KafkaProducer.Enabled()
}

// SetDefaults applies the defaults of every section
func (c *InspectorConfig) SetDefaults() {
	c.Store.SetDefaults()
	c.Session.SetDefaults()
	c.KafkaConsumer.SetDefaults()
	c.Logging.SetDefaults()
	if c.ArchiveEnabled() {
		c.Archive.SetDefaults()
	}
	if c.Database.DSN != "" {
		c.Database.SetDefaults()
	}
}

// Validate checks the configuration after defaults were applied
func (c *InspectorConfig) Validate() error {
	if c.HttpListenAddr == "" && c.GrpcListenAddr == "" && !c.KafkaConsumer.Enabled() {
		return fmt.Errorf("configuration error: at least one of http_listen_addr, grpc_listen_addr or kafka_consumer.brokers must be configured")
	}
	if c.KafkaConsumer.Enabled() && !c.KafkaConsumer.IsMock() {
		if c.KafkaConsumer.Topic == "" || c.KafkaConsumer.GroupID == "" {
			return fmt.Errorf("configuration error: kafka_consumer.topic and kafka_consumer.group_id are required")
		}
	}
	if c.Database.DSN != "" {
		if err := c.Database.Validate(); err != nil {
			return fmt.Errorf("database configuration error: %w", err)
		}
	}
	return nil
}

// ParseInspectorConfig parses YAML configuration, applies defaults and validates it
func ParseInspectorConfig(data []byte) (*InspectorConfig, error) {
	var cfg InspectorConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse inspector YAML config: %w", err)
	}

	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadInspectorConfig loads inspector configuration from the specified YAML file path
func LoadInspectorConfig(path string) (*InspectorConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read inspector config file '%s': %w", path, err)
	}
	return ParseInspectorConfig(data)
}
