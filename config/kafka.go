package config

import (
	"fmt"
	"time"
)

// KafkaConsumerConfig defines configuration for the Kafka consumer feeding the inspector
type KafkaConsumerConfig struct {
	Brokers           []string `yaml:"brokers"`            // e.g., ["kafka1:9092"], or ["mock://local"]
	Topic             string   `yaml:"topic"`              // Topic to consume from
	GroupID           string   `yaml:"group_id"`           // Consumer group ID
	SessionTimeout    string   `yaml:"session_timeout"`    // Kafka session timeout
	HeartbeatInterval string   `yaml:"heartbeat_interval"` // Kafka heartbeat interval
	AutoOffsetReset   string   `yaml:"auto_offset_reset"`  // earliest/latest
	RetryDelay        string   `yaml:"retry_delay"`        // Delay when consumer encounters errors
}

// Enabled reports whether any broker is configured
func (c *KafkaConsumerConfig) Enabled() bool {
	return len(c.Brokers) > 0
}

// IsMock reports whether the mock consumer should be used instead of Kafka
func (c *KafkaConsumerConfig) IsMock() bool {
	return len(c.Brokers) > 0 && c.Brokers[0] == "mock://local"
}

// SetDefaults sets reasonable default values for Kafka consumer configuration
func (c *KafkaConsumerConfig) SetDefaults() {
	if !c.Enabled() {
		return
	}
	if c.SessionTimeout == "" {
		c.SessionTimeout = "30s"
		fmt.Printf("Warning: kafka_consumer.session_timeout not set, defaulting to %s\n", c.SessionTimeout)
	}
	if c.HeartbeatInterval == "" {
		c.HeartbeatInterval = "3s"
		fmt.Printf("Warning: kafka_consumer.heartbeat_interval not set, defaulting to %s\n", c.HeartbeatInterval)
	}
	if c.AutoOffsetReset == "" {
		c.AutoOffsetReset = "latest"
		fmt.Printf("Warning: kafka_consumer.auto_offset_reset not set, defaulting to %s\n", c.AutoOffsetReset)
	}
	if c.RetryDelay == "" {
		c.RetryDelay = "5s"
		fmt.Printf("Warning: kafka_consumer.retry_delay not set, defaulting to %s\n", c.RetryDelay)
	}
}

// KafkaProducerConfig defines configuration for the Kafka producer used by the archive
type KafkaProducerConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`

	// Batch processing settings
	BatchSize    int           `yaml:"batch_size"`
	BatchTimeout time.Duration `yaml:"batch_timeout"`
	BatchBytes   int           `yaml:"batch_bytes"`

	// Reliability settings
	RequiredAcks string `yaml:"required_acks"`
	Async        bool   `yaml:"async"`

	// Performance settings
	WriteTimeout time.Duration `yaml:"write_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
}

// Enabled reports whether any broker is configured
func (c *KafkaProducerConfig) Enabled() bool {
	return len(c.Brokers) > 0
}

// SetDefaults fills unset producer settings. Writes are async when no acks are configured.
func (c *KafkaProducerConfig) SetDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.BatchTimeout <= 0 {
		c.BatchTimeout = 100 * time.Millisecond
	}
	if c.BatchBytes <= 0 {
		c.BatchBytes = 5 * 1024 * 1024
	}
	if c.RequiredAcks == "" {
		c.RequiredAcks = "one"
		c.Async = true
		fmt.Printf("Warning: kafka_producer.required_acks not set, defaulting to %s (async)\n", c.RequiredAcks)
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 5 * time.Second
	}
}
