package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"cdctrl/config"
	"cdctrl/internal/models"

	"github.com/segmentio/kafka-go"
)

// KafkaConsumer implements the Consumer interface to consume JSON log records from Kafka
type KafkaConsumer struct {
	reader *kafka.Reader
	logger *log.Logger
}

// NewKafkaConsumer creates a KafkaConsumer reading the configured topic as part of a group.
func NewKafkaConsumer(cfg config.KafkaConsumerConfig, logger *log.Logger) (*KafkaConsumer, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" || cfg.GroupID == "" {
		return nil, errors.New("incomplete kafka configuration: brokers, topic, group_id are all required")
	}

	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:           cfg.Brokers,
		GroupID:           cfg.GroupID,
		Topic:             cfg.Topic,
		MinBytes:          1, // deliver single records immediately
		MaxBytes:          10e6, // 10MB
		MaxWait:           500 * time.Millisecond,
		SessionTimeout:    durationOr(cfg.SessionTimeout, 30*time.Second, "session_timeout", logger),
		HeartbeatInterval: durationOr(cfg.HeartbeatInterval, 3*time.Second, "heartbeat_interval", logger),
		StartOffset:       startOffset(cfg.AutoOffsetReset, logger),
	})

	logger.Printf("Kafka consumer created, connected to Brokers: %v, Topic: %s, GroupID: %s", cfg.Brokers, cfg.Topic, cfg.GroupID)

	return &KafkaConsumer{
		reader: r,
		logger: logger,
	}, nil
}

func durationOr(s string, def time.Duration, key string, logger *log.Logger) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		logger.Printf("Warning: Invalid kafka_consumer.%s '%s', using default %s", key, s, def)
		return def
	}
	return d
}

func startOffset(autoOffsetReset string, logger *log.Logger) int64 {
	switch autoOffsetReset {
	case "", "latest":
		return kafka.LastOffset
	case "earliest":
		return kafka.FirstOffset
	default:
		logger.Printf("Warning: Unknown auto_offset_reset '%s', using latest", autoOffsetReset)
		return kafka.LastOffset
	}
}

// Consume implements the Consumer interface by reading messages from Kafka
func (k *KafkaConsumer) Consume(ctx context.Context) (record *models.LogRecord, ack func(success bool), err error) {
	// Fetch message from Kafka
	kafkaMsg, err := k.reader.FetchMessage(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			k.logger.Println("Kafka consumer: Context cancelled, stopping consumption.")
			return nil, nil, ctx.Err()
		}
		return nil, nil, err
	}

	// Deserialize message body (assumes JSON format)
	rec, err := DecodeRecord(kafkaMsg.Value)
	if err != nil {
		k.logger.Printf("Kafka consumer: Failed to deserialize message (Offset: %d): %v. Message will be discarded.", kafkaMsg.Offset, err)
		_ = k.reader.CommitMessages(ctx, kafkaMsg) // Commit offset to avoid blocking
		return nil, nil, fmt.Errorf("message deserialization failed: %w", err)
	}

	// Create ack callback
	ackCallback := func(success bool) {
		commitCtx := context.Background()
		if success {
			if err := k.reader.CommitMessages(commitCtx, kafkaMsg); err != nil {
				k.logger.Printf("Kafka consumer: Failed to commit offset %d: %v", kafkaMsg.Offset, err)
			}
		} else {
			k.logger.Printf("Kafka consumer: NACK received for offset %d (uuid %s). Offset will not be committed.", kafkaMsg.Offset, rec.UUID)
		}
	}

	return rec, ackCallback, nil
}

// DecodeRecord parses a JSON log record and assigns its identity if the sender did not.
func DecodeRecord(data []byte) (*models.LogRecord, error) {
	var rec models.LogRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	rec.AssignIdentity()
	return &rec, nil
}

// Close implements the Consumer interface by closing the Kafka reader
func (k *KafkaConsumer) Close() error {
	k.logger.Println("Closing Kafka consumer...")
	return k.reader.Close()
}

// Ensure KafkaConsumer implements the Consumer interface
var _ Consumer = (*KafkaConsumer)(nil)
