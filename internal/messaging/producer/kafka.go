package producer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"cdctrl/config"
	"cdctrl/internal/models"

	"github.com/segmentio/kafka-go"
)

// KafkaProducer implements the Producer interface
type KafkaProducer struct {
	writer *kafka.Writer
	logger *log.Logger
	topic  string
}

// NewKafkaProducer creates a KafkaProducer. The writer connects lazily, on the first publish.
func NewKafkaProducer(cfg config.KafkaProducerConfig, logger *log.Logger) (*KafkaProducer, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, errors.New("kafka producer configuration incomplete: both brokers and topic are required")
	}
	cfg.SetDefaults()

	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{}, // same identity, same partition
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
		BatchBytes:   int64(cfg.BatchBytes),
		RequiredAcks: requiredAcks(cfg.RequiredAcks),
		Async:        cfg.Async,
		WriteTimeout: cfg.WriteTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Printf("Kafka Writer Error: "+msg, args...)
		}),
	}

	logger.Printf("Kafka archive producer created, Brokers: %v, Topic: %s, Acks: %s, Async: %t",
		cfg.Brokers, cfg.Topic, cfg.RequiredAcks, cfg.Async)

	return &KafkaProducer{
		writer: w,
		logger: logger,
		topic:  cfg.Topic,
	}, nil
}

func requiredAcks(s string) kafka.RequiredAcks {
	switch s {
	case "none":
		return kafka.RequireNone
	case "all":
		return kafka.RequireAll
	default:
		return kafka.RequireOne
	}
}

// entryMessage encodes an entry as a Kafka message keyed by record identity
func entryMessage(entry models.Entry) (kafka.Message, error) {
	value, err := json.Marshal(entry)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to serialize entry (UUID: %s): %w", entry.Log.UUID, err)
	}
	return kafka.Message{
		Key:   []byte(entry.Log.UUID),
		Value: value,
		Time:  entry.Received,
	}, nil
}

// Publish sends a single entry
func (p *KafkaProducer) Publish(ctx context.Context, entry models.Entry) error {
	kafkaMsg, err := entryMessage(entry)
	if err != nil {
		return err
	}

	// Send message
	if err := p.writer.WriteMessages(ctx, kafkaMsg); err != nil {
		// This error is usually local errors like buffer full or context cancellation
		p.logger.Printf("Failed to send Kafka message to buffer (UUID: %s): %v", entry.Log.UUID, err)
		return fmt.Errorf("failed to write to Kafka buffer: %w", err)
	}
	return nil
}

// PublishBatch sends entries in batch to the configured topic
func (p *KafkaProducer) PublishBatch(ctx context.Context, entries []models.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	kafkaMsgs := make([]kafka.Message, len(entries))
	for i, entry := range entries {
		msg, err := entryMessage(entry)
		if err != nil {
			return err
		}
		kafkaMsgs[i] = msg
	}

	// Send messages in batch
	if err := p.writer.WriteMessages(ctx, kafkaMsgs...); err != nil {
		p.logger.Printf("Failed to send Kafka messages in batch (count: %d): %v", len(entries), err)
		return fmt.Errorf("failed to batch write to Kafka buffer: %w", err)
	}

	return nil
}

// Close closes the producer
func (p *KafkaProducer) Close() error {
	p.logger.Printf("Closing Kafka producer for topic %s (and flushing buffer)...", p.topic)
	return p.writer.Close() // Close will attempt to send remaining messages in buffer
}

var _ Producer = (*KafkaProducer)(nil) // Compile-time interface check
