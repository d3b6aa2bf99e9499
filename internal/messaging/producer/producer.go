package producer

import (
	"context"

	"cdctrl/internal/models"
)

// Producer defines the interface for republishing committed entries to a message queue
type Producer interface {
	// Publish sends a single entry to the configured topic
	Publish(ctx context.Context, entry models.Entry) error

	// PublishBatch sends entries in batch to the configured topic
	PublishBatch(ctx context.Context, entries []models.Entry) error

	// Close closes the producer connection
	Close() error
}
