package consumer

import (
	"context"

	"cdctrl/internal/models"
)

// Consumer defines the interface for message queue consumers that deliver log records.
type Consumer interface {
	// Consume blocks until a record is received or the context is cancelled.
	// It returns the decoded record, an acknowledgement callback, and any error that occurred.
	// The ack callback: ack(true) once the record was handed to ingestion;
	// ack(false) if it could not be (the message will be redelivered).
	Consume(ctx context.Context) (record *models.LogRecord, ack func(success bool), err error)

	// Close gracefully shuts down the consumer connection.
	Close() error
}
