package consumer

import (
	"context"
	"errors"
	"log"
	"sync"

	"cdctrl/internal/models"
)

// ErrMockClosed is returned by MockConsumer.Consume after Close.
var ErrMockClosed = errors.New("message channel closed")

// MockConsumer replays fixed records; used for local runs ("mock://local") and tests.
type MockConsumer struct {
	logger    *log.Logger
	messages  chan *models.LogRecord
	closeOnce sync.Once
}

// PredefinedRecords are the records a MockConsumer created with nil records serves.
var PredefinedRecords = []*models.LogRecord{
	{
		UUID:       "a1b1c1d1-e1f1-1111-2222-1234567890ab",
		Message:    "Fixed mock log content 1",
		Address:    "127.0.0.1:40001",
		FileName:   "examples/basic.go",
		LineNumber: 12,
		Language:   "Go",
	},
	{
		UUID:       "a2b2c2d2-e2f2-3333-4444-abcdef123456",
		Message:    "Fixed mock log content 2 with more detail",
		Address:    "127.0.0.1:40001",
		FileName:   "examples/basic.go",
		LineNumber: 27,
		Warnings:   []string{"log called with an empty format string"},
		Language:   "Go",
	},
	{
		// same text as the first record, distinct event
		UUID:       "a3b3c3d3-e3f3-5555-6666-fedcba654321",
		Message:    "Fixed mock log content 1",
		Address:    "127.0.0.1:40002",
		FileName:   "examples/basic.go",
		LineNumber: 12,
		Language:   "Go",
	},
}

// NewMockConsumer creates a MockConsumer preloaded with records, or with
// PredefinedRecords when records is nil.
func NewMockConsumer(logger *log.Logger, records []*models.LogRecord) *MockConsumer {
	if records == nil {
		records = PredefinedRecords
	}
	mc := &MockConsumer{
		logger:   logger,
		messages: make(chan *models.LogRecord, len(records)+5),
	}
	logger.Println("[MockConsumer] Initializing with predefined records...")
	for _, rec := range records {
		mc.messages <- rec
	}
	logger.Printf("[MockConsumer] %d predefined records loaded", len(records))
	return mc
}

// Consume reads predefined records from the channel.
func (m *MockConsumer) Consume(ctx context.Context) (record *models.LogRecord, ack func(success bool), err error) {
	select {
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	case rec, ok := <-m.messages:
		if !ok || rec == nil {
			return nil, nil, ErrMockClosed
		}
		m.logger.Printf("[MockConsumer] Consumed record: uuid=%s", rec.UUID)

		ackCallback := func(success bool) {
			if success {
				return
			}
			m.logger.Printf("[MockConsumer] NACK received for record: uuid=%s. Re-queueing (mock)", rec.UUID)
			m.requeue(rec)
		}
		return rec, ackCallback, nil
	}
}

func (m *MockConsumer) requeue(rec *models.LogRecord) {
	defer func() {
		// channel closed concurrently
		_ = recover()
	}()
	select {
	case m.messages <- rec:
	default:
		m.logger.Printf("[MockConsumer] Warning: Failed to re-queue record (channel full?): uuid=%s", rec.UUID)
	}
}

// Close closes the message channel.
func (m *MockConsumer) Close() error {
	m.closeOnce.Do(func() {
		m.logger.Println("[MockConsumer] Closing...")
		close(m.messages)
	})
	return nil
}

var _ Consumer = (*MockConsumer)(nil)
