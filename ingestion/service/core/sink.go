package service

import (
	"context"
	"errors"

	"cdctrl/internal/models"
)

// ErrIngestionStopped is returned by Send once the inbound side has been shut down.
var ErrIngestionStopped = errors.New("ingestion stopped")

// Sink accepts decoded records from a transport.
type Sink interface {
	Send(ctx context.Context, record models.LogRecord) error
}

// ChannelSink is the write side of the inbound channel drained by the ingestion loop.
type ChannelSink struct {
	ch   chan<- models.LogRecord
	done <-chan struct{}
}

// NewChannelSink wraps ch. Sends fail with ErrIngestionStopped once done is closed.
func NewChannelSink(ch chan<- models.LogRecord, done <-chan struct{}) *ChannelSink {
	return &ChannelSink{ch: ch, done: done}
}

// Send blocks until the record is queued, ctx ends or ingestion stops.
func (s *ChannelSink) Send(ctx context.Context, record models.LogRecord) error {
	select {
	case s.ch <- record:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrIngestionStopped
	}
}

var _ Sink = (*ChannelSink)(nil)
