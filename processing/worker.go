package worker

import (
	"context"
	"errors"
	"log"
	"time"

	"cdctrl/config"
	core "cdctrl/ingestion/service/core"
	"cdctrl/internal/messaging/consumer"
)

// Worker forwards records from a message queue consumer into the ingestion sink,
// one at a time so queue order is preserved.
type Worker struct {
	retryDelay time.Duration // Parsed from config RetryDelay
	logger     *log.Logger
	consumer   consumer.Consumer
	sink       core.Sink
}

// New creates a new Worker instance
func New(cfg config.KafkaConsumerConfig, logger *log.Logger, c consumer.Consumer, sink core.Sink) *Worker {
	retryDelay, err := time.ParseDuration(cfg.RetryDelay)
	if err != nil {
		logger.Printf("Warning: Invalid retry_delay '%s', using default 5s", cfg.RetryDelay)
		retryDelay = 5 * time.Second
	}

	return &Worker{
		retryDelay: retryDelay,
		logger:     logger,
		consumer:   c,
		sink:       sink,
	}
}

// Run consumes until ctx is cancelled or the consumer is closed
func (w *Worker) Run(ctx context.Context) {
	w.logger.Println("Worker: Started forwarding consumer records to ingestion")
	var forwarded int
	defer func() {
		w.logger.Printf("Worker: Stopped after forwarding %d records", forwarded)
	}()

	for {
		rec, ack, err := w.consumer.Consume(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
				return
			}
			if errors.Is(err, consumer.ErrMockClosed) {
				return
			}
			// Only log real consumer errors
			w.logger.Printf("Worker: Consumer error: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.retryDelay):
			}
			continue
		}
		if rec == nil {
			continue
		}

		if err := w.sink.Send(ctx, *rec); err != nil {
			w.logger.Printf("Worker: Failed to hand record %s to ingestion: %v", rec.UUID, err)
			ack(false)
			if errors.Is(err, core.ErrIngestionStopped) {
				return
			}
			continue
		}
		ack(true)
		forwarded++
	}
}
