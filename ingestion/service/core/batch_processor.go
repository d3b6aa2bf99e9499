package service

import (
	"context"
	"log"
	"sync"
	"time"

	"cdctrl/internal/messaging/producer"
	"cdctrl/internal/models"
	"cdctrl/storage/archive"
)

// BatchProcessor batches committed entries and hands them to the archive sinks
// (PostgreSQL and/or a Kafka topic). It never blocks the ingestion loop: when the
// flush queue is full, entries stay buffered until the next timer tick, and the
// buffer is capped at maxBuffer entries (oldest dropped).
type BatchProcessor struct {
	batchSize    int
	batchTimeout time.Duration
	maxBuffer    int
	logger       *log.Logger
	store        archive.Store
	producer     producer.Producer

	// Buffers
	buffer      []models.Entry
	bufferMutex sync.Mutex
	flushChan   chan []models.Entry
	dropped     int

	// Context for graceful shutdown
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewBatchProcessor creates a new batch processor. Either sink may be nil.
func NewBatchProcessor(batchSize int, batchTimeout time.Duration, flushChannelBuffer, maxBuffer int,
	store archive.Store, producer producer.Producer, logger *log.Logger) *BatchProcessor {

	if batchSize <= 0 {
		batchSize = 100
	}
	if batchTimeout <= 0 {
		batchTimeout = time.Second
	}
	if flushChannelBuffer <= 0 {
		flushChannelBuffer = 16
	}
	if maxBuffer < batchSize {
		maxBuffer = batchSize * 100
	}

	ctx, cancel := context.WithCancel(context.Background())

	bp := &BatchProcessor{
		batchSize:    batchSize,
		batchTimeout: batchTimeout,
		maxBuffer:    maxBuffer,
		logger:       logger,
		store:        store,
		producer:     producer,
		buffer:       make([]models.Entry, 0, batchSize),
		flushChan:    make(chan []models.Entry, flushChannelBuffer),
		ctx:          ctx,
		cancel:       cancel,
	}

	// Start background goroutines
	bp.wg.Add(2)
	go bp.batchTimer()
	go bp.batchProcessor()

	return bp
}

// Archive adds an entry to the current batch.
func (bp *BatchProcessor) Archive(entry models.Entry) {
	bp.bufferMutex.Lock()
	if len(bp.buffer) >= bp.maxBuffer {
		bp.buffer = bp.buffer[1:]
		bp.dropped++
	}
	bp.buffer = append(bp.buffer, entry)
	shouldFlush := len(bp.buffer) >= bp.batchSize
	bp.bufferMutex.Unlock()

	if shouldFlush {
		bp.flushIfNeeded()
	}
}

// batchTimer handles periodic flushing
func (bp *BatchProcessor) batchTimer() {
	defer bp.wg.Done()

	ticker := time.NewTicker(bp.batchTimeout)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			bp.flushIfNeeded()
		case <-bp.ctx.Done():
			return
		}
	}
}

// batchProcessor handles actual batch processing
func (bp *BatchProcessor) batchProcessor() {
	defer bp.wg.Done()

	for {
		select {
		case batch := <-bp.flushChan:
			bp.processBatch(batch)
		case <-bp.ctx.Done():
			// Drain queued batches and the remaining buffer before shutdown
			for drained := false; !drained; {
				select {
				case batch := <-bp.flushChan:
					bp.processBatch(batch)
				default:
					drained = true
				}
			}
			bp.bufferMutex.Lock()
			remaining := bp.buffer
			bp.buffer = nil
			bp.bufferMutex.Unlock()

			bp.processBatch(remaining)
			return
		}
	}
}

// flushIfNeeded queues the buffer for processing if it has entries
func (bp *BatchProcessor) flushIfNeeded() {
	bp.bufferMutex.Lock()
	defer bp.bufferMutex.Unlock()

	if len(bp.buffer) == 0 {
		return
	}
	if bp.dropped > 0 {
		bp.logger.Printf("Archive: Buffer overflow, dropped %d entries", bp.dropped)
		bp.dropped = 0
	}

	batch := make([]models.Entry, len(bp.buffer))
	copy(batch, bp.buffer)

	select {
	case bp.flushChan <- batch:
		bp.buffer = bp.buffer[:0]
	default:
		// flush queue full, keep buffering until the next tick
	}
}

// processBatch writes one batch to every configured sink
func (bp *BatchProcessor) processBatch(batch []models.Entry) {
	if len(batch) == 0 {
		return
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var dbDuration, kafkaDuration time.Duration

	if bp.store != nil {
		dbStart := time.Now()
		if err := bp.store.InsertEntryBatch(ctx, batch); err != nil {
			bp.logger.Printf("Archive: Batch database insert failed (%d entries): %v", len(batch), err)
		}
		dbDuration = time.Since(dbStart)
	}

	if bp.producer != nil {
		kafkaStart := time.Now()
		if err := bp.producer.PublishBatch(ctx, batch); err != nil {
			bp.logger.Printf("Archive: Batch Kafka publish failed (%d entries): %v", len(batch), err)
		}
		kafkaDuration = time.Since(kafkaStart)
	}

	bp.logger.Printf("Archive: Batch processed: %d entries, DB: %v, Kafka: %v, Total: %v",
		len(batch), dbDuration, kafkaDuration, time.Since(start))
}

// Close flushes what is buffered and stops the background goroutines
func (bp *BatchProcessor) Close() {
	bp.cancel()
	bp.wg.Wait()
}

var _ Archiver = (*BatchProcessor)(nil)
