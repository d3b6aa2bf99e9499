package service

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"cdctrl/internal/models"
	"cdctrl/internal/store"
)

// RecordStore is the write side of the LogStore used by the ingestion loop.
type RecordStore interface {
	PushFront(record models.LogRecord, received time.Time) error
}

// Archiver receives every committed entry. Implementations must not block.
type Archiver interface {
	Archive(entry models.Entry)
}

// Service is the ingestion loop: it drains the inbound channel into the LogStore,
// one record at a time and in channel order, and signals the consumer side after
// every commit.
type Service struct {
	store      RecordStore
	inbound    <-chan models.LogRecord
	notifier   *Notifier
	archiver   Archiver
	logger     *log.Logger
	retryDelay time.Duration
	now        func() time.Time

	committed atomic.Uint64

	startOnce sync.Once
	stopOnce  sync.Once
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewService creates the ingestion loop. archiver may be nil.
func NewService(s RecordStore, inbound <-chan models.LogRecord, n *Notifier, a Archiver, l *log.Logger, retryDelay time.Duration) *Service {
	if retryDelay <= 0 {
		retryDelay = 50 * time.Millisecond
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		store:      s,
		inbound:    inbound,
		notifier:   n,
		archiver:   a,
		logger:     l,
		retryDelay: retryDelay,
		now:        time.Now,
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// Start launches the worker. Calling it more than once has no effect.
func (s *Service) Start() {
	s.startOnce.Do(func() {
		s.logger.Println("Ingestion: Starting ingestion loop...")
		go s.run()
	})
}

// Stop cancels the worker and waits for it to exit. Records still queued in the
// inbound channel are dropped.
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		s.cancel()
		s.startOnce.Do(func() { close(s.done) }) // never started
		<-s.done
		s.logger.Printf("Ingestion: Loop stopped after %d committed records.", s.committed.Load())
	})
}

// Shutdown ends ingestion. When producersStopped is true nothing can still send on
// inbound, so it is closed and the loop commits what is queued for up to timeout.
// Otherwise inbound stays open and the loop is stopped directly, which releases
// blocked senders with ErrIngestionStopped. It returns the number of records left
// uncommitted in inbound.
func (s *Service) Shutdown(inbound chan<- models.LogRecord, producersStopped bool, timeout time.Duration) int {
	if producersStopped {
		close(inbound)
		timer := time.NewTimer(timeout)
		select {
		case <-s.done:
		case <-timer.C:
			s.logger.Printf("Ingestion: Inbound queue not drained within %s", timeout)
		}
		timer.Stop()
	} else {
		s.logger.Println("Ingestion: Senders may still be active, stopping without closing inbound.")
	}
	s.Stop()
	return len(inbound)
}

// Done is closed when the loop has exited, either through Stop or because the
// inbound channel was closed.
func (s *Service) Done() <-chan struct{} {
	return s.done
}

// Committed returns how many records have been pushed into the store.
func (s *Service) Committed() uint64 {
	return s.committed.Load()
}

func (s *Service) run() {
	defer close(s.done)
	for {
		select {
		case <-s.ctx.Done():
			return
		case record, ok := <-s.inbound:
			if !ok {
				s.logger.Println("Ingestion: Inbound channel closed, exiting loop.")
				return
			}
			if !s.commit(record) {
				return
			}
		}
	}
}

// commit pushes record, retrying while the store is unavailable. It returns false
// only when the service was stopped mid-retry.
func (s *Service) commit(record models.LogRecord) bool {
	received := s.now()
	for attempt := 1; ; attempt++ {
		err := s.store.PushFront(record, received)
		if err == nil {
			break
		}
		if !errors.Is(err, store.ErrStoreUnavailable) {
			// PushFront reports nothing else today; treat it like contention anyway
			s.logger.Printf("Ingestion: Unexpected store error: %v", err)
		}
		s.logger.Printf("Ingestion: Store unavailable for record %s (attempt %d), retrying in %s: %v",
			record.UUID, attempt, s.retryDelay, err)

		timer := time.NewTimer(s.retryDelay)
		select {
		case <-s.ctx.Done():
			timer.Stop()
			return false
		case <-timer.C:
		}
	}

	s.committed.Add(1)
	s.notifier.Notify()
	if s.archiver != nil {
		s.archiver.Archive(models.Entry{Log: record, Received: received})
	}
	return true
}

var _ RecordStore = (*store.LogStore)(nil)
