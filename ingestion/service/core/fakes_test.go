package service

import (
	"context"
	"sync"
	"time"

	"cdctrl/internal/models"
	"cdctrl/internal/store"
)

// flakyStore fails the first `failures` pushes with ErrStoreUnavailable.
type flakyStore struct {
	mu       sync.Mutex
	failures int
	tries    int
	pushed   []string
}

func (f *flakyStore) PushFront(record models.LogRecord, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tries++
	if f.failures > 0 {
		f.failures--
		return store.ErrStoreUnavailable
	}
	f.pushed = append(f.pushed, record.UUID)
	return nil
}

func (f *flakyStore) attempts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tries
}

func (f *flakyStore) ids() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.pushed...)
}

type fakeArchiveStore struct {
	mu      sync.Mutex
	entries []models.Entry
}

func (f *fakeArchiveStore) InsertEntryBatch(_ context.Context, batch []models.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, batch...)
	return nil
}

func (f *fakeArchiveStore) Close() {}

func (f *fakeArchiveStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

func (f *fakeArchiveStore) ids() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.entries))
	for i, e := range f.entries {
		out[i] = e.ID()
	}
	return out
}

type fakeProducer struct {
	mu      sync.Mutex
	entries []models.Entry
}

func (f *fakeProducer) Publish(_ context.Context, e models.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, e)
	return nil
}

func (f *fakeProducer) PublishBatch(_ context.Context, batch []models.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, batch...)
	return nil
}

func (f *fakeProducer) Close() error { return nil }

func (f *fakeProducer) ids() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.entries))
	for i, e := range f.entries {
		out[i] = e.ID()
	}
	return out
}
