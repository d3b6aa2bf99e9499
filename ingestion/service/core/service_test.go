package service

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"cdctrl/internal/models"
	"cdctrl/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

type recordingArchiver struct {
	mu      sync.Mutex
	entries []models.Entry
}

func (a *recordingArchiver) Archive(e models.Entry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, e)
}

func (a *recordingArchiver) ids() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.entries))
	for i, e := range a.entries {
		out[i] = e.ID()
	}
	return out
}

func waitDone(t *testing.T, s *Service) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("ingestion loop did not exit")
	}
}

func TestService_CommitsInChannelOrderAndExitsOnClose(t *testing.T) {
	st := store.New(0)
	in := make(chan models.LogRecord, 100)
	arch := &recordingArchiver{}
	svc := NewService(st, in, NewNotifier(), arch, discardLogger(), 0)

	var want []string
	for i := 0; i < 50; i++ {
		id := fmt.Sprint(i)
		want = append(want, id)
		in <- models.LogRecord{UUID: id}
	}
	close(in)

	svc.Start()
	waitDone(t, svc)

	snap, err := st.Snapshot()
	require.NoError(t, err)
	require.Len(t, snap, 50)
	for i, e := range snap {
		assert.Equal(t, want[len(want)-1-i], e.ID())
	}
	assert.Equal(t, uint64(50), svc.Committed())
	assert.Equal(t, want, arch.ids())

	svc.Stop() // safe after the loop already exited
}

func TestService_NotifiesAfterCommit(t *testing.T) {
	st := store.New(0)
	in := make(chan models.LogRecord)
	n := NewNotifier()
	svc := NewService(st, in, n, nil, discardLogger(), 0)
	svc.Start()
	defer svc.Stop()

	changed := n.Changed()
	in <- models.LogRecord{UUID: "x", Message: "hello"}

	select {
	case <-changed:
	case <-time.After(time.Second):
		t.Fatal("no change notification")
	}

	snap, err := st.Snapshot()
	require.NoError(t, err)
	require.Len(t, snap, 1)
	assert.Equal(t, "hello", snap[0].Log.Message)
	assert.False(t, snap[0].Received.IsZero())
}

func TestService_RetriesWhileStoreUnavailable(t *testing.T) {
	fs := &flakyStore{failures: 3}
	in := make(chan models.LogRecord, 1)
	svc := NewService(fs, in, NewNotifier(), nil, discardLogger(), time.Millisecond)
	svc.Start()
	defer svc.Stop()

	in <- models.LogRecord{UUID: "late"}

	require.Eventually(t, func() bool { return svc.Committed() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, 4, fs.attempts())
	assert.Equal(t, []string{"late"}, fs.ids())
}

func TestService_StopDuringRetry(t *testing.T) {
	fs := &flakyStore{failures: 1 << 30}
	in := make(chan models.LogRecord, 1)
	svc := NewService(fs, in, NewNotifier(), nil, discardLogger(), time.Millisecond)
	svc.Start()

	in <- models.LogRecord{UUID: "stuck"}
	require.Eventually(t, func() bool { return fs.attempts() > 1 }, time.Second, time.Millisecond)

	svc.Stop()
	waitDone(t, svc)
	assert.Equal(t, uint64(0), svc.Committed())
}

func TestService_StopWithoutStart(t *testing.T) {
	svc := NewService(store.New(0), make(chan models.LogRecord), NewNotifier(), nil, discardLogger(), 0)
	svc.Stop()
	waitDone(t, svc)
}

func TestService_StopInterruptsBlockedReceive(t *testing.T) {
	svc := NewService(store.New(0), make(chan models.LogRecord), NewNotifier(), nil, discardLogger(), 0)
	svc.Start()
	svc.Stop()
	waitDone(t, svc)
}

func TestService_ShutdownCommitsQueuedRecords(t *testing.T) {
	st := store.New(0)
	in := make(chan models.LogRecord, 10)
	svc := NewService(st, in, NewNotifier(), nil, discardLogger(), 0)
	svc.Start()

	for _, id := range []string{"1", "2", "3"} {
		in <- models.LogRecord{UUID: id}
	}
	assert.Zero(t, svc.Shutdown(in, true, 2*time.Second))

	n, err := st.Len()
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	waitDone(t, svc)
}

func TestService_ShutdownReleasesBlockedSenders(t *testing.T) {
	fs := &flakyStore{failures: 1 << 30}
	in := make(chan models.LogRecord)
	svc := NewService(fs, in, NewNotifier(), nil, discardLogger(), time.Millisecond)
	svc.Start()

	sink := NewChannelSink(in, svc.Done())
	require.NoError(t, sink.Send(context.Background(), models.LogRecord{UUID: "stuck"}))
	require.Eventually(t, func() bool { return fs.attempts() > 1 }, time.Second, time.Millisecond)

	// the loop is retrying, so this sender stays blocked until shutdown
	sent := make(chan error, 1)
	go func() { sent <- sink.Send(context.Background(), models.LogRecord{UUID: "blocked"}) }()

	assert.NotPanics(t, func() { svc.Shutdown(in, false, time.Second) })
	select {
	case err := <-sent:
		assert.ErrorIs(t, err, ErrIngestionStopped)
	case <-time.After(2 * time.Second):
		t.Fatal("blocked sender was not released")
	}
	waitDone(t, svc)
}

func TestNotifier_Coalesces(t *testing.T) {
	n := NewNotifier()
	ch := n.Changed()
	n.Notify()
	n.Notify()
	n.Notify()

	select {
	case <-ch:
	default:
		t.Fatal("waiter was not woken")
	}

	select {
	case <-n.Changed():
		t.Fatal("fresh waiter must not see old notifications")
	default:
	}
}

func TestChannelSink(t *testing.T) {
	ch := make(chan models.LogRecord, 1)
	done := make(chan struct{})
	sink := NewChannelSink(ch, done)

	require.NoError(t, sink.Send(context.Background(), models.LogRecord{UUID: "1"}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sink.Send(ctx, models.LogRecord{UUID: "2"}), context.Canceled)

	close(done)
	assert.ErrorIs(t, sink.Send(context.Background(), models.LogRecord{UUID: "3"}), ErrIngestionStopped)
}

func TestBatchProcessor_FlushesOnSizeAndClose(t *testing.T) {
	arch := &fakeArchiveStore{}
	prod := &fakeProducer{}
	bp := NewBatchProcessor(2, time.Hour, 4, 100, arch, prod, discardLogger())

	bp.Archive(models.Entry{Log: models.LogRecord{UUID: "1"}})
	bp.Archive(models.Entry{Log: models.LogRecord{UUID: "2"}})
	require.Eventually(t, func() bool { return arch.count() == 2 }, time.Second, 5*time.Millisecond)

	bp.Archive(models.Entry{Log: models.LogRecord{UUID: "3"}})
	bp.Close()

	assert.Equal(t, []string{"1", "2", "3"}, arch.ids())
	assert.Equal(t, []string{"1", "2", "3"}, prod.ids())
}

func TestBatchProcessor_FlushesOnTimer(t *testing.T) {
	arch := &fakeArchiveStore{}
	bp := NewBatchProcessor(100, 10*time.Millisecond, 4, 1000, arch, nil, discardLogger())
	defer bp.Close()

	bp.Archive(models.Entry{Log: models.LogRecord{UUID: "1"}})
	require.Eventually(t, func() bool { return arch.count() == 1 }, time.Second, 5*time.Millisecond)
}
