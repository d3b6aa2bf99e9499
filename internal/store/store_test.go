package store

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"cdctrl/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(id, msg string) models.LogRecord {
	return models.LogRecord{UUID: id, Message: msg}
}

func ids(entries []models.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.ID()
	}
	return out
}

func TestLogStore_PushFrontSnapshotNewestFirst(t *testing.T) {
	s := New(0)
	base := time.Date(2024, 1, 2, 3, 4, 5, 0, time.Local)

	require.NoError(t, s.PushFront(record("a", "first"), base))
	require.NoError(t, s.PushFront(record("b", "second"), base.Add(time.Second)))
	require.NoError(t, s.PushFront(record("c", "third"), base.Add(2*time.Second)))

	snap, err := s.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b", "a"}, ids(snap))

	n, err := s.Len()
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestLogStore_SnapshotIsIndependent(t *testing.T) {
	s := New(0)
	require.NoError(t, s.PushFront(record("a", "x"), time.Now()))

	snap, err := s.Snapshot()
	require.NoError(t, err)

	require.NoError(t, s.PushFront(record("b", "y"), time.Now()))
	require.NoError(t, s.Clear())

	assert.Equal(t, []string{"a"}, ids(snap))
}

func TestLogStore_ClearResetsSelection(t *testing.T) {
	s := New(0)
	require.NoError(t, s.PushFront(record("a", "x"), time.Now()))

	ok, err := s.Select("a")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, s.Clear())

	id, err := s.SelectedID()
	require.NoError(t, err)
	assert.Empty(t, id)

	_, found, err := s.Selected()
	require.NoError(t, err)
	assert.False(t, found)
}

func TestLogStore_SelectUnknownKeepsSelection(t *testing.T) {
	s := New(0)
	require.NoError(t, s.PushFront(record("a", "x"), time.Now()))
	_, err := s.Select("a")
	require.NoError(t, err)

	ok, err := s.Select("missing")
	require.NoError(t, err)
	assert.False(t, ok)

	entry, found, err := s.Selected()
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "a", entry.ID())
}

func TestLogStore_ReplaceSwapsEverything(t *testing.T) {
	s := New(0)
	require.NoError(t, s.PushFront(record("old", "old"), time.Now()))
	require.NoError(t, s.Acknowledge("old warning"))
	_, err := s.Select("old")
	require.NoError(t, err)

	now := time.Now()
	err = s.Replace(Session{
		Timestamp: "2024-01-01_00-00-00",
		Entries: []models.Entry{
			{Log: record("n2", "newer"), Received: now.Add(time.Second)},
			{Log: record("n1", "new"), Received: now},
		},
		Acknowledged: []string{"b", "a"},
	})
	require.NoError(t, err)

	snap, err := s.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, []string{"n2", "n1"}, ids(snap))

	acked, err := s.Acknowledged()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, acked)

	ts, err := s.SessionTimestamp()
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01_00-00-00", ts)

	id, err := s.SelectedID()
	require.NoError(t, err)
	assert.Empty(t, id, "selection of a replaced record must be dropped")

	ok, err := s.Select("n1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLogStore_ExportMatchesReplace(t *testing.T) {
	s := New(0)
	base := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, s.PushFront(record(fmt.Sprint(i), "m"), base.Add(time.Duration(i)*time.Second)))
	}
	require.NoError(t, s.Acknowledge("w"))
	require.NoError(t, s.SetSessionTimestamp("ts"))

	exported, err := s.Export()
	require.NoError(t, err)

	other := New(0)
	require.NoError(t, other.Replace(exported))

	again, err := other.Export()
	require.NoError(t, err)
	assert.Equal(t, exported, again)
}

func TestLogStore_UnacknowledgedWarnings(t *testing.T) {
	s := New(0)
	require.NoError(t, s.Acknowledge("seen"))

	entry := models.Entry{Log: models.LogRecord{Warnings: []string{"seen", "fresh"}}}
	out, err := s.UnacknowledgedWarnings(entry)
	require.NoError(t, err)
	assert.Equal(t, []string{"fresh"}, out)

	ok, err := s.IsAcknowledged("seen")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLogStore_LockTimeoutReportsUnavailable(t *testing.T) {
	s := New(20 * time.Millisecond)
	s.recordsSem <- struct{}{} // simulate a stuck holder

	err := s.PushFront(record("a", "x"), time.Now())
	require.ErrorIs(t, err, ErrStoreUnavailable)

	<-s.recordsSem
	require.NoError(t, s.PushFront(record("a", "x"), time.Now()))
}

func TestLogStore_PanicInCriticalSectionIsRecovered(t *testing.T) {
	s := New(0)
	err := s.guarded(s.recordsSem, func() { panic("boom") })
	require.ErrorIs(t, err, ErrStoreUnavailable)

	// lock must have been released
	require.NoError(t, s.PushFront(record("a", "x"), time.Now()))
}

func TestLogStore_SnapshotsArePrefixConsistent(t *testing.T) {
	s := New(time.Second)
	const total = 500

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < total; i++ {
			assert.NoError(t, s.PushFront(record(fmt.Sprint(i), "m"), time.Now()))
		}
	}()

	prev := 0
	for prev < total {
		snap, err := s.Snapshot()
		require.NoError(t, err)
		require.GreaterOrEqual(t, len(snap), prev)
		// newest first: the oldest len(snap) pushes, in reverse
		for i, e := range snap {
			require.Equal(t, fmt.Sprint(len(snap)-1-i), e.ID())
		}
		prev = len(snap)
	}
	wg.Wait()
}

func TestLogStore_ClearPushRace(t *testing.T) {
	s := New(time.Second)
	pushed := make(map[string]bool)
	for i := 0; i < 200; i++ {
		pushed[fmt.Sprint(i)] = true
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			assert.NoError(t, s.PushFront(record(fmt.Sprint(i), "m"), time.Now()))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			assert.NoError(t, s.Clear())
		}
	}()
	wg.Wait()

	snap, err := s.Snapshot()
	require.NoError(t, err)
	for _, e := range snap {
		assert.True(t, pushed[e.ID()], "unexpected record %q", e.ID())
		assert.Equal(t, "m", e.Log.Message)
	}
}

func TestLogStore_ReplaceIsNeverObservedTorn(t *testing.T) {
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	sessionA := Session{
		Timestamp:    "A",
		Entries:      []models.Entry{{Log: record("a2", "A"), Received: at}, {Log: record("a1", "A"), Received: at}},
		Acknowledged: []string{"ack-A"},
	}
	sessionB := Session{
		Timestamp:    "B",
		Entries:      []models.Entry{{Log: record("b3", "B"), Received: at}, {Log: record("b2", "B"), Received: at}, {Log: record("b1", "B"), Received: at}},
		Acknowledged: []string{"ack-B1", "ack-B2"},
	}
	wantIDs := map[string][]string{"A": ids(sessionA.Entries), "B": ids(sessionB.Entries)}
	wantAck := map[string][]string{"A": sessionA.Acknowledged, "B": sessionB.Acknowledged}

	s := New(time.Second)
	require.NoError(t, s.Replace(sessionA))

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(done)
		for i := 0; i < 500; i++ {
			next := sessionB
			if i%2 == 1 {
				next = sessionA
			}
			assert.NoError(t, s.Replace(next))
		}
	}()

	for observed := 0; ; observed++ {
		select {
		case <-done:
			wg.Wait()
			return
		default:
		}

		exported, err := s.Export()
		require.NoError(t, err)
		label := exported.Timestamp
		require.Contains(t, wantIDs, label)
		require.Equal(t, wantIDs[label], ids(exported.Entries), "records of session %s", label)
		require.Equal(t, wantAck[label], exported.Acknowledged, "acknowledged set of session %s", label)

		snap, err := s.Snapshot()
		require.NoError(t, err)
		require.NotEmpty(t, snap)
		label = snap[0].Log.Message
		for _, e := range snap {
			require.Equal(t, label, e.Log.Message, "snapshot mixes sessions")
		}
		require.Equal(t, wantIDs[label], ids(snap))
	}
}
