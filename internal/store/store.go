package store

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"cdctrl/internal/models"
)

// ErrStoreUnavailable is returned when the store lock could not be acquired within
// the configured wait, or when a critical section panicked. The store stays usable.
var ErrStoreUnavailable = errors.New("log store unavailable")

// DefaultLockTimeout bounds how long any caller waits for the store lock.
const DefaultLockTimeout = 250 * time.Millisecond

// Session is the full replaceable content of a LogStore.
// Entries are ordered newest first, the same order Snapshot returns.
type Session struct {
	Timestamp    string
	Entries      []models.Entry
	Acknowledged []string
}

// LogStore is the concurrent ordered container of received records plus the set of
// acknowledged messages. The record sequence and the acknowledged set are guarded
// independently; only Replace swaps both together.
type LogStore struct {
	lockTimeout time.Duration

	// records side, guarded by recordsSem
	recordsSem       chan struct{}
	entries          []models.Entry // arrival order, oldest first
	index            map[string]int // identity -> position in entries
	selected         string
	sessionTimestamp string

	// acknowledged side, guarded by ackSem
	ackSem       chan struct{}
	acknowledged map[string]struct{}
}

// New creates an empty LogStore. A non-positive lockTimeout selects DefaultLockTimeout.
func New(lockTimeout time.Duration) *LogStore {
	if lockTimeout <= 0 {
		lockTimeout = DefaultLockTimeout
	}
	return &LogStore{
		lockTimeout:  lockTimeout,
		recordsSem:   make(chan struct{}, 1),
		index:        make(map[string]int),
		ackSem:       make(chan struct{}, 1),
		acknowledged: make(map[string]struct{}),
	}
}

// acquire takes sem, waiting at most lockTimeout.
func (s *LogStore) acquire(sem chan struct{}) error {
	select {
	case sem <- struct{}{}:
		return nil
	default:
	}

	timer := time.NewTimer(s.lockTimeout)
	defer timer.Stop()

	select {
	case sem <- struct{}{}:
		return nil
	case <-timer.C:
		return fmt.Errorf("%w: lock not acquired within %s", ErrStoreUnavailable, s.lockTimeout)
	}
}

// guarded runs fn while holding sem. A panic in fn releases the lock and is
// reported as ErrStoreUnavailable.
func (s *LogStore) guarded(sem chan struct{}, fn func()) (err error) {
	if err := s.acquire(sem); err != nil {
		return err
	}
	defer func() {
		<-sem
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrStoreUnavailable, r)
		}
	}()
	fn()
	return nil
}

// PushFront commits a fully built record at the logical head of the store.
func (s *LogStore) PushFront(record models.LogRecord, received time.Time) error {
	entry := models.Entry{Log: record, Received: received}
	return s.guarded(s.recordsSem, func() {
		s.index[entry.ID()] = len(s.entries)
		s.entries = append(s.entries, entry)
	})
}

// Snapshot returns an independent copy of the store, newest first.
// Later mutations of the store are never visible in the returned slice.
func (s *LogStore) Snapshot() ([]models.Entry, error) {
	var out []models.Entry
	err := s.guarded(s.recordsSem, func() {
		out = make([]models.Entry, len(s.entries))
		n := len(s.entries)
		for i := range s.entries {
			out[n-1-i] = s.entries[i]
		}
	})
	return out, err
}

// Len returns the number of stored records.
func (s *LogStore) Len() (int, error) {
	var n int
	err := s.guarded(s.recordsSem, func() { n = len(s.entries) })
	return n, err
}

// Clear drops every record and resets the selection.
func (s *LogStore) Clear() error {
	return s.guarded(s.recordsSem, func() {
		s.entries = nil
		s.index = make(map[string]int)
		s.selected = ""
	})
}

// Replace atomically substitutes records, session timestamp and acknowledged set.
// Locks are taken records first, then acknowledged, so readers never see a mix.
func (s *LogStore) Replace(session Session) error {
	entries := make([]models.Entry, len(session.Entries))
	index := make(map[string]int, len(session.Entries))
	n := len(session.Entries)
	for i, e := range session.Entries {
		entries[n-1-i] = e
	}
	for i, e := range entries {
		index[e.ID()] = i
	}
	acknowledged := make(map[string]struct{}, len(session.Acknowledged))
	for _, m := range session.Acknowledged {
		acknowledged[m] = struct{}{}
	}

	var ackErr error
	err := s.guarded(s.recordsSem, func() {
		ackErr = s.guarded(s.ackSem, func() {
			s.entries = entries
			s.index = index
			s.sessionTimestamp = session.Timestamp
			s.acknowledged = acknowledged
			if _, ok := index[s.selected]; !ok {
				s.selected = ""
			}
		})
	})
	if err != nil {
		return err
	}
	return ackErr
}

// Export captures the whole store as a Session value.
func (s *LogStore) Export() (Session, error) {
	var session Session
	var ackErr error
	err := s.guarded(s.recordsSem, func() {
		session.Timestamp = s.sessionTimestamp
		session.Entries = make([]models.Entry, len(s.entries))
		n := len(s.entries)
		for i := range s.entries {
			session.Entries[n-1-i] = s.entries[i]
		}
		ackErr = s.guarded(s.ackSem, func() {
			session.Acknowledged = sortedKeys(s.acknowledged)
		})
	})
	if err != nil {
		return Session{}, err
	}
	if ackErr != nil {
		return Session{}, ackErr
	}
	return session, nil
}

// SessionTimestamp returns the timestamp of the last saved or loaded session.
func (s *LogStore) SessionTimestamp() (string, error) {
	var ts string
	err := s.guarded(s.recordsSem, func() { ts = s.sessionTimestamp })
	return ts, err
}

// SetSessionTimestamp records the timestamp evaluated for a save.
func (s *LogStore) SetSessionTimestamp(ts string) error {
	return s.guarded(s.recordsSem, func() { s.sessionTimestamp = ts })
}

// Select marks the record with the given identity as the examined one.
// It reports false, leaving the selection unchanged, when no such record exists.
func (s *LogStore) Select(id string) (bool, error) {
	var found bool
	err := s.guarded(s.recordsSem, func() {
		if _, found = s.index[id]; found {
			s.selected = id
		}
	})
	return found, err
}

// ClearSelection resets the selection to none.
func (s *LogStore) ClearSelection() error {
	return s.guarded(s.recordsSem, func() { s.selected = "" })
}

// Selected returns the selected record, if any is selected and still stored.
func (s *LogStore) Selected() (models.Entry, bool, error) {
	var entry models.Entry
	var ok bool
	err := s.guarded(s.recordsSem, func() {
		if s.selected == "" {
			return
		}
		var pos int
		if pos, ok = s.index[s.selected]; ok {
			entry = s.entries[pos]
		}
	})
	return entry, ok, err
}

// SelectedID returns the identity of the selection, or "" when nothing is selected.
func (s *LogStore) SelectedID() (string, error) {
	var id string
	err := s.guarded(s.recordsSem, func() { id = s.selected })
	return id, err
}

// Acknowledge adds message to the acknowledged set.
func (s *LogStore) Acknowledge(message string) error {
	return s.guarded(s.ackSem, func() { s.acknowledged[message] = struct{}{} })
}

// IsAcknowledged reports whether message was dismissed by the operator.
func (s *LogStore) IsAcknowledged(message string) (bool, error) {
	var ok bool
	err := s.guarded(s.ackSem, func() { _, ok = s.acknowledged[message] })
	return ok, err
}

// Acknowledged returns the acknowledged messages in sorted order.
func (s *LogStore) Acknowledged() ([]string, error) {
	var out []string
	err := s.guarded(s.ackSem, func() { out = sortedKeys(s.acknowledged) })
	return out, err
}

// UnacknowledgedWarnings returns the warnings of entry that were not dismissed yet.
func (s *LogStore) UnacknowledgedWarnings(entry models.Entry) ([]string, error) {
	var out []string
	err := s.guarded(s.ackSem, func() {
		for _, w := range entry.Log.Warnings {
			if _, ok := s.acknowledged[w]; !ok {
				out = append(out, w)
			}
		}
	})
	return out, err
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
