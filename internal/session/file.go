package session

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"cdctrl/internal/store"
)

// FileExtension is appended to session files named after their timestamp.
const FileExtension = ".cdctrl"

// Manager saves and restores a LogStore to and from session files.
type Manager struct {
	store   *store.LogStore
	pattern string
	dir     string
	logger  *log.Logger
}

// NewManager creates a Manager. pattern is the strftime pattern for session
// timestamps; dir is where SaveToDir writes.
func NewManager(s *store.LogStore, pattern, dir string, logger *log.Logger) *Manager {
	if pattern == "" {
		pattern = DefaultPattern
	}
	if dir == "" {
		dir = "."
	}
	return &Manager{store: s, pattern: pattern, dir: dir, logger: logger}
}

// SaveToDir writes the session to "<dir>/<session_timestamp>.cdctrl" and returns the path.
func (m *Manager) SaveToDir() (string, error) {
	data, ts, err := Save(m.store, m.pattern)
	if err != nil {
		return "", err
	}
	path := filepath.Join(m.dir, ts+FileExtension)
	if err := writeAtomic(path, data); err != nil {
		return "", err
	}
	m.logger.Printf("Session: Saved session to '%s' (%d bytes)", path, len(data))
	return path, nil
}

// SaveFile writes the session to path.
func (m *Manager) SaveFile(path string) error {
	data, _, err := Save(m.store, m.pattern)
	if err != nil {
		return err
	}
	if err := writeAtomic(path, data); err != nil {
		return err
	}
	m.logger.Printf("Session: Saved session to '%s' (%d bytes)", path, len(data))
	return nil
}

// LoadFile decodes path completely and only then replaces the store contents.
// On any error the store is left untouched.
func (m *Manager) LoadFile(path string) (Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Session{}, newError(ErrIO, path, err)
	}

	sess, err := Decode(data, path)
	if err != nil {
		return Session{}, err
	}

	if err := m.store.Replace(sess.Store()); err != nil {
		return Session{}, newError(ErrIO, path, fmt.Errorf("replace store contents: %w", err))
	}
	m.logger.Printf("Session: Loaded %d records from '%s' (session %s)", len(sess.Entries), path, sess.Timestamp)
	return sess, nil
}

// LoadIfExists is LoadFile, except a missing file is not an error.
func (m *Manager) LoadIfExists(path string) (bool, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if _, err := m.LoadFile(path); err != nil {
		return false, err
	}
	return true, nil
}

// writeAtomic writes data to a temp file next to path and renames it into place.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return newError(ErrIO, path, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return newError(ErrIO, path, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return newError(ErrIO, path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return newError(ErrIO, path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return newError(ErrIO, path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return newError(ErrIO, path, err)
	}
	return nil
}
