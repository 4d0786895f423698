// Package state persists the notification high-water mark across restarts.
//
// The store holds a single cursor: the highest rec_id the daemon has fully
// processed. It is written with a temp-file + fsync + rename sequence so a
// crash mid-save can never leave a torn value behind.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// fileState is the on-disk layout of the cursor file.
type fileState struct {
	LastRecID int64 `json:"last_rec_id"`
}

// Store reads and writes the persisted cursor at a fixed path.
// There is exactly one writer (the event loop), so no locking is needed.
type Store struct {
	path string
}

// New returns a Store backed by the given file path.
func New(path string) *Store {
	return &Store{path: path}
}

// Path returns the canonical location of the cursor file.
func (s *Store) Path() string {
	return s.path
}

// Load returns the persisted cursor, or 0 when the file is missing, corrupt,
// or holds a negative value. Load never fails: every unreadable state is a
// fresh start, not an error.
func (s *Store) Load() int64 {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return 0
	}
	var st fileState
	if err := json.Unmarshal(data, &st); err != nil {
		return 0
	}
	if st.LastRecID < 0 {
		return 0
	}
	return st.LastRecID
}

// Save atomically persists the cursor. It writes a temp file in the same
// directory, fsyncs it, then renames it over the canonical path, so the
// previous value stays intact if any step fails.
func (s *Store) Save(cursor int64) error {
	data, err := json.Marshal(fileState{LastRecID: cursor})
	if err != nil {
		return fmt.Errorf("state: marshal cursor: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("state: create state dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("state: create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("state: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("state: sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("state: close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("state: replace state file: %w", err)
	}
	return nil
}
