package consumer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Cursor file keys. One file serves both loops.
const (
	CursorKeyOutbox  = "outbox_cursor"
	CursorKeyInbound = "inbound_offset"
)

// CursorStore persists loop positions in a local JSON file so a restarted
// worker resumes where it left off. Writes go through a temp file and rename
// so a crash mid-write never leaves a torn file.
type CursorStore struct {
	mu   sync.Mutex
	path string
	vals map[string]string
}

// OpenCursorStore loads the file at path, treating a missing file as empty.
func OpenCursorStore(path string) (*CursorStore, error) {
	s := &CursorStore{path: path, vals: make(map[string]string)}
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cursor store: read %s: %w", path, err)
	}
	if err := json.Unmarshal(raw, &s.vals); err != nil {
		return nil, fmt.Errorf("cursor store: parse %s: %w", path, err)
	}
	return s, nil
}

func (s *CursorStore) Get(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vals[key]
}

// Set updates the key and rewrites the file atomically.
func (s *CursorStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vals[key] = value

	raw, err := json.MarshalIndent(s.vals, "", "  ")
	if err != nil {
		return fmt.Errorf("cursor store: marshal: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".cursor-*")
	if err != nil {
		return fmt.Errorf("cursor store: temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("cursor store: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("cursor store: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("cursor store: rename into place: %w", err)
	}
	return nil
}
