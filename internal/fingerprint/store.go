package fingerprint

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Store persists the last fingerprint a completed cycle acted on. The file on
// disk is the source of truth across process restarts.
type Store struct {
	path string
}

// NewStore returns a store writing to path.
func NewStore(path string) *Store { return &Store{path: path} }

// Load returns the persisted fingerprint, or "" when none was ever written.
func (s *Store) Load() string {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// Save atomically replaces the persisted fingerprint, creating the parent
// directory on first use.
func (s *Store) Save(fp string) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create fingerprint directory: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(fp+"\n"), 0o644); err != nil {
		return fmt.Errorf("write fingerprint file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace fingerprint file: %w", err)
	}
	return nil
}

// Path returns the backing file location.
func (s *Store) Path() string { return s.path }
