// Package manifest implements the Manifest Store (C11): the durable JSON
// pointer to {remote, branch, commit} persisted at the project root,
// written atomically via the same temp-file-then-rename idiom as
// internal/deletions and internal/syncstate.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/steveyegge/syncbridge/internal/types"
)

// Store reads and writes the manifest file at path.
type Store struct {
	mu   sync.Mutex
	path string
}

func New(path string) *Store {
	return &Store{path: path}
}

// Load reads the manifest, returning a zero-value Manifest (schema version
// 1) if no file exists yet — a fresh project has no manifest until the
// first bootstrap.
func (s *Store) Load() (types.Manifest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *Store) loadLocked() (types.Manifest, error) {
	data, err := os.ReadFile(s.path) // #nosec G304 -- operator-controlled project root path
	if err != nil {
		if os.IsNotExist(err) {
			return types.Manifest{SchemaVersion: 1}, nil
		}
		return types.Manifest{}, fmt.Errorf("read manifest: %w", err)
	}
	var man types.Manifest
	if err := json.Unmarshal(data, &man); err != nil {
		return types.Manifest{}, fmt.Errorf("parse manifest: %w", err)
	}
	return man, nil
}

// Save writes man atomically.
func (s *Store) Save(man types.Manifest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(man)
}

func (s *Store) saveLocked(man types.Manifest) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create manifest dir: %w", err)
	}
	data, err := json.MarshalIndent(man, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()
	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	return os.Rename(tmpPath, s.path)
}

// Update loads the manifest, applies mutate, and saves the result — the
// merge state machine uses this to advance current_branch/current_commit
// after a successful merge without racing a concurrent reader (§5).
func (s *Store) Update(mutate func(*types.Manifest)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	man, err := s.loadLocked()
	if err != nil {
		return err
	}
	mutate(&man)
	return s.saveLocked(man)
}

// Exists reports whether a manifest file is present at path.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}
