// Package syncstate implements the Sync-State Tracker (C5): one record per
// (branch, collection), written atomically, following the same
// whole-file temp-file-then-rename rewrite idiom as internal/deletions.
package syncstate

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/steveyegge/syncbridge/internal/types"
)

// Tracker persists SyncState records. A transition to InProgress is
// persisted before any EDB mutation begins (§4.5), so a crash mid-sync
// leaves a resumable marker rather than a corrupt Synced state.
type Tracker struct {
	mu   sync.Mutex
	path string
}

func New(path string) *Tracker { return &Tracker{path: path} }

func DefaultPath(sidecarDir string) string {
	return filepath.Join(sidecarDir, "sync_state.jsonl")
}

func key(branch, collection string) string { return branch + "\x00" + collection }

func (t *Tracker) loadAll() (map[string]types.SyncState, error) {
	out := make(map[string]types.SyncState)
	f, err := os.Open(t.path) // #nosec G304 -- operator-controlled sidecar path
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return nil, fmt.Errorf("open sync state: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		var s types.SyncState
		if err := json.Unmarshal([]byte(line), &s); err != nil {
			continue
		}
		out[key(s.Branch, s.Collection)] = s
	}
	return out, scanner.Err()
}

func (t *Tracker) writeAll(states map[string]types.SyncState) error {
	dir := filepath.Dir(t.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create sync state dir: %w", err)
	}
	keys := make([]string, 0, len(states))
	for k := range states {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	tmp, err := os.CreateTemp(dir, filepath.Base(t.path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()
	for _, k := range keys {
		data, err := json.Marshal(states[k])
		if err != nil {
			return fmt.Errorf("marshal sync state: %w", err)
		}
		if _, err := tmp.Write(append(data, '\n')); err != nil {
			return fmt.Errorf("write sync state: %w", err)
		}
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	return os.Rename(tmpPath, t.path)
}

// Get returns the record for (branch, collection), or a zero-value Pending
// record if none exists yet.
func (t *Tracker) Get(branch, collection string) (types.SyncState, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	states, err := t.loadAll()
	if err != nil {
		return types.SyncState{}, err
	}
	if s, ok := states[key(branch, collection)]; ok {
		return s, nil
	}
	return types.SyncState{Branch: branch, Collection: collection, Status: types.SyncPending}, nil
}

// Put writes s atomically, replacing any existing record for the same
// (branch, collection).
func (t *Tracker) Put(s types.SyncState) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	states, err := t.loadAll()
	if err != nil {
		return err
	}
	states[key(s.Branch, s.Collection)] = s
	return t.writeAll(states)
}

// MarkInProgress persists the InProgress transition before any EDB mutation
// begins, so a cancellation leaves a resumable marker (§5).
func (t *Tracker) MarkInProgress(branch, collection string) error {
	s, err := t.Get(branch, collection)
	if err != nil {
		return err
	}
	s.Status = types.SyncInProgress
	s.ErrorMessage = ""
	s.ErrorDocID = ""
	return t.Put(s)
}

// MarkSynced records a successful sync at commit as of now.
func (t *Tracker) MarkSynced(branch, collection, commit string, docCount, chunkCount int, model string, at time.Time) error {
	return t.Put(types.SyncState{
		Branch:         branch,
		Collection:     collection,
		LastSyncCommit: commit,
		LastSyncAt:     at,
		DocCount:       docCount,
		ChunkCount:     chunkCount,
		EmbeddingModel: model,
		Status:         types.SyncSynced,
	})
}

// MarkError records a failed sync, including the doc id that failed so the
// next call can re-plan from here (§4.7 failure semantics).
func (t *Tracker) MarkError(branch, collection, failingDocID, message string) error {
	s, err := t.Get(branch, collection)
	if err != nil {
		return err
	}
	s.Status = types.SyncError
	s.ErrorDocID = failingDocID
	s.ErrorMessage = message
	return t.Put(s)
}

// AllForBranch returns every collection's state on branch, sorted by
// collection name.
func (t *Tracker) AllForBranch(branch string) ([]types.SyncState, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	states, err := t.loadAll()
	if err != nil {
		return nil, err
	}
	var out []types.SyncState
	for _, s := range states {
		if s.Branch == branch {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Collection < out[j].Collection })
	return out, nil
}
