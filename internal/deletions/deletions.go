// Package deletions implements the Deletion Tracker (C4): a JSONL file of
// pending deletions per branch, rewritten whole on every change, adapted
// from the teacher's
// deletions.jsonl idiom (append-only log, corrupt-line tolerance, atomic
// rewrite via temp-file-then-rename) but keyed by (branch, collection,
// doc_id) and with committed-vs-pending state instead of a flat delete log,
// since a deletion here must survive until it is observed committed in the
// VDB on that branch (§4.4).
package deletions

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

// Tracker persists pending deletions so a reconciliation interrupted
// mid-flight can safely re-apply them idempotently. mu serializes access
// since the Sync Engine now syncs collections on concurrent goroutines.
type Tracker struct {
	mu   sync.Mutex
	path string
}

// New returns a Tracker backed by the JSONL file at path.
func New(path string) *Tracker {
	return &Tracker{path: path}
}

// DefaultPath returns the conventional sidecar path under sidecarDir.
func DefaultPath(sidecarDir string) string {
	return filepath.Join(sidecarDir, "deletion_tracker.jsonl")
}

// record is the on-disk shape; CommittedAt is a pointer so "not yet
// committed" round-trips through JSON without ambiguity.
type record struct {
	Branch      string     `json:"branch"`
	Collection  string     `json:"collection"`
	DocID       string     `json:"doc_id"`
	DeletedAt   time.Time  `json:"deleted_at"`
	CommittedAt *time.Time `json:"committed_at,omitempty"`
}

func fromTypes(r types.DeletionRecord) record {
	return record{Branch: r.Branch, Collection: r.Collection, DocID: r.DocID, DeletedAt: r.DeletedAt, CommittedAt: r.CommittedAt}
}

func (r record) toTypes() types.DeletionRecord {
	return types.DeletionRecord{Branch: r.Branch, Collection: r.Collection, DocID: r.DocID, DeletedAt: r.DeletedAt, CommittedAt: r.CommittedAt}
}

func (r record) key() string { return r.Branch + "\x00" + r.Collection + "\x00" + r.DocID }

// loadAll reads every record, keeping the most recent write per key
// (branch, collection, doc_id). Corrupt lines are skipped rather than
// failing the whole load, matching the teacher's tolerance for a
// partially-corrupted append-only log.
func (t *Tracker) loadAll() (map[string]record, error) {
	out := make(map[string]record)
	f, err := os.Open(t.path) // #nosec G304 -- path is operator-controlled sidecar location
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return nil, fmt.Errorf("open deletion tracker: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		var r record
		if err := json.Unmarshal([]byte(line), &r); err != nil {
			continue // tolerate a corrupt line rather than fail the whole load
		}
		if r.Branch == "" || r.Collection == "" || r.DocID == "" {
			continue
		}
		out[r.key()] = r
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read deletion tracker: %w", err)
	}
	return out, nil
}

func (t *Tracker) writeAll(recs map[string]record) error {
	dir := filepath.Dir(t.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create deletion tracker dir: %w", err)
	}

	keys := make([]string, 0, len(recs))
	for k := range recs {
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
		data, err := json.Marshal(recs[k])
		if err != nil {
			return fmt.Errorf("marshal deletion record: %w", err)
		}
		if _, err := tmp.Write(append(data, '\n')); err != nil {
			return fmt.Errorf("write deletion record: %w", err)
		}
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, t.path); err != nil {
		return fmt.Errorf("replace deletion tracker: %w", err)
	}
	return nil
}

// Record appends (or updates) a pending deletion for (branch, collection, docID).
func (t *Tracker) Record(branch, collection, docID string, at time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	recs, err := t.loadAll()
	if err != nil {
		return err
	}
	r := record{Branch: branch, Collection: collection, DocID: docID, DeletedAt: at}
	recs[r.key()] = r
	return t.writeAll(recs)
}

// PendingFor returns every still-pending deletion recorded against branch,
// across all collections.
func (t *Tracker) PendingFor(branch string) ([]types.DeletionRecord, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	recs, err := t.loadAll()
	if err != nil {
		return nil, err
	}
	var out []types.DeletionRecord
	for _, r := range recs {
		if r.Branch == branch && r.CommittedAt == nil {
			out = append(out, r.toTypes())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Collection != out[j].Collection {
			return out[i].Collection < out[j].Collection
		}
		return out[i].DocID < out[j].DocID
	})
	return out, nil
}

// MarkCommitted marks docIDs' pending deletions on (branch, collection) as
// committed at commitTime — called once the Sync Engine observes those
// specific deletions reflected in a VDB commit. Scoped to one collection's
// doc_ids rather than the whole branch: collections sync independently
// (FullSync runs one goroutine per collection), so marking every pending
// deletion on the branch committed as soon as any one collection's delete
// lands would prematurely clear deletions in collections that haven't
// synced yet, or that fail later in the same pass (§4.4).
func (t *Tracker) MarkCommitted(branch, collection string, docIDs []string, commitTime time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	recs, err := t.loadAll()
	if err != nil {
		return err
	}
	ids := make(map[string]bool, len(docIDs))
	for _, id := range docIDs {
		ids[id] = true
	}
	changed := false
	for k, r := range recs {
		if r.Branch == branch && r.Collection == collection && r.CommittedAt == nil && ids[r.DocID] {
			ct := commitTime
			r.CommittedAt = &ct
			recs[k] = r
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return t.writeAll(recs)
}

// DiscardPendingForBranch drops every pending (not-yet-committed) deletion
// recorded against branch — used after a hard reset, where a stale pending
// deletion must not block a future merge (§3 Lifecycle).
func (t *Tracker) DiscardPendingForBranch(branch string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	recs, err := t.loadAll()
	if err != nil {
		return err
	}
	changed := false
	for k, r := range recs {
		if r.Branch == branch && r.CommittedAt == nil {
			delete(recs, k)
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return t.writeAll(recs)
}

// CleanupStale removes committed records older than olderThan. Best-effort:
// callers (per §7) must not fail the parent operation if this errors.
func (t *Tracker) CleanupStale(olderThan time.Duration) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	recs, err := t.loadAll()
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().Add(-olderThan)
	removed := 0
	for k, r := range recs {
		if r.CommittedAt != nil && r.CommittedAt.Before(cutoff) {
			delete(recs, k)
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}
	return removed, t.writeAll(recs)
}
