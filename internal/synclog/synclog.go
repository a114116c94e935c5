// Package synclog implements the bridge's two append-only bookkeeping
// logs named in §6's persisted-state list: document_sync_log (one row per
// document touched by a sync) and sync_operations (one row per sync pass).
// Unlike the Sync-State and Deletion Trackers, these are pure append logs
// with no compaction — every row is kept, matching the teacher's own
// append-only .jsonl event logs (internal/jsonl) rather than the
// keyed-record-rewrite idiom used by syncstate/deletions.
package synclog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/steveyegge/syncbridge/internal/types"
)

// DocumentLog appends one types.DocumentSyncLogRow per synced document.
type DocumentLog struct {
	mu   sync.Mutex
	path string
}

func NewDocumentLog(path string) *DocumentLog { return &DocumentLog{path: path} }

func DefaultDocumentLogPath(sidecarDir string) string {
	return filepath.Join(sidecarDir, "document_sync_log.jsonl")
}

// Append writes one row per docID in ids, all sharing operation/atCommit/at.
func (l *DocumentLog) Append(branch, collection, operation, atCommit string, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	rows := make([]types.DocumentSyncLogRow, 0, len(ids))
	for _, id := range ids {
		rows = append(rows, types.DocumentSyncLogRow{
			Branch: branch, Collection: collection, DocID: id,
			Operation: operation, AtCommit: atCommit, At: at,
		})
	}
	return appendJSONL(l.path, rows)
}

// All reads every row ever appended, in write order. Intended for
// diagnostics/audit, not hot-path reads — the bridge never queries its own
// log to make a decision.
func (l *DocumentLog) All() ([]types.DocumentSyncLogRow, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []types.DocumentSyncLogRow
	err := readJSONL(l.path, func(line []byte) error {
		var r types.DocumentSyncLogRow
		if err := json.Unmarshal(line, &r); err != nil {
			return nil // tolerate a corrupt line rather than fail the whole read
		}
		out = append(out, r)
		return nil
	})
	return out, err
}

// OperationLog appends one types.SyncOperationRow per sync pass.
type OperationLog struct {
	mu   sync.Mutex
	path string
}

func NewOperationLog(path string) *OperationLog { return &OperationLog{path: path} }

func DefaultOperationLogPath(sidecarDir string) string {
	return filepath.Join(sidecarDir, "sync_operations.jsonl")
}

func (l *OperationLog) Append(row types.SyncOperationRow) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return appendJSONL(l.path, []types.SyncOperationRow{row})
}

func (l *OperationLog) All() ([]types.SyncOperationRow, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []types.SyncOperationRow
	err := readJSONL(l.path, func(line []byte) error {
		var r types.SyncOperationRow
		if err := json.Unmarshal(line, &r); err != nil {
			return nil
		}
		out = append(out, r)
		return nil
	})
	return out, err
}

func appendJSONL[T any](path string, rows []T) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create sync log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644) // #nosec G304 -- operator-controlled sidecar path
	if err != nil {
		return fmt.Errorf("open sync log: %w", err)
	}
	defer f.Close()

	for _, row := range rows {
		data, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("marshal sync log row: %w", err)
		}
		if _, err := f.Write(append(data, '\n')); err != nil {
			return fmt.Errorf("write sync log row: %w", err)
		}
	}
	return nil
}

func readJSONL(path string, onLine func([]byte) error) error {
	f, err := os.Open(path) // #nosec G304 -- operator-controlled sidecar path
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open sync log: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := onLine(line); err != nil {
			return err
		}
	}
	return scanner.Err()
}
