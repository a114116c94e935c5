// Package syncengine implements the bidirectional Sync Engine (C7): the
// orchestrator that reconciles VDB commits with EDB state by computing a
// delta and applying it in Delete -> Update -> Add order, updating the
// Sync-State Tracker around the mutation so a crash mid-operation leaves a
// resumable marker rather than a corrupt "synced" record (§5).
package syncengine

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/steveyegge/syncbridge/internal/bridgeerr"
	"github.com/steveyegge/syncbridge/internal/chunk"
	"github.com/steveyegge/syncbridge/internal/deletions"
	"github.com/steveyegge/syncbridge/internal/delta"
	"github.com/steveyegge/syncbridge/internal/edb"
	"github.com/steveyegge/syncbridge/internal/synclog"
	"github.com/steveyegge/syncbridge/internal/syncstate"
	"github.com/steveyegge/syncbridge/internal/types"
	"github.com/steveyegge/syncbridge/internal/vdb"
)

// Engine ties the VDB driver, EDB store, chunker config, and the sidecar
// trackers together to run sync operations for one branch. DocumentLog and
// OperationLog are optional (nil-safe) — when unset, the engine runs
// without the audit-trail sidecar logs, same as a caller that never wires
// a logger.
type Engine struct {
	VDB          vdb.Driver
	EDB          edb.Store
	SyncState    *syncstate.Tracker
	Deletions    *deletions.Tracker
	DocumentLog  *synclog.DocumentLog
	OperationLog *synclog.OperationLog
	ChunkConfig  types.ChunkerConfig
	Now          func() time.Time
}

func New(v vdb.Driver, e edb.Store, ss *syncstate.Tracker, dt *deletions.Tracker, cfg types.ChunkerConfig) *Engine {
	return &Engine{VDB: v, EDB: e, SyncState: ss, Deletions: dt, ChunkConfig: cfg, Now: time.Now}
}

// Result summarizes the outcome of a sync pass for one collection.
type Result struct {
	Collection string
	Added      int
	Modified   int
	Deleted    int
}

// FullSync recomputes the delta for every collection present in the VDB at
// branch's head and applies it. Collections are independent, so each is
// synced on its own goroutine via errgroup; if any fails the others still
// run to completion and the first error is returned alongside whatever
// results did finish. If force, the EDB count fast-path is bypassed for
// every collection touched (§4.7).
func (e *Engine) FullSync(ctx context.Context, branch string, force bool) ([]Result, error) {
	started := e.Now()
	collections, err := e.VDB.ListCollections(ctx)
	if err != nil {
		e.logOperation(branch, "full_sync", started, err)
		return nil, fmt.Errorf("list collections: %w", err)
	}

	results := make([]Result, len(collections))
	var g errgroup.Group
	for i, collection := range collections {
		i, collection := i, collection
		g.Go(func() error {
			res, err := e.syncCollection(ctx, branch, collection, force)
			results[i] = res
			return err
		})
	}
	err = g.Wait()
	e.logOperation(branch, "full_sync", started, err)
	if err != nil {
		return results, err
	}
	return results, nil
}

// logOperation records one sync_operations row, when an OperationLog is
// wired; a logging failure is swallowed, matching the bridge's best-effort
// policy for sidecar bookkeeping (§7).
func (e *Engine) logOperation(branch, operation string, started time.Time, cause error) {
	if e.OperationLog == nil {
		return
	}
	row := types.SyncOperationRow{
		Branch: branch, Operation: operation,
		StartedAt: started, FinishedAt: e.Now(), Succeeded: cause == nil,
	}
	if cause != nil {
		row.Error = cause.Error()
	}
	_ = e.OperationLog.Append(row)
}

// IncrementalSync reads the VDB diff between fromCommit and toCommit and
// applies only the changed documents. When fromCommit is unknown to the
// VDB (the diff call fails with UnexpectedOutput, i.e. the commit is gone
// from history), it falls back to FullSync.
func (e *Engine) IncrementalSync(ctx context.Context, branch, fromCommit, toCommit string) ([]Result, error) {
	started := e.Now()
	diffResult, err := e.VDB.Diff(ctx, fromCommit, toCommit)
	if err != nil {
		if bridgeerr.KindOf(err) != bridgeerr.KindUnexpectedOutput {
			e.logOperation(branch, "incremental_sync", started, err)
			return nil, fmt.Errorf("diff %s..%s: %w", fromCommit, toCommit, err)
		}
		return e.FullSync(ctx, branch, false)
	}

	byCollection := make(map[string]*delta.Result)
	for _, entry := range diffResult.Entries {
		r := byCollection[entry.Collection]
		if r == nil {
			r = &delta.Result{}
			byCollection[entry.Collection] = r
		}
		switch entry.ChangeType {
		case "added":
			r.Added = append(r.Added, entry.DocID)
		case "modified":
			r.Modified = append(r.Modified, entry.DocID)
		case "deleted":
			r.Deleted = append(r.Deleted, entry.DocID)
		}
	}

	var results []Result
	for collection, d := range byCollection {
		res, err := e.applyDelta(ctx, branch, collection, *d, toCommit)
		if err != nil {
			e.logOperation(branch, "incremental_sync", started, err)
			return results, err
		}
		results = append(results, res)
	}
	e.logOperation(branch, "incremental_sync", started, nil)
	return results, nil
}

// PostResetReconcile forces a full resync against newHead, then discards any
// pending deletions for branch and garbage-collects stale committed ones —
// a reset must not let a stale pending deletion block a future merge (§3).
func (e *Engine) PostResetReconcile(ctx context.Context, branch, newHead string) ([]Result, error) {
	results, err := e.FullSync(ctx, branch, true)
	if err != nil {
		return results, err
	}
	if err := e.Deletions.DiscardPendingForBranch(branch); err != nil {
		return results, fmt.Errorf("discard pending deletions: %w", err)
	}
	if _, err := e.Deletions.CleanupStale(types.DeletionRetention); err != nil {
		// best-effort cleanup failure does not fail the parent operation (§7)
		return results, nil
	}
	return results, nil
}

func (e *Engine) syncCollection(ctx context.Context, branch, collection string, force bool) (Result, error) {
	vdbHashes, err := e.VDB.ContentHashes(ctx, collection, branch)
	if err != nil {
		return Result{Collection: collection}, fmt.Errorf("vdb content hashes for %s: %w", collection, err)
	}
	edbDocs, err := e.EDB.Snapshot(ctx, collection)
	if err != nil {
		return Result{Collection: collection}, fmt.Errorf("edb snapshot for %s: %w", collection, err)
	}
	edbHashes := make(delta.Snapshot, len(edbDocs))
	for _, sd := range edbDocs {
		edbHashes[sd.Doc.DocID] = sd.Doc.ContentHash
	}

	pending, err := e.Deletions.PendingFor(branch)
	if err != nil {
		return Result{Collection: collection}, fmt.Errorf("pending deletions for %s: %w", branch, err)
	}
	pendingSet := make(map[string]bool, len(pending))
	for _, p := range pending {
		if p.Collection == collection {
			pendingSet[p.DocID] = true
		}
	}

	d := delta.Compute(edbHashes, vdbHashes, pendingSet)
	if force {
		// force bypasses the count-equality fast path; since this engine has
		// no fast path of its own (it always diffs by hash), force only
		// affects EDB.Count's cache (not exercised by delta computation).
		_, _ = e.EDB.Count(ctx, collection, true)
	}
	head, err := e.VDB.HeadCommit(ctx, branch)
	if err != nil {
		return Result{Collection: collection}, fmt.Errorf("head commit for %s: %w", branch, err)
	}
	return e.applyDelta(ctx, branch, collection, d, head)
}

// applyDelta applies one collection's delta in Delete -> Update -> Add
// order (deleting first frees ids so a later add cannot collide), then
// records the branch/collection's sync state.
func (e *Engine) applyDelta(ctx context.Context, branch, collection string, d delta.Result, atCommit string) (Result, error) {
	if err := e.SyncState.MarkInProgress(branch, collection); err != nil {
		return Result{Collection: collection}, fmt.Errorf("mark in progress: %w", err)
	}

	if len(d.Deleted) > 0 {
		if err := e.EDB.Delete(ctx, collection, d.Deleted); err != nil {
			return e.fail(branch, collection, d.Deleted[0], err)
		}
		if err := e.Deletions.MarkCommitted(branch, collection, d.Deleted, e.Now()); err != nil {
			return Result{Collection: collection}, fmt.Errorf("mark deletions committed: %w", err)
		}
		e.logDocuments(branch, collection, "deleted", atCommit, d.Deleted)
	}

	if len(d.Modified) > 0 {
		docs, err := e.VDB.GetDocuments(ctx, collection, d.Modified)
		if err != nil {
			return e.fail(branch, collection, d.Modified[0], err)
		}
		stored := e.toStoredDocs(docs)
		if err := e.EDB.Update(ctx, collection, stored); err != nil {
			return e.fail(branch, collection, firstDocID(docs), err)
		}
		e.logDocuments(branch, collection, "modified", atCommit, d.Modified)
	}

	if len(d.Added) > 0 {
		docs, err := e.VDB.GetDocuments(ctx, collection, d.Added)
		if err != nil {
			return e.fail(branch, collection, d.Added[0], err)
		}
		stored := e.toStoredDocs(docs)
		if err := e.EDB.Add(ctx, collection, stored); err != nil {
			return e.fail(branch, collection, firstDocID(docs), err)
		}
		e.logDocuments(branch, collection, "added", atCommit, d.Added)
	}

	docCount, err := e.EDB.Count(ctx, collection, true)
	if err != nil {
		return Result{Collection: collection}, fmt.Errorf("count %s: %w", collection, err)
	}
	if err := e.SyncState.MarkSynced(branch, collection, atCommit, docCount, 0, "", e.Now()); err != nil {
		return Result{Collection: collection}, fmt.Errorf("mark synced: %w", err)
	}

	return Result{Collection: collection, Added: len(d.Added), Modified: len(d.Modified), Deleted: len(d.Deleted)}, nil
}

// logDocuments records one document_sync_log row per doc_id, when a
// DocumentLog is wired; failures are swallowed (§7 best-effort policy).
func (e *Engine) logDocuments(branch, collection, operation, atCommit string, ids []string) {
	if e.DocumentLog == nil {
		return
	}
	_ = e.DocumentLog.Append(branch, collection, operation, atCommit, ids, e.Now())
}

// fail marks SyncState as error with the failing doc id and returns the
// partial result; the caller must not auto-retry (§4.7).
func (e *Engine) fail(branch, collection, failingDocID string, cause error) (Result, error) {
	wrapped := fmt.Errorf("edb write failed for %s/%s: %w", collection, failingDocID, cause)
	if err := e.SyncState.MarkError(branch, collection, failingDocID, wrapped.Error()); err != nil {
		return Result{Collection: collection}, fmt.Errorf("mark error: %w", err)
	}
	return Result{Collection: collection}, wrapped
}

func (e *Engine) toStoredDocs(docs []types.Document) []edb.StoredDoc {
	out := make([]edb.StoredDoc, 0, len(docs))
	for _, doc := range docs {
		canon := chunk.Canonicalize(doc.Content)
		doc.ContentHash = chunk.ContentHash(doc.Content)
		chunks := chunk.Split(doc.DocID, canon, e.ChunkConfig)
		out = append(out, edb.StoredDoc{Doc: doc, Chunks: chunks})
	}
	return out
}

func firstDocID(docs []types.Document) string {
	if len(docs) == 0 {
		return ""
	}
	return docs[0].DocID
}
