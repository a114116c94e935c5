package syncengine

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/steveyegge/syncbridge/internal/chunk"
	"github.com/steveyegge/syncbridge/internal/deletions"
	"github.com/steveyegge/syncbridge/internal/edb"
	"github.com/steveyegge/syncbridge/internal/synclog"
	"github.com/steveyegge/syncbridge/internal/syncstate"
	"github.com/steveyegge/syncbridge/internal/types"
	"github.com/steveyegge/syncbridge/internal/vdb"
)

// fakeDriver is a minimal in-memory vdb.Driver stand-in for exercising the
// sync engine without shelling out to a real CLI.
type fakeDriver struct {
	vdb.Driver
	hashes    map[string]map[string]string
	docs      map[string]map[string]types.Document
	head      string
	collNames []string
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		hashes: make(map[string]map[string]string),
		docs:   make(map[string]map[string]types.Document),
		head:   "c1",
	}
}

func (f *fakeDriver) ListCollections(ctx context.Context) ([]string, error) {
	return f.collNames, nil
}

func (f *fakeDriver) ContentHashes(ctx context.Context, collection, branch string) (map[string]string, error) {
	return f.hashes[collection], nil
}

func (f *fakeDriver) HeadCommit(ctx context.Context, branch string) (string, error) {
	return f.head, nil
}

func (f *fakeDriver) GetDocuments(ctx context.Context, collection string, docIDs []string) ([]types.Document, error) {
	var out []types.Document
	for _, id := range docIDs {
		out = append(out, f.docs[collection][id])
	}
	return out, nil
}

func (f *fakeDriver) put(collection, docID, content string) {
	if f.hashes[collection] == nil {
		f.hashes[collection] = make(map[string]string)
		f.docs[collection] = make(map[string]types.Document)
		f.collNames = append(f.collNames, collection)
	}
	hash := chunk.ContentHash([]byte(content))
	f.hashes[collection][docID] = hash
	f.docs[collection][docID] = types.Document{Collection: collection, DocID: docID, Content: []byte(content), ContentHash: hash}
}

func newEngine(t *testing.T, d *fakeDriver) (*Engine, *edb.MemStore) {
	store := edb.NewMemStore()
	ss := syncstate.New(filepath.Join(t.TempDir(), "sync_state.jsonl"))
	dt := deletions.New(filepath.Join(t.TempDir(), "deletion_tracker.jsonl"))
	return New(d, store, ss, dt, types.DefaultChunkerConfig), store
}

func TestFullSyncAddsNewDocuments(t *testing.T) {
	d := newFakeDriver()
	d.put("docs", "d1", "hello")
	e, store := newEngine(t, d)

	results, err := e.FullSync(context.Background(), "main", false)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, 1, results[0].Added)

	n, err := store.Count(context.Background(), "docs", true)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestFullSyncIsIdempotent(t *testing.T) {
	d := newFakeDriver()
	d.put("docs", "d1", "hello")
	e, _ := newEngine(t, d)
	ctx := context.Background()

	_, err := e.FullSync(ctx, "main", false)
	require.NoError(t, err)

	results, err := e.FullSync(ctx, "main", false)
	require.NoError(t, err)
	require.Equal(t, 0, results[0].Added)
	require.Equal(t, 0, results[0].Modified)
	require.Equal(t, 0, results[0].Deleted)
}

func TestFullSyncDeletesRemovedDocuments(t *testing.T) {
	d := newFakeDriver()
	d.put("docs", "d1", "hello")
	e, store := newEngine(t, d)
	ctx := context.Background()

	_, err := e.FullSync(ctx, "main", false)
	require.NoError(t, err)

	delete(d.hashes["docs"], "d1")
	results, err := e.FullSync(ctx, "main", false)
	require.NoError(t, err)
	require.Equal(t, 1, results[0].Deleted)

	n, err := store.Count(ctx, "docs", true)
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestFullSyncMarkCommittedIsScopedPerCollection(t *testing.T) {
	d := newFakeDriver()
	d.put("docs", "d1", "hello")
	d.put("other", "d2", "hello2")
	e, _ := newEngine(t, d)
	ctx := context.Background()

	_, err := e.FullSync(ctx, "main", false)
	require.NoError(t, err)

	// "other"/d2 is flagged pending-deletion but still present in the VDB —
	// it must not be touched by "docs" committing its own unrelated delete.
	require.NoError(t, e.Deletions.Record("main", "other", "d2", time.Now()))
	require.NoError(t, e.Deletions.Record("main", "docs", "d1", time.Now()))
	delete(d.hashes["docs"], "d1")
	delete(d.docs["docs"], "d1")

	results, err := e.FullSync(ctx, "main", false)
	require.NoError(t, err)
	var docsResult Result
	for _, r := range results {
		if r.Collection == "docs" {
			docsResult = r
		}
	}
	require.Equal(t, 1, docsResult.Deleted)

	pending, err := e.Deletions.PendingFor("main")
	require.NoError(t, err)
	require.Len(t, pending, 1, "other/d2 must remain pending since it was never actually deleted")
	require.Equal(t, "other", pending[0].Collection)
	require.Equal(t, "d2", pending[0].DocID)
}

func TestFullSyncWritesDocumentAndOperationLogsWhenWired(t *testing.T) {
	d := newFakeDriver()
	d.put("docs", "d1", "hello")
	e, _ := newEngine(t, d)
	dir := t.TempDir()
	e.DocumentLog = synclog.NewDocumentLog(filepath.Join(dir, "document_sync_log.jsonl"))
	e.OperationLog = synclog.NewOperationLog(filepath.Join(dir, "sync_operations.jsonl"))

	_, err := e.FullSync(context.Background(), "main", false)
	require.NoError(t, err)

	docRows, err := e.DocumentLog.All()
	require.NoError(t, err)
	require.Len(t, docRows, 1)
	require.Equal(t, "d1", docRows[0].DocID)
	require.Equal(t, "added", docRows[0].Operation)

	opRows, err := e.OperationLog.All()
	require.NoError(t, err)
	require.Len(t, opRows, 1)
	require.Equal(t, "full_sync", opRows[0].Operation)
	require.True(t, opRows[0].Succeeded)
}

func TestFullSyncWithoutWiredLogsStillSucceeds(t *testing.T) {
	d := newFakeDriver()
	d.put("docs", "d1", "hello")
	e, _ := newEngine(t, d)

	_, err := e.FullSync(context.Background(), "main", false)
	require.NoError(t, err)
}

func TestPostResetReconcileClearsPendingDeletions(t *testing.T) {
	d := newFakeDriver()
	d.put("docs", "d1", "hello")
	e, _ := newEngine(t, d)
	ctx := context.Background()

	require.NoError(t, e.Deletions.Record("main", "docs", "stale", time.Now()))

	_, err := e.PostResetReconcile(ctx, "main", "c2")
	require.NoError(t, err)

	pending, err := e.Deletions.PendingFor("main")
	require.NoError(t, err)
	require.Empty(t, pending)
}
