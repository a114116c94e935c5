package syncstate

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/steveyegge/syncbridge/internal/types"
)

func TestGetDefaultsToPending(t *testing.T) {
	tr := New(filepath.Join(t.TempDir(), "sync_state.jsonl"))
	s, err := tr.Get("main", "docs")
	require.NoError(t, err)
	require.Equal(t, types.SyncPending, s.Status)
}

func TestMarkInProgressThenSynced(t *testing.T) {
	tr := New(filepath.Join(t.TempDir(), "sync_state.jsonl"))
	require.NoError(t, tr.MarkInProgress("main", "docs"))

	s, err := tr.Get("main", "docs")
	require.NoError(t, err)
	require.Equal(t, types.SyncInProgress, s.Status)

	require.NoError(t, tr.MarkSynced("main", "docs", "c1", 3, 9, "model-a", time.Now()))
	s, err = tr.Get("main", "docs")
	require.NoError(t, err)
	require.Equal(t, types.SyncSynced, s.Status)
	require.Equal(t, "c1", s.LastSyncCommit)
}

func TestMarkErrorRecordsFailingDoc(t *testing.T) {
	tr := New(filepath.Join(t.TempDir(), "sync_state.jsonl"))
	require.NoError(t, tr.MarkError("main", "docs", "bad-doc", "edb write failed"))

	s, err := tr.Get("main", "docs")
	require.NoError(t, err)
	require.Equal(t, types.SyncError, s.Status)
	require.Equal(t, "bad-doc", s.ErrorDocID)
}

func TestAllForBranchFiltersByBranch(t *testing.T) {
	tr := New(filepath.Join(t.TempDir(), "sync_state.jsonl"))
	require.NoError(t, tr.MarkSynced("main", "docs", "c1", 1, 1, "m", time.Now()))
	require.NoError(t, tr.MarkSynced("feature", "docs", "c2", 1, 1, "m", time.Now()))

	all, err := tr.AllForBranch("main")
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, "main", all[0].Branch)
}
