package deletions

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRecordAndPendingFor(t *testing.T) {
	tr := New(filepath.Join(t.TempDir(), "deletion_tracker.jsonl"))
	now := time.Now().UTC()
	require.NoError(t, tr.Record("main", "docs", "d1", now))
	require.NoError(t, tr.Record("main", "docs", "d2", now))
	require.NoError(t, tr.Record("feature", "docs", "d3", now))

	pending, err := tr.PendingFor("main")
	require.NoError(t, err)
	require.Len(t, pending, 2)
}

func TestMarkCommittedClearsPending(t *testing.T) {
	tr := New(filepath.Join(t.TempDir(), "deletion_tracker.jsonl"))
	now := time.Now().UTC()
	require.NoError(t, tr.Record("main", "docs", "d1", now))
	require.NoError(t, tr.MarkCommitted("main", "docs", []string{"d1"}, now))

	pending, err := tr.PendingFor("main")
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestMarkCommittedOnlyAffectsNamedCollection(t *testing.T) {
	tr := New(filepath.Join(t.TempDir(), "deletion_tracker.jsonl"))
	now := time.Now().UTC()
	require.NoError(t, tr.Record("main", "docs", "d1", now))
	require.NoError(t, tr.Record("main", "other", "d2", now))

	require.NoError(t, tr.MarkCommitted("main", "docs", []string{"d1"}, now))

	pending, err := tr.PendingFor("main")
	require.NoError(t, err)
	require.Len(t, pending, 1, "marking docs committed must not touch other's still-pending deletion")
	require.Equal(t, "other", pending[0].Collection)
}

func TestDiscardPendingForBranchAfterReset(t *testing.T) {
	tr := New(filepath.Join(t.TempDir(), "deletion_tracker.jsonl"))
	now := time.Now().UTC()
	require.NoError(t, tr.Record("main", "docs", "d1", now))
	require.NoError(t, tr.DiscardPendingForBranch("main"))

	pending, err := tr.PendingFor("main")
	require.NoError(t, err)
	require.Empty(t, pending, "a stale pending deletion must not survive a reset")
}

func TestCleanupStaleOnlyRemovesOldCommitted(t *testing.T) {
	tr := New(filepath.Join(t.TempDir(), "deletion_tracker.jsonl"))
	old := time.Now().Add(-40 * 24 * time.Hour)
	require.NoError(t, tr.Record("main", "docs", "old", old))
	require.NoError(t, tr.MarkCommitted("main", "docs", []string{"old"}, old))
	require.NoError(t, tr.Record("main", "docs", "new", time.Now()))

	removed, err := tr.CleanupStale(30 * 24 * time.Hour)
	require.NoError(t, err)
	require.Equal(t, 1, removed)
}
