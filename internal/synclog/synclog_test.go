package synclog

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/steveyegge/syncbridge/internal/types"
)

func TestDocumentLogAppendsOneRowPerID(t *testing.T) {
	log := NewDocumentLog(filepath.Join(t.TempDir(), "document_sync_log.jsonl"))
	now := time.Now().UTC()

	require.NoError(t, log.Append("main", "docs", "added", "c1", []string{"d1", "d2"}, now))
	require.NoError(t, log.Append("main", "docs", "deleted", "c2", []string{"d1"}, now))

	rows, err := log.All()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Equal(t, "d1", rows[0].DocID)
	require.Equal(t, "added", rows[0].Operation)
	require.Equal(t, "deleted", rows[2].Operation)
}

func TestDocumentLogAppendWithNoIDsIsNoop(t *testing.T) {
	log := NewDocumentLog(filepath.Join(t.TempDir(), "document_sync_log.jsonl"))
	require.NoError(t, log.Append("main", "docs", "added", "c1", nil, time.Now()))

	rows, err := log.All()
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestOperationLogRecordsSuccessAndFailure(t *testing.T) {
	log := NewOperationLog(filepath.Join(t.TempDir(), "sync_operations.jsonl"))
	started := time.Now().UTC()

	require.NoError(t, log.Append(types.SyncOperationRow{
		Branch: "main", Operation: "full_sync", StartedAt: started, FinishedAt: started.Add(time.Second), Succeeded: true,
	}))
	require.NoError(t, log.Append(types.SyncOperationRow{
		Branch: "main", Operation: "full_sync", StartedAt: started, FinishedAt: started.Add(2 * time.Second), Succeeded: false, Error: "boom",
	}))

	rows, err := log.All()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.True(t, rows[0].Succeeded)
	require.False(t, rows[1].Succeeded)
	require.Equal(t, "boom", rows[1].Error)
}

func TestAllOnMissingFileReturnsEmpty(t *testing.T) {
	log := NewDocumentLog(filepath.Join(t.TempDir(), "missing.jsonl"))
	rows, err := log.All()
	require.NoError(t, err)
	require.Empty(t, rows)
}
