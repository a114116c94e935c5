package edb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/steveyegge/syncbridge/internal/types"
)

func doc(id string) StoredDoc {
	return StoredDoc{Doc: types.Document{Collection: "c", DocID: id}}
}

func TestMemStoreAddRejectsDuplicateBatch(t *testing.T) {
	m := NewMemStore()
	ctx := context.Background()
	err := m.Add(ctx, "c", []StoredDoc{doc("a"), doc("a")})
	require.Error(t, err)
	var dup *ErrDuplicateID
	require.ErrorAs(t, err, &dup)
}

func TestMemStoreAddRejectsExistingID(t *testing.T) {
	m := NewMemStore()
	ctx := context.Background()
	require.NoError(t, m.Add(ctx, "c", []StoredDoc{doc("a")}))
	err := m.Add(ctx, "c", []StoredDoc{doc("a")})
	require.Error(t, err)
}

func TestMemStoreCountCacheInvalidatesOnWrite(t *testing.T) {
	m := NewMemStore()
	ctx := context.Background()
	require.NoError(t, m.Add(ctx, "c", []StoredDoc{doc("a")}))

	n, err := m.Count(ctx, "c", false)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	require.NoError(t, m.Add(ctx, "c", []StoredDoc{doc("b")}))
	n, err = m.Count(ctx, "c", false)
	require.NoError(t, err)
	require.Equal(t, 2, n, "count cache must invalidate on write, not just on force")
}

func TestMemStoreDeleteThenGetByIDs(t *testing.T) {
	m := NewMemStore()
	ctx := context.Background()
	require.NoError(t, m.Add(ctx, "c", []StoredDoc{doc("a"), doc("b")}))
	require.NoError(t, m.Delete(ctx, "c", []string{"a"}))

	got, err := m.GetByIDs(ctx, "c", []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "b", got[0].Doc.DocID)
}
