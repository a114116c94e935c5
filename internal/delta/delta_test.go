package delta

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestComputeAddedModifiedDeleted(t *testing.T) {
	edb := Snapshot{"d1": "h1", "d2": "h2", "d3": "h3"}
	vdb := Snapshot{"d1": "h1", "d2": "h2-new", "d4": "h4"}

	res := Compute(edb, vdb, nil)
	require.Equal(t, []string{"d4"}, res.Added)
	require.Equal(t, []string{"d2"}, res.Modified)
	require.Equal(t, []string{"d3"}, res.Deleted)
}

func TestComputeUnchangedIsEmpty(t *testing.T) {
	edb := Snapshot{"d1": "h1"}
	vdb := Snapshot{"d1": "h1"}

	res := Compute(edb, vdb, nil)
	require.True(t, res.IsEmpty())
}

func TestComputeUnionsPendingDeletions(t *testing.T) {
	edb := Snapshot{} // already removed from EDB
	vdb := Snapshot{}
	pending := map[string]bool{"d9": true}

	res := Compute(edb, vdb, pending)
	require.Equal(t, []string{"d9"}, res.Deleted)
}

func TestComputeDoesNotDeletePendingIfDocReappearedInVDB(t *testing.T) {
	edb := Snapshot{}
	vdb := Snapshot{"d9": "hash"}
	pending := map[string]bool{"d9": true}

	res := Compute(edb, vdb, pending)
	require.Empty(t, res.Deleted)
	require.Equal(t, []string{"d9"}, res.Added)
}
