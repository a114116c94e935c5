package conflict

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/steveyegge/syncbridge/internal/fingerprint"
	"github.com/steveyegge/syncbridge/internal/types"
)

func TestBuildSuggestsTheirsWhenOnlyTheirsChanged(t *testing.T) {
	base := map[string]any{"status": "open"}
	ours := map[string]any{"status": "open"}
	theirs := map[string]any{"status": "closed"}

	info := Build("docs", "d1", "main", "feature", base, ours, theirs)
	require.Equal(t, types.ResolutionTheirs, info.SuggestedResolution)
	require.True(t, info.AutoResolvable)
	require.Len(t, info.FieldConflicts, 1)
	require.True(t, info.FieldConflicts[0].CanAutoMerge)
}

func TestBuildSuggestsOursWhenOnlyOursChanged(t *testing.T) {
	base := map[string]any{"status": "open"}
	ours := map[string]any{"status": "closed"}
	theirs := map[string]any{"status": "open"}

	info := Build("docs", "d1", "main", "feature", base, ours, theirs)
	require.Equal(t, types.ResolutionOurs, info.SuggestedResolution)
}

func TestBuildSuggestsManualWhenBothSidesChangedDifferently(t *testing.T) {
	base := map[string]any{"status": "open"}
	ours := map[string]any{"status": "closed"}
	theirs := map[string]any{"status": "blocked"}

	info := Build("docs", "d1", "main", "feature", base, ours, theirs)
	require.Equal(t, types.ResolutionStrategy("manual"), info.SuggestedResolution)
	require.False(t, info.AutoResolvable)
	require.False(t, info.FieldConflicts[0].CanAutoMerge)
}

func TestConflictIDStableRegardlessOfObservationOrder(t *testing.T) {
	idAtPreview := fingerprint.Merge("docs", "d1", "main", "feature")
	idAtExecute := fingerprint.Merge("docs", "d1", "feature", "main")
	require.Equal(t, idAtPreview, idAtExecute)
}

func TestBuildSkipsFieldsWhereBothSidesAgree(t *testing.T) {
	base := map[string]any{"status": "open", "title": "x"}
	ours := map[string]any{"status": "closed", "title": "x"}
	theirs := map[string]any{"status": "closed", "title": "x"}

	info := Build("docs", "d1", "main", "feature", base, ours, theirs)
	require.Empty(t, info.FieldConflicts, "fields both sides agree on are not conflicts")
}
