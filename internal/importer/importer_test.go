package importer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/steveyegge/syncbridge/internal/edb"
	"github.com/steveyegge/syncbridge/internal/types"
)

func seedCollection(t *testing.T, store *edb.MemStore, collection string, docIDs ...string) {
	t.Helper()
	var docs []edb.StoredDoc
	for _, id := range docIDs {
		docs = append(docs, edb.StoredDoc{Doc: types.Document{Collection: collection, DocID: id, Content: []byte(id)}})
	}
	require.NoError(t, store.Add(context.Background(), collection, docs))
}

func TestPlanDetectsCrossCollectionCollision(t *testing.T) {
	store := edb.NewMemStore()
	seedCollection(t, store, "SE-logs", "SE-405", "SE-406")
	seedCollection(t, store, "PP02-logs", "PP02-186", "PP02-193")
	// shared id across both sources
	seedCollection(t, store, "SE-logs", "shared-doc")
	seedCollection(t, store, "PP02-logs", "shared-doc")

	planner := NewPlanner(store)
	filter := []SourceMapping{
		{SourcePattern: "SE-logs", TargetCollection: "issueLogs"},
		{SourcePattern: "PP02-logs", TargetCollection: "issueLogs"},
	}

	plan, err := planner.Plan(context.Background(), filter)
	require.NoError(t, err)
	require.False(t, plan.CanAutoImport)
	require.Len(t, plan.Conflicts, 1)
	require.Equal(t, types.ConflictIDCollision, plan.Conflicts[0].Type)
	require.Equal(t, types.ResolutionNamespace, plan.Conflicts[0].SuggestedResolution)
	require.True(t, len(plan.Conflicts[0].ConflictID) == 15)
	require.Equal(t, "xc_", plan.Conflicts[0].ConflictID[:3])
}

func TestPlanWithWildcardPatternResolvesSources(t *testing.T) {
	store := edb.NewMemStore()
	seedCollection(t, store, "SE-405", "e2e")
	seedCollection(t, store, "SE-406", "e2e")

	planner := NewPlanner(store)
	filter := []SourceMapping{{SourcePattern: "SE-*", TargetCollection: "issueLogs"}}

	plan, err := planner.Plan(context.Background(), filter)
	require.NoError(t, err)
	require.NotEmpty(t, plan.Conflicts, "both SE-405 and SE-406 share doc id 'e2e'")
}

func TestExecuteNamespaceResolutionWritesNamespacedIDs(t *testing.T) {
	store := edb.NewMemStore()
	seedCollection(t, store, "SE-405", "e2e")
	seedCollection(t, store, "SE-406", "e2e")

	planner := NewPlanner(store)
	filter := []SourceMapping{{SourcePattern: "SE-*", TargetCollection: "issueLogs"}}
	plan, err := planner.Plan(context.Background(), filter)
	require.NoError(t, err)

	exec := NewExecutor(store, types.DefaultChunkerConfig)
	result, err := exec.Execute(context.Background(), filter, plan, nil, types.ResolutionNamespace)
	require.NoError(t, err)
	require.Equal(t, 2, result.Namespaced)

	docs, err := store.Snapshot(context.Background(), "issueLogs")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	for _, d := range docs {
		require.Contains(t, []string{"SE-405__e2e", "SE-406__e2e"}, d.Doc.DocID)
		origID, ok := d.Doc.Metadata.Get("original_doc_id")
		require.True(t, ok)
		require.Equal(t, "e2e", origID)
	}
}

func TestExecuteKeepFirstSkipsLaterSources(t *testing.T) {
	store := edb.NewMemStore()
	seedCollection(t, store, "SE-405", "e2e")
	seedCollection(t, store, "SE-406", "e2e")

	planner := NewPlanner(store)
	filter := []SourceMapping{{SourcePattern: "SE-*", TargetCollection: "issueLogs"}}
	plan, err := planner.Plan(context.Background(), filter)
	require.NoError(t, err)

	exec := NewExecutor(store, types.DefaultChunkerConfig)
	result, err := exec.Execute(context.Background(), filter, plan, nil, types.ResolutionKeepFirst)
	require.NoError(t, err)
	require.Equal(t, 1, result.Written)
	require.Equal(t, 1, result.Skipped)

	docs, err := store.Snapshot(context.Background(), "issueLogs")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.Equal(t, "e2e", docs[0].Doc.DocID)
}

func TestPlanCountsAddedAndModifiedAgainstExistingTarget(t *testing.T) {
	store := edb.NewMemStore()
	seedCollection(t, store, "SE-logs", "SE-405", "SE-406")
	// target pre-populated, as if a previous import already ran
	seedCollection(t, store, "issueLogs", "SE-405")

	planner := NewPlanner(store)
	filter := []SourceMapping{{SourcePattern: "SE-logs", TargetCollection: "issueLogs"}}

	plan, err := planner.Plan(context.Background(), filter)
	require.NoError(t, err)
	require.Empty(t, plan.Conflicts)
	require.Equal(t, 1, plan.AddedCount, "SE-406 is new to issueLogs")
	require.Equal(t, 0, plan.ModifiedCount, "SE-405 content hash is unchanged (both seeded with empty hash)")
}

func TestExecuteUpdatesPreExistingTargetDocsInsteadOfAdding(t *testing.T) {
	store := edb.NewMemStore()
	seedCollection(t, store, "SE-logs", "SE-405", "SE-406")
	seedCollection(t, store, "issueLogs", "SE-405")

	planner := NewPlanner(store)
	filter := []SourceMapping{{SourcePattern: "SE-logs", TargetCollection: "issueLogs"}}
	plan, err := planner.Plan(context.Background(), filter)
	require.NoError(t, err)
	require.Empty(t, plan.Conflicts)

	exec := NewExecutor(store, types.DefaultChunkerConfig)
	// a single source into a single-occupant target with no collision
	// still must route the already-present doc_id through Update, not Add
	result, err := exec.Execute(context.Background(), filter, plan, nil, types.ResolutionNamespace)
	require.NoError(t, err)
	require.Equal(t, 2, result.Written)

	docs, err := store.Snapshot(context.Background(), "issueLogs")
	require.NoError(t, err)
	require.Len(t, docs, 2)
}

func TestParseResolutionHandlesAliases(t *testing.T) {
	require.Equal(t, types.ResolutionKeepFirst, ParseResolution("first"))
	require.Equal(t, types.ResolutionKeepFirst, ParseResolution("FIRST"))
	require.Equal(t, types.ResolutionKeepLast, ParseResolution("Last"))
	require.Equal(t, types.ResolutionNamespace, ParseResolution("namespace"))
}
