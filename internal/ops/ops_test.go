package ops

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/steveyegge/syncbridge/internal/bridgeerr"
	"github.com/steveyegge/syncbridge/internal/conflict"
	"github.com/steveyegge/syncbridge/internal/config"
	"github.com/steveyegge/syncbridge/internal/deletions"
	"github.com/steveyegge/syncbridge/internal/edb"
	"github.com/steveyegge/syncbridge/internal/lock"
	"github.com/steveyegge/syncbridge/internal/manifest"
	"github.com/steveyegge/syncbridge/internal/syncengine"
	"github.com/steveyegge/syncbridge/internal/syncstate"
	"github.com/steveyegge/syncbridge/internal/types"
	"github.com/steveyegge/syncbridge/internal/vdb"
)

// emptyDriver reports an empty, uninitialized project — scenario S1. It
// stands in for both the VDB driver and the EDB store, so neither is
// reachable.
type emptyDriver struct {
	vdb.Driver
	edb.Store
}

func (emptyDriver) Status(ctx context.Context) (*vdb.StatusResult, error) {
	return nil, bridgeerr.New(bridgeerr.KindNotInitialized, "repository not initialized")
}
func (emptyDriver) ListCollections(ctx context.Context) ([]string, error) {
	return nil, bridgeerr.New(bridgeerr.KindUnavailable, "edb unreachable")
}

// readyDriver simulates a reachable, already-initialized VDB on "main".
type readyDriver struct {
	vdb.Driver
	createdBranch string
	createdFrom   string
}

func (readyDriver) Status(ctx context.Context) (*vdb.StatusResult, error) {
	return &vdb.StatusResult{Clean: true}, nil
}
func (readyDriver) CurrentBranch(ctx context.Context) (string, error) { return "main", nil }
func (readyDriver) HeadCommit(ctx context.Context, branch string) (string, error) {
	return "c1", nil
}
func (readyDriver) ListCollections(ctx context.Context) ([]string, error) { return nil, nil }
func (d *readyDriver) CreateBranch(ctx context.Context, name, from string) error {
	d.createdBranch = name
	d.createdFrom = from
	return nil
}

func newDeps(t *testing.T, d vdb.Driver) *Deps {
	store := edb.NewMemStore()
	ss := syncstate.New(filepath.Join(t.TempDir(), "sync_state.jsonl"))
	dt := deletions.New(filepath.Join(t.TempDir(), "deletion_tracker.jsonl"))
	engine := syncengine.New(d, store, ss, dt, types.DefaultChunkerConfig)
	man := manifest.New(filepath.Join(t.TempDir(), "manifest.json"))
	return &Deps{
		Config:   &config.Config{ProjectRoot: t.TempDir()},
		VDB:      d,
		EDB:      store,
		Engine:   engine,
		Analyzer: conflict.NewAnalyzer(d),
		Manifest: man,
		Locks:    lock.NewRegistry(),
	}
}

func TestStatusReportsUninitializedForEmptyProject(t *testing.T) {
	deps := newDeps(t, emptyDriver{})
	deps.EDB = emptyDriver{}
	op := &StatusOp{Deps: deps}

	out, err := op.Do(context.Background(), StatusIn{})
	require.NoError(t, err)
	require.False(t, out.IsReady)
	require.Equal(t, StateUninitialized, out.State)
	require.Equal(t, "DoltClone or DoltInit", out.RecommendedAction)
}

func TestBootstrapCreatesWorkBranchWithGeneratedName(t *testing.T) {
	d := &readyDriver{}
	deps := newDeps(t, d)
	op := &BootstrapOp{Deps: deps}

	out, err := op.Do(context.Background(), BootstrapOptions{CreateWorkBranch: true})
	require.NoError(t, err)
	require.NotEmpty(t, out.WorkBranchCreated)
	require.Equal(t, out.WorkBranchCreated, d.createdBranch)
	require.Equal(t, "main", d.createdFrom)
}

func TestBootstrapCreatesWorkBranchWithExplicitName(t *testing.T) {
	d := &readyDriver{}
	deps := newDeps(t, d)
	op := &BootstrapOp{Deps: deps}

	out, err := op.Do(context.Background(), BootstrapOptions{CreateWorkBranch: true, WorkBranchName: "feature-x"})
	require.NoError(t, err)
	require.Equal(t, "feature-x", out.WorkBranchCreated)
	require.Equal(t, "feature-x", d.createdBranch)
}
