package reset

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/steveyegge/syncbridge/internal/bridgeerr"
	"github.com/steveyegge/syncbridge/internal/deletions"
	"github.com/steveyegge/syncbridge/internal/edb"
	"github.com/steveyegge/syncbridge/internal/syncengine"
	"github.com/steveyegge/syncbridge/internal/syncstate"
	"github.com/steveyegge/syncbridge/internal/types"
	"github.com/steveyegge/syncbridge/internal/vdb"
)

type fakeDriver struct {
	vdb.Driver
	status *vdb.StatusResult
	branch string
	head   string

	resetTarget    string
	resolvedCommit string
	resolveErr     error
	fetchedRemote  string
	resolvedBranch string
}

func (f *fakeDriver) Status(ctx context.Context) (*vdb.StatusResult, error) { return f.status, nil }
func (f *fakeDriver) CurrentBranch(ctx context.Context) (string, error)    { return f.branch, nil }
func (f *fakeDriver) ResetHard(ctx context.Context, target string) error {
	f.resetTarget = target
	return nil
}
func (f *fakeDriver) HeadCommit(ctx context.Context, branch string) (string, error) {
	return f.head, nil
}
func (f *fakeDriver) ListCollections(ctx context.Context) ([]string, error) { return nil, nil }
func (f *fakeDriver) ResolveRemoteBranch(ctx context.Context, remote, branch string) (string, error) {
	f.fetchedRemote = remote
	f.resolvedBranch = branch
	if f.resolveErr != nil {
		return "", f.resolveErr
	}
	return f.resolvedCommit, nil
}

func newResetter(t *testing.T, d *fakeDriver) *Resetter {
	store := edb.NewMemStore()
	ss := syncstate.New(filepath.Join(t.TempDir(), "sync_state.jsonl"))
	dt := deletions.New(filepath.Join(t.TempDir(), "deletion_tracker.jsonl"))
	engine := syncengine.New(d, store, ss, dt, types.DefaultChunkerConfig)
	return New(d, engine)
}

func TestResetRefusesWithoutConfirmationWhenDirty(t *testing.T) {
	d := &fakeDriver{
		status: &vdb.StatusResult{AddedDocs: []string{"a", "b", "c"}, ModifiedDocs: []string{"d", "e"}, DeletedDocs: []string{"f"}},
		branch: "main", head: "c1",
	}
	r := newResetter(t, d)

	_, err := r.Reset(context.Background(), "HEAD", false)
	require.Error(t, err)
	require.Equal(t, bridgeerr.KindValidation, bridgeerr.KindOf(err))
}

func TestResetSucceedsWithConfirmation(t *testing.T) {
	d := &fakeDriver{
		status: &vdb.StatusResult{AddedDocs: []string{"a"}},
		branch: "main", head: "c2",
	}
	r := newResetter(t, d)

	result, err := r.Reset(context.Background(), "HEAD", true)
	require.NoError(t, err)
	require.Equal(t, "c2", result.NewHead)
}

func TestResetResolvesRemoteTrackingRefBeforeResetHard(t *testing.T) {
	d := &fakeDriver{
		status:         &vdb.StatusResult{Clean: true},
		branch:         "main",
		head:           "c9",
		resolvedCommit: "abc123",
	}
	r := newResetter(t, d)

	result, err := r.Reset(context.Background(), "origin/main", false)
	require.NoError(t, err)
	require.Equal(t, "origin", d.fetchedRemote)
	require.Equal(t, "main", d.resolvedBranch)
	require.Equal(t, "abc123", d.resetTarget, "ResetHard must receive the resolved commit, not the raw origin/<branch> ref")
	require.Equal(t, "c9", result.NewHead)
}

func TestResetPassesThroughNonRemoteTargetsUnresolved(t *testing.T) {
	d := &fakeDriver{status: &vdb.StatusResult{Clean: true}, branch: "main", head: "c4"}
	r := newResetter(t, d)

	_, err := r.Reset(context.Background(), "HEAD", false)
	require.NoError(t, err)
	require.Equal(t, "HEAD", d.resetTarget)
	require.Empty(t, d.fetchedRemote, "HEAD must not trigger a remote resolution")
}

func TestResetClearsPendingDeletionsForBranch(t *testing.T) {
	d := &fakeDriver{status: &vdb.StatusResult{Clean: true}, branch: "main", head: "c3"}
	r := newResetter(t, d)

	require.NoError(t, r.Engine.Deletions.Record("main", "docs", "stale", time.Now()))

	_, err := r.Reset(context.Background(), "HEAD", false)
	require.NoError(t, err)

	pending, err := r.Engine.Deletions.PendingFor("main")
	require.NoError(t, err)
	require.Empty(t, pending)
}
