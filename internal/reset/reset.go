// Package reset implements the Reset RPC logic: hard-reset a branch to a
// target commit, refusing when local changes would be discarded unless the
// caller explicitly confirms. CLI-agnostic — returns typed errors for the
// caller to handle, following the teacher's internal/reset package shape
// (ValidateState / impact summary / Reset(opts)) adapted from counting
// issues-to-delete to counting local VDB changes-to-discard.
package reset

import (
	"context"
	"fmt"
	"strings"

	"github.com/steveyegge/syncbridge/internal/bridgeerr"
	"github.com/steveyegge/syncbridge/internal/syncengine"
	"github.com/steveyegge/syncbridge/internal/vdb"
)

// LocalChanges summarizes the uncommitted state a reset would discard.
type LocalChanges struct {
	Added    int
	Modified int
	Deleted  int
}

func (l LocalChanges) Total() int { return l.Added + l.Modified + l.Deleted }

// Result is the outcome of a successful reset.
type Result struct {
	NewHead           string
	SyncedCollections []syncengine.Result
}

// Resetter performs resets against a branch, reconciling the EDB afterward.
type Resetter struct {
	VDB    vdb.Driver
	Engine *syncengine.Engine
}

func New(d vdb.Driver, e *syncengine.Engine) *Resetter {
	return &Resetter{VDB: d, Engine: e}
}

// LocalChanges reports the current working-tree delta that a reset to
// target would discard.
func (r *Resetter) LocalChanges(ctx context.Context) (LocalChanges, error) {
	status, err := r.VDB.Status(ctx)
	if err != nil {
		return LocalChanges{}, fmt.Errorf("status: %w", err)
	}
	return LocalChanges{
		Added:    len(status.AddedDocs),
		Modified: len(status.ModifiedDocs),
		Deleted:  len(status.DeletedDocs),
	}, nil
}

// Reset hard-resets the current branch to target. If local changes exist
// and confirmDiscard is false, it refuses with CONFIRMATION_REQUIRED and
// performs no mutation. Otherwise it resets, then force-reconciles the EDB
// and clears pending deletions for the branch (§3, §8 scenario S5).
func (r *Resetter) Reset(ctx context.Context, target string, confirmDiscard bool) (*Result, error) {
	if target == "" {
		target = "HEAD"
	}

	changes, err := r.LocalChanges(ctx)
	if err != nil {
		return nil, err
	}
	if changes.Total() > 0 && !confirmDiscard {
		return nil, bridgeerr.New(bridgeerr.KindValidation, "CONFIRMATION_REQUIRED").WithDetail(fmt.Sprintf("local_changes.total=%d", changes.Total()))
	}

	branch, err := r.VDB.CurrentBranch(ctx)
	if err != nil {
		return nil, fmt.Errorf("current branch: %w", err)
	}

	resolvedTarget, err := r.resolveTarget(ctx, target)
	if err != nil {
		return nil, err
	}

	if err := r.VDB.ResetHard(ctx, resolvedTarget); err != nil {
		return nil, fmt.Errorf("reset hard: %w", err)
	}

	newHead, err := r.VDB.HeadCommit(ctx, branch)
	if err != nil {
		return nil, fmt.Errorf("head commit after reset: %w", err)
	}

	results, err := r.Engine.PostResetReconcile(ctx, branch, newHead)
	if err != nil {
		return &Result{NewHead: newHead, SyncedCollections: results}, fmt.Errorf("post-reset reconcile: %w", err)
	}

	return &Result{NewHead: newHead, SyncedCollections: results}, nil
}

// resolveTarget resolves a remote-tracking ref of the form <remote>/<branch>
// (e.g. "origin/main") to a concrete commit hash via ResolveRemoteBranch
// before it reaches ResetHard. ResetHard operates against local commits and
// refs; a remote-tracking ref must be fetched and resolved first (spec's
// explicitly called-out resolution path). Anything else — "HEAD", a bare
// commit hash, a local branch name — passes through unchanged.
func (r *Resetter) resolveTarget(ctx context.Context, target string) (string, error) {
	if target == "" || target == "HEAD" || !strings.Contains(target, "/") {
		return target, nil
	}
	remote, branch, _ := strings.Cut(target, "/")
	commit, err := r.VDB.ResolveRemoteBranch(ctx, remote, branch)
	if err != nil {
		return "", fmt.Errorf("resolve remote branch %s: %w", target, err)
	}
	return commit, nil
}
