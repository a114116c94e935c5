// Package merge implements the Merge State Machine (C9): preview, resolve,
// execute, and post-merge EDB reconciliation. States are a small explicit
// enum guarded by the per-branch lock (§5) rather than a generic
// state-machine library, matching the hand-rolled-FSM idiom the rest of
// this codebase favors over deep dispatch hierarchies (§9).
package merge

import (
	"context"
	"fmt"
	"time"

	"github.com/steveyegge/syncbridge/internal/bridgeerr"
	"github.com/steveyegge/syncbridge/internal/conflict"
	"github.com/steveyegge/syncbridge/internal/manifest"
	"github.com/steveyegge/syncbridge/internal/syncengine"
	"github.com/steveyegge/syncbridge/internal/types"
	"github.com/steveyegge/syncbridge/internal/vdb"
)

// State is one node of the merge lifecycle.
type State string

const (
	StateIdle              State = "Idle"
	StatePreviewing        State = "Previewing"
	StateAwaitingResolution State = "AwaitingResolution"
	StateExecuting         State = "Executing"
	StateReconciling       State = "Reconciling"
	StateDone              State = "Done"
	StateFailed            State = "Failed"
)

// PreviewResult is the pure, side-effect-free result of Preview.
type PreviewResult struct {
	Source          string
	Target          string
	CanAutoMerge    bool
	AddedCount      int
	ModifiedCount   int
	DeletedCount    int
	Conflicts       []types.ConflictInfo
	AuxTableClean   bool
	previewedAt     time.Time
	sourceHeadAtPreview string
}

// ExecuteResult is the outcome of Execute.
type ExecuteResult struct {
	Committed         bool
	CommitHash        string
	UnresolvedCount   int
	UnresolvedIDs     []string
	SyncedCollections []syncengine.Result
}

// Machine runs one merge's lifecycle. It is not safe for concurrent use on
// its own — the caller (internal/ops) acquires the per-branch lock (§5)
// around Preview/Execute.
type Machine struct {
	VDB      vdb.Driver
	Analyzer *conflict.Analyzer
	Engine   *syncengine.Engine
	Manifest *manifest.Store

	state State
}

func New(d vdb.Driver, a *conflict.Analyzer, e *syncengine.Engine, m *manifest.Store) *Machine {
	return &Machine{VDB: d, Analyzer: a, Engine: e, Manifest: m, state: StateIdle}
}

func (m *Machine) State() State { return m.state }

// Preview computes whether source can merge into target with no remaining
// manual conflicts. Pure read: no VDB mutation. Requires a clean working
// tree unless force is set.
func (m *Machine) Preview(ctx context.Context, source, target string, force bool) (*PreviewResult, error) {
	m.state = StatePreviewing
	defer func() {
		if m.state == StatePreviewing {
			m.state = StateAwaitingResolution
		}
	}()

	status, err := m.VDB.Status(ctx)
	if err != nil {
		m.state = StateFailed
		return nil, fmt.Errorf("status: %w", err)
	}
	if !status.Clean && !force {
		m.state = StateFailed
		return nil, bridgeerr.New(bridgeerr.KindValidation, "working tree is not clean; pass force to preview anyway")
	}

	sourceHead, err := m.VDB.HeadCommit(ctx, source)
	if err != nil {
		m.state = StateFailed
		return nil, fmt.Errorf("head commit for %s: %w", source, err)
	}

	diff, err := m.VDB.Diff(ctx, target, source)
	if err != nil {
		m.state = StateFailed
		return nil, fmt.Errorf("diff %s..%s: %w", target, source, err)
	}

	pr := &PreviewResult{Source: source, Target: target, AuxTableClean: true, previewedAt: time.Now(), sourceHeadAtPreview: sourceHead}
	for _, e := range diff.Entries {
		switch e.ChangeType {
		case "added":
			pr.AddedCount++
		case "modified":
			pr.ModifiedCount++
		case "deleted":
			pr.DeletedCount++
		}
	}

	conflicts, err := m.Analyzer.Analyze(ctx, source, target)
	if err != nil {
		m.state = StateFailed
		return nil, fmt.Errorf("analyze conflicts: %w", err)
	}
	pr.Conflicts = conflicts

	pr.CanAutoMerge = true
	for _, c := range conflicts {
		if !c.AutoResolvable {
			pr.CanAutoMerge = false
			break
		}
	}

	return pr, nil
}

// Execute begins the VDB merge and checks that every conflict has a
// caller-supplied resolution by conflict_id or, when autoResolveRemaining is
// set, its suggested_resolution, and that none of them is manual; it then
// commits and reconciles EDB from the new head. The chosen resolutions are
// not written into the VDB: the commit runs on whatever the merge left in
// the working set.
// If the merge drifted since Preview (source's head moved), it fails with
// DriftedSincePreview rather than silently merging against newer content.
func (m *Machine) Execute(ctx context.Context, preview *PreviewResult, resolutions map[string]types.ResolutionStrategy, autoResolveRemaining, force bool, message string) (*ExecuteResult, error) {
	m.state = StateExecuting

	currentHead, err := m.VDB.HeadCommit(ctx, preview.Source)
	if err != nil {
		m.state = StateFailed
		return nil, fmt.Errorf("head commit for %s: %w", preview.Source, err)
	}
	if currentHead != preview.sourceHeadAtPreview {
		m.state = StateFailed
		return nil, bridgeerr.New(bridgeerr.KindDriftedSincePreview,
			fmt.Sprintf("source %s advanced from %s to %s since preview; re-preview required", preview.Source, preview.sourceHeadAtPreview, currentHead))
	}

	outcome, err := m.VDB.Merge(ctx, preview.Source, force)
	if err != nil {
		m.state = StateFailed
		return nil, fmt.Errorf("merge: %w", err)
	}

	if outcome.HasConflicts {
		conflicts, err := m.Analyzer.Analyze(ctx, preview.Source, preview.Target)
		if err != nil {
			m.state = StateFailed
			return nil, fmt.Errorf("re-analyze conflicts: %w", err)
		}

		var unresolved []string
		for _, c := range conflicts {
			resolution, explicit := resolutions[c.ConflictID]
			if !explicit {
				if autoResolveRemaining {
					resolution = c.SuggestedResolution
				} else {
					unresolved = append(unresolved, c.ConflictID)
					continue
				}
			}
			if resolution == "" || resolution == "manual" {
				unresolved = append(unresolved, c.ConflictID)
			}
		}

		if len(unresolved) > 0 {
			m.state = StateFailed
			return &ExecuteResult{UnresolvedCount: len(unresolved), UnresolvedIDs: unresolved},
				bridgeerr.New(bridgeerr.KindUnresolved, fmt.Sprintf("%d conflicts remain unresolved", len(unresolved)))
		}
	}

	if message == "" {
		message = fmt.Sprintf("merge %s into %s", preview.Source, preview.Target)
	}
	commitHash, err := m.VDB.Commit(ctx, message)
	if err != nil {
		m.state = StateFailed
		return nil, bridgeerr.Wrap(bridgeerr.KindUnknown, "merge commit failed", err)
	}

	m.state = StateReconciling
	results, err := m.Engine.FullSync(ctx, preview.Target, true)
	if err != nil {
		m.state = StateFailed
		return &ExecuteResult{Committed: true, CommitHash: commitHash}, fmt.Errorf("post-merge reconcile: %w", err)
	}

	if m.Manifest != nil {
		if err := m.Manifest.Update(func(man *types.Manifest) {
			man.CurrentBranch = preview.Target
			man.CurrentCommit = commitHash
		}); err != nil {
			m.state = StateFailed
			return &ExecuteResult{Committed: true, CommitHash: commitHash, SyncedCollections: results}, fmt.Errorf("update manifest: %w", err)
		}
	}

	m.state = StateDone
	return &ExecuteResult{Committed: true, CommitHash: commitHash, SyncedCollections: results}, nil
}
