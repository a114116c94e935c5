// Package ops defines the flat RPC-tool surface (§6): one Operation per
// tool, wiring the lower-level components (drivers, trackers, engines)
// together behind a single `Do(ctx, in) (out, error)` shape instead of a
// deep dispatch hierarchy, per the §9 design-notes guidance to flatten
// "deep class hierarchies for tools" into one interface per tool.
package ops

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/steveyegge/syncbridge/internal/bridgeerr"
	"github.com/steveyegge/syncbridge/internal/config"
	"github.com/steveyegge/syncbridge/internal/conflict"
	"github.com/steveyegge/syncbridge/internal/edb"
	"github.com/steveyegge/syncbridge/internal/importer"
	"github.com/steveyegge/syncbridge/internal/lock"
	"github.com/steveyegge/syncbridge/internal/manifest"
	"github.com/steveyegge/syncbridge/internal/merge"
	"github.com/steveyegge/syncbridge/internal/reset"
	"github.com/steveyegge/syncbridge/internal/syncengine"
	"github.com/steveyegge/syncbridge/internal/types"
	"github.com/steveyegge/syncbridge/internal/vdb"
)

// Operation is the single shape every RPC tool implements.
type Operation[In, Out any] interface {
	Do(ctx context.Context, in In) (Out, error)
}

// Deps bundles every lower-level collaborator the operations share. It is
// constructed once at process startup and threaded through explicitly —
// no operation stores a back-reference to its caller (§9 "cyclic
// ownership").
type Deps struct {
	Config   *config.Config
	VDB      vdb.Driver
	EDB      edb.Store
	Engine   *syncengine.Engine
	Analyzer *conflict.Analyzer
	Manifest *manifest.Store
	Locks    *lock.Registry
}

func NewMergeMachine(d *Deps) *merge.Machine {
	return merge.New(d.VDB, d.Analyzer, d.Engine, d.Manifest)
}

func NewResetter(d *Deps) *reset.Resetter {
	return reset.New(d.VDB, d.Engine)
}

// RepositoryState is the discrete project state RepositoryStatus reports.
type RepositoryState string

const (
	StateReady                      RepositoryState = "Ready"
	StateUninitialized              RepositoryState = "Uninitialized"
	StateManifestOnlyNeedsVDB       RepositoryState = "ManifestOnly_NeedsVDBBootstrap"
	StateManifestOnlyNeedsEDB       RepositoryState = "ManifestOnly_NeedsEDBBootstrap"
	StateManifestOnlyNeedsFull      RepositoryState = "ManifestOnly_NeedsFullBootstrap"
	StatePathMisalignedVDBNested    RepositoryState = "PathMisaligned_VDBNested"
	StateInfrastructureOnlyNoManifest RepositoryState = "InfrastructureOnly_NeedsManifest"
	StateInconsistent               RepositoryState = "Inconsistent"
)

type StatusIn struct{}

type StatusOut struct {
	State             RepositoryState
	StateDescription  string
	IsReady           bool
	AvailableActions  []string
	RecommendedAction string
	ProjectRoot       string
	Manifest          *types.Manifest
	VDBExists         bool
	EDBExists         bool
	Error             string
}

// StatusOp implements RepositoryStatus. Read-only: it takes a shared
// (RLock) lock under the fixed key "status" rather than a branch name, so
// it runs concurrently with other status calls. No writer locks that key,
// so it does not hold off writers on any branch.
type StatusOp struct{ Deps *Deps }

func (op *StatusOp) Do(ctx context.Context, _ StatusIn) (StatusOut, error) {
	release := op.Deps.Locks.RLock(ctx, "status")
	defer release()

	out := StatusOut{ProjectRoot: op.Deps.Config.ProjectRoot}

	manifestExists := op.Deps.Manifest.Exists()
	var man types.Manifest
	if manifestExists {
		m, err := op.Deps.Manifest.Load()
		if err != nil {
			out.Error = err.Error()
			out.State = StateInconsistent
			return out, nil
		}
		man = m
		out.Manifest = &man
	}

	vdbReachable := true
	if _, err := op.Deps.VDB.Status(ctx); err != nil {
		if bridgeerr.KindOf(err) == bridgeerr.KindNotInitialized {
			vdbReachable = false
		} else {
			out.Error = err.Error()
		}
	}
	out.VDBExists = vdbReachable

	edbReachable := true
	if _, err := op.Deps.EDB.ListCollections(ctx); err != nil {
		edbReachable = false
	}
	out.EDBExists = edbReachable

	switch {
	case !manifestExists && !vdbReachable && !edbReachable:
		out.State = StateUninitialized
		out.RecommendedAction = "DoltClone or DoltInit"
	case !manifestExists && vdbReachable && edbReachable:
		out.State = StateInfrastructureOnlyNoManifest
		out.RecommendedAction = "Bootstrap(sync_to_manifest_commit=true)"
	case manifestExists && !vdbReachable && !edbReachable:
		out.State = StateManifestOnlyNeedsFull
		out.RecommendedAction = "Bootstrap(bootstrap_vdb=true, bootstrap_edb=true)"
	case manifestExists && !vdbReachable:
		out.State = StateManifestOnlyNeedsVDB
		out.RecommendedAction = "Bootstrap(bootstrap_vdb=true)"
	case manifestExists && !edbReachable:
		out.State = StateManifestOnlyNeedsEDB
		out.RecommendedAction = "Bootstrap(bootstrap_edb=true)"
	case manifestExists && vdbReachable && edbReachable:
		out.State = StateReady
		out.IsReady = true
		out.AvailableActions = []string{"PreviewMerge", "ExecuteMerge", "Reset", "PreviewImport", "ExecuteImport"}
	default:
		out.State = StateInconsistent
	}
	return out, nil
}

var _ Operation[StatusIn, StatusOut] = (*StatusOp)(nil)

// BootstrapOptions mirrors §6's Bootstrap input.
type BootstrapOptions struct {
	BootstrapVDB          bool
	BootstrapEDB          bool
	SyncToManifestCommit  bool
	CreateWorkBranch      bool
	WorkBranchName        string
}

type BootstrapOut struct {
	ManifestWritten   bool
	WorkBranchCreated string
	SyncedCollections []syncengine.Result
}

// BootstrapOp implements Bootstrap: ensures a manifest exists, and — when
// requested — performs the initial full sync from VDB head into the EDB.
// VDB/EDB provisioning themselves (cloning, creating the data directory)
// are external-collaborator concerns per §1 Non-goals; this operation
// wires the bridge's own bookkeeping around that provisioning.
type BootstrapOp struct{ Deps *Deps }

func (op *BootstrapOp) Do(ctx context.Context, in BootstrapOptions) (BootstrapOut, error) {
	branch, err := op.Deps.VDB.CurrentBranch(ctx)
	if err != nil {
		return BootstrapOut{}, fmt.Errorf("current branch: %w", err)
	}
	release := op.Deps.Locks.Lock(ctx, branch)
	defer release()

	out := BootstrapOut{}

	if !op.Deps.Manifest.Exists() || in.SyncToManifestCommit {
		head, err := op.Deps.VDB.HeadCommit(ctx, branch)
		if err != nil {
			return out, fmt.Errorf("head commit: %w", err)
		}
		if err := op.Deps.Manifest.Save(types.Manifest{CurrentBranch: branch, CurrentCommit: head, SchemaVersion: 1}); err != nil {
			return out, fmt.Errorf("save manifest: %w", err)
		}
		out.ManifestWritten = true
	}

	if in.CreateWorkBranch {
		name := in.WorkBranchName
		if name == "" {
			name = "bridge-work-" + uuid.NewString()[:8]
		}
		if err := op.Deps.VDB.CreateBranch(ctx, name, branch); err != nil {
			return out, fmt.Errorf("create work branch: %w", err)
		}
		out.WorkBranchCreated = name
	}

	if in.BootstrapEDB {
		results, err := op.Deps.Engine.FullSync(ctx, branch, true)
		if err != nil {
			return out, fmt.Errorf("initial full sync: %w", err)
		}
		out.SyncedCollections = results
	}

	return out, nil
}

var _ Operation[BootstrapOptions, BootstrapOut] = (*BootstrapOp)(nil)

// PreviewMergeIn mirrors §6's PreviewMerge input.
type PreviewMergeIn struct {
	Source string
	Target string
	Force  bool
}

// PreviewMergeOp implements PreviewMerge. Read-only: shared lock.
type PreviewMergeOp struct{ Deps *Deps }

func (op *PreviewMergeOp) Do(ctx context.Context, in PreviewMergeIn) (*merge.PreviewResult, error) {
	target := in.Target
	if target == "" {
		branch, err := op.Deps.VDB.CurrentBranch(ctx)
		if err != nil {
			return nil, fmt.Errorf("current branch: %w", err)
		}
		target = branch
	}
	release := op.Deps.Locks.RLock(ctx, target)
	defer release()

	m := NewMergeMachine(op.Deps)
	return m.Preview(ctx, in.Source, target, in.Force)
}

var _ Operation[PreviewMergeIn, *merge.PreviewResult] = (*PreviewMergeOp)(nil)

// ExecuteMergeIn mirrors §6's ExecuteMerge input.
type ExecuteMergeIn struct {
	Preview               *merge.PreviewResult
	ConflictResolutions   map[string]types.ResolutionStrategy
	AutoResolveRemaining  bool
	Force                 bool
	Message               string
}

// ExecuteMergeOp implements ExecuteMerge. Mutating: exclusive lock on the
// target branch, held from VDB state read through SyncState commit (§5).
type ExecuteMergeOp struct{ Deps *Deps }

func (op *ExecuteMergeOp) Do(ctx context.Context, in ExecuteMergeIn) (*merge.ExecuteResult, error) {
	release := op.Deps.Locks.Lock(ctx, in.Preview.Target)
	defer release()

	m := NewMergeMachine(op.Deps)
	return m.Execute(ctx, in.Preview, in.ConflictResolutions, in.AutoResolveRemaining, in.Force, in.Message)
}

var _ Operation[ExecuteMergeIn, *merge.ExecuteResult] = (*ExecuteMergeOp)(nil)

// ResetIn mirrors §6's Reset input.
type ResetIn struct {
	Target         string
	ConfirmDiscard bool
}

// ResetOp implements Reset. Mutating: exclusive lock on the current branch.
type ResetOp struct{ Deps *Deps }

func (op *ResetOp) Do(ctx context.Context, in ResetIn) (*reset.Result, error) {
	branch, err := op.Deps.VDB.CurrentBranch(ctx)
	if err != nil {
		return nil, fmt.Errorf("current branch: %w", err)
	}
	release := op.Deps.Locks.Lock(ctx, branch)
	defer release()

	r := NewResetter(op.Deps)
	return r.Reset(ctx, in.Target, in.ConfirmDiscard)
}

var _ Operation[ResetIn, *reset.Result] = (*ResetOp)(nil)

// PreviewImportIn mirrors §6's PreviewImport input.
type PreviewImportIn struct {
	Filter []importer.SourceMapping
}

// PreviewImportOp implements PreviewImport. Read-only: shared lock scoped
// to a fixed key since import spans collections, not one branch.
type PreviewImportOp struct{ Deps *Deps }

func (op *PreviewImportOp) Do(ctx context.Context, in PreviewImportIn) (*importer.Plan, error) {
	release := op.Deps.Locks.RLock(ctx, "import")
	defer release()

	planner := importer.NewPlanner(op.Deps.EDB)
	return planner.Plan(ctx, in.Filter)
}

var _ Operation[PreviewImportIn, *importer.Plan] = (*PreviewImportOp)(nil)

// ExecuteImportIn mirrors §6's ExecuteImport input.
type ExecuteImportIn struct {
	Filter          []importer.SourceMapping
	Plan            *importer.Plan
	Resolutions     map[string]types.ResolutionStrategy
	DefaultStrategy types.ResolutionStrategy
}

// ExecuteImportOp implements ExecuteImport. Mutating: exclusive lock.
type ExecuteImportOp struct{ Deps *Deps }

func (op *ExecuteImportOp) Do(ctx context.Context, in ExecuteImportIn) (*importer.Result, error) {
	release := op.Deps.Locks.Lock(ctx, "import")
	defer release()

	exec := importer.NewExecutor(op.Deps.EDB, types.DefaultChunkerConfig)
	return exec.Execute(ctx, in.Filter, in.Plan, in.Resolutions, in.DefaultStrategy)
}

var _ Operation[ExecuteImportIn, *importer.Result] = (*ExecuteImportOp)(nil)
