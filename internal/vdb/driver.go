// Package vdb wraps the versioned SQL store (C1 in the design). CLIDriver
// shells out to the configured executable and parses its output strictly —
// never by whitespace-tolerant splitting; EmbeddedDriver (cgo builds only)
// queries an in-process Dolt database instead. Failures are classified
// into the closed taxonomy in bridgeerr.
package vdb

import (
	"context"

	"github.com/steveyegge/syncbridge/internal/types"
)

// Result is the structured outcome of a single CLI invocation.
type Result struct {
	Success  bool
	Stdout   string
	Stderr   string
	ExitCode int
	Parsed   any
}

// StatusResult is the parsed output of `status`.
type StatusResult struct {
	Branch        string
	Clean         bool
	AddedDocs     []string
	ModifiedDocs  []string
	DeletedDocs   []string
	InConflict    bool
}

// DiffEntry is one row of a `diff(from, to)` result.
type DiffEntry struct {
	Collection string
	DocID      string
	ChangeType string // "added" | "modified" | "deleted"
}

// DiffResult is the parsed output of `diff`.
type DiffResult struct {
	Entries []DiffEntry
}

// MergeOutcome is the parsed result of a `merge` invocation.
type MergeOutcome struct {
	Committed    bool
	CommitHash   string
	HasConflicts bool
	ConflictDocs []string // (collection, docID) pairs flattened as "collection/docID"
}

// ConflictDoc identifies one document left in-conflict by a merge attempt.
type ConflictDoc struct {
	Collection string
	DocID      string
}

// ConflictSnapshot holds the base/ours/theirs field maps for one conflicted
// document, as the Conflict Analyzer (C8) needs to compute per-field
// differences.
type ConflictSnapshot struct {
	Base   map[string]any
	Ours   map[string]any
	Theirs map[string]any
}

// Driver is the VDB Driver contract (C1). Side effects are limited to the
// working directory; every method surfaces typed bridgeerr.Error values on
// failure — NotInitialized, Busy, ConflictState, Unavailable (remote
// unreachable), UnexpectedOutput, Timeout.
type Driver interface {
	Status(ctx context.Context) (*StatusResult, error)
	Log(ctx context.Context, branch string, limit int) ([]types.Commit, error)
	Diff(ctx context.Context, from, to string) (*DiffResult, error)
	HeadCommit(ctx context.Context, branch string) (string, error)
	CurrentBranch(ctx context.Context) (string, error)
	ResetHard(ctx context.Context, target string) error
	CreateBranch(ctx context.Context, name, from string) error
	Commit(ctx context.Context, message string) (string, error)
	Merge(ctx context.Context, source string, force bool) (*MergeOutcome, error)
	HasConflicts(ctx context.Context) (bool, error)
	Fetch(ctx context.Context, remote string) error
	ListCollections(ctx context.Context) ([]string, error)
	ResolveRemoteBranch(ctx context.Context, remote, branch string) (string, error)
	ConflictedDocuments(ctx context.Context) ([]ConflictDoc, error)
	ConflictSnapshot(ctx context.Context, collection, docID string) (*ConflictSnapshot, error)
	ContentHashes(ctx context.Context, collection, branch string) (map[string]string, error)
	GetDocuments(ctx context.Context, collection string, docIDs []string) ([]types.Document, error)
}
