package vdb

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/steveyegge/syncbridge/internal/bridgeerr"
	"github.com/steveyegge/syncbridge/internal/types"
)

var tracer = otel.Tracer("github.com/steveyegge/syncbridge/internal/vdb")

// CLIDriver invokes the configured VDB executable as a subprocess per call,
// grounded on the teacher's `git rev-parse`-style exec wrapper combined with
// its dolt store's backoff+otel instrumentation around every call.
type CLIDriver struct {
	Executable string
	WorkDir    string
	Timeout    time.Duration
}

// NewCLIDriver constructs a CLIDriver. timeout is the per-call deadline
// (§5); zero means no deadline is imposed beyond the caller's context.
func NewCLIDriver(executable, workDir string, timeout time.Duration) *CLIDriver {
	return &CLIDriver{Executable: executable, WorkDir: workDir, Timeout: timeout}
}

func (d *CLIDriver) run(ctx context.Context, name string, args ...string) (*Result, error) {
	ctx, span := tracer.Start(ctx, "vdb."+name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.StringSlice("vdb.args", args)),
	)
	defer span.End()

	if d.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, d.Executable, args...)
	cmd.Dir = d.WorkDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()

	res := &Result{Stdout: stdout.String(), Stderr: stderr.String()}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
	}

	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return res, bridgeerr.Wrap(bridgeerr.KindTimeout, fmt.Sprintf("vdb %s timed out", name), err)
		}
		return res, classifyError(name, res, err)
	}
	res.Success = true
	return res, nil
}

// classifyError maps a non-zero exit into the closed taxonomy by inspecting
// stderr; the VDB CLI is assumed to print one of a small set of recognizable
// prefixes for these conditions (mirroring how the teacher's dolt store
// distinguishes "not initialized" / "busy" / conflict states from generic
// failures rather than treating every non-zero exit the same way).
func classifyError(op string, res *Result, cause error) error {
	stderr := strings.ToLower(res.Stderr)
	switch {
	case strings.Contains(stderr, "not a valid repository"), strings.Contains(stderr, "not initialized"):
		return bridgeerr.Wrap(bridgeerr.KindNotInitialized, fmt.Sprintf("vdb %s: repository not initialized", op), cause)
	case strings.Contains(stderr, "lock"), strings.Contains(stderr, "busy"):
		return bridgeerr.Wrap(bridgeerr.KindBusy, fmt.Sprintf("vdb %s: repository busy", op), cause)
	case strings.Contains(stderr, "conflict"):
		return bridgeerr.Wrap(bridgeerr.KindConflictState, fmt.Sprintf("vdb %s: repository has unresolved conflicts", op), cause)
	case strings.Contains(stderr, "could not resolve host"), strings.Contains(stderr, "connection refused"), strings.Contains(stderr, "remote"):
		return bridgeerr.Wrap(bridgeerr.KindUnavailable, fmt.Sprintf("vdb %s: remote unreachable", op), cause)
	default:
		return bridgeerr.Wrap(bridgeerr.KindUnexpectedOutput, fmt.Sprintf("vdb %s failed", op), cause)
	}
}

func (d *CLIDriver) Status(ctx context.Context) (*StatusResult, error) {
	res, err := d.run(ctx, "status", "status", "--porcelain")
	if err != nil {
		return nil, err
	}
	sr := &StatusResult{Clean: true}
	for _, row := range splitRecords(res.Stdout) {
		if len(row) < 2 {
			return nil, bridgeerr.New(bridgeerr.KindUnexpectedOutput, "status: malformed row").WithDetail(res.Stdout)
		}
		sr.Clean = false
		switch row[0] {
		case "added":
			sr.AddedDocs = append(sr.AddedDocs, row[1])
		case "modified":
			sr.ModifiedDocs = append(sr.ModifiedDocs, row[1])
		case "deleted":
			sr.DeletedDocs = append(sr.DeletedDocs, row[1])
		case "conflict":
			sr.InConflict = true
		}
	}
	branch, err := d.CurrentBranch(ctx)
	if err != nil {
		return nil, err
	}
	sr.Branch = branch
	return sr, nil
}

func (d *CLIDriver) Log(ctx context.Context, branch string, limit int) ([]types.Commit, error) {
	res, err := d.run(ctx, "log", "log", branch, "-n", strconv.Itoa(limit), "--format=porcelain")
	if err != nil {
		return nil, err
	}
	var commits []types.Commit
	for _, row := range splitRecords(res.Stdout) {
		if len(row) < 4 {
			return nil, bridgeerr.New(bridgeerr.KindUnexpectedOutput, "log: malformed row").WithDetail(res.Stdout)
		}
		ts, perr := strconv.ParseInt(row[2], 10, 64)
		if perr != nil {
			return nil, bridgeerr.Wrap(bridgeerr.KindUnexpectedOutput, "log: bad timestamp", perr)
		}
		var parents []string
		if row[3] != "" {
			parents = strings.Split(row[3], ",")
		}
		commits = append(commits, types.Commit{
			Hash:      row[0],
			Branch:    branch,
			Timestamp: time.Unix(ts, 0).UTC(),
			Parents:   parents,
			Message:   row[1],
		})
	}
	return commits, nil
}

func (d *CLIDriver) Diff(ctx context.Context, from, to string) (*DiffResult, error) {
	res, err := d.run(ctx, "diff", "diff", from, to, "--format=porcelain")
	if err != nil {
		return nil, err
	}
	var entries []DiffEntry
	for _, row := range splitRecords(res.Stdout) {
		if len(row) < 3 {
			return nil, bridgeerr.New(bridgeerr.KindUnexpectedOutput, "diff: malformed row").WithDetail(res.Stdout)
		}
		entries = append(entries, DiffEntry{Collection: row[0], DocID: row[1], ChangeType: row[2]})
	}
	return &DiffResult{Entries: entries}, nil
}

func (d *CLIDriver) HeadCommit(ctx context.Context, branch string) (string, error) {
	res, err := d.run(ctx, "head_commit", "rev-parse", branch)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(res.Stdout), nil
}

func (d *CLIDriver) CurrentBranch(ctx context.Context) (string, error) {
	res, err := d.run(ctx, "current_branch", "branch", "--current")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(res.Stdout), nil
}

func (d *CLIDriver) ResetHard(ctx context.Context, target string) error {
	_, err := d.run(ctx, "reset_hard", "reset", "--hard", target)
	return err
}

func (d *CLIDriver) CreateBranch(ctx context.Context, name, from string) error {
	args := []string{"branch", "create", name}
	if from != "" {
		args = append(args, "--from", from)
	}
	_, err := d.run(ctx, "create_branch", args...)
	return err
}

func (d *CLIDriver) Commit(ctx context.Context, message string) (string, error) {
	_, err := d.run(ctx, "commit", "commit", "-m", message)
	if err != nil {
		return "", err
	}
	return d.HeadCommit(ctx, "")
}

func (d *CLIDriver) Merge(ctx context.Context, source string, force bool) (*MergeOutcome, error) {
	args := []string{"merge", source}
	if force {
		args = append(args, "--force")
	}
	_, err := d.run(ctx, "merge", args...)
	if err != nil {
		if bridgeerr.KindOf(err) == bridgeerr.KindConflictState {
			hasConflicts, conflictErr := d.HasConflicts(ctx)
			if conflictErr == nil && hasConflicts {
				return &MergeOutcome{HasConflicts: true}, nil
			}
		}
		return nil, err
	}
	hash, err := d.HeadCommit(ctx, "")
	if err != nil {
		return nil, err
	}
	return &MergeOutcome{Committed: true, CommitHash: hash}, nil
}

func (d *CLIDriver) HasConflicts(ctx context.Context) (bool, error) {
	res, err := d.run(ctx, "has_conflicts", "status", "--conflicts")
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(res.Stdout) != "", nil
}

// Fetch is retried with exponential backoff only for the explicitly
// retryable Unavailable (remote unreachable) kind — every other failure is
// surfaced immediately, never silently retried (§7 propagation policy).
func (d *CLIDriver) Fetch(ctx context.Context, remote string) error {
	bo := backoff.WithContext(backoff.NewExponentialBackOff(), ctx)
	return backoff.Retry(func() error {
		_, err := d.run(ctx, "fetch", "fetch", remote)
		if err == nil {
			return nil
		}
		if bridgeerr.KindOf(err) == bridgeerr.KindUnavailable {
			return err
		}
		return backoff.Permanent(err)
	}, bo)
}

func (d *CLIDriver) ListCollections(ctx context.Context) ([]string, error) {
	res, err := d.run(ctx, "list_collections", "collections", "list")
	if err != nil {
		return nil, err
	}
	return parseCollectionList(res.Stdout), nil
}

// ResolveRemoteBranch resolves origin/<branch> to a commit hash via
// fetch + log -n 1, per the §9 open-question resolution the spec mandates
// (the source left this as a TODO; we follow `fetch` then `log -n 1
// origin/<branch>` explicitly rather than guessing at ref syntax).
func (d *CLIDriver) ResolveRemoteBranch(ctx context.Context, remote, branch string) (string, error) {
	if err := d.Fetch(ctx, remote); err != nil {
		return "", err
	}
	ref := remote + "/" + branch
	commits, err := d.Log(ctx, ref, 1)
	if err != nil {
		return "", err
	}
	if len(commits) == 0 {
		return "", bridgeerr.New(bridgeerr.KindUnexpectedOutput, "no commits found for "+ref)
	}
	return commits[0].Hash, nil
}

// ConflictedDocuments lists every (collection, doc_id) pair left in-conflict
// by a merge attempt, for the Conflict Analyzer (C8) to enumerate.
func (d *CLIDriver) ConflictedDocuments(ctx context.Context) ([]ConflictDoc, error) {
	res, err := d.run(ctx, "conflicts", "conflicts", "list", "--format=porcelain")
	if err != nil {
		return nil, err
	}
	var docs []ConflictDoc
	for _, row := range splitRecords(res.Stdout) {
		if len(row) < 2 {
			return nil, bridgeerr.New(bridgeerr.KindUnexpectedOutput, "conflicts: malformed row").WithDetail(res.Stdout)
		}
		docs = append(docs, ConflictDoc{Collection: row[0], DocID: row[1]})
	}
	return docs, nil
}

// ConflictSnapshot fetches the base/ours/theirs field sets for one
// conflicted document. Each side is printed on its own RS-delimited row,
// tagged by its first field ("base" | "ours" | "theirs"); remaining fields
// on that row are "key=value" pairs (parseFieldMap), since the document's
// field set is not known in advance.
func (d *CLIDriver) ConflictSnapshot(ctx context.Context, collection, docID string) (*ConflictSnapshot, error) {
	res, err := d.run(ctx, "show_conflict", "conflicts", "show", collection, docID, "--format=porcelain")
	if err != nil {
		return nil, err
	}
	snap := &ConflictSnapshot{}
	for _, row := range splitRecords(res.Stdout) {
		if len(row) < 1 {
			continue
		}
		fields := parseFieldMap(row[1:])
		switch row[0] {
		case "base":
			snap.Base = fields
		case "ours":
			snap.Ours = fields
		case "theirs":
			snap.Theirs = fields
		}
	}
	return snap, nil
}

// ContentHashes returns doc_id -> content_hash for every document in
// collection at branch's head, for the Delta Detector (C6) to diff against
// the EDB's own snapshot.
func (d *CLIDriver) ContentHashes(ctx context.Context, collection, branch string) (map[string]string, error) {
	res, err := d.run(ctx, "content_hashes", "docs", "hashes", collection, branch, "--format=porcelain")
	if err != nil {
		return nil, err
	}
	out := make(map[string]string)
	for _, row := range splitRecords(res.Stdout) {
		if len(row) < 2 {
			return nil, bridgeerr.New(bridgeerr.KindUnexpectedOutput, "content_hashes: malformed row").WithDetail(res.Stdout)
		}
		out[row[0]] = row[1]
	}
	return out, nil
}

// GetDocuments fetches full content and metadata for the given doc ids in
// collection, for the Sync Engine to mirror into the EDB on Add/Update.
func (d *CLIDriver) GetDocuments(ctx context.Context, collection string, docIDs []string) ([]types.Document, error) {
	if len(docIDs) == 0 {
		return nil, nil
	}
	args := append([]string{"docs", "get", collection, "--format=porcelain"}, docIDs...)
	res, err := d.run(ctx, "get_documents", args...)
	if err != nil {
		return nil, err
	}
	var docs []types.Document
	for _, row := range splitRecords(res.Stdout) {
		if len(row) < 3 {
			return nil, bridgeerr.New(bridgeerr.KindUnexpectedOutput, "get_documents: malformed row").WithDetail(res.Stdout)
		}
		md := types.NewMetadata()
		fields := parseFieldMap(row[3:])
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			md.Set(k, fields[k])
		}
		docs = append(docs, types.Document{
			Collection:  collection,
			DocID:       row[0],
			Content:     []byte(row[1]),
			ContentHash: row[2],
			Metadata:    md,
		})
	}
	return docs, nil
}
