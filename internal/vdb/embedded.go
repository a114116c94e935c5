//go:build cgo

package vdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	embedded "github.com/dolthub/driver"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/steveyegge/syncbridge/internal/bridgeerr"
	"github.com/steveyegge/syncbridge/internal/types"
)

// EmbeddedDriver talks to a Dolt database in-process via the embedded
// dolthub/driver connector instead of shelling out to a CLI binary,
// grounded on the teacher's internal/storage/dolt embedded_uow.go /
// store_embedded.go unit-of-work pattern: ParseDSN, NewConnector,
// sql.OpenDB, PingContext to force the connection open, one query per
// call. CGO-only like the teacher's own embedded mode.
//
// Each collection is modeled as one Dolt table (doc_id, content,
// content_hash, metadata, original_doc_id), and the bridge-level
// operations the teacher expresses as `CALL DOLT_COMMIT`/`DOLT_MERGE`/
// `DOLT_CHECKOUT` and the `dolt_status`/`dolt_log`/`dolt_branches`
// system tables map directly onto this driver's methods.
type EmbeddedDriver struct {
	db        *sql.DB
	connector *embedded.Connector
}

// NewEmbeddedDriver opens an embedded Dolt database at dsn (a
// `file://` DSN the way the teacher's openEmbeddedConnection builds one).
func NewEmbeddedDriver(ctx context.Context, dsn string) (*EmbeddedDriver, error) {
	cfg, err := embedded.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse embedded dsn: %w", err)
	}
	connector, err := embedded.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("new embedded connector: %w", err)
	}
	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		_ = connector.Close()
		return nil, fmt.Errorf("ping embedded dolt: %w", err)
	}
	return &EmbeddedDriver{db: db, connector: connector}, nil
}

// Close releases the connection pool and the engine's filesystem lock.
func (d *EmbeddedDriver) Close() error {
	return errors.Join(d.db.Close(), d.connector.Close())
}

func (d *EmbeddedDriver) span(ctx context.Context, name string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "vdb.embedded."+name, trace.WithSpanKind(trace.SpanKindClient))
}

func classifyEmbeddedErr(err error) error {
	if err == nil {
		return nil
	}
	return bridgeerr.New(bridgeerr.KindUnexpectedOutput, "embedded dolt query failed").WithDetail(err.Error())
}

func (d *EmbeddedDriver) Status(ctx context.Context) (*StatusResult, error) {
	ctx, span := d.span(ctx, "status")
	defer span.End()

	branch, err := d.CurrentBranch(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := d.db.QueryContext(ctx, "SELECT table_name, staged, status FROM dolt_status")
	if err != nil {
		return nil, classifyEmbeddedErr(err)
	}
	defer rows.Close()

	result := &StatusResult{Branch: branch, Clean: true}
	for rows.Next() {
		var table, status string
		var staged bool
		if err := rows.Scan(&table, &staged, &status); err != nil {
			return nil, classifyEmbeddedErr(err)
		}
		result.Clean = false
		switch status {
		case "new table", "new row":
			result.AddedDocs = append(result.AddedDocs, table)
		case "deleted":
			result.DeletedDocs = append(result.DeletedDocs, table)
		default:
			result.ModifiedDocs = append(result.ModifiedDocs, table)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, classifyEmbeddedErr(err)
	}

	var conflictCount int
	_ = d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM dolt_conflicts").Scan(&conflictCount)
	result.InConflict = conflictCount > 0

	span.SetAttributes(attribute.Bool("vdb.clean", result.Clean))
	return result, nil
}

func (d *EmbeddedDriver) Log(ctx context.Context, branch string, limit int) ([]types.Commit, error) {
	ctx, span := d.span(ctx, "log")
	defer span.End()

	table := "dolt_log"
	if branch != "" {
		table = fmt.Sprintf("dolt_log('%s')", branch)
	}
	rows, err := d.db.QueryContext(ctx, fmt.Sprintf("SELECT commit_hash, committer, date, message FROM %s LIMIT ?", table), limit)
	if err != nil {
		return nil, classifyEmbeddedErr(err)
	}
	defer rows.Close()

	var commits []types.Commit
	for rows.Next() {
		var c types.Commit
		var committer string
		if err := rows.Scan(&c.Hash, &committer, &c.Timestamp, &c.Message); err != nil {
			return nil, classifyEmbeddedErr(err)
		}
		c.Branch = branch
		commits = append(commits, c)
	}
	return commits, classifyEmbeddedErr(rows.Err())
}

func (d *EmbeddedDriver) Diff(ctx context.Context, from, to string) (*DiffResult, error) {
	ctx, span := d.span(ctx, "diff")
	defer span.End()

	tables, err := d.ListCollections(ctx)
	if err != nil {
		return nil, err
	}

	result := &DiffResult{}
	for _, table := range tables {
		rows, err := d.db.QueryContext(ctx, fmt.Sprintf(
			"SELECT to_doc_id, from_doc_id, diff_type FROM dolt_diff_%s WHERE from_commit = ? AND to_commit = ?", table,
		), from, to)
		if err != nil {
			continue // table may not have existed at `from`; not an error for diff purposes
		}
		for rows.Next() {
			var toID, fromID, changeType sql.NullString
			if err := rows.Scan(&toID, &fromID, &changeType); err != nil {
				rows.Close()
				return nil, classifyEmbeddedErr(err)
			}
			docID := toID.String
			if docID == "" {
				docID = fromID.String
			}
			result.Entries = append(result.Entries, DiffEntry{Collection: table, DocID: docID, ChangeType: changeType.String})
		}
		rows.Close()
	}
	return result, nil
}

func (d *EmbeddedDriver) HeadCommit(ctx context.Context, branch string) (string, error) {
	ctx, span := d.span(ctx, "head_commit")
	defer span.End()

	var hash string
	var err error
	if branch == "" {
		err = d.db.QueryRowContext(ctx, "SELECT commit_hash FROM dolt_log LIMIT 1").Scan(&hash)
	} else {
		err = d.db.QueryRowContext(ctx, fmt.Sprintf("SELECT commit_hash FROM dolt_log('%s') LIMIT 1", branch)).Scan(&hash)
	}
	if err != nil {
		return "", classifyEmbeddedErr(err)
	}
	return hash, nil
}

func (d *EmbeddedDriver) CurrentBranch(ctx context.Context) (string, error) {
	ctx, span := d.span(ctx, "current_branch")
	defer span.End()

	var branch string
	if err := d.db.QueryRowContext(ctx, "SELECT active_branch()").Scan(&branch); err != nil {
		return "", classifyEmbeddedErr(err)
	}
	return branch, nil
}

func (d *EmbeddedDriver) ResetHard(ctx context.Context, target string) error {
	ctx, span := d.span(ctx, "reset_hard")
	defer span.End()

	_, err := d.db.ExecContext(ctx, "CALL DOLT_RESET('--hard', ?)", target)
	return classifyEmbeddedErr(err)
}

func (d *EmbeddedDriver) CreateBranch(ctx context.Context, name, from string) error {
	ctx, span := d.span(ctx, "create_branch")
	defer span.End()

	var err error
	if from != "" {
		_, err = d.db.ExecContext(ctx, "CALL DOLT_BRANCH(?, ?)", name, from)
	} else {
		_, err = d.db.ExecContext(ctx, "CALL DOLT_BRANCH(?)", name)
	}
	return classifyEmbeddedErr(err)
}

func (d *EmbeddedDriver) Commit(ctx context.Context, message string) (string, error) {
	ctx, span := d.span(ctx, "commit")
	defer span.End()

	if _, err := d.db.ExecContext(ctx, "CALL DOLT_COMMIT('-Am', ?)", message); err != nil {
		return "", classifyEmbeddedErr(err)
	}
	return d.HeadCommit(ctx, "")
}

func (d *EmbeddedDriver) Merge(ctx context.Context, source string, force bool) (*MergeOutcome, error) {
	ctx, span := d.span(ctx, "merge")
	defer span.End()

	args := []any{source}
	query := "CALL DOLT_MERGE(?)"
	if force {
		query = "CALL DOLT_MERGE('--force', ?)"
	}
	_, err := d.db.ExecContext(ctx, query, args...)
	if err != nil {
		hasConflicts, cErr := d.HasConflicts(ctx)
		if cErr == nil && hasConflicts {
			docs, _ := d.ConflictedDocuments(ctx)
			flattened := make([]string, 0, len(docs))
			for _, cd := range docs {
				flattened = append(flattened, cd.Collection+"/"+cd.DocID)
			}
			return &MergeOutcome{HasConflicts: true, ConflictDocs: flattened}, nil
		}
		return nil, classifyEmbeddedErr(err)
	}
	hash, err := d.HeadCommit(ctx, "")
	if err != nil {
		return nil, err
	}
	return &MergeOutcome{Committed: true, CommitHash: hash}, nil
}

func (d *EmbeddedDriver) HasConflicts(ctx context.Context) (bool, error) {
	ctx, span := d.span(ctx, "has_conflicts")
	defer span.End()

	var count int
	if err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM dolt_conflicts").Scan(&count); err != nil {
		return false, classifyEmbeddedErr(err)
	}
	return count > 0, nil
}

func (d *EmbeddedDriver) Fetch(ctx context.Context, remote string) error {
	ctx, span := d.span(ctx, "fetch")
	defer span.End()

	_, err := d.db.ExecContext(ctx, "CALL DOLT_FETCH(?)", remote)
	if err != nil {
		return bridgeerr.New(bridgeerr.KindUnavailable, "remote fetch failed").WithDetail(err.Error())
	}
	return nil
}

func (d *EmbeddedDriver) ListCollections(ctx context.Context) ([]string, error) {
	ctx, span := d.span(ctx, "list_collections")
	defer span.End()

	rows, err := d.db.QueryContext(ctx,
		"SELECT table_name FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name NOT LIKE 'dolt\\_%' ORDER BY table_name")
	if err != nil {
		return nil, classifyEmbeddedErr(err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, classifyEmbeddedErr(err)
		}
		tables = append(tables, t)
	}
	return tables, classifyEmbeddedErr(rows.Err())
}

func (d *EmbeddedDriver) ResolveRemoteBranch(ctx context.Context, remote, branch string) (string, error) {
	ctx, span := d.span(ctx, "resolve_remote_branch")
	defer span.End()

	var hash string
	err := d.db.QueryRowContext(ctx, "SELECT commit_hash FROM dolt_log(?) LIMIT 1", fmt.Sprintf("remotes/%s/%s", remote, branch)).Scan(&hash)
	if err != nil {
		return "", classifyEmbeddedErr(err)
	}
	return hash, nil
}

func (d *EmbeddedDriver) ConflictedDocuments(ctx context.Context) ([]ConflictDoc, error) {
	ctx, span := d.span(ctx, "conflicted_documents")
	defer span.End()

	tables, err := d.ListCollections(ctx)
	if err != nil {
		return nil, err
	}

	var out []ConflictDoc
	for _, table := range tables {
		rows, err := d.db.QueryContext(ctx, fmt.Sprintf("SELECT our_doc_id FROM dolt_conflicts_%s", table))
		if err != nil {
			continue // table has no conflict view when it has no conflicts
		}
		for rows.Next() {
			var docID string
			if err := rows.Scan(&docID); err != nil {
				rows.Close()
				return nil, classifyEmbeddedErr(err)
			}
			out = append(out, ConflictDoc{Collection: table, DocID: docID})
		}
		rows.Close()
	}
	return out, nil
}

func (d *EmbeddedDriver) ConflictSnapshot(ctx context.Context, collection, docID string) (*ConflictSnapshot, error) {
	ctx, span := d.span(ctx, "conflict_snapshot")
	defer span.End()

	var baseJSON, oursJSON, theirsJSON sql.NullString
	err := d.db.QueryRowContext(ctx, fmt.Sprintf(
		"SELECT base_metadata, our_metadata, their_metadata FROM dolt_conflicts_%s WHERE our_doc_id = ?", collection,
	), docID).Scan(&baseJSON, &oursJSON, &theirsJSON)
	if err != nil {
		return nil, classifyEmbeddedErr(err)
	}

	snap := &ConflictSnapshot{}
	snap.Base = decodeFieldMap(baseJSON.String)
	snap.Ours = decodeFieldMap(oursJSON.String)
	snap.Theirs = decodeFieldMap(theirsJSON.String)
	return snap, nil
}

func decodeFieldMap(raw string) map[string]any {
	if raw == "" {
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return map[string]any{}
	}
	return m
}

func (d *EmbeddedDriver) ContentHashes(ctx context.Context, collection, branch string) (map[string]string, error) {
	ctx, span := d.span(ctx, "content_hashes")
	defer span.End()

	table := collection
	if branch != "" {
		table = fmt.Sprintf("`%s/%s`.%s", branch, collection, collection)
	}
	rows, err := d.db.QueryContext(ctx, fmt.Sprintf("SELECT doc_id, content_hash FROM %s", table))
	if err != nil {
		return nil, classifyEmbeddedErr(err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var id, hash string
		if err := rows.Scan(&id, &hash); err != nil {
			return nil, classifyEmbeddedErr(err)
		}
		out[id] = hash
	}
	return out, classifyEmbeddedErr(rows.Err())
}

func (d *EmbeddedDriver) GetDocuments(ctx context.Context, collection string, docIDs []string) ([]types.Document, error) {
	ctx, span := d.span(ctx, "get_documents")
	defer span.End()

	if len(docIDs) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(docIDs))
	args := make([]any, len(docIDs))
	for i, id := range docIDs {
		placeholders[i] = "?"
		args[i] = id
	}
	query := fmt.Sprintf("SELECT doc_id, content, content_hash, metadata, original_doc_id FROM %s WHERE doc_id IN (%s)",
		collection, joinPlaceholders(placeholders))

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classifyEmbeddedErr(err)
	}
	defer rows.Close()

	var docs []types.Document
	for rows.Next() {
		var docID, hash string
		var content []byte
		var metaJSON, origID sql.NullString
		if err := rows.Scan(&docID, &content, &hash, &metaJSON, &origID); err != nil {
			return nil, classifyEmbeddedErr(err)
		}
		doc := types.Document{Collection: collection, DocID: docID, Content: content, ContentHash: hash, OriginalDocID: origID.String}
		doc.Metadata = types.NewMetadata()
		for k, v := range decodeFieldMap(metaJSON.String) {
			doc.Metadata.Set(k, v)
		}
		docs = append(docs, doc)
	}
	return docs, classifyEmbeddedErr(rows.Err())
}

func joinPlaceholders(ps []string) string {
	out := ps[0]
	for _, p := range ps[1:] {
		out += "," + p
	}
	return out
}

var _ Driver = (*EmbeddedDriver)(nil)
