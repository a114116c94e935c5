// Package types holds the data model shared across the sync bridge: documents,
// chunks, collections, commits, sync state, deletion records, conflicts and
// the project manifest.
package types

import "time"

// Document is the unit of content stored in the VDB and mirrored into the EDB.
// Identity is the pair (Collection, DocID).
type Document struct {
	Collection     string
	DocID          string
	Content        []byte
	Metadata       Metadata
	ContentHash    string
	OriginalDocID  string // set when the document was namespaced during import
}

// Metadata is an ordered mapping of string to scalar values. Keys preserve
// insertion order so that namespaced-import metadata (original_doc_id,
// namespaced_from) reads back deterministically.
type Metadata struct {
	keys   []string
	values map[string]any
}

// NewMetadata returns an empty, ready-to-use Metadata.
func NewMetadata() Metadata {
	return Metadata{values: make(map[string]any)}
}

// Set assigns key to value, appending key to the iteration order on first use.
func (m *Metadata) Set(key string, value any) {
	if m.values == nil {
		m.values = make(map[string]any)
	}
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

// Get returns the value for key and whether it was present.
func (m Metadata) Get(key string) (any, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Keys returns the keys in insertion order.
func (m Metadata) Keys() []string {
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

// Clone returns a deep-enough copy (keys slice and map are fresh; scalar
// values are copied by value since Metadata only ever holds scalars).
func (m Metadata) Clone() Metadata {
	out := NewMetadata()
	for _, k := range m.keys {
		out.Set(k, m.values[k])
	}
	return out
}

// Chunk is a deterministic substring of a document's canonical content.
// ChunkID is "<DocID>_chunk_<Index>".
type Chunk struct {
	DocID     string
	ChunkID   string
	Index     int
	Text      string
	StartByte int
	EndByte   int
}

// Collection identity. Case-sensitive; same name exists in both VDB and EDB.
type Collection = string

// Commit is an opaque VDB commit: a hash, its parents, branch label and time.
// It totally orders the state of a branch.
type Commit struct {
	Hash      string
	Parents   []string
	Branch    string
	Timestamp time.Time
	Message   string
}

// SyncStatus is the lifecycle state of a collection's sync record.
type SyncStatus string

const (
	SyncSynced     SyncStatus = "synced"
	SyncPending    SyncStatus = "pending"
	SyncInProgress SyncStatus = "in_progress"
	SyncError      SyncStatus = "error"
)

// SyncState is keyed by (branch, collection); exactly one record per pair.
type SyncState struct {
	Branch         string
	Collection     string
	LastSyncCommit string
	LastSyncAt     time.Time
	DocCount       int
	ChunkCount     int
	EmbeddingModel string
	Status         SyncStatus
	ErrorMessage   string
	ErrorDocID     string
}

// DeletionRecord tracks a pending deletion until it is observed committed
// on the branch it was recorded against.
type DeletionRecord struct {
	Branch      string
	Collection  string
	DocID       string
	DeletedAt   time.Time
	CommittedAt *time.Time
}

// Pending reports whether the deletion has not yet been observed committed.
func (d DeletionRecord) Pending() bool {
	return d.CommittedAt == nil
}

// DocumentSyncLogRow is one append-only entry recording a single document's
// sync event — the per-document counterpart to SyncState's per-collection
// summary. One row per doc_id touched by an applied delta.
type DocumentSyncLogRow struct {
	Branch     string
	Collection string
	DocID      string
	Operation  string // "added", "modified", "deleted"
	AtCommit   string
	At         time.Time
}

// SyncOperationRow is one append-only entry recording a whole sync pass
// (FullSync, IncrementalSync, or the reconcile step of a reset/merge) —
// start/end timestamps and outcome, independent of any one collection.
type SyncOperationRow struct {
	Branch     string
	Operation  string // "full_sync" or "incremental_sync"; the reconcile step of a reset/merge runs FullSync and is logged as "full_sync"
	StartedAt  time.Time
	FinishedAt time.Time
	Succeeded  bool
	Error      string
}

// ConflictType distinguishes merge conflicts from cross-collection import
// collisions; both carry a stable, deterministic ConflictID.
type ConflictType string

const (
	ConflictFieldLevel ConflictType = "FieldLevel"
	ConflictIDCollision ConflictType = "IdCollision"
)

// ResolutionStrategy is a caller-chosen way to settle a conflict.
type ResolutionStrategy string

const (
	ResolutionOurs       ResolutionStrategy = "ours"
	ResolutionTheirs     ResolutionStrategy = "theirs"
	ResolutionFieldMerge ResolutionStrategy = "field_merge"
	ResolutionCustom     ResolutionStrategy = "custom"
	ResolutionAuto       ResolutionStrategy = "auto"
	ResolutionNamespace  ResolutionStrategy = "namespace"
	ResolutionKeepFirst  ResolutionStrategy = "keep_first"
	ResolutionKeepLast   ResolutionStrategy = "keep_last"
	ResolutionSkip       ResolutionStrategy = "skip"
)

// FieldConflict is one differing field between base/ours/theirs.
type FieldConflict struct {
	Field        string
	BaseValue    any
	OurValue     any
	TheirValue   any
	CanAutoMerge bool // true when exactly one side changed from base
}

// ConflictInfo describes a single merge or import conflict with a stable id
// that stays valid from preview through execute.
type ConflictInfo struct {
	ConflictID          string
	Collection          string
	DocID               string
	Type                ConflictType
	AutoResolvable      bool
	FieldConflicts      []FieldConflict
	BaseValues          map[string]any
	OurValues           map[string]any
	TheirValues         map[string]any
	SuggestedResolution ResolutionStrategy
	ResolutionOptions   []ResolutionStrategy

	// Cross-collection import fields (Type == ConflictIDCollision).
	SourceCollections []string
}

// Manifest is the durable pointer to the project's VDB remote/branch/commit.
type Manifest struct {
	RemoteURL      string `json:"remote_url"`
	DefaultBranch  string `json:"default_branch"`
	CurrentBranch  string `json:"current_branch"`
	CurrentCommit  string `json:"current_commit"`
	SchemaVersion  int    `json:"schema_version"`
}

// ChunkerConfig parameterizes deterministic chunking. No package-level
// default is assumed beyond DefaultChunkerConfig; callers inject one.
type ChunkerConfig struct {
	Size    int
	Overlap int
}

// DefaultChunkerConfig is a documented, explicit default. chunk.Split falls
// back to its Size when given a config whose Size is not positive.
var DefaultChunkerConfig = ChunkerConfig{Size: 1000, Overlap: 200}

// DeletionRetention is how long a committed deletion record survives before
// it is eligible for garbage collection.
const DeletionRetention = 30 * 24 * time.Hour
