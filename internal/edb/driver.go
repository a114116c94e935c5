// Package edb wraps the embedding/vector store (C2). The real store is an
// external collaborator (§1 Non-goals: no embedding model is provided here);
// this package defines the contract the sync engine drives and ships an
// in-process reference implementation used by tests and by bridgectl's
// local smoke commands.
package edb

import (
	"context"

	"github.com/steveyegge/syncbridge/internal/types"
)

// StoredDoc is a document plus its chunks as held in the EDB side.
type StoredDoc struct {
	Doc    types.Document
	Chunks []types.Chunk
}

// Store is the EDB Driver contract (C2).
type Store interface {
	ListCollections(ctx context.Context) ([]string, error)
	GetOrCreate(ctx context.Context, name string) error
	Add(ctx context.Context, collection string, docs []StoredDoc) error
	Update(ctx context.Context, collection string, docs []StoredDoc) error
	Delete(ctx context.Context, collection string, ids []string) error
	Count(ctx context.Context, collection string, force bool) (int, error)
	GetByIDs(ctx context.Context, collection string, ids []string) ([]StoredDoc, error)
	Snapshot(ctx context.Context, collection string) ([]StoredDoc, error)
}

// ErrDuplicateID is returned by Add when a batch contains duplicate ids —
// the Import Planner exists specifically to keep this from happening in
// practice (§4.2).
type ErrDuplicateID struct {
	Collection string
	ID         string
}

func (e *ErrDuplicateID) Error() string {
	return "edb: duplicate id " + e.ID + " in collection " + e.Collection
}
