package edb

import (
	"context"
	"sort"
	"sync"
)

// countEntry is the process-local count cache (§5): keyed by collection,
// invalidated explicitly by version token rather than a time-based TTL, so
// a caller that just wrote docs can force a fresh count without waiting.
type countEntry struct {
	count   int
	version uint64
}

// MemStore is an in-process reference EDB implementation, addressable by
// (collection, docID). Not safe to share across processes — it exists for
// tests and local bridgectl smoke runs, standing in for the real vector
// store the way an in-memory storage.Storage stands in for sqlite/dolt in
// the teacher's own test suite.
type MemStore struct {
	mu          sync.Mutex
	collections map[string]map[string]StoredDoc
	versions    map[string]uint64
	countCache  sync.Map // collection -> countEntry
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		collections: make(map[string]map[string]StoredDoc),
		versions:    make(map[string]uint64),
	}
}

func (m *MemStore) ListCollections(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.collections))
	for name := range m.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (m *MemStore) GetOrCreate(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.collections[name]; !ok {
		m.collections[name] = make(map[string]StoredDoc)
	}
	return nil
}

func (m *MemStore) Add(ctx context.Context, collection string, docs []StoredDoc) error {
	seen := make(map[string]bool, len(docs))
	for _, d := range docs {
		if seen[d.Doc.DocID] {
			return &ErrDuplicateID{Collection: collection, ID: d.Doc.DocID}
		}
		seen[d.Doc.DocID] = true
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	coll, ok := m.collections[collection]
	if !ok {
		coll = make(map[string]StoredDoc)
		m.collections[collection] = coll
	}
	for _, d := range docs {
		if _, exists := coll[d.Doc.DocID]; exists {
			return &ErrDuplicateID{Collection: collection, ID: d.Doc.DocID}
		}
		coll[d.Doc.DocID] = d
	}
	m.bumpVersionLocked(collection)
	return nil
}

func (m *MemStore) Update(ctx context.Context, collection string, docs []StoredDoc) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	coll, ok := m.collections[collection]
	if !ok {
		coll = make(map[string]StoredDoc)
		m.collections[collection] = coll
	}
	for _, d := range docs {
		coll[d.Doc.DocID] = d
	}
	m.bumpVersionLocked(collection)
	return nil
}

func (m *MemStore) Delete(ctx context.Context, collection string, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	coll, ok := m.collections[collection]
	if !ok {
		return nil
	}
	for _, id := range ids {
		delete(coll, id)
	}
	m.bumpVersionLocked(collection)
	return nil
}

func (m *MemStore) Count(ctx context.Context, collection string, force bool) (int, error) {
	m.mu.Lock()
	version := m.versions[collection]
	size := len(m.collections[collection])
	m.mu.Unlock()

	if !force {
		if v, ok := m.countCache.Load(collection); ok {
			ce := v.(countEntry)
			if ce.version == version {
				return ce.count, nil
			}
		}
	}
	m.countCache.Store(collection, countEntry{count: size, version: version})
	return size, nil
}

func (m *MemStore) GetByIDs(ctx context.Context, collection string, ids []string) ([]StoredDoc, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	coll, ok := m.collections[collection]
	if !ok {
		return nil, nil
	}
	out := make([]StoredDoc, 0, len(ids))
	for _, id := range ids {
		if d, ok := coll[id]; ok {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *MemStore) bumpVersionLocked(collection string) {
	m.versions[collection]++
}

// Snapshot returns every stored document in collection sorted by DocID,
// for the Delta Detector to diff against the VDB's content hashes and for
// tests asserting full-collection state.
func (m *MemStore) Snapshot(ctx context.Context, collection string) ([]StoredDoc, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	coll := m.collections[collection]
	docs := make([]StoredDoc, 0, len(coll))
	for _, sd := range coll {
		docs = append(docs, sd)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Doc.DocID < docs[j].Doc.DocID })
	return docs, nil
}

var _ Store = (*MemStore)(nil)
