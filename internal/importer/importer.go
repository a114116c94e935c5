// Package importer implements the Import Planner/Executor (C10):
// cross-collection consolidation. Many source collections can fan into one
// target; the planner's job is detecting doc_id collisions across sources
// before anything is written, and the executor applies the caller's chosen
// resolution strategy per collision.
package importer

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/steveyegge/syncbridge/internal/chunk"
	"github.com/steveyegge/syncbridge/internal/edb"
	"github.com/steveyegge/syncbridge/internal/fingerprint"
	"github.com/steveyegge/syncbridge/internal/types"
)

// SourceMapping is one entry of the import filter: a source pattern
// (collection names may contain `*`) routed into a target collection.
type SourceMapping struct {
	SourcePattern   string
	TargetCollection string
	DocPatterns     []string // optional; unset means all docs
}

// Plan is the result of planning an import: whether it can proceed without
// manual intervention, the conflicts found, and summary counts.
type Plan struct {
	CanAutoImport bool
	Conflicts     []types.ConflictInfo
	AddedCount    int
	ModifiedCount int
}

// Result is the outcome of executing an import.
type Result struct {
	Written   int
	Skipped   int
	Namespaced int
}

// Planner resolves wildcard source patterns against the EDB and detects
// cross-collection id collisions.
type Planner struct {
	EDB edb.Store
}

func NewPlanner(store edb.Store) *Planner {
	return &Planner{EDB: store}
}

// resolvedSource is one (pattern, resolved collection name) pair.
type resolvedSource struct {
	mapping    SourceMapping
	collection string
}

// Plan runs the planner algorithm from §4.10: resolve wildcards, group by
// target, and for any target fed by more than one source, detect doc_id
// collisions across those sources.
func (p *Planner) Plan(ctx context.Context, filter []SourceMapping) (*Plan, error) {
	resolved, err := p.resolveWildcards(ctx, filter)
	if err != nil {
		return nil, err
	}

	byTarget := make(map[string][]resolvedSource)
	for _, r := range resolved {
		byTarget[r.mapping.TargetCollection] = append(byTarget[r.mapping.TargetCollection], r)
	}

	plan := &Plan{CanAutoImport: true}
	for target, sources := range byTarget {
		var conflicts []types.ConflictInfo
		if len(sources) > 1 {
			var err error
			conflicts, err = p.detectCollisions(ctx, target, sources)
			if err != nil {
				return nil, err
			}
			if len(conflicts) > 0 {
				plan.CanAutoImport = false
			}
			plan.Conflicts = append(plan.Conflicts, conflicts...)
		}

		collidingIDs := make(map[string]bool, len(conflicts))
		for _, c := range conflicts {
			collidingIDs[c.DocID] = true
		}
		added, modified, err := p.analyzeModifications(ctx, target, sources, collidingIDs)
		if err != nil {
			return nil, err
		}
		plan.AddedCount += added
		plan.ModifiedCount += modified
	}

	sort.Slice(plan.Conflicts, func(i, j int) bool { return plan.Conflicts[i].ConflictID < plan.Conflicts[j].ConflictID })
	return plan, nil
}

// analyzeModifications runs the per-source target-vs-source analysis from
// §4.10 step 5 for every document not already covered by an id collision:
// a doc_id target doesn't hold yet counts as an add, one it holds with a
// different content_hash counts as a modification, and identical content
// is neither (a no-op on execute).
func (p *Planner) analyzeModifications(ctx context.Context, target string, sources []resolvedSource, collidingIDs map[string]bool) (added, modified int, err error) {
	existing, err := p.existingHashes(ctx, target)
	if err != nil {
		return 0, 0, err
	}

	seen := make(map[string]bool)
	for _, s := range sources {
		docs, err := p.EDB.Snapshot(ctx, s.collection)
		if err != nil {
			return 0, 0, fmt.Errorf("snapshot %s: %w", s.collection, err)
		}
		for _, d := range docs {
			if !matchesDocPatterns(d.Doc.DocID, s.mapping.DocPatterns) {
				continue
			}
			if collidingIDs[d.Doc.DocID] || seen[d.Doc.DocID] {
				continue
			}
			seen[d.Doc.DocID] = true
			switch hash, ok := existing[d.Doc.DocID]; {
			case !ok:
				added++
			case hash != d.Doc.ContentHash:
				modified++
			}
		}
	}
	return added, modified, nil
}

// existingHashes returns doc_id -> content_hash for target's current
// contents, or an empty map if target doesn't exist yet.
func (p *Planner) existingHashes(ctx context.Context, target string) (map[string]string, error) {
	collections, err := p.EDB.ListCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	exists := false
	for _, c := range collections {
		if c == target {
			exists = true
			break
		}
	}
	if !exists {
		return map[string]string{}, nil
	}

	docs, err := p.EDB.Snapshot(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", target, err)
	}
	out := make(map[string]string, len(docs))
	for _, d := range docs {
		out[d.Doc.DocID] = d.Doc.ContentHash
	}
	return out, nil
}

func (p *Planner) resolveWildcards(ctx context.Context, filter []SourceMapping) ([]resolvedSource, error) {
	available, err := p.EDB.ListCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}

	var out []resolvedSource
	for _, m := range filter {
		if !strings.Contains(m.SourcePattern, "*") {
			out = append(out, resolvedSource{mapping: m, collection: m.SourcePattern})
			continue
		}
		for _, name := range available {
			matched, err := filepath.Match(m.SourcePattern, name)
			if err != nil {
				return nil, fmt.Errorf("invalid source pattern %q: %w", m.SourcePattern, err)
			}
			if matched {
				out = append(out, resolvedSource{mapping: m, collection: name})
			}
		}
	}
	return out, nil
}

// detectCollisions fetches every (source, doc_id, content_hash) tuple for
// the sources feeding target and emits one IdCollision conflict per
// additional source holding a doc_id: a doc_id found in N sources yields
// N-1 conflicts.
func (p *Planner) detectCollisions(ctx context.Context, target string, sources []resolvedSource) ([]types.ConflictInfo, error) {
	byDocID := make(map[string][]string) // doc_id -> source collections holding it

	for _, s := range sources {
		docs, err := p.EDB.Snapshot(ctx, s.collection)
		if err != nil {
			return nil, fmt.Errorf("snapshot %s: %w", s.collection, err)
		}
		for _, d := range docs {
			if !matchesDocPatterns(d.Doc.DocID, s.mapping.DocPatterns) {
				continue
			}
			byDocID[d.Doc.DocID] = append(byDocID[d.Doc.DocID], s.collection)
		}
	}

	var conflicts []types.ConflictInfo
	for docID, srcs := range byDocID {
		if len(srcs) <= 1 {
			continue
		}
		sort.Strings(srcs)
		// one conflict per additional occurrence beyond the first (§4.10 step 4)
		for i := 1; i < len(srcs); i++ {
			conflicts = append(conflicts, types.ConflictInfo{
				ConflictID:          fingerprint.CrossCollection(srcs[0], srcs[i], target, docID),
				Collection:          target,
				DocID:               docID,
				Type:                types.ConflictIDCollision,
				AutoResolvable:      false,
				SuggestedResolution: types.ResolutionNamespace,
				ResolutionOptions: []types.ResolutionStrategy{
					types.ResolutionNamespace, types.ResolutionKeepFirst, types.ResolutionKeepLast, types.ResolutionSkip,
				},
				SourceCollections: append([]string{}, srcs...),
			})
		}
	}
	return conflicts, nil
}

func matchesDocPatterns(docID string, patterns []string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, p := range patterns {
		if matched, _ := filepath.Match(p, docID); matched {
			return true
		}
	}
	return false
}

// ParseResolution parses a resolution string case-insensitively, with the
// first<->keep_first, last<->keep_last aliases (§4.10).
func ParseResolution(s string) types.ResolutionStrategy {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "first", "keep_first":
		return types.ResolutionKeepFirst
	case "last", "keep_last":
		return types.ResolutionKeepLast
	case "namespace":
		return types.ResolutionNamespace
	case "skip":
		return types.ResolutionSkip
	default:
		return types.ResolutionStrategy(s)
	}
}

// Executor applies resolved import mappings, writing through to the EDB
// target collection.
type Executor struct {
	EDB         edb.Store
	ChunkConfig types.ChunkerConfig
}

func NewExecutor(store edb.Store, cfg types.ChunkerConfig) *Executor {
	return &Executor{EDB: store, ChunkConfig: cfg}
}

// Execute runs the import: for each resolved source, write its documents
// into the target, applying per-doc collision resolution where the planner
// found one. resolutions maps conflict_id -> chosen strategy; defaultStrategy
// is used for any collision without an explicit entry.
func (x *Executor) Execute(ctx context.Context, filter []SourceMapping, plan *Plan, resolutions map[string]types.ResolutionStrategy, defaultStrategy types.ResolutionStrategy) (*Result, error) {
	planner := &Planner{EDB: x.EDB}
	resolved, err := planner.resolveWildcards(ctx, filter)
	if err != nil {
		return nil, err
	}

	// snapshot each target's pre-existing doc_ids once, up front, so writes
	// made during this run don't shift their own add-vs-update classification
	existingByTarget := make(map[string]map[string]string)
	for _, s := range resolved {
		target := s.mapping.TargetCollection
		if _, ok := existingByTarget[target]; ok {
			continue
		}
		hashes, err := planner.existingHashes(ctx, target)
		if err != nil {
			return nil, err
		}
		existingByTarget[target] = hashes
	}

	// index collisions by (target, doc_id) -> winning resolution, first source, last source
	type collisionInfo struct {
		resolution types.ResolutionStrategy
		firstSrc   string
		lastSrc    string
	}
	byTargetDoc := make(map[string]collisionInfo)
	for _, c := range plan.Conflicts {
		res, ok := resolutions[c.ConflictID]
		if !ok {
			res = defaultStrategy
			if res == "" {
				res = c.SuggestedResolution
			}
		}
		key := c.Collection + "\x00" + c.DocID
		first, last := c.SourceCollections[0], c.SourceCollections[len(c.SourceCollections)-1]
		if existing, ok := byTargetDoc[key]; ok {
			if existing.firstSrc < first {
				first = existing.firstSrc
			}
			if existing.lastSrc > last {
				last = existing.lastSrc
			}
		}
		byTargetDoc[key] = collisionInfo{resolution: res, firstSrc: first, lastSrc: last}
	}

	result := &Result{}
	byTargetAdd := make(map[string][]edb.StoredDoc)
	byTargetUpdate := make(map[string][]edb.StoredDoc)

	appendDoc := func(target string, doc types.Document) {
		stored := x.toStored(doc)
		if _, ok := existingByTarget[target][doc.DocID]; ok {
			byTargetUpdate[target] = append(byTargetUpdate[target], stored)
		} else {
			byTargetAdd[target] = append(byTargetAdd[target], stored)
		}
	}

	for _, s := range resolved {
		docs, err := x.EDB.Snapshot(ctx, s.collection)
		if err != nil {
			return nil, fmt.Errorf("snapshot %s: %w", s.collection, err)
		}
		for _, d := range docs {
			if !matchesDocPatterns(d.Doc.DocID, s.mapping.DocPatterns) {
				continue
			}
			target := s.mapping.TargetCollection
			key := target + "\x00" + d.Doc.DocID
			ci, isCollision := byTargetDoc[key]

			doc := d.Doc
			if !isCollision {
				appendDoc(target, doc)
				result.Written++
				continue
			}

			switch ci.resolution {
			case types.ResolutionNamespace:
				original := doc.DocID
				doc.DocID = s.collection + "__" + original
				doc.OriginalDocID = original
				doc.Metadata = doc.Metadata.Clone()
				doc.Metadata.Set("original_doc_id", original)
				doc.Metadata.Set("namespaced_from", s.collection)
				appendDoc(target, doc)
				result.Namespaced++
			case types.ResolutionKeepFirst:
				if s.collection == ci.firstSrc {
					appendDoc(target, doc)
					result.Written++
				} else {
					result.Skipped++
				}
			case types.ResolutionKeepLast:
				if s.collection == ci.lastSrc {
					appendDoc(target, doc)
					result.Written++
				} else {
					result.Skipped++
				}
			case types.ResolutionSkip:
				result.Skipped++
			default:
				result.Skipped++
			}
		}
	}

	targets := make(map[string]bool, len(byTargetAdd)+len(byTargetUpdate))
	for t := range byTargetAdd {
		targets[t] = true
	}
	for t := range byTargetUpdate {
		targets[t] = true
	}
	for target := range targets {
		if err := x.EDB.GetOrCreate(ctx, target); err != nil {
			return result, fmt.Errorf("get or create %s: %w", target, err)
		}
		if docs := byTargetAdd[target]; len(docs) > 0 {
			if err := x.EDB.Add(ctx, target, docs); err != nil {
				return result, fmt.Errorf("add to %s: %w", target, err)
			}
		}
		if docs := byTargetUpdate[target]; len(docs) > 0 {
			if err := x.EDB.Update(ctx, target, docs); err != nil {
				return result, fmt.Errorf("update %s: %w", target, err)
			}
		}
	}
	return result, nil
}

func (x *Executor) toStored(doc types.Document) edb.StoredDoc {
	canon := chunk.Canonicalize(doc.Content)
	doc.ContentHash = chunk.ContentHash(doc.Content)
	chunks := chunk.Split(doc.DocID, canon, x.ChunkConfig)
	return edb.StoredDoc{Doc: doc, Chunks: chunks}
}
