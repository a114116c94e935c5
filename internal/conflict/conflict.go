// Package conflict implements the Conflict Analyzer (C8): given a VDB
// in-conflict state, enumerate conflicted documents and compute detailed
// per-field conflicts with a stable id that survives from preview through
// execute.
package conflict

import (
	"context"
	"fmt"
	"sort"

	"github.com/steveyegge/syncbridge/internal/fingerprint"
	"github.com/steveyegge/syncbridge/internal/types"
	"github.com/steveyegge/syncbridge/internal/vdb"
)

// Analyzer computes ConflictInfo for every document a merge attempt left
// in-conflict.
type Analyzer struct {
	Driver vdb.Driver
}

func NewAnalyzer(d vdb.Driver) *Analyzer {
	return &Analyzer{Driver: d}
}

// Analyze enumerates conflicted documents between source and target and
// returns one ConflictInfo per document, sorted by (collection, doc_id) for
// deterministic output.
func (a *Analyzer) Analyze(ctx context.Context, sourceBranch, targetBranch string) ([]types.ConflictInfo, error) {
	docs, err := a.Driver.ConflictedDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("list conflicted documents: %w", err)
	}

	var out []types.ConflictInfo
	for _, d := range docs {
		snap, err := a.Driver.ConflictSnapshot(ctx, d.Collection, d.DocID)
		if err != nil {
			return nil, fmt.Errorf("snapshot conflict %s/%s: %w", d.Collection, d.DocID, err)
		}
		info := Build(d.Collection, d.DocID, targetBranch, sourceBranch, snap.Base, snap.Ours, snap.Theirs)
		out = append(out, info)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Collection != out[j].Collection {
			return out[i].Collection < out[j].Collection
		}
		return out[i].DocID < out[j].DocID
	})
	return out, nil
}

// Build computes the field-level conflicts and suggested resolution for one
// document given its base/ours/theirs field maps. Exported separately from
// Analyze so it can be unit tested without a VDB driver.
func Build(collection, docID, targetBranch, sourceBranch string, base, ours, theirs map[string]any) types.ConflictInfo {
	fields := unionKeys(base, ours, theirs)

	var fieldConflicts []types.FieldConflict
	for _, f := range fields {
		bv, ov, tv := base[f], ours[f], theirs[f]
		if eq(ov, tv) {
			continue // both sides agree; not a conflict
		}
		oursChanged := !eq(bv, ov)
		theirsChanged := !eq(bv, tv)
		fieldConflicts = append(fieldConflicts, types.FieldConflict{
			Field:        f,
			BaseValue:    bv,
			OurValue:     ov,
			TheirValue:   tv,
			CanAutoMerge: oursChanged != theirsChanged, // exactly one side changed
		})
	}

	autoMergeable := len(fieldConflicts) > 0
	for _, fc := range fieldConflicts {
		if !fc.CanAutoMerge {
			autoMergeable = false
			break
		}
	}

	suggested := suggestResolution(fieldConflicts, base, ours, theirs)

	return types.ConflictInfo{
		ConflictID:          fingerprint.Merge(collection, docID, targetBranch, sourceBranch),
		Collection:          collection,
		DocID:               docID,
		Type:                types.ConflictFieldLevel,
		AutoResolvable:      autoMergeable,
		FieldConflicts:      fieldConflicts,
		BaseValues:          base,
		OurValues:           ours,
		TheirValues:         theirs,
		SuggestedResolution: suggested,
		ResolutionOptions: []types.ResolutionStrategy{
			types.ResolutionOurs, types.ResolutionTheirs, types.ResolutionFieldMerge, types.ResolutionCustom,
		},
	}
}

// suggestResolution follows §4.8: theirs when ours is unchanged from base
// and only theirs diverged, ours in the symmetric case, field_merge when
// every field conflict is auto-mergeable, manual otherwise.
func suggestResolution(fieldConflicts []types.FieldConflict, base, ours, theirs map[string]any) types.ResolutionStrategy {
	if len(fieldConflicts) == 0 {
		return types.ResolutionFieldMerge
	}

	oursUnchanged := mapsEqual(base, ours)
	theirsUnchanged := mapsEqual(base, theirs)
	switch {
	case oursUnchanged && !theirsUnchanged:
		return types.ResolutionTheirs
	case theirsUnchanged && !oursUnchanged:
		return types.ResolutionOurs
	}

	for _, fc := range fieldConflicts {
		if !fc.CanAutoMerge {
			return "manual"
		}
	}
	return types.ResolutionFieldMerge
}

func unionKeys(maps ...map[string]any) []string {
	seen := make(map[string]bool)
	var keys []string
	for _, m := range maps {
		for k := range m {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	sort.Strings(keys)
	return keys
}

func eq(a, b any) bool {
	if a == nil && b == nil {
		return true
	}
	return fmt.Sprint(a) == fmt.Sprint(b) && (a == nil) == (b == nil)
}

func mapsEqual(a, b map[string]any) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if bv, ok := b[k]; !ok || !eq(v, bv) {
			return false
		}
	}
	return true
}
