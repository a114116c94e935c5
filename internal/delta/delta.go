// Package delta implements the Delta Detector (C6): given an EDB snapshot
// and a VDB view at a commit, compute the (added, modified, deleted) sets
// by doc_id.
package delta

import "sort"

// DocState is the minimal per-document state the detector needs: its
// content hash. Ties on hash equality are a no-op (§4.6).
type DocState struct {
	DocID       string
	ContentHash string
}

// Snapshot maps doc_id to its current content hash in one store.
type Snapshot map[string]string

// Result holds the three disjoint sets, each sorted by doc_id for
// deterministic downstream application order.
type Result struct {
	Added    []string
	Modified []string
	Deleted  []string
}

// Compute returns Added (in vdb, not in edb), Modified (in both, differing
// hash), Deleted (in edb, not in vdb). deletionPending is the set of doc_ids
// the Deletion Tracker still has pending for this branch — it is unioned
// into Deleted even if the EDB copy was already removed, since a
// reconciliation interrupted after the EDB delete but before MarkCommitted
// must still be treated as "needs delete" until observed committed.
func Compute(edb, vdb Snapshot, deletionPending map[string]bool) Result {
	var res Result
	seen := make(map[string]bool, len(vdb))

	for docID, vdbHash := range vdb {
		seen[docID] = true
		edbHash, inEDB := edb[docID]
		if !inEDB {
			res.Added = append(res.Added, docID)
			continue
		}
		if edbHash != vdbHash {
			res.Modified = append(res.Modified, docID)
		}
		// equal hash => no-op
	}

	for docID := range edb {
		if !seen[docID] {
			res.Deleted = append(res.Deleted, docID)
		}
	}
	for docID := range deletionPending {
		if !seen[docID] {
			res.Deleted = append(res.Deleted, docID)
		}
	}

	res.Added = dedupSorted(res.Added)
	res.Modified = dedupSorted(res.Modified)
	res.Deleted = dedupSorted(res.Deleted)
	return res
}

// IsEmpty reports whether the delta contains no work at all — the
// idempotence invariant (§8 property 1 and 6) expects this after a
// successful FullSync followed immediately by another FullSync.
func (r Result) IsEmpty() bool {
	return len(r.Added) == 0 && len(r.Modified) == 0 && len(r.Deleted) == 0
}

func dedupSorted(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
