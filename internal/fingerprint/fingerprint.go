// Package fingerprint computes the stable conflict identifiers used by the
// Conflict Analyzer (C8) and the Import Planner (C10): a deterministic
// 12-hex-char digest over a typed, sorted tuple, so a conflict's id is the
// same whether it's observed at preview or execute time, and the same
// regardless of which side of a pair of collections is seen first.
// Grounded on the teacher's own content-addressed id idiom
// (internal/idgen/hash.go: sha256 over a joined content string), adapted
// here to truncated hex instead of base36 since the spec fixes the format
// at 12 hex characters.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

const digestLen = 6 // 6 bytes = 12 hex chars

func digest(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "_")))
	return hex.EncodeToString(sum[:digestLen])
}

// Merge computes a merge conflict's conflict_id: stable across preview and
// execute for the same (collection, doc_id, target_branch, source_branch)
// tuple.
func Merge(collection, docID, targetBranch, sourceBranch string) string {
	sorted := []string{collection, docID, targetBranch, sourceBranch}
	sort.Strings(sorted)
	return digest(append([]string{"MERGE"}, sorted...)...)
}

// CrossCollection computes an IdCollision conflict's id: order-independent
// in the pair of source collections, so xc_id(A,B,t,d) == xc_id(B,A,t,d).
func CrossCollection(srcA, srcB, target, docID string) string {
	sources := []string{srcA, srcB}
	sort.Strings(sources)
	return "xc_" + digest("CROSS", sources[0], sources[1], target, docID)
}
