// Package chunk implements the Content Hasher & Chunker (C3): canonical
// content form, content hashing, and deterministic chunk boundaries. Pure
// functions only — no time, no rng, no locale, so the same (content,
// config) always yields the same hash and the same chunk ids.
package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/steveyegge/syncbridge/internal/types"
)

// Canonicalize normalizes line endings to LF. No further trimming is
// performed — the spec deliberately excludes it (§9 open questions) so that
// whitespace-sensitive content hashes the same way on every platform
// without also silently altering meaningful leading/trailing whitespace.
func Canonicalize(content []byte) []byte {
	s := string(content)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return []byte(s)
}

// ContentHash returns the SHA-256 hex digest of the canonicalized content.
func ContentHash(content []byte) string {
	sum := sha256.Sum256(Canonicalize(content))
	return hex.EncodeToString(sum[:])
}

// Split deterministically splits canonical content into chunks of cfg.Size
// runes with cfg.Overlap runes of back-overlap between consecutive chunks.
// Regenerating chunks for the same (content, cfg) always yields identical
// chunk ids, since the id is derived only from docID and chunk index.
func Split(docID string, canonicalContent []byte, cfg types.ChunkerConfig) []types.Chunk {
	text := []rune(string(canonicalContent))
	if len(text) == 0 {
		return nil
	}
	size := cfg.Size
	if size <= 0 {
		size = types.DefaultChunkerConfig.Size
	}
	overlap := cfg.Overlap
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	var chunks []types.Chunk
	start := 0
	index := 0
	for start < len(text) {
		end := start + size
		if end > len(text) {
			end = len(text)
		}
		chunks = append(chunks, types.Chunk{
			DocID:     docID,
			ChunkID:   ChunkID(docID, index),
			Index:     index,
			Text:      string(text[start:end]),
			StartByte: start,
			EndByte:   end,
		})
		index++
		if end == len(text) {
			break
		}
		start = end - overlap
		if start < 0 {
			start = 0
		}
	}
	return chunks
}

// ChunkID returns the deterministic id "<docID>_chunk_<index>".
func ChunkID(docID string, index int) string {
	return fmt.Sprintf("%s_chunk_%d", docID, index)
}
