// Package splitter cuts extracted document text into overlapping chunks.
// Splitting is deterministic: the same text and parameters always produce the
// same chunks, independent of processing order.
package splitter

import (
	"fmt"
	"unicode"

	"github.com/procurekit/policyrag/internal/domain"
)

// Chunk is one slice of the source text. Start and End are rune offsets into
// the source; Content is the materialized slice. Every chunk after the first
// begins exactly `overlap` runes before its predecessor's end, reconstructed
// from offsets rather than from the predecessor's string.
type Chunk struct {
	Content string
	Start   int
	End     int
}

// Split cuts text into chunks of at most chunkSize runes with the given
// overlap. Boundaries prefer a sentence break, then any whitespace, within a
// tolerance window before the target size; when no such boundary exists the
// chunk is hard-split at chunkSize. Requires 0 <= overlap < chunkSize.
// Empty text yields zero chunks; text within chunkSize yields exactly one.
func Split(text string, chunkSize, overlap int) ([]Chunk, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk_size must be positive, got %d", domain.ErrValidation, chunkSize)
	}
	if overlap < 0 || overlap >= chunkSize {
		return nil, fmt.Errorf(
			"%w: overlap must satisfy 0 <= overlap < chunk_size, got overlap=%d chunk_size=%d",
			domain.ErrValidation, overlap, chunkSize,
		)
	}

	runes := []rune(text)
	if len(runes) == 0 {
		return nil, nil
	}
	if len(runes) <= chunkSize {
		return []Chunk{{Content: text, Start: 0, End: len(runes)}}, nil
	}

	tolerance := chunkSize / 5

	var chunks []Chunk
	start := 0
	for {
		end := start + chunkSize
		if end >= len(runes) {
			chunks = append(chunks, makeChunk(runes, start, len(runes)))
			break
		}

		// The window floor must stay past start+overlap so every iteration
		// advances even with a large overlap.
		floor := end - tolerance
		if floor <= start+overlap {
			floor = start + overlap + 1
		}
		end = adjustBoundary(runes, floor, end)

		chunks = append(chunks, makeChunk(runes, start, end))
		start = end - overlap
	}

	return chunks, nil
}

func makeChunk(runes []rune, start, end int) Chunk {
	return Chunk{Content: string(runes[start:end]), Start: start, End: end}
}

// adjustBoundary scans backward from end (exclusive) to floor (inclusive) for
// the best split point: first a sentence break, then any whitespace. Returns
// the rune index one past the boundary, or end unchanged for a hard split.
func adjustBoundary(runes []rune, floor, end int) int {
	wsAt := -1
	for i := end - 1; i >= floor; i-- {
		if isSentenceBreak(runes[i]) {
			return i + 1
		}
		if wsAt < 0 && unicode.IsSpace(runes[i]) {
			wsAt = i
		}
	}
	if wsAt >= 0 {
		return wsAt + 1
	}
	return end
}

func isSentenceBreak(r rune) bool {
	switch r {
	case '.', '!', '?', '\n':
		return true
	}
	return false
}
