package domain

import (
	"fmt"
	"time"
)

// MaxDocumentSize is the maximum raw upload size in bytes.
const MaxDocumentSize = 10 << 20 // 10MB

// Document is the summary of one ingested document. Identity is the SHA-256
// content hash, stable across re-uploads of identical bytes regardless of
// filename. Immutable once stored except for metadata edits; deleting a
// document cascades to all its chunks.
type Document struct {
	Hash       string
	Filename   string
	Type       DocType
	UploadedAt time.Time
	SizeBytes  int64
	ChunkCount int
	Metadata   map[string]string
}

// Validate checks the summary fields before any storage I/O.
func (d *Document) Validate() error {
	if d.Hash == "" {
		return fmt.Errorf("%w: document hash is required", ErrValidation)
	}
	if d.Filename == "" {
		return fmt.Errorf("%w: filename is required", ErrValidation)
	}
	if _, err := ParseDocType(string(d.Type)); err != nil {
		return err
	}
	if d.Type == "" {
		return fmt.Errorf("%w: doc_type is required", ErrValidation)
	}
	return nil
}

// Chunk is a contiguous slice of a document's extracted text, the unit of
// embedding and retrieval. Index gives the stable ordering within the owning
// document; Start/End are rune offsets into the source text, so the overlap
// between neighbouring chunks can be reconstructed from offsets rather than
// from the chunk strings.
type Chunk struct {
	DocHash string
	Index   int
	Content string
	Start   int
	End     int
	Vector  []float32
}

// ChunkMeta is the denormalized metadata stored alongside every vector record
// so search can filter without a join.
type ChunkMeta struct {
	DocHash    string
	DocType    DocType
	Filename   string
	ChunkIndex int
}

// ScoredChunk is a single retrieval hit: chunk text, cosine similarity score
// and the denormalized metadata of the owning document.
type ScoredChunk struct {
	Meta    ChunkMeta
	Content string
	Score   float64
}

// CorpusInfo aggregates the state of the corpus for status reporting.
type CorpusInfo struct {
	TotalDocuments int
	TotalChunks    int
	ByType         map[DocType]int
}
