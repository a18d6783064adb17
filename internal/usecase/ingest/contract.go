package ingest

import (
	"context"

	"github.com/procurekit/policyrag/internal/domain"
)

// Store defines the vector store contract for ingestion.
type Store interface {
	Add(ctx context.Context, doc domain.Document, chunks []domain.Chunk) error
	Delete(ctx context.Context, hash string) (int, error)
	Exists(ctx context.Context, hash string) (bool, error)
	ListDocuments(ctx context.Context) ([]domain.Document, error)
	UpdateMetadata(ctx context.Context, hash string, metadata map[string]string) error
	Info(ctx context.Context) (domain.CorpusInfo, error)
}

// Embedder vectorizes chunk texts in batches.
type Embedder interface {
	BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error)
}

// Extractor converts raw uploads to plain text.
type Extractor interface {
	Extract(ctx context.Context, data []byte, mimeType string) (string, error)
}
