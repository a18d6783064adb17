package retrieval

import (
	"context"

	"github.com/procurekit/policyrag/internal/domain"
)

// Searcher defines the vector store contract for retrieval.
type Searcher interface {
	Search(ctx context.Context, vector []float32, topK int, docType domain.DocType) ([]domain.ScoredChunk, error)
}

// Embedder vectorizes the query text.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}
