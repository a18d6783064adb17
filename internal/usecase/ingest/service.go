// Package ingest turns raw document uploads into embedded, indexed chunks.
package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/procurekit/policyrag/internal/domain"
	"github.com/procurekit/policyrag/internal/metrics"
	"github.com/procurekit/policyrag/internal/splitter"
)

// Service runs the ingestion pipeline: extract, categorize, chunk, embed,
// index. Each document is stored atomically; a failure at any stage leaves
// the corpus untouched.
type Service struct {
	store        Store
	embedder     Embedder
	extractor    Extractor
	chunkSize    int
	chunkOverlap int
	logger       *zap.Logger
}

// New creates an ingestion service.
func New(store Store, embedder Embedder, extractor Extractor, chunkSize, chunkOverlap int, logger *zap.Logger) *Service {
	return &Service{
		store:        store,
		embedder:     embedder,
		extractor:    extractor,
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		logger:       logger,
	}
}

// Request describes one document upload.
type Request struct {
	Filename string
	Data     []byte
	MIMEType string
	DocType  string            // empty means auto-categorize
	Metadata map[string]string
	Replace  bool // delete an existing document with the same hash first
}

// Ingest runs the full pipeline for one upload and returns the stored
// document summary. A re-upload of identical bytes fails with
// ErrDuplicateDocument unless Replace is set.
func (s *Service) Ingest(ctx context.Context, req Request) (domain.Document, error) {
	if err := validateRequest(req); err != nil {
		return domain.Document{}, domain.NewStageError(domain.StageReceived, err)
	}

	hash := domain.Identify(req.Data)

	exists, err := s.store.Exists(ctx, hash)
	if err != nil {
		return domain.Document{}, domain.NewStageError(domain.StageReceived, err)
	}
	if exists && !req.Replace {
		metrics.DocumentsIngestedTotal.WithLabelValues("unknown", "duplicate").Inc()
		return domain.Document{}, domain.NewStageError(domain.StageReceived, domain.NewDuplicateDocument(hash))
	}
	// Replacement is deferred until the new version is fully embedded, so a
	// failure in any later stage leaves the prior version intact.
	replacing := exists

	text, err := s.extractor.Extract(ctx, req.Data, req.MIMEType)
	if err != nil {
		metrics.DocumentsIngestedTotal.WithLabelValues("unknown", "error").Inc()
		return domain.Document{}, domain.NewStageError(domain.StageExtracting, err)
	}

	docType, err := s.resolveDocType(req, text)
	if err != nil {
		return domain.Document{}, domain.NewStageError(domain.StageReceived, err)
	}

	// A document with no extractable text is accepted but not indexed: the
	// returned summary has zero chunks and nothing is stored.
	if strings.TrimSpace(text) == "" {
		s.logger.Warn("document has no extractable text, skipping indexing",
			zap.String("filename", req.Filename),
			zap.String("hash", hash),
		)
		metrics.DocumentsIngestedTotal.WithLabelValues(string(docType), "empty").Inc()
		return domain.Document{
			Hash:       hash,
			Filename:   req.Filename,
			Type:       docType,
			UploadedAt: time.Now().UTC(),
			SizeBytes:  int64(len(req.Data)),
		}, nil
	}

	pieces, err := splitter.Split(text, s.chunkSize, s.chunkOverlap)
	if err != nil {
		metrics.DocumentsIngestedTotal.WithLabelValues(string(docType), "error").Inc()
		return domain.Document{}, domain.NewStageError(domain.StageChunking, err)
	}

	texts := make([]string, len(pieces))
	for i, p := range pieces {
		texts[i] = p.Content
	}

	embRes, err := s.embedder.BatchEmbed(ctx, texts)
	if err != nil {
		metrics.DocumentsIngestedTotal.WithLabelValues(string(docType), "error").Inc()
		return domain.Document{}, domain.NewStageError(domain.StageEmbedding, err)
	}
	if len(embRes.Embeddings) != len(pieces) {
		metrics.DocumentsIngestedTotal.WithLabelValues(string(docType), "error").Inc()
		return domain.Document{}, domain.NewStageError(domain.StageEmbedding,
			fmt.Errorf("%w: got %d embeddings for %d chunks",
				domain.ErrExternalService, len(embRes.Embeddings), len(pieces)))
	}

	chunks := make([]domain.Chunk, len(pieces))
	for i, p := range pieces {
		chunks[i] = domain.Chunk{
			DocHash: hash,
			Index:   i,
			Content: p.Content,
			Start:   p.Start,
			End:     p.End,
			Vector:  embRes.Embeddings[i],
		}
	}

	doc := domain.Document{
		Hash:       hash,
		Filename:   req.Filename,
		Type:       docType,
		UploadedAt: time.Now().UTC(),
		SizeBytes:  int64(len(req.Data)),
		ChunkCount: len(chunks),
		Metadata:   req.Metadata,
	}

	if replacing {
		if _, err := s.store.Delete(ctx, hash); err != nil {
			metrics.DocumentsIngestedTotal.WithLabelValues(string(docType), "error").Inc()
			return domain.Document{}, domain.NewStageError(domain.StageIndexing, err)
		}
		s.logger.Info("replacing existing document", zap.String("hash", hash))
	}

	if err := s.store.Add(ctx, doc, chunks); err != nil {
		metrics.DocumentsIngestedTotal.WithLabelValues(string(docType), "error").Inc()
		return domain.Document{}, domain.NewStageError(domain.StageIndexing, err)
	}

	metrics.DocumentsIngestedTotal.WithLabelValues(string(docType), "success").Inc()
	metrics.ChunksIndexedTotal.Add(float64(len(chunks)))

	s.logger.Info("document indexed",
		zap.String("stage", string(domain.StageIndexed)),
		zap.String("hash", hash),
		zap.String("filename", req.Filename),
		zap.String("doc_type", string(docType)),
		zap.Int("chunks", len(chunks)),
		zap.Int("embedding_tokens", embRes.TotalTokens),
	)

	return doc, nil
}

// Delete removes a document and all its chunks. Returns the number of chunks
// removed.
func (s *Service) Delete(ctx context.Context, hash string) (int, error) {
	if hash == "" {
		return 0, fmt.Errorf("%w: document hash is required", domain.ErrValidation)
	}
	n, err := s.store.Delete(ctx, hash)
	if err != nil {
		return 0, fmt.Errorf("delete document: %w", err)
	}
	s.logger.Info("document deleted", zap.String("hash", hash), zap.Int("chunks", n))
	return n, nil
}

// List returns all document summaries in upload order.
func (s *Service) List(ctx context.Context) ([]domain.Document, error) {
	docs, err := s.store.ListDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}

// UpdateMetadata replaces the metadata map of an existing document.
func (s *Service) UpdateMetadata(ctx context.Context, hash string, metadata map[string]string) error {
	if hash == "" {
		return fmt.Errorf("%w: document hash is required", domain.ErrValidation)
	}
	if err := s.store.UpdateMetadata(ctx, hash, metadata); err != nil {
		return fmt.Errorf("update metadata: %w", err)
	}
	return nil
}

// CorpusInfo reports aggregate corpus state.
func (s *Service) CorpusInfo(ctx context.Context) (domain.CorpusInfo, error) {
	info, err := s.store.Info(ctx)
	if err != nil {
		return domain.CorpusInfo{}, fmt.Errorf("corpus info: %w", err)
	}
	return info, nil
}

func (s *Service) resolveDocType(req Request, text string) (domain.DocType, error) {
	if req.DocType == "" {
		return domain.CategorizeDocument(req.Filename, text), nil
	}
	return domain.ParseDocType(req.DocType)
}

func validateRequest(req Request) error {
	if req.Filename == "" {
		return fmt.Errorf("%w: filename is required", domain.ErrValidation)
	}
	if len(req.Data) == 0 {
		return fmt.Errorf("%w: document body is empty", domain.ErrValidation)
	}
	if len(req.Data) > domain.MaxDocumentSize {
		return fmt.Errorf("%w: document of %d bytes exceeds the %d byte limit",
			domain.ErrValidation, len(req.Data), domain.MaxDocumentSize)
	}
	return nil
}
