package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/procurekit/policyrag/internal/domain"
)

// mockStore is an in-memory Store for pipeline tests.
type mockStore struct {
	docs      map[string]domain.Document
	chunks    map[string][]domain.Chunk
	addErr    error
	existsErr error
}

func newMockStore() *mockStore {
	return &mockStore{
		docs:   make(map[string]domain.Document),
		chunks: make(map[string][]domain.Chunk),
	}
}

func (m *mockStore) Add(_ context.Context, doc domain.Document, chunks []domain.Chunk) error {
	if m.addErr != nil {
		return m.addErr
	}
	if _, ok := m.docs[doc.Hash]; ok {
		return domain.NewDuplicateDocument(doc.Hash)
	}
	m.docs[doc.Hash] = doc
	m.chunks[doc.Hash] = chunks
	return nil
}

func (m *mockStore) Delete(_ context.Context, hash string) (int, error) {
	if _, ok := m.docs[hash]; !ok {
		return 0, domain.ErrDocumentNotFound
	}
	n := len(m.chunks[hash])
	delete(m.docs, hash)
	delete(m.chunks, hash)
	return n, nil
}

func (m *mockStore) Exists(_ context.Context, hash string) (bool, error) {
	if m.existsErr != nil {
		return false, m.existsErr
	}
	_, ok := m.docs[hash]
	return ok, nil
}

func (m *mockStore) ListDocuments(_ context.Context) ([]domain.Document, error) {
	var out []domain.Document
	for _, d := range m.docs {
		out = append(out, d)
	}
	return out, nil
}

func (m *mockStore) UpdateMetadata(_ context.Context, hash string, metadata map[string]string) error {
	doc, ok := m.docs[hash]
	if !ok {
		return domain.ErrDocumentNotFound
	}
	doc.Metadata = metadata
	m.docs[hash] = doc
	return nil
}

func (m *mockStore) Info(_ context.Context) (domain.CorpusInfo, error) {
	info := domain.CorpusInfo{ByType: make(map[domain.DocType]int)}
	for _, d := range m.docs {
		info.TotalDocuments++
		info.TotalChunks += len(m.chunks[d.Hash])
		info.ByType[d.Type]++
	}
	return info, nil
}

// mockEmbedder returns a fixed-dimension vector per text.
type mockEmbedder struct {
	calls int
	err   error
	short bool // return one embedding fewer than requested
}

func (m *mockEmbedder) BatchEmbed(_ context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	m.calls++
	if m.err != nil {
		return domain.BatchEmbeddingResult{}, m.err
	}
	n := len(texts)
	if m.short && n > 0 {
		n--
	}
	embeddings := make([][]float32, n)
	for i := range embeddings {
		embeddings[i] = []float32{1, 0, 0}
	}
	return domain.BatchEmbeddingResult{Embeddings: embeddings, TotalTokens: 5 * n}, nil
}

// mockExtractor passes the body through as UTF-8 text.
type mockExtractor struct {
	err error
}

func (m *mockExtractor) Extract(_ context.Context, data []byte, _ string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	return string(data), nil
}

func newTestService(store *mockStore, emb *mockEmbedder, ext *mockExtractor) *Service {
	return New(store, emb, ext, 800, 150, zap.NewNop())
}

func TestIngest_StoresDocumentAndChunks(t *testing.T) {
	store := newMockStore()
	svc := newTestService(store, &mockEmbedder{}, &mockExtractor{})

	data := []byte("This procurement policy requires all vendors to carry insurance.")
	doc, err := svc.Ingest(context.Background(), Request{
		Filename: "policy.txt",
		Data:     data,
		MIMEType: "text/plain",
	})
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}

	if doc.Hash != domain.Identify(data) {
		t.Errorf("hash mismatch: %s", doc.Hash)
	}
	if doc.Type != domain.DocTypePolicy {
		t.Errorf("expected auto-categorized type policy, got %s", doc.Type)
	}
	if doc.ChunkCount != 1 {
		t.Errorf("expected 1 chunk, got %d", doc.ChunkCount)
	}
	if len(store.chunks[doc.Hash]) != 1 {
		t.Errorf("expected 1 stored chunk, got %d", len(store.chunks[doc.Hash]))
	}
	if store.chunks[doc.Hash][0].Vector == nil {
		t.Error("stored chunk has no vector")
	}
}

func TestIngest_DuplicateRejected(t *testing.T) {
	store := newMockStore()
	svc := newTestService(store, &mockEmbedder{}, &mockExtractor{})

	data := []byte("identical policy content")
	req := Request{Filename: "a.txt", Data: data, MIMEType: "text/plain"}

	if _, err := svc.Ingest(context.Background(), req); err != nil {
		t.Fatalf("first ingest failed: %v", err)
	}

	// Same bytes under a different filename are still the same document.
	req.Filename = "b.txt"
	_, err := svc.Ingest(context.Background(), req)
	if !errors.Is(err, domain.ErrDuplicateDocument) {
		t.Fatalf("expected ErrDuplicateDocument, got %v", err)
	}

	var dup *domain.DuplicateDocumentError
	if !errors.As(err, &dup) || dup.Hash != domain.Identify(data) {
		t.Errorf("duplicate error does not carry the existing hash: %v", err)
	}
}

func TestIngest_ReplaceDeletesThenAdds(t *testing.T) {
	store := newMockStore()
	svc := newTestService(store, &mockEmbedder{}, &mockExtractor{})

	data := []byte("replaceable policy content")
	req := Request{Filename: "a.txt", Data: data, MIMEType: "text/plain"}

	if _, err := svc.Ingest(context.Background(), req); err != nil {
		t.Fatalf("first ingest failed: %v", err)
	}

	req.Replace = true
	req.Metadata = map[string]string{"rev": "2"}
	doc, err := svc.Ingest(context.Background(), req)
	if err != nil {
		t.Fatalf("replace ingest failed: %v", err)
	}
	if doc.Metadata["rev"] != "2" {
		t.Errorf("replacement metadata not stored: %v", doc.Metadata)
	}
	if len(store.docs) != 1 {
		t.Errorf("expected 1 document after replace, got %d", len(store.docs))
	}
}

func TestIngest_ReplaceKeepsOriginalOnFailure(t *testing.T) {
	store := newMockStore()
	embedder := &mockEmbedder{}
	extractor := &mockExtractor{}
	svc := newTestService(store, embedder, extractor)

	data := []byte("replaceable policy content")
	req := Request{Filename: "a.txt", Data: data, MIMEType: "text/plain"}

	doc, err := svc.Ingest(context.Background(), req)
	if err != nil {
		t.Fatalf("first ingest failed: %v", err)
	}
	originalChunks := len(store.chunks[doc.Hash])

	// Any stage failure after the duplicate check must leave the prior
	// version in place: the old document is only deleted once the new one
	// is fully embedded.
	embedder.err = domain.ErrExternalService
	req.Replace = true
	if _, err := svc.Ingest(context.Background(), req); !errors.Is(err, domain.ErrExternalService) {
		t.Fatalf("expected embedding failure, got %v", err)
	}

	if _, ok := store.docs[doc.Hash]; !ok {
		t.Fatal("original document was removed by a failed replacement")
	}
	if got := len(store.chunks[doc.Hash]); got != originalChunks {
		t.Errorf("original chunks: got %d, want %d", got, originalChunks)
	}

	extractor.err = domain.ErrExtraction
	embedder.err = nil
	if _, err := svc.Ingest(context.Background(), req); !errors.Is(err, domain.ErrExtraction) {
		t.Fatalf("expected extraction failure, got %v", err)
	}
	if _, ok := store.docs[doc.Hash]; !ok {
		t.Fatal("original document was removed by a failed extraction")
	}
}

func TestIngest_ValidatesRequest(t *testing.T) {
	svc := newTestService(newMockStore(), &mockEmbedder{}, &mockExtractor{})

	tests := []struct {
		name string
		req  Request
	}{
		{"missing filename", Request{Data: []byte("x")}},
		{"empty body", Request{Filename: "a.txt"}},
		{"oversized body", Request{Filename: "a.txt", Data: make([]byte, domain.MaxDocumentSize+1)}},
		{"unknown doc type", Request{Filename: "a.txt", Data: []byte("some text"), DocType: "invoice"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Ingest(context.Background(), tt.req)
			if !errors.Is(err, domain.ErrValidation) {
				t.Errorf("expected ErrValidation, got %v", err)
			}
			if stage := domain.FailedStage(err); stage != domain.StageReceived {
				t.Errorf("expected stage received, got %q", stage)
			}
		})
	}
}

func TestIngest_EmptyExtractedTextIsNoOp(t *testing.T) {
	store := newMockStore()
	svc := newTestService(store, &mockEmbedder{}, &mockExtractor{})

	doc, err := svc.Ingest(context.Background(), Request{
		Filename: "blank.txt",
		Data:     []byte("   \n\t  "),
		MIMEType: "text/plain",
	})
	if err != nil {
		t.Fatalf("expected no error for empty text, got %v", err)
	}
	if doc.ChunkCount != 0 {
		t.Errorf("expected zero chunks, got %d", doc.ChunkCount)
	}
	if len(store.docs) != 0 {
		t.Error("empty document must not be stored")
	}
}

func TestIngest_StageAttribution(t *testing.T) {
	t.Run("extraction failure", func(t *testing.T) {
		svc := newTestService(newMockStore(), &mockEmbedder{},
			&mockExtractor{err: domain.ErrExtraction})
		_, err := svc.Ingest(context.Background(), Request{
			Filename: "bad.pdf", Data: []byte("x"), MIMEType: "application/pdf",
		})
		if stage := domain.FailedStage(err); stage != domain.StageExtracting {
			t.Errorf("expected stage extracting, got %q", stage)
		}
	})

	t.Run("embedding failure", func(t *testing.T) {
		svc := newTestService(newMockStore(),
			&mockEmbedder{err: domain.ErrExternalService}, &mockExtractor{})
		_, err := svc.Ingest(context.Background(), Request{
			Filename: "a.txt", Data: []byte("some policy text"), MIMEType: "text/plain",
		})
		if stage := domain.FailedStage(err); stage != domain.StageEmbedding {
			t.Errorf("expected stage embedding, got %q", stage)
		}
		if !errors.Is(err, domain.ErrExternalService) {
			t.Errorf("expected ErrExternalService, got %v", err)
		}
	})

	t.Run("embedding count mismatch", func(t *testing.T) {
		svc := newTestService(newMockStore(), &mockEmbedder{short: true}, &mockExtractor{})
		_, err := svc.Ingest(context.Background(), Request{
			Filename: "a.txt", Data: []byte("some policy text"), MIMEType: "text/plain",
		})
		if stage := domain.FailedStage(err); stage != domain.StageEmbedding {
			t.Errorf("expected stage embedding, got %q", stage)
		}
	})

	t.Run("indexing failure", func(t *testing.T) {
		store := newMockStore()
		store.addErr = domain.ErrStorage
		svc := newTestService(store, &mockEmbedder{}, &mockExtractor{})
		_, err := svc.Ingest(context.Background(), Request{
			Filename: "a.txt", Data: []byte("some policy text"), MIMEType: "text/plain",
		})
		if stage := domain.FailedStage(err); stage != domain.StageIndexing {
			t.Errorf("expected stage indexing, got %q", stage)
		}
	})
}

func TestIngest_MultiChunkDocument(t *testing.T) {
	store := newMockStore()
	emb := &mockEmbedder{}
	svc := newTestService(store, emb, &mockExtractor{})

	// ~2000 runes forces multiple chunks at size 800 / overlap 150.
	data := []byte(strings.Repeat("All vendor contracts must include indemnification clauses. ", 35))
	doc, err := svc.Ingest(context.Background(), Request{
		Filename: "vendor-policy.txt",
		Data:     data,
		MIMEType: "text/plain",
	})
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}

	if doc.ChunkCount < 2 {
		t.Errorf("expected multiple chunks, got %d", doc.ChunkCount)
	}
	if emb.calls != 1 {
		t.Errorf("expected a single batch embed call, got %d", emb.calls)
	}
	for i, c := range store.chunks[doc.Hash] {
		if c.Index != i {
			t.Errorf("chunk %d has index %d", i, c.Index)
		}
		if c.DocHash != doc.Hash {
			t.Errorf("chunk %d has wrong doc hash", i)
		}
	}
}

func TestIngest_ExplicitDocType(t *testing.T) {
	store := newMockStore()
	svc := newTestService(store, &mockEmbedder{}, &mockExtractor{})

	doc, err := svc.Ingest(context.Background(), Request{
		Filename: "notes.txt",
		Data:     []byte("free-form text with no category keywords"),
		MIMEType: "text/plain",
		DocType:  "compliance",
	})
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if doc.Type != domain.DocTypeCompliance {
		t.Errorf("expected compliance, got %s", doc.Type)
	}
}

func TestDelete(t *testing.T) {
	store := newMockStore()
	svc := newTestService(store, &mockEmbedder{}, &mockExtractor{})

	doc, err := svc.Ingest(context.Background(), Request{
		Filename: "a.txt", Data: []byte("policy text"), MIMEType: "text/plain",
	})
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}

	n, err := svc.Delete(context.Background(), doc.Hash)
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 chunk removed, got %d", n)
	}

	if _, err := svc.Delete(context.Background(), doc.Hash); !errors.Is(err, domain.ErrDocumentNotFound) {
		t.Errorf("expected ErrDocumentNotFound, got %v", err)
	}

	if _, err := svc.Delete(context.Background(), ""); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation for empty hash, got %v", err)
	}
}

func TestCorpusInfo(t *testing.T) {
	store := newMockStore()
	svc := newTestService(store, &mockEmbedder{}, &mockExtractor{})

	uploads := []Request{
		{Filename: "a.txt", Data: []byte("procurement policy one"), MIMEType: "text/plain"},
		{Filename: "b.txt", Data: []byte("vendor supplier list"), MIMEType: "text/plain"},
	}
	for _, req := range uploads {
		if _, err := svc.Ingest(context.Background(), req); err != nil {
			t.Fatalf("Ingest %s failed: %v", req.Filename, err)
		}
	}

	info, err := svc.CorpusInfo(context.Background())
	if err != nil {
		t.Fatalf("CorpusInfo failed: %v", err)
	}
	if info.TotalDocuments != 2 {
		t.Errorf("expected 2 documents, got %d", info.TotalDocuments)
	}
	if info.ByType[domain.DocTypePolicy] != 1 || info.ByType[domain.DocTypeVendor] != 1 {
		t.Errorf("unexpected type breakdown: %v", info.ByType)
	}
}
