// Package sqlite implements the durable corpus store: one SQLite file holding
// every document's metadata and its ordered chunks with embedding vectors.
// Mutations are serialized and flushed synchronously, so a committed add or
// delete survives a process crash; readers only ever observe the corpus
// before or after a mutation, never mid-flight.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/procurekit/policyrag/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS corpus_meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS documents (
	hash        TEXT PRIMARY KEY,
	filename    TEXT NOT NULL,
	doc_type    TEXT NOT NULL,
	uploaded_at INTEGER NOT NULL,
	size_bytes  INTEGER NOT NULL,
	chunk_count INTEGER NOT NULL,
	metadata    TEXT NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS chunks (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	doc_hash     TEXT NOT NULL REFERENCES documents(hash) ON DELETE CASCADE,
	idx          INTEGER NOT NULL,
	content      TEXT NOT NULL,
	start_offset INTEGER NOT NULL,
	end_offset   INTEGER NOT NULL,
	embedding    BLOB NOT NULL,
	UNIQUE (doc_hash, idx)
);

CREATE INDEX IF NOT EXISTS idx_chunks_doc_hash ON chunks(doc_hash);
`

const dimKey = "embedding_dim"

// Store is the SQLite-backed corpus. The embedding dimension is pinned at
// creation and validated on every reopen and every write.
type Store struct {
	db   *sql.DB
	path string
	dim  int

	// Serializes add/delete against each other. Readers go through snapshot
	// transactions and need no lock.
	mu sync.Mutex
}

// Open creates or opens the corpus file at path. dim must match the embedding
// provider's output dimensionality; reopening a corpus created with a
// different dimension fails rather than silently mixing vector spaces.
func Open(path string, dim int) (*Store, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("%w: embedding dimension must be positive, got %d", domain.ErrValidation, dim)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("%w: create data directory: %v", domain.ErrStorage, err)
	}

	// synchronous=FULL: a committed mutation is on disk before the call
	// returns. Document volume is modest; durability wins over throughput.
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open corpus: %v", domain.ErrStorage, err)
	}

	s := &Store{db: db, path: path, dim: dim}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("%w: init schema: %v", domain.ErrStorage, err)
	}

	var stored string
	err := s.db.QueryRow(`SELECT value FROM corpus_meta WHERE key = ?`, dimKey).Scan(&stored)
	switch {
	case err == sql.ErrNoRows:
		if _, err := s.db.Exec(
			`INSERT INTO corpus_meta (key, value) VALUES (?, ?)`, dimKey, strconv.Itoa(s.dim),
		); err != nil {
			return fmt.Errorf("%w: pin embedding dimension: %v", domain.ErrStorage, err)
		}
	case err != nil:
		return fmt.Errorf("%w: read corpus meta: %v", domain.ErrStorage, err)
	default:
		pinned, convErr := strconv.Atoi(stored)
		if convErr != nil {
			return fmt.Errorf("%w: corrupt corpus meta %q: %v", domain.ErrStorage, stored, convErr)
		}
		if pinned != s.dim {
			return fmt.Errorf(
				"%w: corpus was created with dimension %d, configured %d",
				domain.ErrDimensionMismatch, pinned, s.dim,
			)
		}
	}
	return nil
}

// Close closes the corpus file.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("%w: close corpus: %v", domain.ErrStorage, err)
	}
	return nil
}

// Path returns the corpus file path.
func (s *Store) Path() string { return s.path }

// Ping checks that the corpus file is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: ping corpus: %v", domain.ErrStorage, err)
	}
	return nil
}

// Add stores a document and all of its chunks in one transaction. Fails with
// ErrDuplicateDocument when the hash is already present and with
// ErrDimensionMismatch when any vector's length differs from the pinned
// dimension. Nothing is written on failure.
func (s *Store) Add(ctx context.Context, doc domain.Document, chunks []domain.Chunk) error {
	if err := doc.Validate(); err != nil {
		return err
	}
	for i, c := range chunks {
		if len(c.Vector) != s.dim {
			return fmt.Errorf(
				"%w: chunk %d has %d dims, corpus expects %d",
				domain.ErrDimensionMismatch, i, len(c.Vector), s.dim,
			)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin add: %v", domain.ErrStorage, err)
	}
	defer tx.Rollback() //nolint:errcheck

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM documents WHERE hash = ?`, doc.Hash).Scan(&exists)
	if err != nil {
		return fmt.Errorf("%w: check duplicate: %v", domain.ErrStorage, err)
	}
	if exists > 0 {
		return domain.NewDuplicateDocument(doc.Hash)
	}

	metadataJSON, err := json.Marshal(metadataOrEmpty(doc.Metadata))
	if err != nil {
		return fmt.Errorf("%w: marshal metadata: %v", domain.ErrStorage, err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO documents (hash, filename, doc_type, uploaded_at, size_bytes, chunk_count, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		doc.Hash, doc.Filename, string(doc.Type), doc.UploadedAt.UnixMilli(),
		doc.SizeBytes, len(chunks), string(metadataJSON),
	); err != nil {
		return fmt.Errorf("%w: insert document: %v", domain.ErrStorage, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (doc_hash, idx, content, start_offset, end_offset, embedding)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("%w: prepare chunk insert: %v", domain.ErrStorage, err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx,
			doc.Hash, c.Index, c.Content, c.Start, c.End, vectorToBytes(c.Vector),
		); err != nil {
			return fmt.Errorf("%w: insert chunk %d: %v", domain.ErrStorage, c.Index, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit add: %v", domain.ErrStorage, err)
	}
	return nil
}

// Search ranks all chunks (optionally restricted to one doc type) by cosine
// similarity against the query vector and returns at most topK hits, scores
// strictly non-increasing, ties broken by insertion order. An empty corpus
// yields an empty result and nil error; callers distinguish "no matches" from
// ErrStorage.
func (s *Store) Search(
	ctx context.Context, vector []float32, topK int, docType domain.DocType,
) ([]domain.ScoredChunk, error) {
	if len(vector) != s.dim {
		return nil, fmt.Errorf(
			"%w: query vector has %d dims, corpus expects %d",
			domain.ErrDimensionMismatch, len(vector), s.dim,
		)
	}
	if topK <= 0 {
		return nil, nil
	}

	query := `
		SELECT c.doc_hash, c.idx, c.content, c.embedding, d.doc_type, d.filename
		FROM chunks c
		JOIN documents d ON d.hash = c.doc_hash`
	args := []any{}
	if docType != "" {
		query += ` WHERE d.doc_type = ?`
		args = append(args, string(docType))
	}
	query += ` ORDER BY c.id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: search query: %v", domain.ErrStorage, err)
	}
	defer rows.Close()

	var hits []domain.ScoredChunk
	for rows.Next() {
		var (
			hit  domain.ScoredChunk
			blob []byte
			dt   string
		)
		if err := rows.Scan(
			&hit.Meta.DocHash, &hit.Meta.ChunkIndex, &hit.Content, &blob, &dt, &hit.Meta.Filename,
		); err != nil {
			return nil, fmt.Errorf("%w: scan chunk: %v", domain.ErrStorage, err)
		}
		hit.Meta.DocType = domain.DocType(dt)
		hit.Score = cosineSimilarity(vector, bytesToVector(blob))
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate chunks: %v", domain.ErrStorage, err)
	}

	// Stable sort keeps insertion order for equal scores, so results are
	// deterministic across calls.
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

// Delete removes a document and all of its chunks atomically, returning the
// number of chunks removed. ErrDocumentNotFound when the hash is unknown.
func (s *Store) Delete(ctx context.Context, hash string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: begin delete: %v", domain.ErrStorage, err)
	}
	defer tx.Rollback() //nolint:errcheck

	var chunkCount int
	err = tx.QueryRowContext(ctx, `SELECT chunk_count FROM documents WHERE hash = ?`, hash).Scan(&chunkCount)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("%w: hash %s", domain.ErrDocumentNotFound, hash)
	}
	if err != nil {
		return 0, fmt.Errorf("%w: lookup document: %v", domain.ErrStorage, err)
	}

	// Chunks cascade via the foreign key.
	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE hash = ?`, hash); err != nil {
		return 0, fmt.Errorf("%w: delete document: %v", domain.ErrStorage, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: commit delete: %v", domain.ErrStorage, err)
	}
	return chunkCount, nil
}

// Exists reports whether a document with the given content hash is stored.
func (s *Store) Exists(ctx context.Context, hash string) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM documents WHERE hash = ?`, hash,
	).Scan(&n); err != nil {
		return false, fmt.Errorf("%w: check document: %v", domain.ErrStorage, err)
	}
	return n > 0, nil
}

// ListDocuments returns one summary per stored document in insertion order.
func (s *Store) ListDocuments(ctx context.Context) ([]domain.Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT hash, filename, doc_type, uploaded_at, size_bytes, chunk_count, metadata
		FROM documents ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("%w: list documents: %v", domain.ErrStorage, err)
	}
	defer rows.Close()

	var docs []domain.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate documents: %v", domain.ErrStorage, err)
	}
	return docs, nil
}

// UpdateMetadata replaces a document's free-form metadata map. The document
// itself stays immutable.
func (s *Store) UpdateMetadata(ctx context.Context, hash string, metadata map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	metadataJSON, err := json.Marshal(metadataOrEmpty(metadata))
	if err != nil {
		return fmt.Errorf("%w: marshal metadata: %v", domain.ErrStorage, err)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET metadata = ? WHERE hash = ?`, string(metadataJSON), hash)
	if err != nil {
		return fmt.Errorf("%w: update metadata: %v", domain.ErrStorage, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: update metadata: %v", domain.ErrStorage, err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: hash %s", domain.ErrDocumentNotFound, hash)
	}
	return nil
}

// Info aggregates corpus totals for status reporting.
func (s *Store) Info(ctx context.Context) (domain.CorpusInfo, error) {
	info := domain.CorpusInfo{ByType: make(map[domain.DocType]int)}

	rows, err := s.db.QueryContext(ctx,
		`SELECT doc_type, COUNT(1), COALESCE(SUM(chunk_count), 0) FROM documents GROUP BY doc_type`)
	if err != nil {
		return domain.CorpusInfo{}, fmt.Errorf("%w: corpus info: %v", domain.ErrStorage, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			dt     string
			docs   int
			chunks int
		)
		if err := rows.Scan(&dt, &docs, &chunks); err != nil {
			return domain.CorpusInfo{}, fmt.Errorf("%w: corpus info: %v", domain.ErrStorage, err)
		}
		info.ByType[domain.DocType(dt)] = docs
		info.TotalDocuments += docs
		info.TotalChunks += chunks
	}
	if err := rows.Err(); err != nil {
		return domain.CorpusInfo{}, fmt.Errorf("%w: corpus info: %v", domain.ErrStorage, err)
	}
	return info, nil
}

func scanDocument(rows *sql.Rows) (domain.Document, error) {
	var (
		doc          domain.Document
		dt           string
		uploadedAt   int64
		metadataJSON string
	)
	if err := rows.Scan(
		&doc.Hash, &doc.Filename, &dt, &uploadedAt, &doc.SizeBytes, &doc.ChunkCount, &metadataJSON,
	); err != nil {
		return domain.Document{}, fmt.Errorf("%w: scan document: %v", domain.ErrStorage, err)
	}
	doc.Type = domain.DocType(dt)
	doc.UploadedAt = time.UnixMilli(uploadedAt).UTC()
	if err := json.Unmarshal([]byte(metadataJSON), &doc.Metadata); err != nil {
		return domain.Document{}, fmt.Errorf("%w: parse metadata: %v", domain.ErrStorage, err)
	}
	return doc, nil
}

func metadataOrEmpty(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

// vectorToBytes packs a vector as little-endian float32 for BLOB storage.
func vectorToBytes(vec []float32) []byte {
	buf := make([]byte, len(vec)*4)
	for i, f := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func bytesToVector(data []byte) []float32 {
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec
}

// cosineSimilarity computes true cosine (dot over norms), so score ordering is
// stable regardless of whether the provider normalizes its vectors.
func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
