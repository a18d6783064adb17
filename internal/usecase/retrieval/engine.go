// Package retrieval turns a query into a bounded, provenance-tracked context
// string for prompt assembly.
package retrieval

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/procurekit/policyrag/internal/domain"
	"github.com/procurekit/policyrag/internal/metrics"
)

const blockSeparator = "\n\n---\n\n"

// NoContextMarker is the synthetic provenance entry recorded when nothing in
// the corpus cleared the similarity threshold.
const NoContextMarker = "no relevant policy found"

// Engine embeds a query, searches the store and assembles the hits into a
// context string that never exceeds the character budget.
type Engine struct {
	store    Searcher
	embedder Embedder
	defaults Options
	logger   *zap.Logger
}

// Options controls one retrieval. Zero fields fall back to the engine
// defaults.
type Options struct {
	TopK            int
	DocType         domain.DocType // empty means all types
	MinScore        float64
	MaxContextChars int
}

// New creates a retrieval engine with the given default options.
func New(store Searcher, embedder Embedder, defaults Options, logger *zap.Logger) *Engine {
	return &Engine{
		store:    store,
		embedder: embedder,
		defaults: defaults,
		logger:   logger,
	}
}

// Retrieve assembles a context for the query. An empty corpus or a corpus
// with nothing above the threshold yields an assembly flagged
// NoRelevantContext rather than an error; callers decide whether that is
// fatal.
func (e *Engine) Retrieve(ctx context.Context, query string, opts Options) (domain.Assembly, error) {
	if strings.TrimSpace(query) == "" {
		return domain.Assembly{}, fmt.Errorf("%w: query is empty", domain.ErrValidation)
	}
	opts = e.applyDefaults(opts)

	embRes, err := e.embedder.Embed(ctx, query)
	if err != nil {
		metrics.RetrievalsTotal.WithLabelValues("error").Inc()
		return domain.Assembly{}, fmt.Errorf("embed query: %w", err)
	}

	hits, err := e.store.Search(ctx, embRes.Embedding, opts.TopK, opts.DocType)
	if err != nil {
		metrics.RetrievalsTotal.WithLabelValues("error").Inc()
		return domain.Assembly{}, fmt.Errorf("search: %w", err)
	}

	var relevant []domain.ScoredChunk
	for _, h := range hits {
		if h.Score >= opts.MinScore {
			relevant = append(relevant, h)
		}
	}

	if len(relevant) == 0 {
		e.logger.Debug("no relevant context",
			zap.Int("raw_hits", len(hits)),
			zap.Float64("min_score", opts.MinScore),
		)
		metrics.RetrievalsTotal.WithLabelValues("empty").Inc()
		return domain.Assembly{
			NoRelevantContext: true,
			Provenance:        []domain.ProvenanceEntry{{Marker: NoContextMarker}},
		}, nil
	}

	assembly := e.assemble(relevant, opts.MaxContextChars)

	metrics.RetrievalsTotal.WithLabelValues("success").Inc()
	metrics.RetrievalChunksUsed.Observe(float64(assembly.ChunksUsed()))

	return assembly, nil
}

// Search embeds the query and returns the raw scored hits without context
// assembly, for callers that want the ranking itself.
func (e *Engine) Search(ctx context.Context, query string, topK int, docType domain.DocType) ([]domain.ScoredChunk, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query is empty", domain.ErrValidation)
	}
	if topK <= 0 {
		topK = e.defaults.TopK
	}

	embRes, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits, err := e.store.Search(ctx, embRes.Embedding, topK, docType)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	return hits, nil
}

// assemble greedily packs chunks in score order. A chunk that does not fit is
// skipped so lower-ranked smaller chunks still get a chance; truncation is
// reserved for the case where even the top chunk alone overflows the budget.
func (e *Engine) assemble(hits []domain.ScoredChunk, budget int) domain.Assembly {
	var b strings.Builder
	var prov []domain.ProvenanceEntry
	used := 0

	for _, h := range hits {
		block := formatBlock(h)
		cost := len([]rune(block))
		if used > 0 {
			cost += len([]rune(blockSeparator))
		}

		if used+cost > budget {
			if used > 0 {
				continue
			}
			// Even the best chunk alone overflows: truncate it rather than
			// return an empty context.
			header := formatHeader(h)
			room := budget - len([]rune(header)) - 1 // header + newline
			if room <= 0 {
				continue
			}
			content := []rune(h.Content)
			if room < len(content) {
				content = content[:room]
			}
			b.WriteString(header)
			b.WriteByte('\n')
			b.WriteString(string(content))
			used = budget
			prov = append(prov, provenanceFor(h, true))
			continue
		}

		if used > 0 {
			b.WriteString(blockSeparator)
		}
		b.WriteString(block)
		used += cost
		prov = append(prov, provenanceFor(h, false))
	}

	return domain.Assembly{Context: b.String(), Provenance: prov}
}

func (e *Engine) applyDefaults(opts Options) Options {
	if opts.TopK <= 0 {
		opts.TopK = e.defaults.TopK
	}
	if opts.MinScore <= 0 {
		opts.MinScore = e.defaults.MinScore
	}
	if opts.MaxContextChars <= 0 {
		opts.MaxContextChars = e.defaults.MaxContextChars
	}
	return opts
}

func formatHeader(h domain.ScoredChunk) string {
	return fmt.Sprintf("Source: %s (%s)", h.Meta.Filename, h.Meta.DocType)
}

func formatBlock(h domain.ScoredChunk) string {
	return formatHeader(h) + "\n" + h.Content
}

func provenanceFor(h domain.ScoredChunk, truncated bool) domain.ProvenanceEntry {
	return domain.ProvenanceEntry{
		DocHash:    h.Meta.DocHash,
		Filename:   h.Meta.Filename,
		DocType:    h.Meta.DocType,
		ChunkIndex: h.Meta.ChunkIndex,
		Score:      h.Score,
		Truncated:  truncated,
	}
}
