package chi

import (
	"context"

	"github.com/procurekit/policyrag/internal/domain"
	dombatch "github.com/procurekit/policyrag/internal/domain/batch"
	"github.com/procurekit/policyrag/internal/usecase/health"
	"github.com/procurekit/policyrag/internal/usecase/ingest"
	"github.com/procurekit/policyrag/internal/usecase/workflow"
)

// IngestService handles document lifecycle operations.
type IngestService interface {
	Ingest(ctx context.Context, req ingest.Request) (domain.Document, error)
	Delete(ctx context.Context, hash string) (int, error)
	List(ctx context.Context) ([]domain.Document, error)
	UpdateMetadata(ctx context.Context, hash string, metadata map[string]string) error
	CorpusInfo(ctx context.Context) (domain.CorpusInfo, error)
}

// SearchService exposes raw similarity search.
type SearchService interface {
	Search(ctx context.Context, query string, topK int, docType domain.DocType) ([]domain.ScoredChunk, error)
}

// WorkflowService runs the retrieval-grounded LLM operations.
type WorkflowService interface {
	CheckCompliance(ctx context.Context, text, contractType string) (workflow.Analysis, error)
	CheckComplianceBatch(ctx context.Context, items []workflow.BatchItem) []dombatch.Result
	SuggestMissingClauses(ctx context.Context, text, contractType string) (workflow.Analysis, error)
	GenerateContract(ctx context.Context, params map[string]string, contractType string, includeOptional bool) (workflow.ContractResult, error)
	GrammarCheck(ctx context.Context, text string) (workflow.Analysis, error)
	FixContract(ctx context.Context, text, contractType string) (workflow.Analysis, error)
	FullWorkflow(ctx context.Context, draft, contractType string) (workflow.WorkflowResult, error)
}

// HealthService aggregates component health checks.
type HealthService interface {
	Check(ctx context.Context) health.Report
}
