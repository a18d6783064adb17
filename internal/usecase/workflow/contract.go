package workflow

import (
	"context"

	"github.com/procurekit/policyrag/internal/domain"
	"github.com/procurekit/policyrag/internal/usecase/retrieval"
)

// Retriever assembles a bounded policy context for a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, opts retrieval.Options) (domain.Assembly, error)
}

// Completer is the LLM completion contract.
type Completer interface {
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
}
