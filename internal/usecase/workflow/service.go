// Package workflow orchestrates retrieval-grounded LLM operations over the
// policy corpus: compliance analysis, clause suggestions, contract generation
// and the staged fix-up pipeline.
package workflow

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/procurekit/policyrag/internal/domain"
	dombatch "github.com/procurekit/policyrag/internal/domain/batch"
	"github.com/procurekit/policyrag/internal/metrics"
	"github.com/procurekit/policyrag/internal/usecase/retrieval"
)

// Retrieval depth per operation.
const (
	complianceTopK = 10
	clausesTopK    = 12
	generateTopK   = 15
)

// Completion budgets per operation, in tokens.
const (
	complianceMaxTokens = 4000
	clausesMaxTokens    = 5000
	generateMaxTokens   = 8000
	grammarMaxTokens    = 4000
	fixMaxTokens        = 8000
)

// MaxBatchSize is the maximum number of items per batch compliance request.
const MaxBatchSize = 20

// Orchestrator wires the retrieval engine and the LLM completer into the
// contract operations.
type Orchestrator struct {
	retriever Retriever
	llm       Completer
	logger    *zap.Logger
}

// New creates a workflow orchestrator.
func New(retriever Retriever, llm Completer, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{retriever: retriever, llm: llm, logger: logger}
}

// Analysis is the outcome of one retrieval-grounded LLM operation.
type Analysis struct {
	Output          string
	PoliciesChecked int // distinct documents that contributed context
	ChunksUsed      int
	Provenance      []domain.ProvenanceEntry
}

// ContractResult is the outcome of contract generation.
type ContractResult struct {
	Contract        string
	WordCount       int
	ContractType    string
	PoliciesChecked int
	ChunksUsed      int
	Provenance      []domain.ProvenanceEntry
}

// StageRecord captures one completed stage of the full workflow.
type StageRecord struct {
	Stage  domain.Stage
	Output string
}

// WorkflowResult is the outcome of the staged full workflow.
type WorkflowResult struct {
	FinalContract    string
	ComplianceReport string
	Stages           []StageRecord
	Provenance       []domain.ProvenanceEntry
}

// CheckCompliance analyzes contract text against the indexed policies.
// Fails with ErrNoRelevantContext when no policy cleared the similarity
// threshold: a compliance verdict without grounding would be fabricated.
func (o *Orchestrator) CheckCompliance(ctx context.Context, text, contractType string) (Analysis, error) {
	return o.grounded(ctx, "check_compliance", groundedOp{
		query:     fmt.Sprintf("%s contract requirements policies compliance", orGeneral(contractType)),
		topK:      complianceTopK,
		docType:   domain.DocTypePolicy,
		prompt:    func(policyContext string) string { return compliancePrompt(policyContext, text) },
		maxTokens: complianceMaxTokens,
		input:     text,
	})
}

// SuggestMissingClauses identifies clauses the policies require that the
// contract lacks. Searches all document types so clause templates contribute.
func (o *Orchestrator) SuggestMissingClauses(ctx context.Context, text, contractType string) (Analysis, error) {
	return o.grounded(ctx, "suggest_clauses", groundedOp{
		query:     fmt.Sprintf("%s contract required clauses terms conditions", orGeneral(contractType)),
		topK:      clausesTopK,
		prompt:    func(policyContext string) string { return missingClausesPrompt(policyContext, text) },
		maxTokens: clausesMaxTokens,
		input:     text,
	})
}

// GenerateContract drafts a complete contract from the parameters, grounded
// on the indexed policies and templates.
func (o *Orchestrator) GenerateContract(
	ctx context.Context, params map[string]string, contractType string, includeOptional bool,
) (ContractResult, error) {
	if len(params) == 0 {
		return ContractResult{}, fmt.Errorf("%w: contract parameters are required", domain.ErrValidation)
	}
	contractType = orGeneral(contractType)

	analysis, err := o.grounded(ctx, "generate_contract", groundedOp{
		query: fmt.Sprintf("%s contract template structure required clauses", contractType),
		topK:  generateTopK,
		prompt: func(policyContext string) string {
			return generateContractPrompt(policyContext, formatParams(params), contractType, includeOptional)
		},
		maxTokens: generateMaxTokens,
		input:     "-",
	})
	if err != nil {
		return ContractResult{}, err
	}

	return ContractResult{
		Contract:        analysis.Output,
		WordCount:       len(strings.Fields(analysis.Output)),
		ContractType:    contractType,
		PoliciesChecked: analysis.PoliciesChecked,
		ChunksUsed:      analysis.ChunksUsed,
		Provenance:      analysis.Provenance,
	}, nil
}

// GrammarCheck reviews contract text for language issues. No retrieval: the
// corpus has nothing to say about grammar.
func (o *Orchestrator) GrammarCheck(ctx context.Context, text string) (Analysis, error) {
	if strings.TrimSpace(text) == "" {
		return Analysis{}, fmt.Errorf("%w: contract text is required", domain.ErrValidation)
	}

	out, err := o.llm.Complete(ctx, grammarCheckPrompt(text), grammarMaxTokens)
	if err != nil {
		metrics.WorkflowsTotal.WithLabelValues("grammar_check", "error").Inc()
		return Analysis{}, fmt.Errorf("grammar check: %w", err)
	}

	metrics.WorkflowsTotal.WithLabelValues("grammar_check", "success").Inc()
	return Analysis{Output: out}, nil
}

// FixContract rewrites contract text into a policy-compliant version.
func (o *Orchestrator) FixContract(ctx context.Context, text, contractType string) (Analysis, error) {
	return o.grounded(ctx, "fix_contract", groundedOp{
		query:     fmt.Sprintf("%s contract requirements policies compliance", orGeneral(contractType)),
		topK:      complianceTopK,
		docType:   domain.DocTypePolicy,
		prompt:    func(policyContext string) string { return fixContractPrompt(policyContext, text) },
		maxTokens: fixMaxTokens,
		input:     text,
	})
}

// FullWorkflow runs the staged pipeline over a draft: grammar fix, then
// compliance fix, then a final compliance re-check. Each stage's output
// feeds the next; any failure aborts the chain with a StageError naming the
// failed stage.
func (o *Orchestrator) FullWorkflow(ctx context.Context, draft, contractType string) (WorkflowResult, error) {
	if strings.TrimSpace(draft) == "" {
		return WorkflowResult{}, fmt.Errorf("%w: contract draft is required", domain.ErrValidation)
	}
	contractType = orGeneral(contractType)

	var result WorkflowResult

	corrected, err := o.llm.Complete(ctx, grammarFixPrompt(draft), fixMaxTokens)
	if err != nil {
		metrics.WorkflowsTotal.WithLabelValues("full_workflow", "error").Inc()
		return WorkflowResult{}, domain.NewStageError(domain.StageGrammarFix, err)
	}
	result.Stages = append(result.Stages, StageRecord{Stage: domain.StageGrammarFix, Output: corrected})

	fixed, err := o.FixContract(ctx, corrected, contractType)
	if err != nil {
		metrics.WorkflowsTotal.WithLabelValues("full_workflow", "error").Inc()
		return WorkflowResult{}, domain.NewStageError(domain.StageComplianceFix, err)
	}
	result.Stages = append(result.Stages, StageRecord{Stage: domain.StageComplianceFix, Output: fixed.Output})
	result.Provenance = append(result.Provenance, fixed.Provenance...)

	final, err := o.CheckCompliance(ctx, fixed.Output, contractType)
	if err != nil {
		metrics.WorkflowsTotal.WithLabelValues("full_workflow", "error").Inc()
		return WorkflowResult{}, domain.NewStageError(domain.StageFinalCheck, err)
	}
	result.Stages = append(result.Stages, StageRecord{Stage: domain.StageFinalCheck, Output: final.Output})
	result.Provenance = append(result.Provenance, final.Provenance...)

	result.FinalContract = fixed.Output
	result.ComplianceReport = final.Output

	metrics.WorkflowsTotal.WithLabelValues("full_workflow", "success").Inc()
	o.logger.Info("full workflow completed",
		zap.String("contract_type", contractType),
		zap.Int("stages", len(result.Stages)),
	)
	return result, nil
}

// BatchItem is one contract to check in a batch compliance request.
type BatchItem struct {
	ID           string
	Text         string
	ContractType string
}

// CheckComplianceBatch runs a compliance check per item with per-item error
// reporting. One bad item never fails the batch.
func (o *Orchestrator) CheckComplianceBatch(ctx context.Context, items []BatchItem) []dombatch.Result {
	results := make([]dombatch.Result, len(items))

	if len(items) > MaxBatchSize {
		for i, item := range items {
			results[i] = dombatch.NewError(item.ID,
				fmt.Errorf("%w: batch size exceeds %d", domain.ErrValidation, MaxBatchSize))
		}
		return results
	}

	for i, item := range items {
		if err := ctx.Err(); err != nil {
			results[i] = dombatch.NewError(item.ID, err)
			continue
		}
		analysis, err := o.CheckCompliance(ctx, item.Text, item.ContractType)
		if err != nil {
			results[i] = dombatch.NewError(item.ID, err)
			continue
		}
		results[i] = dombatch.NewOK(item.ID, analysis.Output)
	}
	return results
}

// groundedOp describes one retrieval-grounded completion.
type groundedOp struct {
	query     string
	topK      int
	docType   domain.DocType
	prompt    func(policyContext string) string
	maxTokens int
	input     string
}

func (o *Orchestrator) grounded(ctx context.Context, operation string, op groundedOp) (Analysis, error) {
	if strings.TrimSpace(op.input) == "" {
		return Analysis{}, fmt.Errorf("%w: contract text is required", domain.ErrValidation)
	}

	asm, err := o.retriever.Retrieve(ctx, op.query, retrieval.Options{
		TopK:    op.topK,
		DocType: op.docType,
	})
	if err != nil {
		metrics.WorkflowsTotal.WithLabelValues(operation, "error").Inc()
		return Analysis{}, fmt.Errorf("retrieve policies: %w", err)
	}
	if asm.NoRelevantContext {
		metrics.WorkflowsTotal.WithLabelValues(operation, "no_context").Inc()
		return Analysis{}, fmt.Errorf("%w: upload policy documents first", domain.ErrNoRelevantContext)
	}

	out, err := o.llm.Complete(ctx, op.prompt(asm.Context), op.maxTokens)
	if err != nil {
		metrics.WorkflowsTotal.WithLabelValues(operation, "error").Inc()
		return Analysis{}, fmt.Errorf("%s: %w", operation, err)
	}

	metrics.WorkflowsTotal.WithLabelValues(operation, "success").Inc()
	o.logger.Debug("workflow operation completed",
		zap.String("operation", operation),
		zap.Int("chunks_used", asm.ChunksUsed()),
		zap.Int("documents_used", len(asm.DocumentsUsed())),
	)

	return Analysis{
		Output:          out,
		PoliciesChecked: len(asm.DocumentsUsed()),
		ChunksUsed:      asm.ChunksUsed(),
		Provenance:      asm.Provenance,
	}, nil
}

func formatParams(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	// Deterministic prompt text regardless of map order.
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %s\n", k, params[k])
	}
	return b.String()
}

func orGeneral(contractType string) string {
	if strings.TrimSpace(contractType) == "" {
		return "general"
	}
	return contractType
}
