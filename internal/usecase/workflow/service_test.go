package workflow

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/procurekit/policyrag/internal/domain"
	dombatch "github.com/procurekit/policyrag/internal/domain/batch"
	"github.com/procurekit/policyrag/internal/usecase/retrieval"
)

type mockRetriever struct {
	asm         domain.Assembly
	err         error
	lastQuery   string
	lastOpts    retrieval.Options
	invocations int
}

func (m *mockRetriever) Retrieve(_ context.Context, query string, opts retrieval.Options) (domain.Assembly, error) {
	m.invocations++
	m.lastQuery = query
	m.lastOpts = opts
	if m.err != nil {
		return domain.Assembly{}, m.err
	}
	return m.asm, nil
}

type mockCompleter struct {
	outputs []string // consumed in call order; last one repeats
	err     error
	prompts []string
}

func (m *mockCompleter) Complete(_ context.Context, prompt string, _ int) (string, error) {
	m.prompts = append(m.prompts, prompt)
	if m.err != nil {
		return "", m.err
	}
	idx := len(m.prompts) - 1
	if idx >= len(m.outputs) {
		idx = len(m.outputs) - 1
	}
	return m.outputs[idx], nil
}

func policyAssembly() domain.Assembly {
	return domain.Assembly{
		Context: "Source: policy.txt (policy)\nAll vendors must carry insurance.",
		Provenance: []domain.ProvenanceEntry{
			{DocHash: "h1", Filename: "policy.txt", DocType: domain.DocTypePolicy, Score: 0.9},
			{DocHash: "h1", Filename: "policy.txt", DocType: domain.DocTypePolicy, ChunkIndex: 1, Score: 0.8},
		},
	}
}

func newTestOrchestrator(r *mockRetriever, c *mockCompleter) *Orchestrator {
	return New(r, c, zap.NewNop())
}

func TestCheckCompliance(t *testing.T) {
	ret := &mockRetriever{asm: policyAssembly()}
	llm := &mockCompleter{outputs: []string{"COMPLIANCE STATUS: Compliant"}}
	orch := newTestOrchestrator(ret, llm)

	analysis, err := orch.CheckCompliance(context.Background(), "contract body", "service")
	if err != nil {
		t.Fatalf("CheckCompliance failed: %v", err)
	}

	if analysis.Output != "COMPLIANCE STATUS: Compliant" {
		t.Errorf("unexpected output: %q", analysis.Output)
	}
	if analysis.PoliciesChecked != 1 {
		t.Errorf("expected 1 policy checked, got %d", analysis.PoliciesChecked)
	}
	if analysis.ChunksUsed != 2 {
		t.Errorf("expected 2 chunks used, got %d", analysis.ChunksUsed)
	}
	if ret.lastOpts.TopK != 10 || ret.lastOpts.DocType != domain.DocTypePolicy {
		t.Errorf("unexpected retrieval options: %+v", ret.lastOpts)
	}
	if !strings.Contains(ret.lastQuery, "service contract requirements") {
		t.Errorf("contract type not in query: %q", ret.lastQuery)
	}
	if !strings.Contains(llm.prompts[0], "contract body") ||
		!strings.Contains(llm.prompts[0], "All vendors must carry insurance.") {
		t.Error("prompt is missing the contract text or the policy context")
	}
}

func TestCheckCompliance_NoRelevantContext(t *testing.T) {
	ret := &mockRetriever{asm: domain.Assembly{NoRelevantContext: true}}
	orch := newTestOrchestrator(ret, &mockCompleter{outputs: []string{"x"}})

	_, err := orch.CheckCompliance(context.Background(), "contract body", "")
	if !errors.Is(err, domain.ErrNoRelevantContext) {
		t.Fatalf("expected ErrNoRelevantContext, got %v", err)
	}
}

func TestCheckCompliance_EmptyText(t *testing.T) {
	orch := newTestOrchestrator(&mockRetriever{asm: policyAssembly()}, &mockCompleter{outputs: []string{"x"}})

	_, err := orch.CheckCompliance(context.Background(), "  ", "")
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestCheckCompliance_DefaultsContractType(t *testing.T) {
	ret := &mockRetriever{asm: policyAssembly()}
	orch := newTestOrchestrator(ret, &mockCompleter{outputs: []string{"x"}})

	if _, err := orch.CheckCompliance(context.Background(), "contract body", ""); err != nil {
		t.Fatalf("CheckCompliance failed: %v", err)
	}
	if !strings.HasPrefix(ret.lastQuery, "general contract") {
		t.Errorf("expected general contract query, got %q", ret.lastQuery)
	}
}

func TestSuggestMissingClauses(t *testing.T) {
	ret := &mockRetriever{asm: policyAssembly()}
	orch := newTestOrchestrator(ret, &mockCompleter{outputs: []string{"MISSING CRITICAL CLAUSES: ..."}})

	analysis, err := orch.SuggestMissingClauses(context.Background(), "contract body", "supply")
	if err != nil {
		t.Fatalf("SuggestMissingClauses failed: %v", err)
	}
	if analysis.Output == "" {
		t.Error("expected suggestions output")
	}
	if ret.lastOpts.TopK != 12 {
		t.Errorf("expected topK=12, got %d", ret.lastOpts.TopK)
	}
	if ret.lastOpts.DocType != "" {
		t.Errorf("expected no doc type filter, got %q", ret.lastOpts.DocType)
	}
}

func TestGenerateContract(t *testing.T) {
	ret := &mockRetriever{asm: policyAssembly()}
	llm := &mockCompleter{outputs: []string{"SERVICE AGREEMENT between the parties hereto"}}
	orch := newTestOrchestrator(ret, llm)

	result, err := orch.GenerateContract(context.Background(), map[string]string{
		"buyer":  "ACME Corp",
		"vendor": "XYZ Services",
		"value":  "$100,000",
	}, "service", true)
	if err != nil {
		t.Fatalf("GenerateContract failed: %v", err)
	}

	if result.WordCount != 6 {
		t.Errorf("expected word count 6, got %d", result.WordCount)
	}
	if result.ContractType != "service" {
		t.Errorf("unexpected contract type %q", result.ContractType)
	}
	if ret.lastOpts.TopK != 15 {
		t.Errorf("expected topK=15, got %d", ret.lastOpts.TopK)
	}
	// Parameters render sorted by key for deterministic prompts.
	prompt := llm.prompts[0]
	if !strings.Contains(prompt, "buyer: ACME Corp\nvalue: $100,000\nvendor: XYZ Services") {
		t.Errorf("parameters not rendered in sorted order:\n%s", prompt)
	}
}

func TestGenerateContract_RequiresParams(t *testing.T) {
	orch := newTestOrchestrator(&mockRetriever{asm: policyAssembly()}, &mockCompleter{outputs: []string{"x"}})

	_, err := orch.GenerateContract(context.Background(), nil, "service", true)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestGrammarCheck_NoRetrieval(t *testing.T) {
	ret := &mockRetriever{asm: policyAssembly()}
	orch := newTestOrchestrator(ret, &mockCompleter{outputs: []string{"ISSUES FOUND: none"}})

	analysis, err := orch.GrammarCheck(context.Background(), "This is a example contract.")
	if err != nil {
		t.Fatalf("GrammarCheck failed: %v", err)
	}
	if analysis.Output != "ISSUES FOUND: none" {
		t.Errorf("unexpected output: %q", analysis.Output)
	}
	if ret.invocations != 0 {
		t.Errorf("grammar check must not retrieve, got %d retrievals", ret.invocations)
	}
	if analysis.ChunksUsed != 0 || analysis.PoliciesChecked != 0 {
		t.Error("grammar check must report zero grounding counters")
	}
}

func TestFixContract(t *testing.T) {
	ret := &mockRetriever{asm: policyAssembly()}
	llm := &mockCompleter{outputs: []string{"corrected contract text"}}
	orch := newTestOrchestrator(ret, llm)

	analysis, err := orch.FixContract(context.Background(), "broken contract", "service")
	if err != nil {
		t.Fatalf("FixContract failed: %v", err)
	}
	if analysis.Output != "corrected contract text" {
		t.Errorf("unexpected output: %q", analysis.Output)
	}
	if ret.lastOpts.DocType != domain.DocTypePolicy {
		t.Errorf("expected policy filter, got %q", ret.lastOpts.DocType)
	}
}

func TestFullWorkflow(t *testing.T) {
	ret := &mockRetriever{asm: policyAssembly()}
	llm := &mockCompleter{outputs: []string{
		"grammar-corrected draft",
		"compliance-fixed contract",
		"COMPLIANCE STATUS: Compliant",
	}}
	orch := newTestOrchestrator(ret, llm)

	result, err := orch.FullWorkflow(context.Background(), "the draft", "service")
	if err != nil {
		t.Fatalf("FullWorkflow failed: %v", err)
	}

	if result.FinalContract != "compliance-fixed contract" {
		t.Errorf("unexpected final contract: %q", result.FinalContract)
	}
	if result.ComplianceReport != "COMPLIANCE STATUS: Compliant" {
		t.Errorf("unexpected compliance report: %q", result.ComplianceReport)
	}

	wantStages := []domain.Stage{domain.StageGrammarFix, domain.StageComplianceFix, domain.StageFinalCheck}
	if len(result.Stages) != len(wantStages) {
		t.Fatalf("expected %d stages, got %d", len(wantStages), len(result.Stages))
	}
	for i, s := range result.Stages {
		if s.Stage != wantStages[i] {
			t.Errorf("stage %d = %q, want %q", i, s.Stage, wantStages[i])
		}
	}

	// Stage outputs must chain: the fix prompt sees the grammar-corrected
	// text, the final check sees the fixed contract.
	if !strings.Contains(llm.prompts[1], "grammar-corrected draft") {
		t.Error("compliance fix did not receive the grammar-corrected text")
	}
	if !strings.Contains(llm.prompts[2], "compliance-fixed contract") {
		t.Error("final check did not receive the fixed contract")
	}
}

func TestFullWorkflow_StageAttribution(t *testing.T) {
	t.Run("grammar fix fails", func(t *testing.T) {
		orch := newTestOrchestrator(&mockRetriever{asm: policyAssembly()},
			&mockCompleter{err: domain.ErrExternalService})
		_, err := orch.FullWorkflow(context.Background(), "draft", "")
		if stage := domain.FailedStage(err); stage != domain.StageGrammarFix {
			t.Errorf("expected stage grammar_fix, got %q", stage)
		}
	})

	t.Run("compliance fix fails on empty corpus", func(t *testing.T) {
		orch := newTestOrchestrator(&mockRetriever{asm: domain.Assembly{NoRelevantContext: true}},
			&mockCompleter{outputs: []string{"grammar ok"}})
		_, err := orch.FullWorkflow(context.Background(), "draft", "")
		if stage := domain.FailedStage(err); stage != domain.StageComplianceFix {
			t.Errorf("expected stage compliance_fix, got %q", stage)
		}
		if !errors.Is(err, domain.ErrNoRelevantContext) {
			t.Errorf("expected ErrNoRelevantContext, got %v", err)
		}
	})
}

func TestCheckComplianceBatch(t *testing.T) {
	ret := &mockRetriever{asm: policyAssembly()}
	orch := newTestOrchestrator(ret, &mockCompleter{outputs: []string{"analysis"}})

	results := orch.CheckComplianceBatch(context.Background(), []BatchItem{
		{ID: "c1", Text: "contract one"},
		{ID: "c2", Text: ""}, // invalid: empty text
		{ID: "c3", Text: "contract three"},
	})

	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].Status() != dombatch.StatusOK || results[0].Output() != "analysis" {
		t.Errorf("unexpected first result: %+v", results[0])
	}
	if results[1].Status() != dombatch.StatusError || !errors.Is(results[1].Err(), domain.ErrValidation) {
		t.Errorf("expected validation error for empty item, got %+v", results[1])
	}
	if results[2].Status() != dombatch.StatusOK {
		t.Errorf("item after a failed one must still be processed: %+v", results[2])
	}
	if results[0].ID() != "c1" || results[2].ID() != "c3" {
		t.Error("results must be tagged with item IDs")
	}
}

func TestCheckComplianceBatch_SizeLimit(t *testing.T) {
	orch := newTestOrchestrator(&mockRetriever{asm: policyAssembly()}, &mockCompleter{outputs: []string{"x"}})

	items := make([]BatchItem, MaxBatchSize+1)
	for i := range items {
		items[i] = BatchItem{ID: "c", Text: "t"}
	}

	results := orch.CheckComplianceBatch(context.Background(), items)
	for i, r := range results {
		if r.Status() != dombatch.StatusError || !errors.Is(r.Err(), domain.ErrValidation) {
			t.Fatalf("result %d: expected validation error, got %+v", i, r)
		}
	}
}
