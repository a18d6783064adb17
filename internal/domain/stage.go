package domain

// Stage names a step in a staged pipeline (ingestion or contract workflow).
type Stage string

// Ingestion stages. Transitions run received -> extracting -> chunking ->
// embedding -> indexed; a failure at any stage is terminal for the attempt.
const (
	StageReceived   Stage = "received"
	StageExtracting Stage = "extracting"
	StageChunking   Stage = "chunking"
	StageEmbedding  Stage = "embedding"
	StageIndexing   Stage = "indexing"
	StageIndexed    Stage = "indexed"
)

// Contract workflow stages.
const (
	StageGrammarFix    Stage = "grammar_fix"
	StageComplianceFix Stage = "compliance_fix"
	StageFinalCheck    Stage = "final_check"
)
