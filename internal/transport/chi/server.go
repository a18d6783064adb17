// Package chi is the HTTP transport: routing, request decoding and mapping
// domain errors onto status codes.
package chi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/procurekit/policyrag/internal/domain"
	"github.com/procurekit/policyrag/internal/extract"
	"github.com/procurekit/policyrag/internal/usecase/health"
	"github.com/procurekit/policyrag/internal/usecase/ingest"
	"github.com/procurekit/policyrag/internal/usecase/workflow"
)

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Stage   string `json:"stage,omitempty"`
}

// Error codes returned to clients.
const (
	codeBadRequest       = "bad_request"
	codeValidation       = "validation_failed"
	codeDuplicate        = "duplicate_document"
	codeNotFound         = "document_not_found"
	codeDimMismatch      = "dimension_mismatch"
	codeUnsupported      = "unsupported_format"
	codeExtraction       = "extraction_failed"
	codeNoContext        = "no_relevant_context"
	codeExternalService  = "external_service_error"
	codeExternalTimeout  = "external_service_timeout"
	codeStorage          = "storage_unavailable"
	codeUnauthorized     = "unauthorized"
	codeInternal         = "internal_error"
)

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg, stage string) bool

// Server is the HTTP API server.
type Server struct {
	ingestSvc     IngestService
	searchSvc     SearchService
	workflowSvc   WorkflowService
	healthSvc     HealthService
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	ingestSvc IngestService,
	searchSvc SearchService,
	workflowSvc WorkflowService,
	healthSvc HealthService,
	logger *zap.Logger,
) *Server {
	s := &Server{
		ingestSvc:   ingestSvc,
		searchSvc:   searchSvc,
		workflowSvc: workflowSvc,
		healthSvc:   healthSvc,
		logger:      logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrDuplicateDocument, http.StatusConflict, codeDuplicate),
		sentinelHandler(domain.ErrDocumentNotFound, http.StatusNotFound, codeNotFound),
		sentinelHandler(domain.ErrValidation, http.StatusBadRequest, codeValidation),
		sentinelHandler(domain.ErrDimensionMismatch, http.StatusBadRequest, codeDimMismatch),
		sentinelHandler(domain.ErrUnsupportedFormat, http.StatusUnsupportedMediaType, codeUnsupported),
		sentinelHandler(domain.ErrExtraction, http.StatusUnprocessableEntity, codeExtraction),
		sentinelHandler(domain.ErrNoRelevantContext, http.StatusUnprocessableEntity, codeNoContext),
		sentinelHandler(domain.ErrExternalServiceTimeout, http.StatusGatewayTimeout, codeExternalTimeout),
		sentinelHandler(domain.ErrExternalService, http.StatusBadGateway, codeExternalService),
		sentinelHandler(domain.ErrStorage, http.StatusServiceUnavailable, codeStorage),
	}
	return s
}

// Routes mounts all API routes on the router.
func (s *Server) Routes(r chi.Router) {
	r.Get("/healthz", s.Healthz)
	r.Get("/metrics", s.Metrics)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/documents", s.UploadDocument)
		r.Get("/documents", s.ListDocuments)
		r.Delete("/documents/{hash}", s.DeleteDocument)
		r.Patch("/documents/{hash}/metadata", s.UpdateMetadata)

		r.Post("/search", s.Search)
		r.Get("/corpus/info", s.CorpusInfo)

		r.Post("/compliance/check", s.CheckCompliance)
		r.Post("/compliance/batch", s.CheckComplianceBatch)
		r.Post("/clauses/suggest", s.SuggestClauses)
		r.Post("/contracts/generate", s.GenerateContract)
		r.Post("/contracts/grammar-check", s.GrammarCheck)
		r.Post("/contracts/fix", s.FixContract)
		r.Post("/workflow", s.FullWorkflow)
	})
}

// documentResponse is the JSON shape of one document summary.
type documentResponse struct {
	Hash       string            `json:"hash"`
	Filename   string            `json:"filename"`
	DocType    string            `json:"doc_type"`
	UploadedAt string            `json:"uploaded_at"`
	SizeBytes  int64             `json:"size_bytes"`
	ChunkCount int               `json:"chunk_count"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

func documentToJSON(d domain.Document) documentResponse {
	return documentResponse{
		Hash:       d.Hash,
		Filename:   d.Filename,
		DocType:    string(d.Type),
		UploadedAt: d.UploadedAt.Format("2006-01-02T15:04:05Z07:00"),
		SizeBytes:  d.SizeBytes,
		ChunkCount: d.ChunkCount,
		Metadata:   d.Metadata,
	}
}

// UploadDocument handles POST /api/v1/documents (multipart upload).
func (s *Server) UploadDocument(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(domain.MaxDocumentSize); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid multipart form: "+err.Error())
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "file part is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, domain.MaxDocumentSize+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "read upload: "+err.Error())
		return
	}

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = extract.MIMETypeForFilename(header.Filename)
	}

	var metadata map[string]string
	if raw := r.FormValue("metadata"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &metadata); err != nil {
			writeError(w, http.StatusBadRequest, codeBadRequest, "metadata must be a JSON object of strings")
			return
		}
	}

	doc, err := s.ingestSvc.Ingest(r.Context(), ingest.Request{
		Filename: header.Filename,
		Data:     data,
		MIMEType: mimeType,
		DocType:  r.FormValue("doc_type"),
		Metadata: metadata,
		Replace:  r.FormValue("replace") == "true",
	})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	status := http.StatusCreated
	if doc.ChunkCount == 0 {
		// Accepted but not indexed (no extractable text).
		status = http.StatusOK
	}
	writeJSON(w, status, documentToJSON(doc))
}

// ListDocuments handles GET /api/v1/documents.
func (s *Server) ListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.ingestSvc.List(r.Context())
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	items := make([]documentResponse, len(docs))
	for i, d := range docs {
		items[i] = documentToJSON(d)
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "total": len(items)})
}

// DeleteDocument handles DELETE /api/v1/documents/{hash}.
func (s *Server) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	chunks, err := s.ingestSvc.Delete(r.Context(), chi.URLParam(r, "hash"))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"chunks_removed": chunks})
}

// UpdateMetadata handles PATCH /api/v1/documents/{hash}/metadata.
func (s *Server) UpdateMetadata(w http.ResponseWriter, r *http.Request) {
	var metadata map[string]string
	if err := json.NewDecoder(r.Body).Decode(&metadata); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body: "+err.Error())
		return
	}

	if err := s.ingestSvc.UpdateMetadata(r.Context(), chi.URLParam(r, "hash"), metadata); err != nil {
		s.handleDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// searchRequest is the JSON body of POST /api/v1/search.
type searchRequest struct {
	Query   string `json:"query"`
	TopK    int    `json:"top_k"`
	DocType string `json:"doc_type"`
}

// Search handles POST /api/v1/search.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body: "+err.Error())
		return
	}

	docType, err := domain.ParseDocType(req.DocType)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	hits, err := s.searchSvc.Search(r.Context(), req.Query, req.TopK, docType)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	type hitResponse struct {
		DocHash    string  `json:"doc_hash"`
		Filename   string  `json:"filename"`
		DocType    string  `json:"doc_type"`
		ChunkIndex int     `json:"chunk_index"`
		Content    string  `json:"content"`
		Score      float64 `json:"score"`
	}
	items := make([]hitResponse, len(hits))
	for i, h := range hits {
		items[i] = hitResponse{
			DocHash:    h.Meta.DocHash,
			Filename:   h.Meta.Filename,
			DocType:    string(h.Meta.DocType),
			ChunkIndex: h.Meta.ChunkIndex,
			Content:    h.Content,
			Score:      h.Score,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": items, "total": len(items)})
}

// CorpusInfo handles GET /api/v1/corpus/info.
func (s *Server) CorpusInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.ingestSvc.CorpusInfo(r.Context())
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	byType := make(map[string]int, len(info.ByType))
	for t, n := range info.ByType {
		byType[string(t)] = n
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total_documents":   info.TotalDocuments,
		"total_chunks":      info.TotalChunks,
		"documents_by_type": byType,
	})
}

// contractRequest is the JSON body shared by the contract analysis endpoints.
type contractRequest struct {
	Text         string `json:"text"`
	ContractType string `json:"contract_type"`
}

// analysisResponse renders a workflow.Analysis.
type analysisResponse struct {
	Output          string            `json:"output"`
	PoliciesChecked int               `json:"policies_checked"`
	ChunksUsed      int               `json:"chunks_used"`
	Provenance      []provenanceEntry `json:"provenance,omitempty"`
}

type provenanceEntry struct {
	DocHash    string  `json:"doc_hash,omitempty"`
	Filename   string  `json:"filename,omitempty"`
	DocType    string  `json:"doc_type,omitempty"`
	ChunkIndex int     `json:"chunk_index"`
	Score      float64 `json:"score"`
	Truncated  bool    `json:"truncated,omitempty"`
	Marker     string  `json:"marker,omitempty"`
}

func provenanceToJSON(entries []domain.ProvenanceEntry) []provenanceEntry {
	out := make([]provenanceEntry, len(entries))
	for i, p := range entries {
		out[i] = provenanceEntry{
			DocHash:    p.DocHash,
			Filename:   p.Filename,
			DocType:    string(p.DocType),
			ChunkIndex: p.ChunkIndex,
			Score:      p.Score,
			Truncated:  p.Truncated,
			Marker:     p.Marker,
		}
	}
	return out
}

func analysisToJSON(a workflow.Analysis) analysisResponse {
	return analysisResponse{
		Output:          a.Output,
		PoliciesChecked: a.PoliciesChecked,
		ChunksUsed:      a.ChunksUsed,
		Provenance:      provenanceToJSON(a.Provenance),
	}
}

// CheckCompliance handles POST /api/v1/compliance/check.
func (s *Server) CheckCompliance(w http.ResponseWriter, r *http.Request) {
	var req contractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body: "+err.Error())
		return
	}

	analysis, err := s.workflowSvc.CheckCompliance(r.Context(), req.Text, req.ContractType)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, analysisToJSON(analysis))
}

// batchRequest is the JSON body of POST /api/v1/compliance/batch.
type batchRequest struct {
	Items []struct {
		ID           string `json:"id"`
		Text         string `json:"text"`
		ContractType string `json:"contract_type"`
	} `json:"items"`
}

// CheckComplianceBatch handles POST /api/v1/compliance/batch.
func (s *Server) CheckComplianceBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(req.Items) == 0 {
		writeError(w, http.StatusBadRequest, codeValidation, "items are required")
		return
	}

	items := make([]workflow.BatchItem, len(req.Items))
	for i, item := range req.Items {
		items[i] = workflow.BatchItem{ID: item.ID, Text: item.Text, ContractType: item.ContractType}
	}

	results := s.workflowSvc.CheckComplianceBatch(r.Context(), items)

	type batchResultItem struct {
		ID     string         `json:"id"`
		Status string         `json:"status"`
		Output string         `json:"output,omitempty"`
		Error  *ErrorResponse `json:"error,omitempty"`
	}
	out := make([]batchResultItem, len(results))
	for i, res := range results {
		item := batchResultItem{
			ID:     res.ID(),
			Status: string(res.Status()),
			Output: res.Output(),
		}
		if res.Err() != nil {
			item.Error = &ErrorResponse{
				Code:    batchErrorCode(res.Err()),
				Message: safeDomainMessage(res.Err()),
			}
		}
		out[i] = item
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": out})
}

// SuggestClauses handles POST /api/v1/clauses/suggest.
func (s *Server) SuggestClauses(w http.ResponseWriter, r *http.Request) {
	var req contractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body: "+err.Error())
		return
	}

	analysis, err := s.workflowSvc.SuggestMissingClauses(r.Context(), req.Text, req.ContractType)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, analysisToJSON(analysis))
}

// generateRequest is the JSON body of POST /api/v1/contracts/generate.
type generateRequest struct {
	Params          map[string]string `json:"params"`
	ContractType    string            `json:"contract_type"`
	IncludeOptional *bool             `json:"include_optional_clauses"`
}

// GenerateContract handles POST /api/v1/contracts/generate.
func (s *Server) GenerateContract(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body: "+err.Error())
		return
	}

	includeOptional := true
	if req.IncludeOptional != nil {
		includeOptional = *req.IncludeOptional
	}

	result, err := s.workflowSvc.GenerateContract(r.Context(), req.Params, req.ContractType, includeOptional)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"contract":         result.Contract,
		"word_count":       result.WordCount,
		"contract_type":    result.ContractType,
		"policies_checked": result.PoliciesChecked,
		"chunks_used":      result.ChunksUsed,
		"provenance":       provenanceToJSON(result.Provenance),
	})
}

// GrammarCheck handles POST /api/v1/contracts/grammar-check.
func (s *Server) GrammarCheck(w http.ResponseWriter, r *http.Request) {
	var req contractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body: "+err.Error())
		return
	}

	analysis, err := s.workflowSvc.GrammarCheck(r.Context(), req.Text)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"analysis": analysis.Output})
}

// FixContract handles POST /api/v1/contracts/fix.
func (s *Server) FixContract(w http.ResponseWriter, r *http.Request) {
	var req contractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body: "+err.Error())
		return
	}

	analysis, err := s.workflowSvc.FixContract(r.Context(), req.Text, req.ContractType)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"fixed_contract":   analysis.Output,
		"policies_checked": analysis.PoliciesChecked,
		"chunks_used":      analysis.ChunksUsed,
		"provenance":       provenanceToJSON(analysis.Provenance),
	})
}

// workflowRequest is the JSON body of POST /api/v1/workflow.
type workflowRequest struct {
	Draft        string `json:"draft"`
	ContractType string `json:"contract_type"`
}

// FullWorkflow handles POST /api/v1/workflow.
func (s *Server) FullWorkflow(w http.ResponseWriter, r *http.Request) {
	var req workflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body: "+err.Error())
		return
	}

	result, err := s.workflowSvc.FullWorkflow(r.Context(), req.Draft, req.ContractType)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	type stageRecord struct {
		Stage  string `json:"stage"`
		Output string `json:"output"`
	}
	stages := make([]stageRecord, len(result.Stages))
	for i, st := range result.Stages {
		stages[i] = stageRecord{Stage: string(st.Stage), Output: st.Output}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"final_contract":    result.FinalContract,
		"compliance_report": result.ComplianceReport,
		"stages":            stages,
		"provenance":        provenanceToJSON(result.Provenance),
	})
}

// Healthz handles GET /healthz.
func (s *Server) Healthz(w http.ResponseWriter, r *http.Request) {
	report := s.healthSvc.Check(r.Context())

	status := http.StatusOK
	if report.Status == health.Unhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{
		"status": report.Status,
		"checks": report.Checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}

// safeDomainMessage returns a sentinel error message for the client without
// exposing internals. Validation details are client input echoes, safe to
// return verbatim.
func safeDomainMessage(err error) string {
	if errors.Is(err, domain.ErrValidation) {
		return err.Error()
	}
	var dup *domain.DuplicateDocumentError
	if errors.As(err, &dup) {
		return dup.Error()
	}
	sentinels := []error{
		domain.ErrDuplicateDocument,
		domain.ErrDocumentNotFound,
		domain.ErrDimensionMismatch,
		domain.ErrUnsupportedFormat,
		domain.ErrExtraction,
		domain.ErrNoRelevantContext,
		domain.ErrExternalServiceTimeout,
		domain.ErrExternalService,
		domain.ErrStorage,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg, stage string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeJSON(w, status, ErrorResponse{Code: code, Message: msg, Stage: stage})
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	stage := string(domain.FailedStage(err))
	for _, h := range s.errorHandlers {
		if h(w, err, msg, stage) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
}

func batchErrorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return codeValidation
	case errors.Is(err, domain.ErrNoRelevantContext):
		return codeNoContext
	case errors.Is(err, domain.ErrExternalServiceTimeout):
		return codeExternalTimeout
	case errors.Is(err, domain.ErrExternalService):
		return codeExternalService
	case errors.Is(err, domain.ErrStorage):
		return codeStorage
	default:
		return codeInternal
	}
}
