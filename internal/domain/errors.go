package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation signals malformed input rejected before any I/O.
	ErrValidation = errors.New("validation failed")
	// ErrDuplicateDocument signals an ingest of already-known content.
	ErrDuplicateDocument = errors.New("document already exists")
	// ErrDocumentNotFound signals a missing document.
	ErrDocumentNotFound = errors.New("document not found")
	// ErrDimensionMismatch signals a vector whose length differs from the corpus dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrStorage signals a durable-store I/O failure.
	ErrStorage = errors.New("storage failure")
	// ErrExternalService signals a hard embedding or LLM provider failure.
	ErrExternalService = errors.New("external service error")
	// ErrExternalServiceTimeout signals a retryable provider timeout.
	ErrExternalServiceTimeout = errors.New("external service timeout")
	// ErrNoRelevantContext signals that retrieval found nothing above the
	// similarity threshold. Soft condition: callers may proceed with an
	// empty-context warning instead of failing.
	ErrNoRelevantContext = errors.New("no relevant policy found")
	// ErrUnsupportedFormat signals a file format the extractor cannot handle.
	ErrUnsupportedFormat = errors.New("unsupported document format")
	// ErrExtraction signals a text extraction failure.
	ErrExtraction = errors.New("text extraction failed")
)

// DuplicateDocumentError wraps ErrDuplicateDocument with the existing hash.
type DuplicateDocumentError struct {
	Hash string
}

func (e *DuplicateDocumentError) Error() string {
	return fmt.Sprintf("%s: hash %s", ErrDuplicateDocument.Error(), e.Hash)
}

func (e *DuplicateDocumentError) Unwrap() error { return ErrDuplicateDocument }

// NewDuplicateDocument creates a duplicate document error for the given content hash.
func NewDuplicateDocument(hash string) error {
	return &DuplicateDocumentError{Hash: hash}
}

// StageError reports which pipeline stage an ingestion or workflow failure
// occurred at. Transitions are one-directional and never retried by the core;
// the caller resubmits.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// NewStageError wraps err with the stage it occurred at.
func NewStageError(stage Stage, err error) error {
	return &StageError{Stage: stage, Err: err}
}

// FailedStage extracts the stage name from an error chain. Returns "" when the
// error did not originate in a staged pipeline.
func FailedStage(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}
