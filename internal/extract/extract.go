// Package extract converts uploaded file bytes into plain text for chunking.
package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"github.com/procurekit/policyrag/internal/domain"
)

// Extractor implements domain.Extractor for the formats the service accepts:
// plain text, markdown, and PDF.
type Extractor struct{}

// New creates an Extractor.
func New() *Extractor { return &Extractor{} }

// Extract dispatches on the MIME type (falling back to the filename extension
// embedded in mimeType when the caller passes one like ".pdf").
func (e *Extractor) Extract(ctx context.Context, data []byte, mimeType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("extract: %w", err)
	}

	switch normalize(mimeType) {
	case "text/plain", "text/markdown", "text/csv":
		return extractPlain(data)
	case "application/pdf":
		return extractPDF(data)
	}
	return "", fmt.Errorf("%w: %q", domain.ErrUnsupportedFormat, mimeType)
}

// MIMETypeForFilename maps a filename to the MIME type Extract understands.
// Returns "" for unsupported extensions.
func MIMETypeForFilename(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".txt":
		return "text/plain"
	case ".md", ".markdown":
		return "text/markdown"
	case ".csv":
		return "text/csv"
	case ".pdf":
		return "application/pdf"
	}
	return ""
}

func normalize(mimeType string) string {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	// Strip parameters such as "; charset=utf-8".
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	if strings.HasPrefix(mt, ".") {
		return normalize(MIMETypeForFilename("f" + mt))
	}
	return mt
}

func extractPlain(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: text file is not valid UTF-8", domain.ErrExtraction)
	}
	return string(data), nil
}

func extractPDF(data []byte) (string, error) {
	if len(data) == 0 {
		return "", nil
	}
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: open pdf: %v", domain.ErrExtraction, err)
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("%w: read pdf text: %v", domain.ErrExtraction, err)
	}
	out, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("%w: read pdf text: %v", domain.ErrExtraction, err)
	}
	return string(out), nil
}
