package domain

import (
	"fmt"
	"strings"
)

// DocType classifies an ingested document.
type DocType string

// Known document types.
const (
	DocTypePolicy     DocType = "policy"
	DocTypeVendor     DocType = "vendor"
	DocTypeCompliance DocType = "compliance"
	DocTypeContract   DocType = "contract"
	DocTypeTemplate   DocType = "template"
)

// ParseDocType validates a doc type string. Empty input is allowed and means
// "categorize automatically".
func ParseDocType(s string) (DocType, error) {
	switch DocType(s) {
	case "", DocTypePolicy, DocTypeVendor, DocTypeCompliance, DocTypeContract, DocTypeTemplate:
		return DocType(s), nil
	}
	return "", fmt.Errorf("%w: unknown doc_type %q", ErrValidation, s)
}

// CategorizeDocument guesses a doc type from the filename and extracted text.
// Falls back to policy, matching how uncategorized procurement documents are
// treated downstream.
func CategorizeDocument(filename, text string) DocType {
	lower := strings.ToLower(filename) + " " + strings.ToLower(text)

	switch {
	case containsAny(lower, "template", "boilerplate"):
		return DocTypeTemplate
	case containsAny(lower, "policy", "procedure", "guideline", "standard operating"):
		return DocTypePolicy
	case containsAny(lower, "vendor", "supplier", "rfp", "rfq"):
		return DocTypeVendor
	case containsAny(lower, "compliance", "regulation", "audit", "sox", "gdpr"):
		return DocTypeCompliance
	case containsAny(lower, "contract", "agreement"):
		return DocTypeContract
	}
	return DocTypePolicy
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
