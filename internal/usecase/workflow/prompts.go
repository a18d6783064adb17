package workflow

import "fmt"

func compliancePrompt(policyContext, contractText string) string {
	return fmt.Sprintf(`You are a procurement compliance expert. Analyze the following contract text against the provided procurement policies.

PROCUREMENT POLICIES:
%s

CONTRACT TEXT TO ANALYZE:
%s

Please provide a detailed compliance analysis with:

1. COMPLIANCE STATUS: Overall assessment (Compliant/Non-Compliant/Partially Compliant)

2. VIOLATIONS: List any specific policy violations or non-compliant sections with:
   - The violated policy requirement
   - The problematic section in the contract
   - Severity (Critical/High/Medium/Low)

3. MISSING CLAUSES: Identify required clauses that are missing based on policies:
   - Clause name
   - Why it's required
   - Policy reference

4. RECOMMENDATIONS: Specific suggestions to achieve compliance

Format your response as a structured analysis that's easy to parse.`, policyContext, contractText)
}

func missingClausesPrompt(policyContext, contractText string) string {
	return fmt.Sprintf(`You are a procurement legal expert. Review the contract text and identify missing clauses based on the provided procurement policies.

PROCUREMENT POLICIES:
%s

CURRENT CONTRACT TEXT:
%s

Analyze what's missing and provide:

1. MISSING CRITICAL CLAUSES: Essential clauses that MUST be included
   - Clause title
   - Purpose and importance
   - Template/example text
   - Policy reference

2. MISSING RECOMMENDED CLAUSES: Important but not critical clauses
   - Clause title
   - Benefits of inclusion
   - Template/example text

3. ENHANCEMENT SUGGESTIONS: Ways to strengthen existing clauses
   - Current clause reference
   - Suggested improvements
   - Rationale

Provide detailed, actionable suggestions with example text for each missing clause.`, policyContext, contractText)
}

func generateContractPrompt(policyContext, params, contractType string, includeOptional bool) string {
	optional := "only mandatory clauses"
	if includeOptional {
		optional = "optional recommended clauses"
	}

	return fmt.Sprintf(`You are an expert procurement contract drafter. Generate a complete, legally sound contract based on the provided parameters and the procurement policies.

PROCUREMENT POLICIES AND REQUIREMENTS:
%s

CONTRACT PARAMETERS:
%s

CONTRACT TYPE: %s

Generate a comprehensive contract that:

1. Follows all procurement policies and compliance requirements from the provided documents
2. Includes all mandatory clauses (payment terms, termination, liability, warranties, etc.)
3. Is professionally formatted with proper sections and numbering
4. Uses clear, unambiguous legal language
5. Incorporates the specific parameters provided
6. Includes %s

Structure the contract with:
- Title and Contract Number
- Parties section
- Recitals/Background
- Definitions
- Scope of Work/Services
- Payment Terms
- Term and Termination
- Warranties and Representations
- Liability and Indemnification
- Compliance clauses
- General Provisions
- Signature blocks

Generate the complete contract ready for review and execution.`, policyContext, params, contractType, optional)
}

func grammarCheckPrompt(text string) string {
	return fmt.Sprintf(`You are a professional contract editor. Review the following contract text for grammar, spelling, punctuation and clarity issues.

CONTRACT TEXT:
%s

Provide:

1. ISSUES FOUND: Each issue with the original text, the suggested correction and the issue type (grammar/spelling/punctuation/clarity)

2. OVERALL QUALITY: A brief assessment of the writing quality

Do not change the legal meaning of any clause; flag ambiguous legal language under clarity instead of rewriting it.`, text)
}

func grammarFixPrompt(text string) string {
	return fmt.Sprintf(`You are a professional contract editor. Correct all grammar, spelling and punctuation issues in the following contract text.

CONTRACT TEXT:
%s

Return the complete corrected contract text. Preserve the structure, numbering and legal meaning of every clause; change only the language mechanics.`, text)
}

func fixContractPrompt(policyContext, contractText string) string {
	return fmt.Sprintf(`You are a procurement compliance expert. Rewrite the following contract so it complies with the provided procurement policies.

PROCUREMENT POLICIES:
%s

ORIGINAL CONTRACT:
%s

Generate a complete, corrected contract that addresses all compliance issues and includes all clauses the policies require. Preserve the commercial terms of the original wherever they do not conflict with policy.`, policyContext, contractText)
}
