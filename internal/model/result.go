package model

// VerificationStatus is the categorical verdict of matching evidence
// against a citation.
type VerificationStatus string

const (
	StatusVerified     VerificationStatus = "verified"     // Strong corroboration found
	StatusNotFound     VerificationStatus = "not_found"    // No corroborating source
	StatusContradicted VerificationStatus = "contradicted" // Evidence disputes the citation
	StatusPartial      VerificationStatus = "partial"      // Weak or incomplete corroboration
	StatusError        VerificationStatus = "error"        // Pipeline failure for this citation
)

// FactCheckResult is the terminal outcome of verifying one citation.
// Immutable once constructed; one result per input citation.
type FactCheckResult struct {
	Citation          CitationSpan       `json:"citation"`
	Status            VerificationStatus `json:"verification_status"`
	Confidence        float64            `json:"confidence"` // 0.0 to 1.0
	SourcesFound      []EvidenceRecord   `json:"sources_found"`
	Explanation       string             `json:"explanation"`
	SearchQueriesUsed []string           `json:"search_queries_used"`
}

// Verdict is the intermediate classification of a citation against its
// gathered evidence, before it is folded into a FactCheckResult.
type Verdict struct {
	Status      VerificationStatus `json:"status"`
	Confidence  float64            `json:"confidence"`
	Explanation string             `json:"explanation"`
}
