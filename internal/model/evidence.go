package model

// EvidenceRecord is a candidate external source potentially corroborating
// a structured citation. Records are deduplicated by URL within one
// gathering call, first occurrence wins.
type EvidenceRecord struct {
	Title      string            `json:"title"`
	URL        string            `json:"url"`
	Content    string            `json:"content,omitempty"`
	Source     string            `json:"source,omitempty"`    // Which backend produced it
	Confidence float64           `json:"confidence"`          // 0.0 to 1.0, source reliability
	Metadata   map[string]string `json:"metadata,omitempty"`  // e.g. resolved=true, type=doi
}

// Resolved reports whether the record came from direct identifier
// resolution rather than free-text search.
func (r EvidenceRecord) Resolved() bool {
	return r.Metadata["resolved"] == "true"
}
