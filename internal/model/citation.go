package model

// CitationType categorizes how a citation span was recognized
type CitationType string

const (
	CitationTypeAuthorYear CitationType = "author_year" // Parenthetical author-year, e.g. "(Smith et al., 2023)"
	CitationTypeJournal    CitationType = "journal"     // Full journal-style reference
	CitationTypeBook       CitationType = "book"        // Book-style reference or ISBN
	CitationTypeDOI        CitationType = "doi"         // DOI token
	CitationTypePreprint   CitationType = "preprint"    // arXiv token
	CitationTypeArticle    CitationType = "article"     // DOI-bearing reference without journal markers
	CitationTypeConference CitationType = "conference"  // Conference/symposium reference
	CitationTypeURL        CitationType = "url"         // Academic-domain URL
	CitationTypeUnknown    CitationType = "unknown"     // Not classified
)

// ExtractionMethod records which parsing path produced a StructuredCitation
type ExtractionMethod string

const (
	ExtractionLLM      ExtractionMethod = "llm"      // Generative extraction
	ExtractionRegex    ExtractionMethod = "regex"    // Deterministic pattern extraction
	ExtractionFallback ExtractionMethod = "fallback" // Minimal object, all parsing failed
)

// CitationSpan is a located substring of input text believed to reference
// an external work. Offsets satisfy 0 <= Start < End <= len(source).
type CitationSpan struct {
	Text       string       `json:"text"`
	Start      int          `json:"start"`
	End        int          `json:"end"`
	Type       CitationType `json:"type"`
	Confidence float64      `json:"confidence"` // 0.0 to 1.0

	// Best-effort component extraction from the span text only.
	Authors []string `json:"authors,omitempty"`
	Title   string   `json:"title,omitempty"`
	Year    string   `json:"year,omitempty"`
	Venue   string   `json:"venue,omitempty"`
	DOI     string   `json:"doi,omitempty"`
}

// Overlaps reports whether two spans share any character range.
func (s CitationSpan) Overlaps(other CitationSpan) bool {
	return s.Start < other.End && s.End > other.Start
}

// StructuredCitation holds the normalized fields derived from one span.
// It is owned by the verification call that created it.
type StructuredCitation struct {
	OriginalText string   `json:"original_text"`
	Authors      []string `json:"authors"`
	FirstAuthor  string   `json:"first_author"`
	Title        string   `json:"title"`
	Year         string   `json:"year"`
	Journal      string   `json:"journal,omitempty"`
	Conference   string   `json:"conference,omitempty"`
	BookTitle    string   `json:"book_title,omitempty"`
	Publisher    string   `json:"publisher,omitempty"`
	DOI          string   `json:"doi,omitempty"`      // normalized to "doi:" prefix
	ArxivID      string   `json:"arxiv_id,omitempty"` // normalized to "arXiv:" prefix
	PMID         string   `json:"pmid,omitempty"`
	Volume       string   `json:"volume,omitempty"`
	Issue        string   `json:"issue,omitempty"`
	Pages        string   `json:"pages,omitempty"`

	CitationType     CitationType     `json:"citation_type"`
	Confidence       float64          `json:"confidence"` // 0.0 to 1.0
	ExtractionMethod ExtractionMethod `json:"extraction_method"`
}

// HasIdentifier reports whether any unique identifier was extracted.
func (c StructuredCitation) HasIdentifier() bool {
	return c.DOI != "" || c.ArxivID != "" || c.PMID != ""
}

// Clamp01 bounds a confidence value to [0,1]. Every component producing
// confidence scores runs its output through this at the boundary.
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
