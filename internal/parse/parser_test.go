package parse

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/citeguard/citeguard/internal/llm"
	"github.com/citeguard/citeguard/internal/model"
)

// fakeGenerator returns a canned response or error.
type fakeGenerator struct {
	text string
	err  error
}

func (f *fakeGenerator) Name() string { return "fake" }

func (f *fakeGenerator) Generate(ctx context.Context, req llm.GenerateRequest) (*llm.GenerateResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &llm.GenerateResponse{Text: f.text, Model: "fake"}, nil
}

func (f *fakeGenerator) IsAvailable(ctx context.Context) bool { return true }

func TestParse_RegexFullReference(t *testing.T) {
	p := NewParser(nil, nil)
	c := p.Parse(context.Background(), `Smith et al. (2023). "Deep Learning Advances". Journal of AI, 12(3), 45-67. DOI: 10.1234/jai.2023`, false)

	if c.ExtractionMethod != model.ExtractionRegex {
		t.Errorf("expected regex extraction, got %s", c.ExtractionMethod)
	}
	if c.FirstAuthor != "Smith" {
		t.Errorf("expected first author Smith, got %q", c.FirstAuthor)
	}
	if c.Year != "2023" {
		t.Errorf("expected year 2023, got %q", c.Year)
	}
	if c.Title != "Deep Learning Advances" {
		t.Errorf("expected quoted title, got %q", c.Title)
	}
	if c.DOI != "doi:10.1234/jai.2023" {
		t.Errorf("expected normalized DOI, got %q", c.DOI)
	}
	if c.Volume != "12" || c.Issue != "3" {
		t.Errorf("expected volume 12 issue 3, got %q/%q", c.Volume, c.Issue)
	}
	if c.Pages != "45-67" {
		t.Errorf("expected pages 45-67, got %q", c.Pages)
	}
	if c.CitationType != model.CitationTypeJournal {
		t.Errorf("expected type journal, got %s", c.CitationType)
	}
	if !c.HasIdentifier() {
		t.Error("expected HasIdentifier to be true")
	}
}

func TestParse_RegexIdentifierForms(t *testing.T) {
	p := NewParser(nil, nil)

	tests := []struct {
		input string
		doi   string
		arxiv string
		pmid  string
	}{
		{"see https://doi.org/10.1000/xyz for details", "doi:10.1000/xyz", "", ""},
		{"DOI: 10.1038/nature12345", "doi:10.1038/nature12345", "", ""},
		{"preprint at arXiv:1706.03762", "", "arXiv:1706.03762", ""},
		{"available at arxiv.org/abs/2005.14165", "", "arXiv:2005.14165", ""},
		{"PMID: 31978945", "", "", "31978945"},
	}
	for _, tt := range tests {
		c := p.Parse(context.Background(), tt.input, false)
		if c.DOI != tt.doi {
			t.Errorf("%q: expected DOI %q, got %q", tt.input, tt.doi, c.DOI)
		}
		if c.ArxivID != tt.arxiv {
			t.Errorf("%q: expected arXiv %q, got %q", tt.input, tt.arxiv, c.ArxivID)
		}
		if c.PMID != tt.pmid {
			t.Errorf("%q: expected PMID %q, got %q", tt.input, tt.pmid, c.PMID)
		}
	}
}

func TestParse_IdentifierPrefixAppliedOnce(t *testing.T) {
	p := NewParser(nil, nil)
	c := p.Parse(context.Background(), "DOI: 10.1234/example", false)

	if !strings.HasPrefix(c.DOI, "doi:") {
		t.Fatalf("expected doi: prefix, got %q", c.DOI)
	}
	if strings.HasPrefix(strings.TrimPrefix(c.DOI, "doi:"), "doi:") {
		t.Errorf("doi prefix applied twice: %q", c.DOI)
	}
}

func TestParse_IdentifierPrefixCanonicalized(t *testing.T) {
	gen := &fakeGenerator{text: `{"title": "Some Work", "doi": "DOI: 10.1000/ABC", "arxiv_id": "ARXIV:2005.14165", "confidence": 0.9}`}
	p := NewParser(gen, nil)
	c := p.Parse(context.Background(), `"Some Work", DOI: 10.1000/ABC`, true)

	if c.DOI != "doi:10.1000/ABC" {
		t.Errorf("expected lower-cased doi: prefix, got %q", c.DOI)
	}
	if c.ArxivID != "arXiv:2005.14165" {
		t.Errorf("expected canonical arXiv: prefix, got %q", c.ArxivID)
	}
}

func TestParse_MissingTitlePenalty(t *testing.T) {
	p := NewParser(nil, nil)
	c := p.Parse(context.Background(), "(Smith et al., 2019)", false)

	if c.Title != "" {
		t.Fatalf("expected no title, got %q", c.Title)
	}
	if c.FirstAuthor != "Smith" {
		t.Errorf("expected first author Smith, got %q", c.FirstAuthor)
	}
	// 0.3 base + 0.2 author + 0.1 year, then -0.3 for the missing title.
	if c.Confidence < 0.29 || c.Confidence > 0.31 {
		t.Errorf("expected confidence ~0.3, got %.2f", c.Confidence)
	}
}

func TestParse_ConfidenceFloor(t *testing.T) {
	p := NewParser(nil, nil)
	c := p.Parse(context.Background(), "xyzzy", false)

	if c.Confidence < 0.1 {
		t.Errorf("confidence below floor: %.2f", c.Confidence)
	}
	if c.CitationType != model.CitationTypeUnknown {
		t.Errorf("expected unknown type, got %s", c.CitationType)
	}
}

func TestParse_LLMExtraction(t *testing.T) {
	gen := &fakeGenerator{text: `Here is the parsed citation:
{"authors": ["Jane Smith", "Bob Jones"], "first_author": "Jane Smith",
 "title": "Attention Is All You Need", "year": "2017",
 "conference": "NeurIPS", "citation_type": "conference", "confidence": 0.9}`}
	p := NewParser(gen, nil)

	c := p.Parse(context.Background(), "Smith and Jones (2017), Attention Is All You Need, NeurIPS", true)

	if c.ExtractionMethod != model.ExtractionLLM {
		t.Fatalf("expected llm extraction, got %s", c.ExtractionMethod)
	}
	if c.Title != "Attention Is All You Need" {
		t.Errorf("unexpected title %q", c.Title)
	}
	if len(c.Authors) != 2 || c.FirstAuthor != "Jane Smith" {
		t.Errorf("unexpected authors %v / %q", c.Authors, c.FirstAuthor)
	}
	if c.CitationType != model.CitationTypeConference {
		t.Errorf("expected conference type, got %s", c.CitationType)
	}
	// 0.9 plus the completeness boost, capped at 1.0.
	if c.Confidence != 1.0 {
		t.Errorf("expected confidence 1.0, got %.2f", c.Confidence)
	}
}

func TestParse_LLMInvalidYearCleared(t *testing.T) {
	gen := &fakeGenerator{text: `{"title": "Some Work", "year": "23", "confidence": 0.7}`}
	p := NewParser(gen, nil)

	c := p.Parse(context.Background(), "Some Work '23", true)
	if c.Year != "" {
		t.Errorf("expected malformed year cleared, got %q", c.Year)
	}
}

func TestParse_LLMFailureFallsBackToRegex(t *testing.T) {
	tests := []struct {
		name string
		gen  llm.Generator
	}{
		{"generator error", &fakeGenerator{err: errors.New("backend down")}},
		{"non-JSON response", &fakeGenerator{text: "I cannot parse this citation."}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewParser(tt.gen, nil)
			c := p.Parse(context.Background(), "Smith et al. (2023). A study.", true)
			if c.ExtractionMethod != model.ExtractionRegex {
				t.Errorf("expected regex fallback, got %s", c.ExtractionMethod)
			}
			if c.FirstAuthor != "Smith" {
				t.Errorf("fallback lost author extraction: %q", c.FirstAuthor)
			}
		})
	}
}

func TestParse_LLMDisabledSkipsGenerator(t *testing.T) {
	gen := &fakeGenerator{text: `{"title": "Should Not Be Used"}`}
	p := NewParser(gen, nil)

	c := p.Parse(context.Background(), "Jones et al. (2020). Findings.", false)
	if c.ExtractionMethod != model.ExtractionRegex {
		t.Errorf("expected regex extraction with useLLM=false, got %s", c.ExtractionMethod)
	}
}

func TestDecodeJSONObject(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantKey string
		wantErr bool
	}{
		{"bare object", `{"title": "X"}`, "title", false},
		{"prose wrapped", "Sure! Here you go:\n```json\n{\"title\": \"X\"}\n```", "title", false},
		{"braces in strings", `{"title": "curly {brace} inside"}`, "title", false},
		{"no object", "no json here", "", true},
		{"unbalanced", `{"title": "X"`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields, err := decodeJSONObject(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if _, ok := fields[tt.wantKey]; !ok {
				t.Errorf("expected key %q in %v", tt.wantKey, fields)
			}
		})
	}
}

func TestGenerateSearchQueries_Order(t *testing.T) {
	c := model.StructuredCitation{
		OriginalText: "full citation",
		FirstAuthor:  "Smith",
		Title:        "Deep Learning Advances In Natural Language Processing Systems",
		Year:         "2023",
		Journal:      "Journal of AI",
		DOI:          "doi:10.1234/jai.2023",
		ArxivID:      "arXiv:2301.00001",
	}

	queries := GenerateSearchQueries(c)
	if len(queries) != 5 {
		t.Fatalf("expected 5 queries, got %d: %v", len(queries), queries)
	}
	if queries[0] != "doi:10.1234/jai.2023" {
		t.Errorf("expected DOI first, got %q", queries[0])
	}
	if queries[1] != "arXiv:2301.00001" {
		t.Errorf("expected arXiv second, got %q", queries[1])
	}
	if queries[2] != "Smith 2023 Deep Learning Advances In Natural" {
		t.Errorf("unexpected third query %q", queries[2])
	}
	if queries[3] != `"Deep Learning Advances In Natural Language Processing Systems"` {
		t.Errorf("unexpected fourth query %q", queries[3])
	}
	if queries[4] != "Smith 2023" {
		t.Errorf("unexpected fifth query %q", queries[4])
	}
}

func TestGenerateSearchQueries_SparseCitation(t *testing.T) {
	c := model.StructuredCitation{FirstAuthor: "Jones", Year: "2020"}
	queries := GenerateSearchQueries(c)

	if len(queries) != 1 || queries[0] != "Jones 2020" {
		t.Errorf("expected single author-year query, got %v", queries)
	}

	if got := GenerateSearchQueries(model.StructuredCitation{}); len(got) != 0 {
		t.Errorf("expected no queries for empty citation, got %v", got)
	}
}
