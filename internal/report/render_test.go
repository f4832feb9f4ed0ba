package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/citeguard/citeguard/internal/model"
)

func sampleResults() []model.FactCheckResult {
	return []model.FactCheckResult{
		{
			Citation:   model.CitationSpan{Text: "(Smith et al., 2023)", Type: model.CitationTypeAuthorYear},
			Status:     model.StatusVerified,
			Confidence: 0.9,
			SourcesFound: []model.EvidenceRecord{
				{Title: "A Paper", URL: "https://example.edu/p", Source: "crossref", Confidence: 0.95},
			},
			Explanation:       "Found matching source: A Paper",
			SearchQueriesUsed: []string{"Smith 2023"},
		},
		{
			Citation:    model.CitationSpan{Text: "(Ghost et al., 1999)", Type: model.CitationTypeAuthorYear},
			Status:      model.StatusNotFound,
			Confidence:  0.8,
			Explanation: "No sources found for this citation.",
		},
	}
}

func TestRenderJSON_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out", "report.json")

	rep := New("paper.txt", sampleResults())
	if err := NewRenderer(true).RenderJSON(rep, path); err != nil {
		t.Fatalf("render: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var decoded Report
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Document != "paper.txt" {
		t.Errorf("unexpected document %q", decoded.Document)
	}
	if decoded.Summary.Total != 2 || decoded.Summary.Verified != 1 || decoded.Summary.NotFound != 1 {
		t.Errorf("unexpected summary %+v", decoded.Summary)
	}
	if len(decoded.Results) != 2 {
		t.Errorf("expected 2 results, got %d", len(decoded.Results))
	}
}

func TestRenderMarkdown(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.md")

	rep := New("paper.txt", sampleResults())
	if err := NewRenderer(true).RenderMarkdown(rep, path); err != nil {
		t.Fatalf("render: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	md := string(data)

	for _, want := range []string{
		"# Citation Check: paper.txt",
		"| Verified | 1 |",
		"(Smith et al., 2023)",
		"[A Paper](https://example.edu/p)",
		"`Smith 2023`",
		"**not_found**",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q", want)
		}
	}
}

func TestRenderMarkdown_QueriesOmitted(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.md")

	rep := New("paper.txt", sampleResults())
	if err := NewRenderer(false).RenderMarkdown(rep, path); err != nil {
		t.Fatalf("render: %v", err)
	}
	data, _ := os.ReadFile(path)
	if strings.Contains(string(data), "Queries:") {
		t.Error("expected queries omitted")
	}
}

func TestSlug(t *testing.T) {
	tests := []struct{ in, want string }{
		{"docs/My Paper (final).txt", "My-Paper--final"},
		{"/tmp/x.md", "x"},
		{"???", "report"},
	}
	for _, tt := range tests {
		if got := Slug(tt.in); got != tt.want {
			t.Errorf("Slug(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
