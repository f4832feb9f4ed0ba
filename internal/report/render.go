package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/citeguard/citeguard/internal/model"
	"github.com/citeguard/citeguard/internal/service"
)

// Report is the rendered outcome of fact-checking one document.
type Report struct {
	Document  string                  `json:"document"`
	CheckedAt time.Time               `json:"checked_at"`
	Summary   service.Summary         `json:"summary"`
	Results   []model.FactCheckResult `json:"results"`
}

// New builds a report for a document from its verification results.
func New(document string, results []model.FactCheckResult) *Report {
	return &Report{
		Document:  document,
		CheckedAt: time.Now().UTC(),
		Summary:   service.Summarize(results),
		Results:   results,
	}
}

// Renderer writes reports as JSON and Markdown.
type Renderer struct {
	includeQueries bool
}

// NewRenderer creates a renderer. includeQueries controls whether the
// Markdown output lists the search queries used per citation.
func NewRenderer(includeQueries bool) *Renderer {
	return &Renderer{includeQueries: includeQueries}
}

// RenderJSON writes the report as indented JSON. Path "-" writes to
// stdout.
func (r *Renderer) RenderJSON(rep *Report, path string) error {
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	data = append(data, '\n')

	if path == "-" {
		_, err = os.Stdout.Write(data)
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// RenderMarkdown writes a human-readable report. Path "-" writes to
// stdout.
func (r *Renderer) RenderMarkdown(rep *Report, path string) error {
	content := r.markdown(rep)

	if path == "-" {
		_, err := os.Stdout.WriteString(content)
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

func (r *Renderer) markdown(rep *Report) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Citation Check: %s\n\n", rep.Document)
	fmt.Fprintf(&b, "Checked: %s\n\n", rep.CheckedAt.Format(time.RFC3339))

	s := rep.Summary
	b.WriteString("## Summary\n\n")
	fmt.Fprintf(&b, "| Status | Count |\n|---|---|\n")
	fmt.Fprintf(&b, "| Total | %d |\n", s.Total)
	fmt.Fprintf(&b, "| Verified | %d |\n", s.Verified)
	fmt.Fprintf(&b, "| Partial | %d |\n", s.Partial)
	fmt.Fprintf(&b, "| Not found | %d |\n", s.NotFound)
	if s.Contradicted > 0 {
		fmt.Fprintf(&b, "| Contradicted | %d |\n", s.Contradicted)
	}
	if s.Errors > 0 {
		fmt.Fprintf(&b, "| Errors | %d |\n", s.Errors)
	}
	b.WriteString("\n")

	if len(rep.Results) > 0 {
		b.WriteString("## Citations\n\n")
	}
	for i, result := range rep.Results {
		fmt.Fprintf(&b, "### %d. %s %s\n\n", i+1, statusIcon(result.Status), mdEscape(result.Citation.Text))
		fmt.Fprintf(&b, "- Status: **%s** (confidence %.2f)\n", result.Status, result.Confidence)
		fmt.Fprintf(&b, "- Type: %s\n", result.Citation.Type)
		if result.Explanation != "" {
			fmt.Fprintf(&b, "- %s\n", result.Explanation)
		}
		if len(result.SourcesFound) > 0 {
			b.WriteString("- Sources:\n")
			for _, src := range result.SourcesFound {
				fmt.Fprintf(&b, "  - [%s](%s) (%s, %.2f)\n", mdEscape(src.Title), src.URL, src.Source, src.Confidence)
			}
		}
		if r.includeQueries && len(result.SearchQueriesUsed) > 0 {
			b.WriteString("- Queries:\n")
			for _, q := range result.SearchQueriesUsed {
				fmt.Fprintf(&b, "  - `%s`\n", q)
			}
		}
		b.WriteString("\n")
	}

	return b.String()
}

func statusIcon(status model.VerificationStatus) string {
	switch status {
	case model.StatusVerified:
		return "✓"
	case model.StatusPartial:
		return "~"
	case model.StatusContradicted:
		return "✗"
	case model.StatusError:
		return "!"
	default:
		return "?"
	}
}

func mdEscape(s string) string {
	replacer := strings.NewReplacer("|", "\\|", "[", "\\[", "]", "\\]", "\n", " ")
	return replacer.Replace(s)
}

// Slug derives a filesystem-safe report name from a document path.
func Slug(document string) string {
	base := filepath.Base(document)
	if ext := filepath.Ext(base); ext != "" {
		base = base[:len(base)-len(ext)]
	}
	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		slug = "report"
	}
	if len(slug) > 100 {
		slug = slug[:100]
	}
	return slug
}
