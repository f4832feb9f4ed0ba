package score

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"go.uber.org/zap"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/citeguard/citeguard/internal/llm"
	"github.com/citeguard/citeguard/internal/model"
)

// Field weights for match scoring. When a citation lacks a field, its
// weight is dropped and the rest are renormalized.
const (
	titleWeight  = 0.4
	authorWeight = 0.3
	yearWeight   = 0.2
	venueWeight  = 0.1
)

// Classification thresholds on the best match score.
const (
	verifiedThreshold = 0.7
	partialThreshold  = 0.4
)

// Matcher scores evidence records against a structured citation and
// classifies the overall verification outcome.
type Matcher struct {
	generator llm.Generator
	logger    *zap.Logger
}

// NewMatcher creates a matcher. The generator may be nil, which disables
// the generative second opinion on low-confidence verdicts.
func NewMatcher(generator llm.Generator, logger *zap.Logger) *Matcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Matcher{generator: generator, logger: logger}
}

// Score rates how well one evidence record supports the citation, in
// [0,1]. Only fields present on the citation participate; the weighted
// sum is renormalized over those fields and scaled by the record's own
// reliability.
func (m *Matcher) Score(citation model.StructuredCitation, record model.EvidenceRecord) float64 {
	recordText := normalizeText(record.Title + " " + record.Content)

	var score, totalWeight float64

	if citation.Title != "" {
		score += titleWeight * titleSimilarity(citation.Title, record.Title)
		totalWeight += titleWeight
	}
	if len(citation.Authors) > 0 || citation.FirstAuthor != "" {
		score += authorWeight * authorOverlap(citation, record, recordText)
		totalWeight += authorWeight
	}
	if citation.Year != "" {
		score += yearWeight * yearMatch(citation.Year, record, recordText)
		totalWeight += yearWeight
	}
	if venue := citationVenue(citation); venue != "" {
		score += venueWeight * venueMatch(venue, record, recordText)
		totalWeight += venueWeight
	}

	if totalWeight == 0 {
		return 0
	}
	score /= totalWeight

	// A strong match against a weak record should not outrank a decent
	// match against a registry record.
	reliability := 0.5 + 0.5*record.Confidence
	return model.Clamp01(score * reliability)
}

// Title component scores as fractions of the title weight. A substring
// match in either direction earns 0.25 of the 0.4 weight; word overlap
// is capped at 0.3 of it.
const (
	substringTitleScore = 0.625
	overlapTitleCap     = 0.75
)

// titleSimilarity compares folded titles. Only equality earns the full
// component; a substring relation and partial word overlap earn less, so
// a title-only citation cannot verify on containment alone.
func titleSimilarity(citationTitle, recordTitle string) float64 {
	wantTitle := normalizeText(citationTitle)
	gotTitle := normalizeText(recordTitle)
	if wantTitle == "" || gotTitle == "" {
		return 0
	}
	if wantTitle == gotTitle {
		return 1
	}
	if strings.Contains(gotTitle, wantTitle) || strings.Contains(wantTitle, gotTitle) {
		return substringTitleScore
	}

	wantWords := wordSet(wantTitle)
	gotWords := wordSet(gotTitle)
	if len(wantWords) == 0 {
		return 0
	}
	matched := 0
	for w := range wantWords {
		if gotWords[w] {
			matched++
		}
	}
	overlap := float64(matched) / float64(len(wantWords))
	if overlap > overlapTitleCap {
		overlap = overlapTitleCap
	}
	return overlap
}

// authorOverlap is the fraction of cited author surnames found in the
// record's title, content or author metadata.
func authorOverlap(citation model.StructuredCitation, record model.EvidenceRecord, recordText string) float64 {
	names := citation.Authors
	if len(names) == 0 {
		names = []string{citation.FirstAuthor}
	}

	haystack := recordText
	if authors, ok := record.Metadata["authors"]; ok {
		haystack += " " + normalizeText(authors)
	}

	matched, total := 0, 0
	for _, name := range names {
		surname := normalizeText(surnameOf(name))
		if surname == "" {
			continue
		}
		total++
		if strings.Contains(haystack, surname) {
			matched++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(matched) / float64(total)
}

func yearMatch(year string, record model.EvidenceRecord, recordText string) float64 {
	if record.Metadata["year"] == year {
		return 1
	}
	if strings.Contains(recordText, year) {
		return 1
	}
	return 0
}

func venueMatch(venue string, record model.EvidenceRecord, recordText string) float64 {
	wanted := normalizeText(venue)
	if wanted == "" {
		return 0
	}
	if strings.Contains(recordText, wanted) {
		return 1
	}
	if got, ok := record.Metadata["venue"]; ok && strings.Contains(normalizeText(got), wanted) {
		return 1
	}
	return 0
}

func citationVenue(c model.StructuredCitation) string {
	switch {
	case c.Journal != "":
		return c.Journal
	case c.Conference != "":
		return c.Conference
	case c.BookTitle != "":
		return c.BookTitle
	}
	return ""
}

// surnameOf extracts the family name from "First Last", "Last, F." or a
// bare surname.
func surnameOf(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	if idx := strings.Index(name, ","); idx >= 0 {
		return strings.TrimSpace(name[:idx])
	}
	fields := strings.Fields(name)
	return fields[len(fields)-1]
}

// foldTransformer strips combining marks so accented and plain spellings
// of a name compare equal.
var foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// normalizeText lowercases, folds diacritics and collapses punctuation
// to spaces.
func normalizeText(s string) string {
	folded, _, err := transform.String(foldTransformer, s)
	if err != nil {
		folded = s
	}
	var buf strings.Builder
	buf.Grow(len(folded))
	for _, r := range strings.ToLower(folded) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			buf.WriteRune(r)
		} else {
			buf.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(buf.String()), " ")
}

var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "for": true, "in": true,
	"of": true, "on": true, "the": true, "to": true, "with": true,
}

func wordSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(s) {
		if len(w) > 1 && !stopWords[w] {
			set[w] = true
		}
	}
	return set
}

// Classify turns the gathered evidence into a verdict. A registry-resolved
// record is decisive on its own; otherwise the best match score against
// the records sets the status, with a generative second opinion when the
// deterministic verdict is uncertain.
func (m *Matcher) Classify(ctx context.Context, citation model.StructuredCitation, records []model.EvidenceRecord) model.Verdict {
	if len(records) == 0 {
		return model.Verdict{
			Status:      model.StatusNotFound,
			Confidence:  0.8,
			Explanation: "No sources found for this citation.",
		}
	}

	for _, r := range records {
		if r.Resolved() && r.Confidence > 0.9 {
			return model.Verdict{
				Status:      model.StatusVerified,
				Confidence:  r.Confidence,
				Explanation: fmt.Sprintf("Identifier resolved via %s: %s", r.Source, r.Title),
			}
		}
	}

	best, bestScore := records[0], 0.0
	for _, r := range records {
		if s := m.Score(citation, r); s > bestScore {
			best, bestScore = r, s
		}
	}

	verdict := m.deterministicVerdict(best, bestScore)

	if verdict.Confidence < verifiedThreshold && m.generator != nil && m.generator.IsAvailable(ctx) {
		if override, ok := m.generativeVerdict(ctx, citation, records); ok {
			return override
		}
	}
	return verdict
}

func (m *Matcher) deterministicVerdict(best model.EvidenceRecord, bestScore float64) model.Verdict {
	switch {
	case bestScore > verifiedThreshold:
		confidence := bestScore + 0.1
		if confidence > 0.9 {
			confidence = 0.9
		}
		return model.Verdict{
			Status:      model.StatusVerified,
			Confidence:  confidence,
			Explanation: fmt.Sprintf("Found matching source: %s", best.Title),
		}
	case bestScore > partialThreshold:
		return model.Verdict{
			Status:      model.StatusPartial,
			Confidence:  bestScore,
			Explanation: fmt.Sprintf("Found partially matching source: %s", best.Title),
		}
	default:
		return model.Verdict{
			Status:      model.StatusNotFound,
			Confidence:  0.6,
			Explanation: "Sources found but none match the citation closely.",
		}
	}
}
