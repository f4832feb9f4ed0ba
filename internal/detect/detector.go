// Package detect locates academic citation spans in free-form text.
package detect

import (
	"regexp"
	"sort"
	"strings"

	"github.com/citeguard/citeguard/internal/model"
)

// minConfidence is the false-positive guard: pattern matches scoring below
// it (phone numbers, weekday parentheticals) are discarded.
const minConfidence = 0.3

// contextWindow is the number of characters inspected on each side of a
// match when looking for academic-context keywords.
const contextWindow = 200

// rule is one independent citation pattern with its base confidence.
type rule struct {
	name string
	re   *regexp.Regexp
	base float64
}

var rules = []rule{
	// Parenthetical author-year: (Radford et al., 2018), (Smith & Jones, 2020)
	{"author_year_paren", regexp.MustCompile(`\([^()]*(?:et al\.?|&|\band\b)[^()]*,\s?\d{4}[a-z]?\)`), 0.9},
	// Narrative author-year: Vaswani et al. (2017), Smith and Jones (2023)
	{"author_year_narrative", regexp.MustCompile(`[A-Z][A-Za-z\-']+,?\s+(?:et al\.?|&\s*[A-Z][A-Za-z\-']+|and\s+[A-Z][A-Za-z\-']+)\s*\(\d{4}[a-z]?\)`), 0.9},
	// Full journal reference: Smith, J. (2023). Title. Journal, 12(3), 45-67.
	{"journal", regexp.MustCompile(`[A-Z][a-zA-Z\-']+(?:,\s*[A-Z]\.?)*\.?\s*\(\d{4}[a-z]?\)\.?\s*[^.]+\.\s*[^,.]+,?\s*\d+(?:\(\d+\))?,?\s*\d+[-–—]\d+\.?`), 0.95},
	// Book reference: Author, A. (Year). Book Title. Publisher.
	{"book", regexp.MustCompile(`[A-Z][a-zA-Z\-']+(?:,\s*[A-Z]\.?)*\.?\s*\(\d{4}[a-z]?\)\.?\s*[^.]+\.\s*[^.]+\.`), 0.85},
	// DOI token
	{"doi", regexp.MustCompile(`(?i)doi:\s*10\.\d+/[^\s]+`), 0.99},
	// arXiv token
	{"arxiv", regexp.MustCompile(`(?i)arXiv:\s*\d+\.\d+`), 0.99},
	// ISBN token
	{"isbn", regexp.MustCompile(`(?i)ISBN:?\s*(?:\d{1,5}[-\s]?\d{1,7}[-\s]?\d{1,6}[-\s]?[\dX]|\d{13})`), 0.8},
	// Academic-domain URLs
	{"academic_url", regexp.MustCompile(`https?://(?:www\.)?(?:doi\.org|arxiv\.org|pubmed\.ncbi\.nlm\.nih\.gov|scholar\.google\.com)[^\s]+`), 0.9},
}

// Keyword families that boost confidence when found near a match. Each
// family contributes at most +0.1 regardless of occurrence count.
var keywordFamilies = [][]string{
	{"journal", "proceedings", "conference", "symposium", "review"},
	{"paper", "article", "study", "research", "publication"},
	{"university", "institute", "laboratory", "school", "college"},
	{"peer-reviewed", "peer reviewed", "published", "citation", "bibliography"},
}

var (
	yearRe       = regexp.MustCompile(`\b(19|20)\d{2}\b`)
	properNameRe = regexp.MustCompile(`[A-Z][a-z]+`)
	doiTokenRe   = regexp.MustCompile(`10\.\d+/[^\s,]+`)
	parenYearRe  = regexp.MustCompile(`\([^()]*\d{4}[^()]*\)`)
	authorRes    = []*regexp.Regexp{
		regexp.MustCompile(`[A-Z][a-z]+(?:,\s*[A-Z]\.?)*`), // Last, F.
		regexp.MustCompile(`[A-Z]\.\s*[A-Z][a-z]+`),        // F. Last
	}
)

// Detector scans text for citation spans using pattern rules and
// contextual heuristics. It is stateless and safe for concurrent use.
type Detector struct{}

// NewDetector creates a new citation detector
func NewDetector() *Detector {
	return &Detector{}
}

// Detect returns the non-overlapping citation spans found in text,
// ordered by start offset. Empty or malformed input yields an empty
// result; Detect never fails.
func (d *Detector) Detect(text string) []model.CitationSpan {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var candidates []model.CitationSpan
	for _, r := range rules {
		for _, loc := range r.re.FindAllStringIndex(text, -1) {
			start, end := loc[0], loc[1]
			spanText := strings.TrimSpace(text[start:end])
			if spanText == "" {
				continue
			}

			confidence := d.confidence(spanText, text, start, end, r.base)
			if confidence < minConfidence {
				continue
			}

			span := model.CitationSpan{
				Text:       spanText,
				Start:      start,
				End:        end,
				Type:       classify(spanText),
				Confidence: model.Clamp01(confidence),
			}
			extractComponents(&span)
			candidates = append(candidates, span)
		}
	}

	accepted := resolveOverlaps(candidates)

	sort.Slice(accepted, func(i, j int) bool {
		if accepted[i].Start != accepted[j].Start {
			return accepted[i].Start < accepted[j].Start
		}
		return accepted[i].End < accepted[j].End
	})
	return accepted
}

// confidence computes base + keyword boost + format boost, capped at 1.0.
func (d *Detector) confidence(spanText, fullText string, start, end int, base float64) float64 {
	windowStart := start - contextWindow
	if windowStart < 0 {
		windowStart = 0
	}
	windowEnd := end + contextWindow
	if windowEnd > len(fullText) {
		windowEnd = len(fullText)
	}
	window := strings.ToLower(fullText[windowStart:windowEnd])

	keywordBoost := 0.0
	for _, family := range keywordFamilies {
		for _, kw := range family {
			if strings.Contains(window, kw) {
				keywordBoost += 0.1
				break
			}
		}
	}

	formatBoost := 0.0
	if yearRe.MatchString(spanText) {
		formatBoost += 0.1
	}
	if properNameRe.MatchString(spanText) {
		formatBoost += 0.1
	}
	if len(spanText) > 20 {
		formatBoost += 0.1
	}

	total := base + keywordBoost + formatBoost
	if total > 1.0 {
		total = 1.0
	}
	return total
}

// classify assigns a citation type from the span text alone, independent
// of which rule matched it.
func classify(spanText string) model.CitationType {
	lower := strings.ToLower(spanText)

	switch {
	case strings.Contains(lower, "doi:") || strings.Contains(lower, "doi.org"):
		return model.CitationTypeDOI
	case strings.Contains(lower, "arxiv"):
		return model.CitationTypePreprint
	case strings.Contains(lower, "isbn"):
		return model.CitationTypeBook
	case strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://"):
		return model.CitationTypeURL
	case strings.Contains(lower, "journal") || strings.Contains(lower, "proceedings") || strings.Contains(lower, "conference"):
		return model.CitationTypeJournal
	case parenYearRe.MatchString(spanText):
		return model.CitationTypeAuthorYear
	default:
		return model.CitationTypeUnknown
	}
}

// extractComponents populates the optional author/year/DOI fields from the
// span text. Extraction is best-effort: a component that cannot be found
// is simply left unset.
func extractComponents(span *model.CitationSpan) {
	if m := yearRe.FindString(span.Text); m != "" {
		span.Year = m
	}
	if m := doiTokenRe.FindString(span.Text); m != "" {
		span.DOI = m
	}
	for _, re := range authorRes {
		authors := re.FindAllString(span.Text, -1)
		if len(authors) > 0 {
			if len(authors) > 3 {
				authors = authors[:3]
			}
			span.Authors = authors
			break
		}
	}
}

// resolveOverlaps keeps a greedy maximal-confidence independent set:
// candidates are processed in descending confidence order (stable, so
// ties keep encounter order) and accepted only if they do not overlap an
// already-accepted span. Identical text at distinct offsets survives.
func resolveOverlaps(candidates []model.CitationSpan) []model.CitationSpan {
	if len(candidates) == 0 {
		return nil
	}

	byConfidence := make([]model.CitationSpan, len(candidates))
	copy(byConfidence, candidates)
	sort.SliceStable(byConfidence, func(i, j int) bool {
		return byConfidence[i].Confidence > byConfidence[j].Confidence
	})

	var accepted []model.CitationSpan
	for _, cand := range byConfidence {
		overlaps := false
		for _, sel := range accepted {
			if cand.Overlaps(sel) {
				overlaps = true
				break
			}
		}
		if !overlaps {
			accepted = append(accepted, cand)
		}
	}
	return accepted
}
