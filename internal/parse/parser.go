// Package parse turns raw citation spans into structured citations using
// a generative extractor with a deterministic regex fallback.
package parse

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/citeguard/citeguard/internal/llm"
	"github.com/citeguard/citeguard/internal/model"
)

// regexConfidenceCap bounds deterministic extraction below the generative
// ceiling of 1.0.
const regexConfidenceCap = 0.8

var (
	doiRe       = regexp.MustCompile(`(?i)doi:\s*(10\.\d+/[^\s,]+)`)
	doiURLRe    = regexp.MustCompile(`doi\.org/(10\.\d+/[^\s)]+)`)
	arxivRe     = regexp.MustCompile(`(?i)arxiv:\s*(\d+\.\d+)`)
	arxivURLRe  = regexp.MustCompile(`arxiv\.org/abs/(\d+\.\d+)`)
	pmidRe      = regexp.MustCompile(`(?i)pmid:\s*(\d+)`)
	yearRe      = regexp.MustCompile(`\b(19|20)\d{2}\b`)
	yearExactRe = regexp.MustCompile(`^(19|20)\d{2}$`)
	etAlRe      = regexp.MustCompile(`([A-Z][a-zA-Z\-]+)(?:,\s*[A-Z]\.?)*\s+et al\.?`)
	byAuthorRe  = regexp.MustCompile(`by\s+([A-Z][a-zA-Z\-]+)`)
	quotedRe    = regexp.MustCompile(`["“]([^"”]+)["”]`)
	pagesRe     = regexp.MustCompile(`(\d+)\s*[-–]\s*(\d+)`)
	volIssueRe  = regexp.MustCompile(`(\d+)\s*\((\d+)\)`)
)

const extractionSystem = "You are a bibliographic parser. You respond with a single JSON object and nothing else."

const extractionPromptFmt = `Parse the following citation into its structured components.
Respond with a JSON object containing these keys:
  "authors" (list of strings), "first_author", "title", "year",
  "journal", "conference", "book_title", "publisher",
  "doi", "arxiv_id", "pmid", "volume", "issue", "pages",
  "citation_type" (one of: journal, article, conference, book, preprint, unknown),
  "confidence" (number 0.0-1.0, your certainty in the extraction).
Omit or use empty strings for components not present in the citation.

Citation: %s`

// Parser converts raw citation text into a StructuredCitation. A nil
// generator (or useLLM=false) means regex-only parsing; parsing never
// fails outright, it degrades to a minimal fallback object.
type Parser struct {
	generator llm.Generator
	logger    *zap.Logger
}

// NewParser creates a citation parser. generator may be nil.
func NewParser(generator llm.Generator, logger *zap.Logger) *Parser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Parser{generator: generator, logger: logger}
}

// Parse extracts structured components from citation text. When useLLM is
// true and a generator is configured, generative extraction is attempted
// first and any failure falls back to regex parsing. Verification must
// never halt because the generative backend is unavailable.
func (p *Parser) Parse(ctx context.Context, citationText string, useLLM bool) (result model.StructuredCitation) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Warn("citation parsing panicked, using fallback",
				zap.String("citation", truncate(citationText, 80)),
				zap.Any("panic", r))
			result = p.fallback(citationText)
		}
	}()

	if useLLM && p.generator != nil {
		structured, err := p.parseWithLLM(ctx, citationText)
		if err == nil {
			return structured
		}
		p.logger.Debug("LLM parsing failed, falling back to regex",
			zap.String("citation", truncate(citationText, 80)),
			zap.Error(err))
	}
	return p.parseWithRegex(citationText)
}

// parseWithLLM asks the generator for a JSON object describing the citation.
func (p *Parser) parseWithLLM(ctx context.Context, citationText string) (model.StructuredCitation, error) {
	resp, err := p.generator.Generate(ctx, llm.GenerateRequest{
		System:      extractionSystem,
		Prompt:      fmt.Sprintf(extractionPromptFmt, citationText),
		Temperature: 0.1,
	})
	if err != nil {
		return model.StructuredCitation{}, fmt.Errorf("generate: %w", err)
	}

	fields, err := decodeJSONObject(resp.Text)
	if err != nil {
		return model.StructuredCitation{}, fmt.Errorf("decode response: %w", err)
	}

	confidence := getFloat(fields, "confidence", 0.8)

	structured := model.StructuredCitation{
		OriginalText:     citationText,
		Authors:          getStringSlice(fields, "authors"),
		FirstAuthor:      getString(fields, "first_author"),
		Title:            getString(fields, "title"),
		Year:             getString(fields, "year"),
		Journal:          getString(fields, "journal"),
		Conference:       getString(fields, "conference"),
		BookTitle:        getString(fields, "book_title"),
		Publisher:        getString(fields, "publisher"),
		DOI:              getString(fields, "doi"),
		ArxivID:          getString(fields, "arxiv_id"),
		PMID:             getString(fields, "pmid"),
		Volume:           getString(fields, "volume"),
		Issue:            getString(fields, "issue"),
		Pages:            getString(fields, "pages"),
		CitationType:     citationTypeFrom(getString(fields, "citation_type")),
		Confidence:       model.Clamp01(confidence),
		ExtractionMethod: model.ExtractionLLM,
	}
	if structured.FirstAuthor == "" && len(structured.Authors) > 0 {
		structured.FirstAuthor = structured.Authors[0]
	}

	return validateAndClean(structured), nil
}

// parseWithRegex extracts components deterministically.
func (p *Parser) parseWithRegex(citationText string) model.StructuredCitation {
	doi := firstGroup(doiRe, citationText)
	if doi == "" {
		doi = firstGroup(doiURLRe, citationText)
	}
	arxivID := firstGroup(arxivRe, citationText)
	if arxivID == "" {
		arxivID = firstGroup(arxivURLRe, citationText)
	}
	pmid := firstGroup(pmidRe, citationText)
	year := yearRe.FindString(citationText)

	title := firstGroup(quotedRe, citationText)
	if title == "" && year != "" {
		title = titleAfterYear(citationText, year)
	}

	firstAuthor := firstGroup(etAlRe, citationText)
	if firstAuthor == "" {
		firstAuthor = firstGroup(byAuthorRe, citationText)
	}
	var authors []string
	if firstAuthor != "" {
		authors = []string{firstAuthor}
	}

	var pages string
	if m := pagesRe.FindStringSubmatch(citationText); m != nil {
		pages = m[1] + "-" + m[2]
	}
	var volume, issue string
	if m := volIssueRe.FindStringSubmatch(citationText); m != nil {
		volume, issue = m[1], m[2]
	}

	confidence := 0.3
	if title != "" {
		confidence += 0.2
	}
	if firstAuthor != "" {
		confidence += 0.2
	}
	if year != "" {
		confidence += 0.1
	}
	if doi != "" || arxivID != "" {
		confidence += 0.2
	}
	if confidence > regexConfidenceCap {
		confidence = regexConfidenceCap
	}

	structured := model.StructuredCitation{
		OriginalText:     citationText,
		Authors:          authors,
		FirstAuthor:      firstAuthor,
		Title:            title,
		Year:             year,
		DOI:              doi,
		ArxivID:          arxivID,
		PMID:             pmid,
		Volume:           volume,
		Issue:            issue,
		Pages:            pages,
		CitationType:     classifyRegex(citationText, doi, arxivID),
		Confidence:       confidence,
		ExtractionMethod: model.ExtractionRegex,
	}
	return validateAndClean(structured)
}

// fallback builds the minimal structured object for citations nothing
// could parse.
func (p *Parser) fallback(citationText string) model.StructuredCitation {
	return model.StructuredCitation{
		OriginalText:     citationText,
		CitationType:     model.CitationTypeUnknown,
		Confidence:       0.3,
		ExtractionMethod: model.ExtractionFallback,
	}
}

// classifyRegex determines the citation type from keyword and identifier
// presence: preprint > article/journal > conference > book > unknown.
func classifyRegex(citationText, doi, arxivID string) model.CitationType {
	lower := strings.ToLower(citationText)
	switch {
	case arxivID != "":
		return model.CitationTypePreprint
	case doi != "":
		if strings.Contains(lower, "journal") || strings.Contains(lower, "proceedings") {
			return model.CitationTypeJournal
		}
		return model.CitationTypeArticle
	case strings.Contains(lower, "conference") || strings.Contains(lower, "symposium"):
		return model.CitationTypeConference
	case strings.Contains(lower, "book") || strings.Contains(lower, "press") ||
		strings.Contains(lower, "publishing") || strings.Contains(lower, "textbook"):
		return model.CitationTypeBook
	default:
		return model.CitationTypeUnknown
	}
}

func citationTypeFrom(s string) model.CitationType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "journal":
		return model.CitationTypeJournal
	case "article":
		return model.CitationTypeArticle
	case "conference":
		return model.CitationTypeConference
	case "book":
		return model.CitationTypeBook
	case "preprint":
		return model.CitationTypePreprint
	case "author_year":
		return model.CitationTypeAuthorYear
	case "doi":
		return model.CitationTypeDOI
	default:
		return model.CitationTypeUnknown
	}
}

// validateAndClean normalizes fields and adjusts confidence. The missing-
// title reduction is applied after the completeness boost so an otherwise
// confident but title-less result is still penalized.
func validateAndClean(c model.StructuredCitation) model.StructuredCitation {
	c.Title = strings.Trim(c.Title, ". ")
	c.FirstAuthor = strings.TrimSpace(c.FirstAuthor)
	c.Year = strings.TrimSpace(c.Year)

	cleaned := c.Authors[:0]
	for _, a := range c.Authors {
		if a = strings.TrimSpace(a); a != "" {
			cleaned = append(cleaned, a)
		}
	}
	c.Authors = cleaned

	if c.Year != "" && !yearExactRe.MatchString(c.Year) {
		c.Year = ""
	}

	// Identifier prefixes are canonicalized regardless of the casing the
	// extraction produced.
	if c.DOI != "" {
		if strings.HasPrefix(strings.ToLower(c.DOI), "doi:") {
			c.DOI = c.DOI[len("doi:"):]
		}
		c.DOI = "doi:" + strings.TrimSpace(c.DOI)
	}
	if c.ArxivID != "" {
		if strings.HasPrefix(strings.ToLower(c.ArxivID), "arxiv:") {
			c.ArxivID = c.ArxivID[len("arxiv:"):]
		}
		c.ArxivID = "arXiv:" + strings.TrimSpace(c.ArxivID)
	}

	if c.Title != "" && c.FirstAuthor != "" && c.Year != "" {
		c.Confidence = c.Confidence + 0.2
		if c.Confidence > 1.0 {
			c.Confidence = 1.0
		}
	}
	if c.Title == "" {
		c.Confidence = c.Confidence - 0.3
		if c.Confidence < 0.1 {
			c.Confidence = 0.1
		}
	}

	c.Confidence = model.Clamp01(c.Confidence)
	return c
}

// titleAfterYear takes the text following the year token, skips the
// closing punctuation run, and cuts at the next sentence boundary.
func titleAfterYear(citationText, year string) string {
	idx := strings.Index(citationText, year)
	if idx < 0 {
		return ""
	}
	rest := citationText[idx+len(year):]
	rest = strings.TrimLeft(rest, ")].,: ")
	if end := strings.IndexAny(rest, ".?!"); end > 0 {
		rest = rest[:end]
	}
	rest = strings.Trim(rest, ". ,")
	if len(rest) < 4 {
		return ""
	}
	return rest
}

// decodeJSONObject parses text as JSON, falling back to the first
// balanced {...} substring when the response carries surrounding prose.
func decodeJSONObject(text string) (map[string]any, error) {
	var fields map[string]any
	if err := json.Unmarshal([]byte(text), &fields); err == nil {
		return fields, nil
	}

	candidate := balancedObject(text)
	if candidate == "" {
		return nil, fmt.Errorf("no JSON object in response")
	}
	if err := json.Unmarshal([]byte(candidate), &fields); err != nil {
		return nil, fmt.Errorf("parse extracted object: %w", err)
	}
	return fields, nil
}

// balancedObject returns the first brace-balanced {...} substring of text,
// ignoring braces inside JSON strings.
func balancedObject(text string) string {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}

func firstGroup(re *regexp.Regexp, s string) string {
	if m := re.FindStringSubmatch(s); len(m) > 1 {
		return m[1]
	}
	return ""
}

func getString(fields map[string]any, key string) string {
	switch v := fields[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

func getStringSlice(fields map[string]any, key string) []string {
	switch v := fields[key].(type) {
	case []any:
		var out []string
		for _, item := range v {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
		return out
	case string:
		if strings.TrimSpace(v) == "" {
			return nil
		}
		return []string{strings.TrimSpace(v)}
	default:
		return nil
	}
}

func getFloat(fields map[string]any, key string, fallback float64) float64 {
	switch v := fields[key].(type) {
	case float64:
		return v
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return fallback
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
