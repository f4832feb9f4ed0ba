package score

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/citeguard/citeguard/internal/llm"
	"github.com/citeguard/citeguard/internal/model"
)

const verdictSystem = "You are a citation verification assistant. " +
	"Given a citation and search results, decide whether the results confirm the cited work exists. " +
	"Respond with a JSON object only: " +
	`{"status": "verified"|"partial"|"not_found"|"contradicted", "confidence": 0.0-1.0, "explanation": "one sentence"}`

const (
	verdictMaxRecords    = 3
	verdictContentChars  = 500
	verdictMaxTokens     = 300
	verdictMinConfidence = 0.1
)

// generativeVerdict asks the configured model to adjudicate an uncertain
// deterministic verdict. Returns ok=false when the model fails or answers
// with something unusable, in which case the caller keeps the
// deterministic verdict.
func (m *Matcher) generativeVerdict(ctx context.Context, citation model.StructuredCitation, records []model.EvidenceRecord) (model.Verdict, bool) {
	resp, err := m.generator.Generate(ctx, llm.GenerateRequest{
		System:      verdictSystem,
		Prompt:      verdictPrompt(citation, records),
		MaxTokens:   verdictMaxTokens,
		Temperature: 0,
	})
	if err != nil {
		m.logger.Debug("generative verdict failed", zap.Error(err))
		return model.Verdict{}, false
	}

	verdict, err := parseVerdict(resp.Text)
	if err != nil {
		m.logger.Debug("generative verdict unparseable",
			zap.String("response", truncate(resp.Text, 200)), zap.Error(err))
		return model.Verdict{}, false
	}
	return verdict, true
}

func verdictPrompt(citation model.StructuredCitation, records []model.EvidenceRecord) string {
	var b strings.Builder
	b.WriteString("Citation:\n")
	fmt.Fprintf(&b, "  Text: %s\n", citation.OriginalText)
	if citation.Title != "" {
		fmt.Fprintf(&b, "  Title: %s\n", citation.Title)
	}
	if len(citation.Authors) > 0 {
		fmt.Fprintf(&b, "  Authors: %s\n", strings.Join(citation.Authors, ", "))
	}
	if citation.Year != "" {
		fmt.Fprintf(&b, "  Year: %s\n", citation.Year)
	}
	if v := citationVenue(citation); v != "" {
		fmt.Fprintf(&b, "  Venue: %s\n", v)
	}

	b.WriteString("\nSearch results:\n")
	for i, r := range records {
		if i == verdictMaxRecords {
			break
		}
		fmt.Fprintf(&b, "%d. %s\n   URL: %s\n   %s\n", i+1, r.Title, r.URL, truncate(r.Content, verdictContentChars))
	}

	b.WriteString("\nDoes this citation refer to a real, findable work? Answer with the JSON object only.")
	return b.String()
}

type rawVerdict struct {
	Status      string  `json:"status"`
	Confidence  float64 `json:"confidence"`
	Explanation string  `json:"explanation"`
}

func parseVerdict(text string) (model.Verdict, error) {
	obj := jsonObjectIn(text)
	if obj == "" {
		return model.Verdict{}, fmt.Errorf("no JSON object in response")
	}

	var raw rawVerdict
	if err := json.Unmarshal([]byte(obj), &raw); err != nil {
		return model.Verdict{}, fmt.Errorf("decode verdict: %w", err)
	}

	status := model.VerificationStatus(strings.ToLower(strings.TrimSpace(raw.Status)))
	switch status {
	case model.StatusVerified, model.StatusPartial, model.StatusNotFound, model.StatusContradicted:
	default:
		return model.Verdict{}, fmt.Errorf("unknown status %q", raw.Status)
	}

	confidence := model.Clamp01(raw.Confidence)
	if confidence < verdictMinConfidence {
		confidence = verdictMinConfidence
	}

	return model.Verdict{
		Status:      status,
		Confidence:  confidence,
		Explanation: strings.TrimSpace(raw.Explanation),
	}, nil
}

// jsonObjectIn extracts the first balanced top-level JSON object from
// text, tolerating surrounding prose and code fences.
func jsonObjectIn(text string) string {
	start := strings.Index(text, "{")
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
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

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
