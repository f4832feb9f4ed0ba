package parse

import (
	"fmt"
	"strings"

	"github.com/citeguard/citeguard/internal/model"
)

// maxQueries caps the number of search queries generated per citation.
const maxQueries = 5

// GenerateSearchQueries builds the ranked search queries for a structured
// citation, most specific first: identifiers, then author+year+title
// combinations, then broader fallbacks. The result contains at most
// maxQueries unique non-empty strings in first-seen order.
func GenerateSearchQueries(c model.StructuredCitation) []string {
	var queries []string

	if c.DOI != "" {
		queries = append(queries, c.DOI)
	}
	if c.ArxivID != "" {
		queries = append(queries, c.ArxivID)
	}

	if c.FirstAuthor != "" && c.Year != "" && c.Title != "" {
		snippet := firstWords(c.Title, 5)
		queries = append(queries, fmt.Sprintf("%s %s %s", c.FirstAuthor, c.Year, snippet))
	}

	if c.Title != "" {
		queries = append(queries, fmt.Sprintf("%q", c.Title))
	}

	if c.FirstAuthor != "" && c.Year != "" {
		queries = append(queries, fmt.Sprintf("%s %s", c.FirstAuthor, c.Year))
	}

	if c.Journal != "" && c.Year != "" {
		q := fmt.Sprintf("%s %s", c.Journal, c.Year)
		if c.Title != "" {
			q += " " + firstWords(c.Title, 3)
		}
		queries = append(queries, q)
	}

	return dedupeQueries(queries)
}

// dedupeQueries removes empty and duplicate queries, preserving first-seen
// order, capped at maxQueries.
func dedupeQueries(queries []string) []string {
	seen := make(map[string]bool, len(queries))
	var unique []string
	for _, q := range queries {
		q = strings.TrimSpace(q)
		if q == "" || seen[q] {
			continue
		}
		seen[q] = true
		unique = append(unique, q)
		if len(unique) == maxQueries {
			break
		}
	}
	return unique
}

func firstWords(s string, n int) string {
	words := strings.Fields(s)
	if len(words) > n {
		words = words[:n]
	}
	return strings.Join(words, " ")
}
