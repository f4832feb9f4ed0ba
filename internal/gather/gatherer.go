package gather

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/citeguard/citeguard/internal/model"
	"github.com/citeguard/citeguard/internal/parse"
	"github.com/citeguard/citeguard/internal/search"
)

const (
	defaultMaxQueries      = 4
	defaultResultsPerQuery = 3
	maxRecords             = 5
	maxRawQueryLen         = 150

	// Records with less content than this are worth a page fetch.
	thinContentLen = 100
)

// Gatherer collects evidence records for a structured citation, first by
// resolving identifiers against their registries, then by web search.
type Gatherer struct {
	searcher        search.Searcher
	resolver        search.Resolver
	maxQueries      int
	resultsPerQuery int
	logger          *zap.Logger
}

// Options configures a Gatherer. Zero values select the defaults.
type Options struct {
	MaxQueries      int
	ResultsPerQuery int
	Logger          *zap.Logger
}

// New creates a Gatherer. The searcher may be nil when no search backend
// is configured; identifier resolution still runs. The resolver may be
// nil to disable registry lookups.
func New(searcher search.Searcher, resolver search.Resolver, opts Options) *Gatherer {
	if opts.MaxQueries <= 0 {
		opts.MaxQueries = defaultMaxQueries
	}
	if opts.ResultsPerQuery <= 0 {
		opts.ResultsPerQuery = defaultResultsPerQuery
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Gatherer{
		searcher:        searcher,
		resolver:        resolver,
		maxQueries:      opts.MaxQueries,
		resultsPerQuery: opts.ResultsPerQuery,
		logger:          logger,
	}
}

// Result is the evidence gathered for one citation plus the queries that
// produced it.
type Result struct {
	Records []model.EvidenceRecord
	Queries []string
}

// Gather resolves the citation's identifiers, then searches unless a
// registry lookup already produced a high-confidence record. Backend
// failures are logged and skipped; the returned records are deduplicated
// by URL and sorted best first, at most five.
func (g *Gatherer) Gather(ctx context.Context, citation model.StructuredCitation) (Result, error) {
	var records []model.EvidenceRecord
	var queries []string

	records = append(records, g.resolveIdentifiers(ctx, citation)...)

	if !hasResolvedRecord(records) && g.searcher != nil {
		searched, used := g.searchEvidence(ctx, citation)
		records = append(records, searched...)
		queries = used
	}

	records = dedupeByURL(records)
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Confidence > records[j].Confidence
	})
	if len(records) > maxRecords {
		records = records[:maxRecords]
	}

	g.enrichContent(ctx, records)

	return Result{Records: records, Queries: queries}, nil
}

// enrichContent fetches the page behind the best thin-content record,
// when the search backend can scrape. One fetch per gather at most.
func (g *Gatherer) enrichContent(ctx context.Context, records []model.EvidenceRecord) {
	scraper, ok := g.searcher.(search.Scraper)
	if !ok {
		return
	}
	for i := range records {
		r := &records[i]
		if r.URL == "" || len(r.Content) >= thinContentLen || r.Resolved() {
			continue
		}
		scraped, err := scraper.Scrape(ctx, r.URL)
		if err != nil {
			g.logger.Debug("page scrape failed",
				zap.String("url", r.URL), zap.Error(err))
			return
		}
		if scraped != nil && len(scraped.Content) > len(r.Content) {
			r.Content = scraped.Content
		}
		return
	}
}

// resolveIdentifiers looks up each identifier on the citation. Lookup
// errors degrade to search rather than failing the gather.
func (g *Gatherer) resolveIdentifiers(ctx context.Context, citation model.StructuredCitation) []model.EvidenceRecord {
	if g.resolver == nil {
		return nil
	}

	type lookup struct {
		kind search.IdentifierKind
		id   string
	}
	lookups := []lookup{
		{search.KindDOI, citation.DOI},
		{search.KindArxiv, citation.ArxivID},
		{search.KindPMID, citation.PMID},
	}

	var records []model.EvidenceRecord
	for _, l := range lookups {
		if l.id == "" {
			continue
		}
		record, err := g.resolver.Resolve(ctx, l.kind, l.id)
		if err != nil {
			g.logger.Warn("identifier resolution failed",
				zap.String("kind", string(l.kind)),
				zap.String("id", l.id),
				zap.Error(err))
			continue
		}
		if record != nil {
			records = append(records, *record)
		}
	}
	return records
}

func (g *Gatherer) searchEvidence(ctx context.Context, citation model.StructuredCitation) ([]model.EvidenceRecord, []string) {
	queries := g.buildQueries(citation)

	var records []model.EvidenceRecord
	var used []string
	for _, query := range queries {
		found, err := g.searcher.Search(ctx, query, g.resultsPerQuery)
		if err != nil {
			g.logger.Warn("evidence search failed",
				zap.String("query", query), zap.Error(err))
			continue
		}
		used = append(used, query)
		records = append(records, found...)
	}
	return records, used
}

// buildQueries combines an exact-phrase query for the raw citation text
// with the structured variants, capped at maxQueries.
func (g *Gatherer) buildQueries(citation model.StructuredCitation) []string {
	var queries []string

	raw := strings.TrimSpace(citation.OriginalText)
	if raw != "" {
		if len(raw) > maxRawQueryLen {
			raw = raw[:maxRawQueryLen]
		}
		queries = append(queries, fmt.Sprintf("%q", raw))
	}

	queries = append(queries, parse.GenerateSearchQueries(citation)...)

	seen := make(map[string]bool, len(queries))
	var unique []string
	for _, q := range queries {
		if len(unique) == g.maxQueries {
			break
		}
		if q == "" || seen[q] {
			continue
		}
		seen[q] = true
		unique = append(unique, q)
	}
	return unique
}

// hasResolvedRecord reports whether a registry lookup already produced
// evidence strong enough to skip web search.
func hasResolvedRecord(records []model.EvidenceRecord) bool {
	for _, r := range records {
		if r.Resolved() && r.Confidence > 0.9 {
			return true
		}
	}
	return false
}

// dedupeByURL keeps the first record seen for each URL. Records without
// a URL are always kept.
func dedupeByURL(records []model.EvidenceRecord) []model.EvidenceRecord {
	seen := make(map[string]bool, len(records))
	var unique []model.EvidenceRecord
	for _, r := range records {
		if r.URL != "" {
			if seen[r.URL] {
				continue
			}
			seen[r.URL] = true
		}
		unique = append(unique, r)
	}
	return unique
}
