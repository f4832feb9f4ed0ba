package gather

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/citeguard/citeguard/internal/model"
	"github.com/citeguard/citeguard/internal/search"
)

type fakeSearcher struct {
	calls   []string
	byQuery map[string][]model.EvidenceRecord
	err     error
}

func (s *fakeSearcher) Name() string { return "fake" }

func (s *fakeSearcher) Search(ctx context.Context, query string, limit int) ([]model.EvidenceRecord, error) {
	s.calls = append(s.calls, query)
	if s.err != nil {
		return nil, s.err
	}
	records := s.byQuery[query]
	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

type fakeResolver struct {
	records map[search.IdentifierKind]*model.EvidenceRecord
	err     error
}

func (r *fakeResolver) Resolve(ctx context.Context, kind search.IdentifierKind, id string) (*model.EvidenceRecord, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.records[kind], nil
}

func resolvedRecord(title string, confidence float64) *model.EvidenceRecord {
	return &model.EvidenceRecord{
		Title:      title,
		URL:        "https://doi.org/" + title,
		Confidence: confidence,
		Metadata:   map[string]string{"resolved": "true"},
	}
}

func TestGather_ResolvedIdentifierSkipsSearch(t *testing.T) {
	searcher := &fakeSearcher{}
	resolver := &fakeResolver{records: map[search.IdentifierKind]*model.EvidenceRecord{
		search.KindDOI: resolvedRecord("10.1/x", 0.95),
	}}
	g := New(searcher, resolver, Options{})

	result, err := g.Gather(context.Background(), model.StructuredCitation{
		OriginalText: "Some paper",
		DOI:          "doi:10.1/x",
	})
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(searcher.calls) != 0 {
		t.Errorf("expected search skipped after registry hit, got queries %v", searcher.calls)
	}
	if len(result.Records) != 1 || !result.Records[0].Resolved() {
		t.Errorf("unexpected records %+v", result.Records)
	}
}

func TestGather_SearchWhenNoIdentifier(t *testing.T) {
	searcher := &fakeSearcher{byQuery: map[string][]model.EvidenceRecord{
		`"Smith 2020 study"`: {
			{Title: "A", URL: "https://a.example", Confidence: 0.6},
		},
		"Smith 2020": {
			{Title: "B", URL: "https://b.example", Confidence: 0.9},
			{Title: "A dup", URL: "https://a.example", Confidence: 0.8}, // same URL as above
		},
	}}
	g := New(searcher, nil, Options{})

	result, err := g.Gather(context.Background(), model.StructuredCitation{
		OriginalText: "Smith 2020 study",
		FirstAuthor:  "Smith",
		Year:         "2020",
	})
	if err != nil {
		t.Fatalf("gather: %v", err)
	}

	if len(result.Records) != 2 {
		t.Fatalf("expected URL-deduplicated records, got %+v", result.Records)
	}
	// Sorted by confidence, and the first-seen record for a URL wins.
	if result.Records[0].Title != "B" {
		t.Errorf("expected best record first, got %q", result.Records[0].Title)
	}
	if result.Records[1].Title != "A" {
		t.Errorf("expected first-seen record kept for duplicate URL, got %q", result.Records[1].Title)
	}
	if len(result.Queries) == 0 {
		t.Error("expected queries recorded")
	}
}

func TestGather_QueryCap(t *testing.T) {
	searcher := &fakeSearcher{}
	g := New(searcher, nil, Options{MaxQueries: 2})

	_, err := g.Gather(context.Background(), model.StructuredCitation{
		OriginalText: "Jones et al. (2021). A long survey of everything.",
		FirstAuthor:  "Jones",
		Title:        "A long survey of everything",
		Year:         "2021",
		Journal:      "Annual Reviews",
	})
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(searcher.calls) != 2 {
		t.Errorf("expected 2 queries with MaxQueries=2, got %d: %v", len(searcher.calls), searcher.calls)
	}
}

func TestGather_TopFiveByConfidence(t *testing.T) {
	records := make([]model.EvidenceRecord, 8)
	for i := range records {
		records[i] = model.EvidenceRecord{
			Title:      fmt.Sprintf("r%d", i),
			URL:        fmt.Sprintf("https://example.com/%d", i),
			Confidence: float64(i) / 10.0,
		}
	}
	searcher := &fakeSearcher{byQuery: map[string][]model.EvidenceRecord{
		`"raw text"`: records[:3],
		"Smith 2020": records[3:6],
	}}
	g := New(searcher, nil, Options{ResultsPerQuery: 10})

	result, err := g.Gather(context.Background(), model.StructuredCitation{
		OriginalText: "raw text",
		FirstAuthor:  "Smith",
		Year:         "2020",
	})
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(result.Records) != 5 {
		t.Fatalf("expected 5 records, got %d", len(result.Records))
	}
	for i := 1; i < len(result.Records); i++ {
		if result.Records[i].Confidence > result.Records[i-1].Confidence {
			t.Errorf("records not sorted by confidence: %+v", result.Records)
		}
	}
}

func TestGather_SearchFailureSkipped(t *testing.T) {
	searcher := &fakeSearcher{err: errors.New("network down")}
	g := New(searcher, nil, Options{})

	result, err := g.Gather(context.Background(), model.StructuredCitation{
		OriginalText: "Smith 2020",
		FirstAuthor:  "Smith",
		Year:         "2020",
	})
	if err != nil {
		t.Fatalf("expected gather to tolerate search failures, got %v", err)
	}
	if len(result.Records) != 0 {
		t.Errorf("expected no records, got %+v", result.Records)
	}
	if len(result.Queries) != 0 {
		t.Errorf("failed queries should not be recorded as used, got %v", result.Queries)
	}
}

func TestGather_ResolverFailureDegradesToSearch(t *testing.T) {
	searcher := &fakeSearcher{byQuery: map[string][]model.EvidenceRecord{
		"doi:10.1/x": {{Title: "Found anyway", URL: "https://x.example", Confidence: 0.7}},
	}}
	resolver := &fakeResolver{err: errors.New("registry down")}
	g := New(searcher, resolver, Options{})

	result, err := g.Gather(context.Background(), model.StructuredCitation{
		OriginalText: "doi:10.1/x",
		DOI:          "doi:10.1/x",
	})
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(searcher.calls) == 0 {
		t.Error("expected search to run after resolver failure")
	}
	if len(result.Records) != 1 {
		t.Errorf("unexpected records %+v", result.Records)
	}
}

type scrapingSearcher struct {
	fakeSearcher
	scraped []string
	content string
	err     error
}

func (s *scrapingSearcher) Scrape(ctx context.Context, pageURL string) (*model.EvidenceRecord, error) {
	s.scraped = append(s.scraped, pageURL)
	if s.err != nil {
		return nil, s.err
	}
	return &model.EvidenceRecord{URL: pageURL, Content: s.content}, nil
}

func TestGather_ThinRecordEnrichedByScrape(t *testing.T) {
	searcher := &scrapingSearcher{
		fakeSearcher: fakeSearcher{byQuery: map[string][]model.EvidenceRecord{
			"Smith 2020": {
				{Title: "Thin", URL: "https://thin.example", Content: "short", Confidence: 0.8},
			},
		}},
		content: "A much longer body of visible page text for scoring.",
	}
	g := New(searcher, nil, Options{})

	result, err := g.Gather(context.Background(), model.StructuredCitation{
		FirstAuthor: "Smith",
		Year:        "2020",
	})
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(searcher.scraped) != 1 || searcher.scraped[0] != "https://thin.example" {
		t.Fatalf("expected one scrape of the thin record, got %v", searcher.scraped)
	}
	if result.Records[0].Content != searcher.content {
		t.Errorf("expected content replaced by scraped text, got %q", result.Records[0].Content)
	}
}

func TestGather_ScrapeFailureKeepsRecord(t *testing.T) {
	searcher := &scrapingSearcher{
		fakeSearcher: fakeSearcher{byQuery: map[string][]model.EvidenceRecord{
			"Smith 2020": {
				{Title: "Thin", URL: "https://thin.example", Content: "short", Confidence: 0.8},
			},
		}},
		err: errors.New("blocked"),
	}
	g := New(searcher, nil, Options{})

	result, err := g.Gather(context.Background(), model.StructuredCitation{
		FirstAuthor: "Smith",
		Year:        "2020",
	})
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(result.Records) != 1 || result.Records[0].Content != "short" {
		t.Errorf("expected original record kept after scrape failure, got %+v", result.Records)
	}
}

func TestGather_NilBackends(t *testing.T) {
	g := New(nil, nil, Options{})
	result, err := g.Gather(context.Background(), model.StructuredCitation{OriginalText: "anything"})
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(result.Records) != 0 {
		t.Errorf("expected no records without backends, got %+v", result.Records)
	}
}
