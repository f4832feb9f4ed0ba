// Package search provides web search and identifier resolution backends
// used to gather evidence for citations.
package search

import (
	"context"

	"github.com/citeguard/citeguard/internal/model"
)

// Searcher executes a free-text query against a search backend and returns
// candidate evidence records, best first. Implementations may return an
// empty slice; they should not fabricate records.
type Searcher interface {
	// Name returns the backend identifier
	Name() string

	// Search runs one query, returning at most limit records
	Search(ctx context.Context, query string, limit int) ([]model.EvidenceRecord, error)
}

// IdentifierKind names a canonical registry namespace.
type IdentifierKind string

const (
	KindDOI   IdentifierKind = "doi"
	KindArxiv IdentifierKind = "arxiv"
	KindPMID  IdentifierKind = "pmid"
)

// Scraper fetches a page directly and extracts its visible text as an
// evidence record. Searchers that can fetch result pages implement this
// in addition to Searcher.
type Scraper interface {
	Scrape(ctx context.Context, pageURL string) (*model.EvidenceRecord, error)
}

// Resolver looks up a known identifier via its canonical registry, as
// opposed to free-text search. A (nil, nil) return means the identifier
// did not resolve; an error means the lookup itself failed.
type Resolver interface {
	Resolve(ctx context.Context, kind IdentifierKind, id string) (*model.EvidenceRecord, error)
}
