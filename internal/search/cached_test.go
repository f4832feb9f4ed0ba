package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/citeguard/citeguard/internal/cache"
	"github.com/citeguard/citeguard/internal/model"
)

// countingSearcher records how many times Search was invoked.
type countingSearcher struct {
	calls   int
	records []model.EvidenceRecord
	err     error
}

func (s *countingSearcher) Name() string { return "counting" }

func (s *countingSearcher) Search(ctx context.Context, query string, limit int) ([]model.EvidenceRecord, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.records, nil
}

func TestCachedSearcher_HitSkipsBackend(t *testing.T) {
	inner := &countingSearcher{records: []model.EvidenceRecord{
		{Title: "Cached Paper", URL: "https://example.edu/p", Confidence: 0.7},
	}}
	store := cache.NewMemoryCache(time.Minute, time.Minute)
	s := NewCachedSearcher(inner, store, time.Minute, nil)

	for i := 0; i < 3; i++ {
		records, err := s.Search(context.Background(), "some query", 5)
		if err != nil {
			t.Fatalf("search %d: %v", i, err)
		}
		if len(records) != 1 || records[0].Title != "Cached Paper" {
			t.Fatalf("search %d: unexpected records %+v", i, records)
		}
	}
	if inner.calls != 1 {
		t.Errorf("expected 1 backend call, got %d", inner.calls)
	}
}

func TestCachedSearcher_DistinctKeys(t *testing.T) {
	inner := &countingSearcher{}
	store := cache.NewMemoryCache(time.Minute, time.Minute)
	s := NewCachedSearcher(inner, store, time.Minute, nil)

	_, _ = s.Search(context.Background(), "query a", 5)
	_, _ = s.Search(context.Background(), "query b", 5)
	_, _ = s.Search(context.Background(), "query a", 3) // different limit

	if inner.calls != 3 {
		t.Errorf("expected 3 backend calls for distinct keys, got %d", inner.calls)
	}
}

func TestCachedSearcher_ErrorsNotCached(t *testing.T) {
	inner := &countingSearcher{err: errors.New("backend down")}
	store := cache.NewMemoryCache(time.Minute, time.Minute)
	s := NewCachedSearcher(inner, store, time.Minute, nil)

	for i := 0; i < 2; i++ {
		if _, err := s.Search(context.Background(), "q", 5); err == nil {
			t.Fatal("expected error")
		}
	}
	if inner.calls != 2 {
		t.Errorf("expected errors to bypass the cache, got %d calls", inner.calls)
	}

	// Backend recovers; the next call succeeds and is cached.
	inner.err = nil
	inner.records = []model.EvidenceRecord{{Title: "Back", URL: "https://example.com"}}
	if _, err := s.Search(context.Background(), "q", 5); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := s.Search(context.Background(), "q", 5); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.calls != 3 {
		t.Errorf("expected recovery result to be cached, got %d calls", inner.calls)
	}
}

func TestCacheKey_Stable(t *testing.T) {
	if cache.Key("q", 5) != cache.Key("q", 5) {
		t.Error("expected identical keys for identical inputs")
	}
	if cache.Key("q", 5) == cache.Key("q", 6) {
		t.Error("expected limit to participate in the key")
	}
}
