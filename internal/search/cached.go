package search

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/citeguard/citeguard/internal/cache"
	"github.com/citeguard/citeguard/internal/model"
)

// CachedSearcher wraps a Searcher with a short-lived result cache, keyed
// by query and limit. Identical citations in a batch hit the backend once.
type CachedSearcher struct {
	inner  Searcher
	cache  cache.Cache
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedSearcher wraps inner with the given cache. A nil logger is
// replaced by a no-op one.
func NewCachedSearcher(inner Searcher, c cache.Cache, ttl time.Duration, logger *zap.Logger) *CachedSearcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &CachedSearcher{inner: inner, cache: c, ttl: ttl, logger: logger}
}

// Name returns the backend identifier
func (s *CachedSearcher) Name() string { return s.inner.Name() }

// Search returns cached records when present, otherwise queries the
// backend and stores the result. Cache failures fall through to the
// backend; backend errors are never cached.
func (s *CachedSearcher) Search(ctx context.Context, query string, limit int) ([]model.EvidenceRecord, error) {
	key := cache.Key(query, limit)

	if data, found := s.cache.Get(key); found {
		var records []model.EvidenceRecord
		if err := json.Unmarshal(data, &records); err == nil {
			s.logger.Debug("search cache hit", zap.String("query", truncateStr(query, 50)))
			return records, nil
		}
		// Stale or corrupt entry, drop it and re-query.
		_ = s.cache.Delete(key)
	}

	records, err := s.inner.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(records); err == nil {
		if err := s.cache.Set(key, data, s.ttl); err != nil {
			s.logger.Debug("search cache write failed", zap.Error(err))
		}
	}
	return records, nil
}
