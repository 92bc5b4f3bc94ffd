package providers

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/scoutlabs/researcher/internal/cache"
	"github.com/scoutlabs/researcher/internal/metrics"
	"github.com/scoutlabs/researcher/internal/research"
)

// CachedSearch memoizes SearchClient results so identical
// (channel, query, limit) calls within the TTL window hit the upstream
// provider exactly once. Errors are never cached.
type CachedSearch struct {
	inner  SearchClient
	cache  cache.Cache
	ttl    time.Duration
	logger *zap.Logger
}

func NewCachedSearch(inner SearchClient, c cache.Cache, ttl time.Duration, logger *zap.Logger) *CachedSearch {
	return &CachedSearch{inner: inner, cache: c, ttl: ttl, logger: logger}
}

func (s *CachedSearch) Search(ctx context.Context, channel research.Channel, query string, limit int) ([]SearchResult, error) {
	key := cache.MakeKey("search:"+string(channel), research.NormalizeQuery(query), strconv.Itoa(limit))

	if b, ok := s.cache.Get(ctx, key); ok {
		var results []SearchResult
		if err := json.Unmarshal(b, &results); err == nil {
			metrics.CacheHits.Inc()
			return results, nil
		}
		s.logger.Warn("dropping undecodable cache entry", zap.String("key", key))
	}
	metrics.CacheMisses.Inc()

	results, err := s.inner.Search(ctx, channel, query, limit)
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(results); err == nil {
		s.cache.Set(ctx, key, b, s.ttl)
	}
	return results, nil
}
