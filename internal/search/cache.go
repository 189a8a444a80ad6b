// Package search exposes a built index over HTTP, with an optional Redis
// query-result cache in front of the scorer.
package search

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/searchforge/diskindex/internal/invindex"
	"github.com/searchforge/diskindex/pkg/config"
	pkgredis "github.com/searchforge/diskindex/pkg/redis"
)

// KeyPrefix namespaces this service's keys in Redis. Rebuild tooling flushes
// the prefix to drop results scored against a previous index.
const KeyPrefix = "bm25:"

// QueryCache caches ranked results in Redis. Identical concurrent misses are
// collapsed through singleflight so the scorer runs once per distinct query.
type QueryCache struct {
	client *pkgredis.Client
	ttl    time.Duration
	group  singleflight.Group
	logger *slog.Logger
	hits   atomic.Int64
	misses atomic.Int64
}

// NewQueryCache wraps a Redis client with the configured TTL.
func NewQueryCache(client *pkgredis.Client, cfg config.RedisConfig) *QueryCache {
	return &QueryCache{
		client: client,
		ttl:    cfg.CacheTTL,
		logger: slog.Default().With("component", "query-cache"),
	}
}

// Get returns the cached results for query, if present.
func (c *QueryCache) Get(ctx context.Context, query string) (invindex.Results, bool) {
	key := c.buildKey(query)
	data, err := c.client.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.misses.Add(1)
		return nil, false
	}
	var results invindex.Results
	if err := json.Unmarshal([]byte(data), &results); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return results, true
}

// Set stores results for query. Cache write failures are logged, not
// surfaced; the ranked results have already been computed.
func (c *QueryCache) Set(ctx context.Context, query string, results invindex.Results) {
	key := c.buildKey(query)
	data, err := json.Marshal(results)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns cached results or runs computeFn once per distinct
// in-flight query. The boolean reports whether the result came from cache.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	query string,
	computeFn func() (invindex.Results, error),
) (invindex.Results, bool, error) {
	if results, ok := c.Get(ctx, query); ok {
		return results, true, nil
	}
	key := c.buildKey(query)
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		if results, ok := c.Get(ctx, query); ok {
			return results, nil
		}
		results, err := computeFn()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, query, results)
		return results, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(invindex.Results), false, nil
}

// Invalidate drops every cached result under this service's prefix.
func (c *QueryCache) Invalidate(ctx context.Context) error {
	deleted, err := c.client.FlushByPattern(ctx, KeyPrefix+"*")
	if err != nil {
		return fmt.Errorf("invalidating query cache: %w", err)
	}
	c.logger.Info("query cache invalidated", "keys_deleted", deleted)
	return nil
}

// Stats returns hit and miss counts since startup.
func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *QueryCache) buildKey(query string) string {
	normalized := normalizeQuery(query)
	hash := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("%s%x", KeyPrefix, hash[:16])
}

// normalizeQuery canonicalises term order and case so reorderings of the
// same bag of words share a cache entry. BM25 scoring is order-independent.
func normalizeQuery(query string) string {
	words := strings.Fields(strings.ToLower(query))
	sort.Strings(words)
	return strings.Join(words, " ")
}
