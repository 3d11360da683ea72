// Package cache keeps recent search results in Redis, keyed by the
// normalised request. Redis outages degrade to cache misses behind a
// circuit breaker, and concurrent misses for the same key collapse into a
// single execution via singleflight.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/openfts/openfts/internal/searcher/executor"
	"github.com/openfts/openfts/pkg/config"
	pkgredis "github.com/openfts/openfts/pkg/redis"
	"github.com/openfts/openfts/pkg/resilience"
)

const keyPrefix = "search:"

// Key identifies one cacheable search request. Two requests that normalise
// to the same Key are interchangeable, so their results are shared.
type Key struct {
	Query  string
	Fields []string
	Prefix bool
	Limit  int
}

// QueryCache is safe for concurrent use.
type QueryCache struct {
	client  *pkgredis.Client
	cfg     config.RedisConfig
	breaker *resilience.CircuitBreaker
	group   singleflight.Group
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

// New creates a QueryCache over the given Redis client.
func New(client *pkgredis.Client, cfg config.RedisConfig) *QueryCache {
	return &QueryCache{
		client:  client,
		cfg:     cfg,
		breaker: resilience.NewCircuitBreaker("query-cache", resilience.CircuitBreakerConfig{}),
		logger:  slog.Default().With("component", "query-cache"),
	}
}

// Get returns the cached result for key, or (nil, false) on any miss,
// including Redis failures.
func (c *QueryCache) Get(ctx context.Context, key Key) (*executor.SearchResult, bool) {
	redisKey := buildKey(key)
	var data string
	err := c.breaker.Execute(func() error {
		var err error
		data, err = c.client.Get(ctx, redisKey)
		if pkgredis.IsNilError(err) {
			// A plain miss must not trip the breaker.
			data = ""
			return nil
		}
		return err
	})
	if err != nil || data == "" {
		if err != nil && err != resilience.ErrCircuitOpen {
			c.logger.Warn("cache get failed", "key", redisKey, "error", err)
		}
		c.misses.Add(1)
		return nil, false
	}
	var result executor.SearchResult
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		c.logger.Warn("cache unmarshal failed", "key", redisKey, "error", err)
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	result.Cached = true
	return &result, true
}

// Set stores a result. Failures are logged and swallowed: the cache is an
// optimisation, never a dependency.
func (c *QueryCache) Set(ctx context.Context, key Key, result *executor.SearchResult) {
	redisKey := buildKey(key)
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Warn("cache marshal failed", "key", redisKey, "error", err)
		return
	}
	err = c.breaker.Execute(func() error {
		return c.client.Set(ctx, redisKey, data, c.cfg.CacheTTL)
	})
	if err != nil && err != resilience.ErrCircuitOpen {
		c.logger.Warn("cache set failed", "key", redisKey, "error", err)
	}
}

// GetOrCompute returns the cached result for key or computes and caches
// it. The boolean reports whether the result came from the cache.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	key Key,
	computeFn func() (*executor.SearchResult, error),
) (*executor.SearchResult, bool, error) {
	if result, ok := c.Get(ctx, key); ok {
		return result, true, nil
	}
	val, err, _ := c.group.Do(buildKey(key), func() (interface{}, error) {
		if result, ok := c.Get(ctx, key); ok {
			return result, nil
		}
		result, err := computeFn()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, key, result)
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	result := val.(*executor.SearchResult)
	return result, result.Cached, nil
}

// Invalidate drops every cached search result. Called after index mutations
// so stale hits cannot outlive the documents that produced them.
func (c *QueryCache) Invalidate(ctx context.Context) error {
	deleted, err := c.client.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return nil
}

// Stats returns hit and miss counters since process start.
func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// buildKey hashes the normalised request into a fixed-length Redis key.
func buildKey(key Key) string {
	terms := strings.Fields(strings.ToLower(key.Query))
	sort.Strings(terms)
	fields := append([]string(nil), key.Fields...)
	for i := range fields {
		fields[i] = strings.ToLower(fields[i])
	}
	sort.Strings(fields)

	raw := fmt.Sprintf("q=%s|f=%s|p=%t|l=%d",
		strings.Join(terms, ","), strings.Join(fields, ","), key.Prefix, key.Limit)
	sum := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%x", keyPrefix, sum[:16])
}
