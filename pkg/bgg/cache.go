package bgg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss indicates the requested key was not found in cache.
var ErrCacheMiss = errors.New("cache miss")

// Prometheus metrics for cache operations.
var (
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bgg_cache_hits_total",
		Help: "Total thing-response cache hits",
	})

	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bgg_cache_misses_total",
		Help: "Total thing-response cache misses",
	})

	cacheErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bgg_cache_errors_total",
		Help: "Total cache operation errors by operation",
	}, []string{"operation"})
)

// CacheEntry is one cached thing-endpoint response body.
type CacheEntry struct {
	// Data is the raw XML response body
	Data []byte `json:"data"`

	// CachedAt is when the response was stored
	CachedAt time.Time `json:"cached_at"`
}

// Cache stores raw thing responses in Redis with a fixed TTL. The API
// publishes no cache validators, so entries simply age out.
type Cache struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a thing-response cache. ttl must be positive.
func NewCache(redisClient *redis.Client, ttl time.Duration) (*Cache, error) {
	if redisClient == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("cache ttl must be positive (got %v)", ttl)
	}
	return &Cache{redis: redisClient, ttl: ttl}, nil
}

// cacheKey generates a deterministic key for an id set and the fixed
// inclusion flags. Ids are sorted so request order does not fragment
// the cache.
//
// Example: bgg:thing:stats=1:174430,224517
func cacheKey(ids []int64, flags string) string {
	sorted := make([]int64, len(ids))
	copy(sorted, ids)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	parts := make([]string, len(sorted))
	for i, id := range sorted {
		parts[i] = fmt.Sprintf("%d", id)
	}
	return fmt.Sprintf("bgg:thing:%s:%s", flags, strings.Join(parts, ","))
}

// Get retrieves a cached response body. Returns ErrCacheMiss when the
// key is absent or the entry cannot be decoded.
func (c *Cache) Get(ctx context.Context, ids []int64, flags string) (*CacheEntry, error) {
	data, err := c.redis.Get(ctx, cacheKey(ids, flags)).Bytes()
	if err != nil {
		if err == redis.Nil {
			cacheMisses.Inc()
			return nil, ErrCacheMiss
		}
		cacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		cacheErrors.WithLabelValues("get").Inc()
		return nil, ErrCacheMiss
	}

	cacheHits.Inc()
	return &entry, nil
}

// Set stores a response body under the id set's key with the fixed TTL.
func (c *Cache) Set(ctx context.Context, ids []int64, flags string, body []byte) error {
	entry := CacheEntry{Data: body, CachedAt: time.Now()}
	data, err := json.Marshal(entry)
	if err != nil {
		cacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	if err := c.redis.Set(ctx, cacheKey(ids, flags), data, c.ttl).Err(); err != nil {
		cacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
