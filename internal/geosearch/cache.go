package geosearch

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/example/riderfront/internal/booking/domain"
)

var (
	searchCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "place_search_cache_hits_total",
		Help: "Place searches answered from the Redis cache.",
	})
	searchCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "place_search_cache_misses_total",
		Help: "Place searches that reached the upstream service.",
	})
)

const defaultCachePrefix = "geosearch:q:"

// RedisCache caches search responses. Nominatim's usage policy asks
// heavy users to cache; per-keystroke queries repeat constantly.
type RedisCache struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisCache constructs the cache.
func NewRedisCache(client redis.Cmdable, ttl time.Duration, logger *zap.Logger) *RedisCache {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisCache{client: client, prefix: defaultCachePrefix, ttl: ttl, logger: logger}
}

func (c *RedisCache) key(query string) string {
	return c.prefix + strings.ToLower(strings.TrimSpace(query))
}

// Get returns the cached candidate list for the query.
func (c *RedisCache) Get(ctx context.Context, query string) ([]domain.PlaceCandidate, bool) {
	raw, err := c.client.Get(ctx, c.key(query)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("search cache read failed", zap.Error(err))
		}
		return nil, false
	}
	var candidates []domain.PlaceCandidate
	if err := json.Unmarshal(raw, &candidates); err != nil {
		c.logger.Warn("search cache entry corrupt", zap.Error(err))
		return nil, false
	}
	return candidates, true
}

// Put stores the candidate list with the configured TTL.
func (c *RedisCache) Put(ctx context.Context, query string, candidates []domain.PlaceCandidate) {
	raw, err := json.Marshal(candidates)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, c.key(query), raw, c.ttl).Err(); err != nil {
		c.logger.Warn("search cache write failed", zap.Error(err))
	}
}
