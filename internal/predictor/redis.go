package predictor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/medifusion-server/internal/domain"
)

const redisKeyPrefix = "medifusion:prediction:"

// cachedPrediction is the value stored in Redis.
type cachedPrediction struct {
	Prediction domain.Prediction `json:"prediction"`
	CachedAt   time.Time         `json:"cached_at"`
}

// RedisCache is a PredictionCache backed by Redis.
type RedisCache struct {
	redis      *redis.Client
	defaultTTL time.Duration
}

// NewRedisCache connects to the configured Redis and verifies the connection
func NewRedisCache(ctx context.Context, config domain.CacheConfig) (*RedisCache, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisCacheWithClient(client, config.DefaultTTL), nil
}

// NewRedisCacheWithClient wraps an existing client.
func NewRedisCacheWithClient(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisCache{redis: client, defaultTTL: ttl}
}

// Get implements PredictionCache.
func (c *RedisCache) Get(ctx context.Context, key string) (domain.Prediction, bool, error) {
	val, err := c.redis.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Prediction{}, false, nil
	}
	if err != nil {
		return domain.Prediction{}, false, fmt.Errorf("failed to get cached prediction: %w", err)
	}

	var cached cachedPrediction
	if err := json.Unmarshal(val, &cached); err != nil || cached.Prediction.Validate() != nil {
		// Corrupted entry
		c.redis.Del(ctx, redisKeyPrefix+key)
		return domain.Prediction{}, false, nil
	}
	return cached.Prediction, true, nil
}

// Set implements PredictionCache.
func (c *RedisCache) Set(ctx context.Context, key string, prediction domain.Prediction) error {
	data, err := json.Marshal(cachedPrediction{Prediction: prediction, CachedAt: time.Now()})
	if err != nil {
		return fmt.Errorf("failed to marshal prediction: %w", err)
	}
	return c.redis.Set(ctx, redisKeyPrefix+key, data, c.defaultTTL).Err()
}

// Close closes the Redis client.
func (c *RedisCache) Close() error {
	return c.redis.Close()
}
