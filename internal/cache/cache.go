/**
 * Analysis Result Cache
 *
 * Redis-backed cache of completed analyses keyed by the SHA-256 of the
 * screenshot bytes. Identical screenshots are common (users retry the same
 * failing operation), so a hit skips the whole OCR pipeline. Cache failures
 * are silent; the pipeline just runs.
 */

package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "errorscope:analysis:"

// AnalysisCache stores serialized analysis results in Redis
type AnalysisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewAnalysisCache creates a cache from a Redis URL
func NewAnalysisCache(redisURL string, ttl time.Duration) (*AnalysisCache, error) {
	if redisURL == "" {
		return nil, fmt.Errorf("redis URL is required")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &AnalysisCache{client: client, ttl: ttl}, nil
}

// Key derives the cache key for an image
func Key(imageData []byte) string {
	sum := sha256.Sum256(imageData)
	return keyPrefix + hex.EncodeToString(sum[:])
}

// Get fetches a cached analysis into dest; found reports a hit
func (c *AnalysisCache) Get(ctx context.Context, imageData []byte, dest interface{}) (bool, error) {
	data, err := c.client.Get(ctx, Key(imageData)).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache get failed: %w", err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("failed to decode cached analysis: %w", err)
	}
	return true, nil
}

// Set stores an analysis result with the configured TTL
func (c *AnalysisCache) Set(ctx context.Context, imageData []byte, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode analysis: %w", err)
	}

	if err := c.client.Set(ctx, Key(imageData), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set failed: %w", err)
	}
	return nil
}

// Invalidate removes a cached entry
func (c *AnalysisCache) Invalidate(ctx context.Context, imageData []byte) error {
	return c.client.Del(ctx, Key(imageData)).Err()
}

// Close closes the Redis connection
func (c *AnalysisCache) Close() error {
	return c.client.Close()
}
