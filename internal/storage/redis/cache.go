// Package redis implements the valuation cache on Redis.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/interfaces"
	"github.com/bobmcallan/folio/internal/models"
	goredis "github.com/redis/go-redis/v9"
)

const keyPrefix = "folio:valuation:"

// ValuationCache stores JSON-encoded valuations under a key TTL. Expiry is
// housekeeping only; the service still checks freshness on every read.
type ValuationCache struct {
	client *goredis.Client
	ttl    time.Duration
	logger *common.Logger
}

// NewClient connects to Redis and verifies the connection.
func NewClient(cfg *common.RedisConfig) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// NewValuationCache wraps client. A zero ttl keeps entries until overwritten.
func NewValuationCache(client *goredis.Client, ttl time.Duration, logger *common.Logger) *ValuationCache {
	return &ValuationCache{client: client, ttl: ttl, logger: logger}
}

func cacheKey(key models.ValuationKey) string {
	return keyPrefix + key.String()
}

func (c *ValuationCache) Get(ctx context.Context, key models.ValuationKey) (*models.Valuation, error) {
	data, err := c.client.Get(ctx, cacheKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get cached valuation: %w", err)
	}

	var v models.Valuation
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("failed to decode cached valuation %s: %w", key, err)
	}
	return &v, nil
}

func (c *ValuationCache) Put(ctx context.Context, v *models.Valuation) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode valuation: %w", err)
	}
	if err := c.client.Set(ctx, cacheKey(v.Key), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache valuation: %w", err)
	}
	return nil
}

// Close closes the Redis connection
func (c *ValuationCache) Close() error {
	return c.client.Close()
}

var _ interfaces.ValuationCache = (*ValuationCache)(nil)
