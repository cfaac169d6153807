// Package pricing resolves the best-known price of an asset on a date.
package pricing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/interfaces"
	"github.com/bobmcallan/folio/internal/models"
)

type historyEntry struct {
	bars     []models.PriceBar // ascending by date
	loadedAt time.Time
}

// HistoryCache is an in-process read-through cache of full price histories.
// It is a performance layer only and never decides accounting outcomes.
type HistoryCache struct {
	store  interfaces.PriceStore
	ttl    time.Duration
	now    func() time.Time
	logger *common.Logger

	mu      sync.RWMutex
	entries map[models.AssetKey]historyEntry
	group   singleflight.Group
}

// NewHistoryCache wraps store with a TTL-bounded history cache.
func NewHistoryCache(store interfaces.PriceStore, ttl time.Duration, logger *common.Logger) *HistoryCache {
	return &HistoryCache{
		store:   store,
		ttl:     ttl,
		now:     time.Now,
		logger:  logger,
		entries: make(map[models.AssetKey]historyEntry),
	}
}

// History returns the full bar history of key, loading it on miss.
func (c *HistoryCache) History(ctx context.Context, key models.AssetKey) ([]models.PriceBar, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if ok && common.IsFresh(entry.loadedAt, c.now(), c.ttl) {
		return entry.bars, nil
	}

	// The load is shared by every waiter, so one caller going away must not
	// fail the others.
	loadCtx := context.WithoutCancel(ctx)
	v, err, _ := c.group.Do(key.String(), func() (any, error) {
		bars, err := c.store.PriceHistory(loadCtx, key, time.Time{}, time.Time{})
		if err != nil {
			return nil, fmt.Errorf("%w: price history for %s: %w", models.ErrProviderUnavailable, key, err)
		}
		sortBars(bars)

		c.mu.Lock()
		c.entries[key] = historyEntry{bars: bars, loadedAt: c.now()}
		c.mu.Unlock()

		c.logger.Debug().Str("key", key.String()).Int("bars", len(bars)).Msg("Price history loaded")
		return bars, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]models.PriceBar), nil
}

// Invalidate drops one key, or everything when no key is given.
func (c *HistoryCache) Invalidate(keys ...models.AssetKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(keys) == 0 {
		c.entries = make(map[models.AssetKey]historyEntry)
		return
	}
	for _, k := range keys {
		delete(c.entries, k)
	}
}

// Len returns the number of cached histories.
func (c *HistoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
