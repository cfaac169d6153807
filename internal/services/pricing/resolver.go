package pricing

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/interfaces"
	"github.com/bobmcallan/folio/internal/models"
)

// Resolver implements interfaces.PriceResolver with a "most recent price at
// or before date" policy. Cash lines always price at 1 in their currency.
type Resolver struct {
	store  interfaces.PriceStore
	cache  *HistoryCache
	logger *common.Logger
}

// NewResolver creates a resolver reading through a history cache.
func NewResolver(store interfaces.PriceStore, ttl time.Duration, logger *common.Logger) *Resolver {
	return &Resolver{
		store:  store,
		cache:  NewHistoryCache(store, ttl, logger),
		logger: logger,
	}
}

// Cache exposes the underlying history cache.
func (r *Resolver) Cache() *HistoryCache {
	return r.cache
}

// PriceAt resolves the close at or before date from the cached history.
func (r *Resolver) PriceAt(ctx context.Context, key models.AssetKey, date time.Time) (float64, time.Time, bool, error) {
	if key.IsCash() {
		return 1, models.DateOf(date), true, nil
	}

	bars, err := r.cache.History(ctx, key)
	if err != nil {
		return 0, time.Time{}, false, err
	}

	price, barDate, found := FindCloseAsOf(bars, date)
	return price, barDate, found, nil
}

// Lookup performs an uncached point query against the store. Used when only
// one date is needed per key.
func (r *Resolver) Lookup(ctx context.Context, key models.AssetKey, date time.Time) (float64, bool, error) {
	if key.IsCash() {
		return 1, true, nil
	}
	price, found, err := r.store.PriceAtOrBefore(ctx, key, models.DateOf(date))
	if err != nil {
		return 0, false, fmt.Errorf("%w: price for %s: %w", models.ErrProviderUnavailable, key, err)
	}
	return price, found, nil
}

// FindCloseAsOf binary-searches ascending bars for the last bar whose date is
// at or before asOf.
func FindCloseAsOf(bars []models.PriceBar, asOf time.Time) (float64, time.Time, bool) {
	if len(bars) == 0 {
		return 0, time.Time{}, false
	}

	target := models.DateOf(asOf)
	// first index strictly after target
	idx := sort.Search(len(bars), func(i int) bool {
		return models.DateOf(bars[i].Date).After(target)
	})
	if idx == 0 {
		return 0, time.Time{}, false
	}

	bar := bars[idx-1]
	return bar.Close, models.DateOf(bar.Date), true
}

func sortBars(bars []models.PriceBar) {
	sort.SliceStable(bars, func(i, j int) bool {
		return bars[i].Date.Before(bars[j].Date)
	})
}

var _ interfaces.PriceResolver = (*Resolver)(nil)
