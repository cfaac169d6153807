// Package interfaces defines service contracts for Folio
package interfaces

import (
	"context"
	"time"

	"github.com/bobmcallan/folio/internal/models"
)

// StorageManager coordinates all storage backends. It is constructed once at
// process start and closed on shutdown.
type StorageManager interface {
	TradeStore() TradeStore
	PriceStore() PriceStore
	RateStore() RateStore
	ValuationCache() ValuationCache

	// Lifecycle
	Close() error
}

// TradeStore is the trade log. It is the only authoritative state.
type TradeStore interface {
	// ListTrades returns the owner's trades sorted by trade date, then id.
	ListTrades(ctx context.Context, ownerID string) ([]models.Trade, error)

	// GetTrade returns models.ErrNotFound when the trade does not exist.
	GetTrade(ctx context.Context, ownerID string, id int64) (*models.Trade, error)

	// SaveTrade inserts (ID == 0, assigning the next id) or replaces a trade.
	SaveTrade(ctx context.Context, trade *models.Trade) error

	DeleteTrade(ctx context.Context, ownerID string, id int64) error

	// LatestCreatedAt returns the newest creation timestamp among the
	// owner's trades, or the zero time when there are none.
	LatestCreatedAt(ctx context.Context, ownerID string) (time.Time, error)
}

// PriceStore serves historical closing prices.
type PriceStore interface {
	// PriceAtOrBefore returns the most recent close at or before date.
	PriceAtOrBefore(ctx context.Context, key models.AssetKey, date time.Time) (float64, bool, error)

	// PriceHistory returns bars with from <= date <= to, ascending. Zero
	// bounds are open.
	PriceHistory(ctx context.Context, key models.AssetKey, from, to time.Time) ([]models.PriceBar, error)

	SavePrices(ctx context.Context, key models.AssetKey, bars []models.PriceBar) error
}

// RateStore serves the monthly exchange-rate series. Rates are the value of
// one unit of the currency in the base currency.
type RateStore interface {
	RateForMonth(ctx context.Context, currency string, month models.YearMonth) (float64, bool, error)
	LatestRate(ctx context.Context, currency string) (float64, bool, error)

	// RateSeries returns the full series for a currency, ascending by month.
	RateSeries(ctx context.Context, currency string) ([]models.FXRate, error)

	SaveRates(ctx context.Context, rates []models.FXRate) error
}

// ValuationCache persists computed valuation series.
type ValuationCache interface {
	// Get returns nil, nil when no entry exists.
	Get(ctx context.Context, key models.ValuationKey) (*models.Valuation, error)
	Put(ctx context.Context, v *models.Valuation) error
}
