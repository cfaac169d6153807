package interfaces

import (
	"context"
	"time"

	"github.com/bobmcallan/folio/internal/models"
)

// TradeService manages the trade log.
type TradeService interface {
	List(ctx context.Context, ownerID string) ([]models.Trade, error)
	Get(ctx context.Context, ownerID string, id int64) (*models.Trade, error)
	Create(ctx context.Context, trade *models.Trade) (*models.Trade, error)
	Update(ctx context.Context, trade *models.Trade) (*models.Trade, error)
	Delete(ctx context.Context, ownerID string, id int64) error
}

// ValuationOptions selects a cached series and the slice returned from it.
type ValuationOptions struct {
	Currency   string
	Unify      bool
	AssetClass models.AssetClass
	From       time.Time
	To         time.Time
	Refresh    bool // recompute even when the cache is fresh
}

// ValuationResult is a window of a cached valuation.
type ValuationResult struct {
	Key         models.ValuationKey     `json:"key"`
	ComputedAt  time.Time               `json:"computed_at"`
	FromCache   bool                    `json:"from_cache"`
	Series      []models.DailyValuation `json:"series"`
	Holdings    []models.Holding        `json:"holdings"`
	Realized    []models.RealizedPnL    `json:"realized"`
	Performance models.Performance      `json:"performance"`
}

// PortfolioService is the accounting and valuation engine.
type PortfolioService interface {
	// Snapshot reconstructs holdings and cash at the close of asOf.
	Snapshot(ctx context.Context, ownerID string, asOf time.Time) (*models.Snapshot, error)

	// PricedSnapshot is Snapshot with every position valued in currency.
	PricedSnapshot(ctx context.Context, ownerID string, asOf time.Time, opts ValuationOptions) (*models.Snapshot, error)

	// Realized returns cumulative realized P&L per position line.
	Realized(ctx context.Context, ownerID string) ([]models.RealizedPnL, error)

	// Valuation returns the cached daily series sliced to the requested window.
	Valuation(ctx context.Context, ownerID string, opts ValuationOptions) (*ValuationResult, error)

	// ValuationChart renders the requested window as a PNG.
	ValuationChart(ctx context.Context, ownerID string, opts ValuationOptions) ([]byte, error)
}

// PriceResolver answers "best known price at or before a date".
type PriceResolver interface {
	PriceAt(ctx context.Context, key models.AssetKey, date time.Time) (price float64, priceDate time.Time, found bool, err error)
}

// CurrencyConverter converts amounts into a reporting currency.
type CurrencyConverter interface {
	// Convert returns ok=false when no rate is obtainable for either side.
	Convert(ctx context.Context, amount float64, from, to string, date time.Time) (float64, bool, error)
}
