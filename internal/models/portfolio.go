package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Lot is one FIFO tranche. Lots are rebuilt from the trade log on every
// computation and are never persisted.
type Lot struct {
	Date      time.Time       `json:"date"`
	Quantity  decimal.Decimal `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Remaining decimal.Decimal `json:"remaining"`
}

// PriceSource records where a holding's valuation price came from.
type PriceSource string

const (
	PriceSourceMarket    PriceSource = "market"
	PriceSourceCostBasis PriceSource = "cost_basis"
	PriceSourceCash      PriceSource = "cash"
)

// Holding is a derived open position at a point in time.
type Holding struct {
	Key          AssetKey        `json:"key"`
	Name         string          `json:"name,omitempty"`
	Quantity     decimal.Decimal `json:"quantity"`
	AvgCost      decimal.Decimal `json:"avg_cost"`   // weighted over remaining lots
	TotalCost    decimal.Decimal `json:"total_cost"` // Σ remaining × lot price
	FirstLotDate time.Time       `json:"first_lot_date,omitempty"`
	LastLotDate  time.Time       `json:"last_lot_date,omitempty"`
	Realized     decimal.Decimal `json:"realized"`

	// Valuation fields, populated when the holding is priced.
	Price             float64     `json:"price,omitempty"`
	PriceDate         time.Time   `json:"price_date,omitempty"`
	PriceSource       PriceSource `json:"price_source,omitempty"`
	MarketValue       float64     `json:"market_value,omitempty"`
	UnrealizedGain    float64     `json:"unrealized_gain,omitempty"`
	UnrealizedGainPct float64     `json:"unrealized_gain_pct,omitempty"`

	// ReportingValue is MarketValue in the view currency; zero with
	// Unconverted set when no exchange rate was obtainable.
	ReportingValue float64 `json:"reporting_value,omitempty"`
	Unconverted    bool    `json:"unconverted,omitempty"`
}

// RealizedPnL is the cumulative realized profit of one position line, in its
// native currency.
type RealizedPnL struct {
	Key      AssetKey        `json:"key"`
	Realized decimal.Decimal `json:"realized"`
	Proceeds decimal.Decimal `json:"proceeds"`
	Cost     decimal.Decimal `json:"cost"`
}

// Snapshot is the reconstructed state of a trade log at the close of a date.
type Snapshot struct {
	OwnerID  string        `json:"owner_id,omitempty"`
	AsOf     time.Time     `json:"as_of"`
	Holdings []Holding     `json:"holdings"` // non-cash, non-zero
	Cash     []Holding     `json:"cash"`     // one per currency, may be negative
	Realized []RealizedPnL `json:"realized"`
}

// DailyValuation is one day of the reconstructed portfolio value series.
type DailyValuation struct {
	Date               time.Time `json:"date"`
	Cash               float64   `json:"cash"`
	MarketValue        float64   `json:"market_value"` // non-cash positions
	TotalValue         float64   `json:"total_value"`  // cash + market value
	CashFlow           float64   `json:"cash_flow"`
	CumulativeCashFlow float64   `json:"cumulative_cash_flow"`
	DailyReturn        float64   `json:"daily_return"`
	TWRIndex           float64   `json:"twr_index"`
	Excluded           []string  `json:"excluded_currencies,omitempty"` // no resolvable rate that day
}

// ValuationKey identifies one cached valuation series.
type ValuationKey struct {
	OwnerID    string     `json:"owner_id"`
	Currency   string     `json:"currency"`
	Unify      bool       `json:"unify"`
	AssetClass AssetClass `json:"asset_class,omitempty"` // empty means all classes
}

// String renders a stable cache id.
func (k ValuationKey) String() string {
	mode := "native"
	if k.Unify {
		mode = "unified"
	}
	class := "all"
	if k.AssetClass != "" {
		class = string(k.AssetClass)
	}
	return strings.Join([]string{k.OwnerID, strings.ToUpper(k.Currency), mode, class}, "|")
}

// Includes reports whether a position line belongs to the view.
func (k ValuationKey) Includes(key AssetKey) bool {
	if k.AssetClass != "" && key.Class != k.AssetClass {
		return false
	}
	if !k.Unify && !strings.EqualFold(key.Currency, k.Currency) {
		return false
	}
	return true
}

// IncludesCash reports whether cash balances are part of the view.
func (k ValuationKey) IncludesCash() bool {
	return k.AssetClass == "" || k.AssetClass == AssetClassCash
}

// Valuation is the full engine output for one key. It is what the valuation
// cache persists.
type Valuation struct {
	Key        ValuationKey     `json:"key"`
	ComputedAt time.Time        `json:"computed_at"`
	Series     []DailyValuation `json:"series"`
	Holdings   []Holding        `json:"holdings"`
	Realized   []RealizedPnL    `json:"realized"`
}

// Window returns the entries with from <= date <= to. Zero bounds are open.
func (v *Valuation) Window(from, to time.Time) []DailyValuation {
	out := make([]DailyValuation, 0, len(v.Series))
	for _, e := range v.Series {
		if !from.IsZero() && e.Date.Before(from) {
			continue
		}
		if !to.IsZero() && e.Date.After(to) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Performance summarises a series slice.
type Performance struct {
	StartDate      time.Time `json:"start_date"`
	EndDate        time.Time `json:"end_date"`
	StartValue     float64   `json:"start_value"`
	EndValue       float64   `json:"end_value"`
	NetCashFlow    float64   `json:"net_cash_flow"`
	TotalReturnPct float64   `json:"total_return_pct"`
	CAGRPct        float64   `json:"cagr_pct"`
	MaxDrawdownPct float64   `json:"max_drawdown_pct"`
	RealizedTotal  float64   `json:"realized_total"`
}
