// Package models defines data structures for Folio
package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TradeKind is the event type of a trade.
type TradeKind string

const (
	TradeBuy    TradeKind = "buy"
	TradeSell   TradeKind = "sell"
	TradeAdd    TradeKind = "add"    // deposit / transfer in, no cost-basis event beyond the lot
	TradeRemove TradeKind = "remove" // withdrawal / transfer out, never realizes P&L
)

// ParseTradeKind matches a kind case-insensitively.
func ParseTradeKind(s string) (TradeKind, error) {
	switch TradeKind(strings.ToLower(strings.TrimSpace(s))) {
	case TradeBuy:
		return TradeBuy, nil
	case TradeSell:
		return TradeSell, nil
	case TradeAdd:
		return TradeAdd, nil
	case TradeRemove:
		return TradeRemove, nil
	}
	return "", fmt.Errorf("unknown trade kind %q", s)
}

// IsAcquisition reports whether the kind opens a lot.
func (k TradeKind) IsAcquisition() bool {
	return k == TradeBuy || k == TradeAdd
}

// IsDisposal reports whether the kind consumes lots.
func (k TradeKind) IsDisposal() bool {
	return k == TradeSell || k == TradeRemove
}

// Trade is one immutable portfolio event. The engine never mutates trades;
// the full trade log is the single source of truth.
type Trade struct {
	ID         int64           `json:"id"`
	OwnerID    string          `json:"owner_id"`
	Kind       TradeKind       `json:"kind"`
	AssetClass AssetClass      `json:"asset_class"`
	Symbol     string          `json:"symbol"`
	Name       string          `json:"name,omitempty"`
	Quantity   decimal.Decimal `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	Amount     decimal.Decimal `json:"amount"` // authoritative cash effect, fees included
	Currency   string          `json:"currency"`
	Date       time.Time       `json:"trade_date"`
	Note       string          `json:"note,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Key returns the position line the trade belongs to.
func (t Trade) Key() AssetKey {
	if t.AssetClass == AssetClassCash {
		return CashKey(t.Currency)
	}
	return NewAssetKey(t.AssetClass, t.Symbol, t.Currency)
}

// CashAmount is the cash effect of the trade: the recorded amount, else
// quantity × price, else the bare quantity (a cash deposit entered as units).
func (t Trade) CashAmount() decimal.Decimal {
	if !t.Amount.IsZero() {
		return t.Amount
	}
	if v := t.Quantity.Mul(t.Price); !v.IsZero() {
		return v
	}
	return t.Quantity
}

// TradeLess is the canonical replay order: trade date ascending, then id.
func TradeLess(a, b Trade) bool {
	if !a.Date.Equal(b.Date) {
		return a.Date.Before(b.Date)
	}
	return a.ID < b.ID
}

// DateLayout is the calendar-date wire format.
const DateLayout = "2006-01-02"

// DateOf truncates t to its calendar date at UTC midnight.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses "2006-01-02", tolerating a trailing time component.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if len(s) > len(DateLayout) && s[len(DateLayout)] == 'T' {
		s = s[:len(DateLayout)]
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}
