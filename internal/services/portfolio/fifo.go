package portfolio

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bobmcallan/folio/internal/models"
)

// lotEpsilon is the quantity at or below which a lot or cash balance is
// treated as empty.
var lotEpsilon = decimal.New(1, -6)

// LotBook is the FIFO lot queue of one position line. It is a pure fold over
// the line's trades: apply them in TradeLess order and read the result.
type LotBook struct {
	Key  models.AssetKey
	Name string

	lots      []models.Lot
	acquired  decimal.Decimal
	disposed  decimal.Decimal
	evicted   decimal.Decimal
	shortfall decimal.Decimal
	realized  decimal.Decimal
	proceeds  decimal.Decimal
	cost      decimal.Decimal
}

// NewLotBook creates an empty book for key.
func NewLotBook(key models.AssetKey) *LotBook {
	return &LotBook{Key: key}
}

// Apply folds one trade into the book. It returns the quantity of a disposal
// that no open lot could supply; that excess is ignored, never turned into a
// negative lot.
func (b *LotBook) Apply(t models.Trade) decimal.Decimal {
	if t.Name != "" {
		b.Name = t.Name
	}
	switch {
	case t.Kind.IsAcquisition():
		if !t.Quantity.IsPositive() {
			return decimal.Zero
		}
		b.lots = append(b.lots, models.Lot{
			Date:      t.Date,
			Quantity:  t.Quantity,
			Price:     t.Price,
			Remaining: t.Quantity,
		})
		b.acquired = b.acquired.Add(t.Quantity)
	case t.Kind.IsDisposal():
		return b.consume(t)
	}
	return decimal.Zero
}

// consume takes quantity from the oldest lots first. Only sells realize P&L;
// a remove is a quantity adjustment.
func (b *LotBook) consume(t models.Trade) decimal.Decimal {
	need := t.Quantity
	realize := t.Kind == models.TradeSell

	for need.IsPositive() && len(b.lots) > 0 {
		lot := &b.lots[0]
		take := decimal.Min(need, lot.Remaining)

		lot.Remaining = lot.Remaining.Sub(take)
		need = need.Sub(take)
		b.disposed = b.disposed.Add(take)

		if realize {
			b.realized = b.realized.Add(t.Price.Sub(lot.Price).Mul(take))
			b.proceeds = b.proceeds.Add(t.Price.Mul(take))
			b.cost = b.cost.Add(lot.Price.Mul(take))
		}

		if lot.Remaining.LessThanOrEqual(lotEpsilon) {
			b.evicted = b.evicted.Add(lot.Remaining)
			b.lots = b.lots[1:]
		}
	}

	if need.IsPositive() {
		b.shortfall = b.shortfall.Add(need)
		return need
	}
	return decimal.Zero
}

// Lots returns a copy of the open lots, oldest first.
func (b *LotBook) Lots() []models.Lot {
	out := make([]models.Lot, len(b.lots))
	copy(out, b.lots)
	return out
}

// Quantity is the total remaining quantity across open lots.
func (b *LotBook) Quantity() decimal.Decimal {
	q := decimal.Zero
	for _, l := range b.lots {
		q = q.Add(l.Remaining)
	}
	return q
}

// TotalCost is Σ remaining × lot price.
func (b *LotBook) TotalCost() decimal.Decimal {
	c := decimal.Zero
	for _, l := range b.lots {
		c = c.Add(l.Remaining.Mul(l.Price))
	}
	return c
}

// AvgCost is the cost basis weighted over remaining lots only.
func (b *LotBook) AvgCost() decimal.Decimal {
	q := b.Quantity()
	if q.LessThanOrEqual(lotEpsilon) {
		return decimal.Zero
	}
	return b.TotalCost().DivRound(q, 10)
}

// Acquired is the total quantity ever bought or added.
func (b *LotBook) Acquired() decimal.Decimal { return b.acquired }

// Disposed is the total quantity actually taken from lots by sells and removes.
func (b *LotBook) Disposed() decimal.Decimal { return b.disposed }

// Evicted is the dust left in lots dropped at or below the lot epsilon. It
// keeps remaining + disposed + evicted equal to acquired.
func (b *LotBook) Evicted() decimal.Decimal { return b.evicted }

// Shortfall is the cumulative over-sell quantity that was ignored.
func (b *LotBook) Shortfall() decimal.Decimal { return b.shortfall }

// Open reports whether the book still holds a non-negligible quantity.
func (b *LotBook) Open() bool {
	return b.Quantity().GreaterThan(lotEpsilon)
}

// Realized returns the cumulative realized P&L of the line.
func (b *LotBook) Realized() models.RealizedPnL {
	return models.RealizedPnL{
		Key:      b.Key,
		Realized: b.realized,
		Proceeds: b.proceeds,
		Cost:     b.cost,
	}
}

// Holding returns the unpriced holding derived from the open lots.
func (b *LotBook) Holding() models.Holding {
	h := models.Holding{
		Key:       b.Key,
		Name:      b.Name,
		Quantity:  b.Quantity(),
		AvgCost:   b.AvgCost(),
		TotalCost: b.TotalCost(),
		Realized:  b.realized,
	}
	if len(b.lots) > 0 {
		h.FirstLotDate = b.lots[0].Date
		h.LastLotDate = b.lots[len(b.lots)-1].Date
	}
	return h
}

// MatchFIFO runs the lot matcher over the trades of one position line.
// Trades for other keys are ignored; input order does not matter.
func MatchFIFO(key models.AssetKey, trades []models.Trade) *LotBook {
	book := NewLotBook(key)
	for _, t := range sortedTrades(trades, time.Time{}) {
		if t.Key() == key {
			book.Apply(t)
		}
	}
	return book
}

// sortedTrades returns a copy of trades in replay order, dropping those after
// cutoff when cutoff is non-zero.
func sortedTrades(trades []models.Trade, cutoff time.Time) []models.Trade {
	out := make([]models.Trade, 0, len(trades))
	for _, t := range trades {
		if !cutoff.IsZero() && models.DateOf(t.Date).After(cutoff) {
			continue
		}
		out = append(out, t)
	}
	sort.SliceStable(out, func(i, j int) bool { return models.TradeLess(out[i], out[j]) })
	return out
}
