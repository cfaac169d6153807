package portfolio

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bobmcallan/folio/internal/models"
)

// ledger is the running accounting state of a trade log: one lot book per
// position line plus a cash balance per currency.
type ledger struct {
	books map[models.AssetKey]*LotBook
	cash  map[string]decimal.Decimal

	// keys and currencies stay sorted so float sums over them are
	// reproducible.
	keys       []models.AssetKey
	currencies []string

	// onShortfall, when set, is told about every clamped over-sell.
	onShortfall func(t models.Trade, excess decimal.Decimal)
}

func newLedger() *ledger {
	return &ledger{
		books: make(map[models.AssetKey]*LotBook),
		cash:  make(map[string]decimal.Decimal),
	}
}

// apply folds one trade. Cash lines accumulate directly; buys and sells of
// other assets move the trade amount through the cash line of their currency.
func (l *ledger) apply(t models.Trade) {
	key := t.Key()
	if key.IsCash() {
		amt := t.CashAmount()
		if t.Kind.IsDisposal() {
			amt = amt.Neg()
		}
		l.addCash(key.Currency, amt)
		return
	}

	book, ok := l.books[key]
	if !ok {
		book = NewLotBook(key)
		l.books[key] = book
		l.keys = append(l.keys, key)
		sort.Slice(l.keys, func(i, j int) bool { return l.keys[i].Less(l.keys[j]) })
	}
	if excess := book.Apply(t); excess.IsPositive() && l.onShortfall != nil {
		l.onShortfall(t, excess)
	}

	switch t.Kind {
	case models.TradeBuy:
		l.addCash(key.Currency, t.CashAmount().Neg())
	case models.TradeSell:
		l.addCash(key.Currency, t.CashAmount())
	}
}

func (l *ledger) addCash(currency string, amt decimal.Decimal) {
	bal, ok := l.cash[currency]
	if !ok {
		l.currencies = append(l.currencies, currency)
		sort.Strings(l.currencies)
	}
	l.cash[currency] = bal.Add(amt)
}

// holdings returns open non-cash positions ordered by key.
func (l *ledger) holdings() []models.Holding {
	out := make([]models.Holding, 0, len(l.keys))
	for _, k := range l.keys {
		if b := l.books[k]; b.Open() {
			out = append(out, b.Holding())
		}
	}
	return out
}

// cashHoldings returns one line per currency. Balances may be negative and
// are dropped only when within lotEpsilon of zero.
func (l *ledger) cashHoldings() []models.Holding {
	out := make([]models.Holding, 0, len(l.currencies))
	for _, ccy := range l.currencies {
		bal := l.cash[ccy]
		if bal.Abs().LessThanOrEqual(lotEpsilon) {
			continue
		}
		out = append(out, models.Holding{
			Key:       models.CashKey(ccy),
			Name:      ccy + " cash",
			Quantity:  bal,
			AvgCost:   decimal.NewFromInt(1),
			TotalCost: bal,
		})
	}
	return out
}

// realized returns P&L for every line that has realized anything, including
// closed lines.
func (l *ledger) realized() []models.RealizedPnL {
	out := make([]models.RealizedPnL, 0)
	for _, k := range l.keys {
		r := l.books[k].Realized()
		if r.Proceeds.IsZero() && r.Realized.IsZero() {
			continue
		}
		out = append(out, r)
	}
	return out
}

// BuildSnapshot replays every trade dated on or before cutoff and returns the
// holdings and cash balances at the close of that date. It rebuilds from
// scratch on each call, so equal inputs give equal outputs. A zero cutoff
// replays the whole log.
func BuildSnapshot(trades []models.Trade, cutoff time.Time) *models.Snapshot {
	if !cutoff.IsZero() {
		cutoff = models.DateOf(cutoff)
	}
	l := newLedger()
	for _, t := range sortedTrades(trades, cutoff) {
		l.apply(t)
	}
	return &models.Snapshot{
		AsOf:     cutoff,
		Holdings: l.holdings(),
		Cash:     l.cashHoldings(),
		Realized: l.realized(),
	}
}
