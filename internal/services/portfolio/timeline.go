package portfolio

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/interfaces"
	"github.com/bobmcallan/folio/internal/models"
	"github.com/bobmcallan/folio/internal/services/fx"
)

// Simulator reconstructs the daily value of a trade log.
type Simulator struct {
	prices  interfaces.PriceResolver
	unifier *fx.Unifier
	maxDays int
	logger  *common.Logger
}

// NewSimulator creates a simulator. maxDays bounds the day loop; values <= 0
// use common.DefaultMaxSimulationDays.
func NewSimulator(prices interfaces.PriceResolver, unifier *fx.Unifier, maxDays int, logger *common.Logger) *Simulator {
	if maxDays <= 0 {
		maxDays = common.DefaultMaxSimulationDays
	}
	return &Simulator{
		prices:  prices,
		unifier: unifier,
		maxDays: maxDays,
		logger:  logger,
	}
}

// converter turns native amounts into the view currency for one run.
type converter struct {
	view  models.ValuationKey
	table *fx.RateTable
}

func (c converter) convert(amount float64, currency string, date time.Time) (float64, bool) {
	if !c.view.Unify || c.table == nil {
		// non-unified views only contain positions in the view currency
		return amount, true
	}
	return c.table.Convert(amount, currency, c.view.Currency, date)
}

// Run produces one entry per calendar day from the first trade through today,
// then fills the TWR columns. Trades dated after today are ignored.
func (s *Simulator) Run(ctx context.Context, view models.ValuationKey, trades []models.Trade, today time.Time) (*models.Valuation, error) {
	funcStart := time.Now()
	today = models.DateOf(today)
	sorted := sortedTrades(trades, today)

	result := &models.Valuation{
		Key:      view,
		Series:   []models.DailyValuation{},
		Holdings: []models.Holding{},
		Realized: []models.RealizedPnL{},
	}
	if len(sorted) == 0 {
		return result, nil
	}

	// Phase 1: date range and iteration ceiling
	start := models.DateOf(sorted[0].Date)
	days := int(today.Sub(start).Hours()/24) + 1
	if days > s.maxDays {
		clamped := today.AddDate(0, 0, -(s.maxDays - 1))
		s.logger.Warn().
			Str("view", view.String()).
			Str("first_trade", start.Format(models.DateLayout)).
			Str("start", clamped.Format(models.DateLayout)).
			Int("max_days", s.maxDays).
			Msg("Valuation range exceeds iteration ceiling; earlier trades folded into the opening state")
		start = clamped
	}

	// Phase 2: exchange rates for every currency touched
	conv := converter{view: view}
	if view.Unify {
		table, err := s.unifier.Table(ctx, tradeCurrencies(sorted, view.Currency)...)
		if err != nil {
			return nil, err
		}
		conv.table = table
	}

	l := newLedger()
	l.onShortfall = func(t models.Trade, excess decimal.Decimal) {
		s.logger.Warn().
			Int64("trade_id", t.ID).
			Str("key", t.Key().String()).
			Str("excess", excess.String()).
			Msg("Disposal exceeds open lots; excess ignored")
	}

	// Phase 3: opening state from trades before the first simulated day
	cursor := 0
	for cursor < len(sorted) && models.DateOf(sorted[cursor].Date).Before(start) {
		l.apply(sorted[cursor])
		cursor++
	}

	// Phase 4: day loop
	series := make([]models.DailyValuation, 0, int(today.Sub(start).Hours()/24)+1)
	var cumulative float64
	for d, n := start, 0; !d.After(today) && n < s.maxDays; d, n = d.AddDate(0, 0, 1), n+1 {
		flows := make(map[string]float64)
		for cursor < len(sorted) && !models.DateOf(sorted[cursor].Date).After(d) {
			t := sorted[cursor]
			l.apply(t)
			if f, ok := flowOf(view, t); ok {
				flows[t.Key().Currency] += f
			}
			cursor++
		}

		entry, err := s.valueDay(ctx, view, l, conv, d, flows)
		if err != nil {
			return nil, err
		}
		cumulative += entry.CashFlow
		entry.CumulativeCashFlow = cumulative
		series = append(series, entry)
	}

	ApplyTWR(series)
	result.Series = series

	// Phase 5: closing holdings and realized P&L for the view
	holdings, err := s.closingHoldings(ctx, view, l, conv, today)
	if err != nil {
		return nil, err
	}
	result.Holdings = holdings
	for _, r := range l.realized() {
		if view.Includes(r.Key) {
			result.Realized = append(result.Realized, r)
		}
	}

	s.logger.Info().
		Str("view", view.String()).
		Int("days", len(series)).
		Int("trades", len(sorted)).
		Dur("elapsed", time.Since(funcStart)).
		Msg("Valuation timeline computed")
	return result, nil
}

// valueDay prices every open line of the view on d. A currency without a
// resolvable rate is left out of that day's totals and listed in Excluded.
func (s *Simulator) valueDay(ctx context.Context, view models.ValuationKey, l *ledger, conv converter, d time.Time, flows map[string]float64) (models.DailyValuation, error) {
	entry := models.DailyValuation{Date: d}
	excluded := make(map[string]bool)

	if view.IncludesCash() {
		for _, ccy := range l.currencies {
			if !view.Includes(models.CashKey(ccy)) {
				continue
			}
			v, ok := conv.convert(l.cash[ccy].InexactFloat64(), ccy, d)
			if !ok {
				excluded[ccy] = true
				continue
			}
			entry.Cash += v
		}
	}

	for _, key := range l.keys {
		book := l.books[key]
		if !view.Includes(key) || !book.Open() {
			continue
		}
		price, _, _, err := s.resolvePrice(ctx, key, book.AvgCost(), d)
		if err != nil {
			return entry, err
		}
		v, ok := conv.convert(book.Quantity().InexactFloat64()*price, key.Currency, d)
		if !ok {
			excluded[key.Currency] = true
			continue
		}
		entry.MarketValue += v
	}

	for _, ccy := range sortedCurrencies(flows) {
		v, ok := conv.convert(flows[ccy], ccy, d)
		if !ok {
			excluded[ccy] = true
			continue
		}
		entry.CashFlow += v
	}

	entry.TotalValue = entry.Cash + entry.MarketValue
	if len(excluded) > 0 {
		entry.Excluded = sortedCurrencies(excluded)
	}
	return entry, nil
}

// resolvePrice returns the market close at or before d, falling back to the
// line's own cost basis so an unpriced position keeps its invested value.
func (s *Simulator) resolvePrice(ctx context.Context, key models.AssetKey, avgCost decimal.Decimal, d time.Time) (float64, time.Time, models.PriceSource, error) {
	if key.IsCash() {
		return 1, d, models.PriceSourceCash, nil
	}
	price, priceDate, found, err := s.prices.PriceAt(ctx, key, d)
	if err != nil {
		return 0, time.Time{}, "", fmt.Errorf("pricing %s: %w", key, err)
	}
	if !found || price <= 0 {
		return avgCost.InexactFloat64(), time.Time{}, models.PriceSourceCostBasis, nil
	}
	return price, priceDate, models.PriceSourceMarket, nil
}

// priceHolding values h at d and converts the result into the view currency.
func (s *Simulator) priceHolding(ctx context.Context, h *models.Holding, conv converter, d time.Time) error {
	price, priceDate, source, err := s.resolvePrice(ctx, h.Key, h.AvgCost, d)
	if err != nil {
		return err
	}
	qty := h.Quantity.InexactFloat64()
	cost := h.TotalCost.InexactFloat64()

	h.Price = price
	h.PriceDate = priceDate
	h.PriceSource = source
	h.MarketValue = qty * price
	if !h.Key.IsCash() {
		h.UnrealizedGain = h.MarketValue - cost
		h.UnrealizedGainPct = percentOf(h.UnrealizedGain, cost)
	}
	if v, ok := conv.convert(h.MarketValue, h.Key.Currency, d); ok {
		h.ReportingValue = v
	} else {
		h.Unconverted = true
	}
	return nil
}

// closingHoldings returns the view's priced positions and cash on d.
func (s *Simulator) closingHoldings(ctx context.Context, view models.ValuationKey, l *ledger, conv converter, d time.Time) ([]models.Holding, error) {
	lines := l.holdings()
	if view.IncludesCash() {
		lines = append(lines, l.cashHoldings()...)
	}
	out := make([]models.Holding, 0, len(lines))
	for _, h := range lines {
		if !view.Includes(h.Key) {
			continue
		}
		if err := s.priceHolding(ctx, &h, conv, d); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, nil
}

// flowOf returns the amount a trade moves across the boundary of the view.
// For the whole portfolio only cash deposits and withdrawals cross it. A
// cash-only view also sees buys as outflows and sells as inflows; a single
// asset-class view sees the opposite, with adds and removes valued at
// quantity × price.
func flowOf(view models.ValuationKey, t models.Trade) (float64, bool) {
	key := t.Key()
	switch {
	case key.IsCash():
		if !view.IncludesCash() || !view.Includes(key) {
			return 0, false
		}
		amt := t.CashAmount().InexactFloat64()
		if t.Kind.IsDisposal() {
			return -amt, true
		}
		return amt, true

	case view.AssetClass == "":
		return 0, false

	case view.AssetClass == models.AssetClassCash:
		if !view.Includes(models.CashKey(t.Currency)) {
			return 0, false
		}
		switch t.Kind {
		case models.TradeBuy:
			return -t.CashAmount().InexactFloat64(), true
		case models.TradeSell:
			return t.CashAmount().InexactFloat64(), true
		}
		return 0, false

	default:
		if !view.Includes(key) {
			return 0, false
		}
		switch t.Kind {
		case models.TradeBuy:
			return t.CashAmount().InexactFloat64(), true
		case models.TradeSell:
			return -t.CashAmount().InexactFloat64(), true
		case models.TradeAdd:
			return t.Quantity.Mul(t.Price).InexactFloat64(), true
		case models.TradeRemove:
			return -t.Quantity.Mul(t.Price).InexactFloat64(), true
		}
		return 0, false
	}
}

// tradeCurrencies lists the distinct currencies of trades plus extra.
func tradeCurrencies(trades []models.Trade, extra ...string) []string {
	seen := make(map[string]bool)
	for _, t := range trades {
		seen[t.Key().Currency] = true
	}
	for _, c := range extra {
		seen[c] = true
	}
	return sortedCurrencies(seen)
}

func sortedCurrencies[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
