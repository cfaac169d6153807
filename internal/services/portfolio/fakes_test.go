package portfolio

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/interfaces"
	"github.com/bobmcallan/folio/internal/models"
	"github.com/bobmcallan/folio/internal/services/fx"
	"github.com/bobmcallan/folio/internal/services/pricing"
)

// memStorage is an in-memory StorageManager for engine tests.
type memStorage struct {
	trades *memTradeStore
	prices *memPriceStore
	rates  *memRateStore
	cache  *memCache
}

func newMemStorage() *memStorage {
	return &memStorage{
		trades: &memTradeStore{},
		prices: &memPriceStore{bars: make(map[models.AssetKey][]models.PriceBar)},
		rates:  &memRateStore{series: make(map[string][]models.FXRate)},
		cache:  &memCache{entries: make(map[string]*models.Valuation)},
	}
}

func (m *memStorage) TradeStore() interfaces.TradeStore         { return m.trades }
func (m *memStorage) PriceStore() interfaces.PriceStore         { return m.prices }
func (m *memStorage) RateStore() interfaces.RateStore           { return m.rates }
func (m *memStorage) ValuationCache() interfaces.ValuationCache { return m.cache }
func (m *memStorage) Close() error                              { return nil }

type memTradeStore struct {
	mu        sync.Mutex
	trades    []models.Trade
	nextID    int64
	listCalls int
	err       error
}

func (s *memTradeStore) ListTrades(_ context.Context, ownerID string) ([]models.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++
	if s.err != nil {
		return nil, s.err
	}
	out := make([]models.Trade, 0, len(s.trades))
	for _, t := range s.trades {
		if t.OwnerID == ownerID {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return models.TradeLess(out[i], out[j]) })
	return out, nil
}

func (s *memTradeStore) GetTrade(_ context.Context, ownerID string, id int64) (*models.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.trades {
		if t.OwnerID == ownerID && t.ID == id {
			cp := t
			return &cp, nil
		}
	}
	return nil, models.ErrNotFound
}

func (s *memTradeStore) SaveTrade(_ context.Context, trade *models.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if trade.ID == 0 {
		s.nextID++
		trade.ID = s.nextID
		s.trades = append(s.trades, *trade)
		return nil
	}
	for i, t := range s.trades {
		if t.ID == trade.ID {
			s.trades[i] = *trade
			return nil
		}
	}
	s.trades = append(s.trades, *trade)
	if trade.ID > s.nextID {
		s.nextID = trade.ID
	}
	return nil
}

func (s *memTradeStore) DeleteTrade(_ context.Context, ownerID string, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, t := range s.trades {
		if t.OwnerID == ownerID && t.ID == id {
			s.trades = append(s.trades[:i], s.trades[i+1:]...)
			return nil
		}
	}
	return models.ErrNotFound
}

func (s *memTradeStore) LatestCreatedAt(_ context.Context, ownerID string) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest time.Time
	for _, t := range s.trades {
		if t.OwnerID == ownerID && t.CreatedAt.After(latest) {
			latest = t.CreatedAt
		}
	}
	return latest, nil
}

func (s *memTradeStore) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listCalls
}

type memPriceStore struct {
	mu   sync.Mutex
	bars map[models.AssetKey][]models.PriceBar
	err  error
}

func (s *memPriceStore) PriceAtOrBefore(_ context.Context, key models.AssetKey, date time.Time) (float64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, false, s.err
	}
	p, _, ok := pricing.FindCloseAsOf(s.bars[key], date)
	return p, ok, nil
}

func (s *memPriceStore) PriceHistory(_ context.Context, key models.AssetKey, _, _ time.Time) ([]models.PriceBar, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return append([]models.PriceBar(nil), s.bars[key]...), nil
}

func (s *memPriceStore) SavePrices(_ context.Context, key models.AssetKey, bars []models.PriceBar) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bars[key] = append(s.bars[key], bars...)
	sort.Slice(s.bars[key], func(i, j int) bool { return s.bars[key][i].Date.Before(s.bars[key][j].Date) })
	return nil
}

type memRateStore struct {
	mu     sync.Mutex
	series map[string][]models.FXRate
	err    error
}

func (s *memRateStore) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *memRateStore) RateForMonth(_ context.Context, currency string, month models.YearMonth) (float64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, false, s.err
	}
	for _, r := range s.series[currency] {
		if r.Month == month {
			return r.Rate, true, nil
		}
	}
	return 0, false, nil
}

func (s *memRateStore) LatestRate(_ context.Context, currency string) (float64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, false, s.err
	}
	series := s.series[currency]
	if len(series) == 0 {
		return 0, false, nil
	}
	return series[len(series)-1].Rate, true, nil
}

func (s *memRateStore) RateSeries(_ context.Context, currency string) ([]models.FXRate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return append([]models.FXRate(nil), s.series[currency]...), nil
}

func (s *memRateStore) SaveRates(_ context.Context, rates []models.FXRate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rates {
		s.series[r.Currency] = append(s.series[r.Currency], r)
	}
	return nil
}

type memCache struct {
	mu      sync.Mutex
	entries map[string]*models.Valuation
	puts    int
}

func (c *memCache) Get(_ context.Context, key models.ValuationKey) (*models.Valuation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries[key.String()], nil
}

func (c *memCache) Put(_ context.Context, v *models.Valuation) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[v.Key.String()] = v
	c.puts++
	return nil
}

// Helpers

func d(y int, m time.Month, day int) time.Time {
	return time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

var tradeSeq int64

// mkTrade builds a trade with amount = quantity × price.
func mkTrade(kind models.TradeKind, class models.AssetClass, symbol, ccy string, qty, price string, date time.Time) models.Trade {
	tradeSeq++
	q, p := dec(qty), dec(price)
	return models.Trade{
		ID:         tradeSeq,
		OwnerID:    "alice",
		Kind:       kind,
		AssetClass: class,
		Symbol:     symbol,
		Quantity:   q,
		Price:      p,
		Amount:     q.Mul(p),
		Currency:   ccy,
		Date:       date,
		CreatedAt:  date,
	}
}

func deposit(ccy, amount string, date time.Time) models.Trade {
	return mkTrade(models.TradeAdd, models.AssetClassCash, "CASH", ccy, amount, "1", date)
}

func withdraw(ccy, amount string, date time.Time) models.Trade {
	return mkTrade(models.TradeRemove, models.AssetClassCash, "CASH", ccy, amount, "1", date)
}

func newTestSimulator(store *memStorage, maxDays int) *Simulator {
	logger := common.NewSilentLogger()
	resolver := pricing.NewResolver(store.prices, time.Hour, logger)
	unifier := fx.NewUnifier(store.rates, "USD", logger)
	return NewSimulator(resolver, unifier, maxDays, logger)
}

// fixedClock returns a controllable clock.
type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(dur time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(dur)
}

func newTestService(store *memStorage, clock *fixedClock) *Service {
	logger := common.NewSilentLogger()
	resolver := pricing.NewResolver(store.prices, time.Hour, logger)
	unifier := fx.NewUnifier(store.rates, "USD", logger)
	return NewService(store, resolver, unifier, Options{
		ReportingCurrency: "USD",
		Now:               clock.Now,
	}, logger)
}
