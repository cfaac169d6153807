package server

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/bobmcallan/folio/internal/app"
	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/interfaces"
	"github.com/bobmcallan/folio/internal/models"
)

// memStorage is an in-memory StorageManager for handler tests.
type memStorage struct {
	mu     sync.Mutex
	trades []models.Trade
	nextID int64
	bars   map[models.AssetKey][]models.PriceBar
	rates  map[string][]models.FXRate
	cache  map[string]*models.Valuation

	priceErr error
	tradeErr error
}

func newMemStorage() *memStorage {
	return &memStorage{
		bars:  make(map[models.AssetKey][]models.PriceBar),
		rates: make(map[string][]models.FXRate),
		cache: make(map[string]*models.Valuation),
	}
}

func (m *memStorage) TradeStore() interfaces.TradeStore         { return memTrades{m} }
func (m *memStorage) PriceStore() interfaces.PriceStore         { return memPrices{m} }
func (m *memStorage) RateStore() interfaces.RateStore           { return memRates{m} }
func (m *memStorage) ValuationCache() interfaces.ValuationCache { return memCache{m} }
func (m *memStorage) Close() error                              { return nil }

func (m *memStorage) addPrice(key models.AssetKey, date time.Time, price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bars[key] = append(m.bars[key], models.PriceBar{Date: models.DateOf(date), Close: price})
	sort.Slice(m.bars[key], func(i, j int) bool { return m.bars[key][i].Date.Before(m.bars[key][j].Date) })
}

func (m *memStorage) addRate(currency string, month models.YearMonth, rate float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rates[currency] = append(m.rates[currency], models.FXRate{Currency: currency, Month: month, Rate: rate})
}

func (m *memStorage) failPrices(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.priceErr = err
}

func (m *memStorage) failTrades(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tradeErr = err
}

type memTrades struct{ m *memStorage }

func (s memTrades) ListTrades(_ context.Context, ownerID string) ([]models.Trade, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if s.m.tradeErr != nil {
		return nil, s.m.tradeErr
	}
	out := []models.Trade{}
	for _, t := range s.m.trades {
		if t.OwnerID == ownerID {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return models.TradeLess(out[i], out[j]) })
	return out, nil
}

func (s memTrades) GetTrade(_ context.Context, ownerID string, id int64) (*models.Trade, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if s.m.tradeErr != nil {
		return nil, s.m.tradeErr
	}
	for _, t := range s.m.trades {
		if t.ID == id && t.OwnerID == ownerID {
			cp := t
			return &cp, nil
		}
	}
	return nil, models.ErrNotFound
}

func (s memTrades) SaveTrade(_ context.Context, trade *models.Trade) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if trade.ID == 0 {
		s.m.nextID++
		trade.ID = s.m.nextID
		s.m.trades = append(s.m.trades, *trade)
		return nil
	}
	for i, t := range s.m.trades {
		if t.ID == trade.ID {
			s.m.trades[i] = *trade
			return nil
		}
	}
	return models.ErrNotFound
}

func (s memTrades) DeleteTrade(_ context.Context, ownerID string, id int64) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for i, t := range s.m.trades {
		if t.ID == id && t.OwnerID == ownerID {
			s.m.trades = append(s.m.trades[:i], s.m.trades[i+1:]...)
			return nil
		}
	}
	return models.ErrNotFound
}

func (s memTrades) LatestCreatedAt(_ context.Context, ownerID string) (time.Time, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if s.m.tradeErr != nil {
		return time.Time{}, s.m.tradeErr
	}
	var latest time.Time
	for _, t := range s.m.trades {
		if t.OwnerID == ownerID && t.CreatedAt.After(latest) {
			latest = t.CreatedAt
		}
	}
	return latest, nil
}

type memPrices struct{ m *memStorage }

func (s memPrices) PriceAtOrBefore(_ context.Context, key models.AssetKey, date time.Time) (float64, bool, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if s.m.priceErr != nil {
		return 0, false, s.m.priceErr
	}
	bars := s.m.bars[key]
	for i := len(bars) - 1; i >= 0; i-- {
		if !bars[i].Date.After(date) {
			return bars[i].Close, true, nil
		}
	}
	return 0, false, nil
}

func (s memPrices) PriceHistory(_ context.Context, key models.AssetKey, _, _ time.Time) ([]models.PriceBar, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if s.m.priceErr != nil {
		return nil, s.m.priceErr
	}
	return append([]models.PriceBar(nil), s.m.bars[key]...), nil
}

func (s memPrices) SavePrices(_ context.Context, key models.AssetKey, bars []models.PriceBar) error {
	for _, b := range bars {
		s.m.addPrice(key, b.Date, b.Close)
	}
	return nil
}

type memRates struct{ m *memStorage }

func (s memRates) RateForMonth(_ context.Context, currency string, month models.YearMonth) (float64, bool, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for _, r := range s.m.rates[currency] {
		if r.Month == month {
			return r.Rate, true, nil
		}
	}
	return 0, false, nil
}

func (s memRates) LatestRate(_ context.Context, currency string) (float64, bool, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	series := s.m.rates[currency]
	if len(series) == 0 {
		return 0, false, nil
	}
	return series[len(series)-1].Rate, true, nil
}

func (s memRates) RateSeries(_ context.Context, currency string) ([]models.FXRate, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	return append([]models.FXRate(nil), s.m.rates[currency]...), nil
}

func (s memRates) SaveRates(_ context.Context, rates []models.FXRate) error {
	for _, r := range rates {
		s.m.addRate(r.Currency, r.Month, r.Rate)
	}
	return nil
}

type memCache struct{ m *memStorage }

func (c memCache) Get(_ context.Context, key models.ValuationKey) (*models.Valuation, error) {
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	return c.m.cache[key.String()], nil
}

func (c memCache) Put(_ context.Context, v *models.Valuation) error {
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	c.m.cache[v.Key.String()] = v
	return nil
}

// newTestServer builds a Server over in-memory storage. rateLimit of zero
// disables the limiter.
func newTestServer(store *memStorage, rateLimit float64) *Server {
	cfg := common.NewDefaultConfig()
	cfg.Server.RateLimit = rateLimit
	cfg.Server.Burst = 2
	a := app.NewAppWithStorage(cfg, common.NewSilentLogger(), store)
	return NewServer(a)
}
