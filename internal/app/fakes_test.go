package app

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/interfaces"
	"github.com/bobmcallan/folio/internal/models"
)

// memStorage is a minimal in-memory StorageManager.
type memStorage struct {
	mu      sync.Mutex
	trades  []models.Trade
	nextID  int64
	bars    map[models.AssetKey][]models.PriceBar
	rates   []models.FXRate
	cache   map[string]*models.Valuation
	saveErr error
	closed  bool
}

func newMemStorage() *memStorage {
	return &memStorage{
		bars:  make(map[models.AssetKey][]models.PriceBar),
		cache: make(map[string]*models.Valuation),
	}
}

func (m *memStorage) TradeStore() interfaces.TradeStore         { return memTrades{m} }
func (m *memStorage) PriceStore() interfaces.PriceStore         { return memMarket{m} }
func (m *memStorage) RateStore() interfaces.RateStore           { return memMarket{m} }
func (m *memStorage) ValuationCache() interfaces.ValuationCache { return memCache{m} }

func (m *memStorage) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errors.New("already closed")
	}
	m.closed = true
	return nil
}

type memTrades struct{ m *memStorage }

func (s memTrades) ListTrades(_ context.Context, ownerID string) ([]models.Trade, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var out []models.Trade
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
	if s.m.saveErr != nil {
		return s.m.saveErr
	}
	s.m.nextID++
	trade.ID = s.m.nextID
	s.m.trades = append(s.m.trades, *trade)
	return nil
}

func (s memTrades) DeleteTrade(context.Context, string, int64) error { return nil }

func (s memTrades) LatestCreatedAt(_ context.Context, ownerID string) (time.Time, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var latest time.Time
	for _, t := range s.m.trades {
		if t.OwnerID == ownerID && t.CreatedAt.After(latest) {
			latest = t.CreatedAt
		}
	}
	return latest, nil
}

type memMarket struct{ m *memStorage }

func (s memMarket) PriceAtOrBefore(_ context.Context, key models.AssetKey, date time.Time) (float64, bool, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	bars := s.m.bars[key]
	for i := len(bars) - 1; i >= 0; i-- {
		if !bars[i].Date.After(date) {
			return bars[i].Close, true, nil
		}
	}
	return 0, false, nil
}

func (s memMarket) PriceHistory(_ context.Context, key models.AssetKey, _, _ time.Time) ([]models.PriceBar, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	return append([]models.PriceBar(nil), s.m.bars[key]...), nil
}

func (s memMarket) SavePrices(_ context.Context, key models.AssetKey, bars []models.PriceBar) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	s.m.bars[key] = append(s.m.bars[key], bars...)
	sort.Slice(s.m.bars[key], func(i, j int) bool { return s.m.bars[key][i].Date.Before(s.m.bars[key][j].Date) })
	return nil
}

func (s memMarket) RateForMonth(_ context.Context, currency string, month models.YearMonth) (float64, bool, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for _, r := range s.m.rates {
		if r.Currency == currency && r.Month == month {
			return r.Rate, true, nil
		}
	}
	return 0, false, nil
}

func (s memMarket) LatestRate(ctx context.Context, currency string) (float64, bool, error) {
	series, _ := s.RateSeries(ctx, currency)
	if len(series) == 0 {
		return 0, false, nil
	}
	return series[len(series)-1].Rate, true, nil
}

func (s memMarket) RateSeries(_ context.Context, currency string) ([]models.FXRate, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var out []models.FXRate
	for _, r := range s.m.rates {
		if r.Currency == currency {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month.Before(out[j].Month) })
	return out, nil
}

func (s memMarket) SaveRates(_ context.Context, rates []models.FXRate) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	s.m.rates = append(s.m.rates, rates...)
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

func (c memCache) size() int {
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	return len(c.m.cache)
}

func newTestApp(store *memStorage) *App {
	return NewAppWithStorage(common.NewDefaultConfig(), common.NewSilentLogger(), store)
}
