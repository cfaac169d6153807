package storage

import (
	"errors"

	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/interfaces"
)

// marketStorage is the part of a backend that serves prices and rates.
type marketStorage interface {
	PriceStore() interfaces.PriceStore
	RateStore() interfaces.RateStore
}

// Manager implements interfaces.StorageManager over independently chosen
// backends.
type Manager struct {
	market  marketStorage
	trades  interfaces.TradeStore
	cache   interfaces.ValuationCache
	closers []func() error
	logger  *common.Logger
}

func (m *Manager) TradeStore() interfaces.TradeStore {
	return m.trades
}

func (m *Manager) PriceStore() interfaces.PriceStore {
	return m.market.PriceStore()
}

func (m *Manager) RateStore() interfaces.RateStore {
	return m.market.RateStore()
}

func (m *Manager) ValuationCache() interfaces.ValuationCache {
	return m.cache
}

// Close closes every backend in reverse order of opening.
func (m *Manager) Close() error {
	var errs []error
	for i := len(m.closers) - 1; i >= 0; i-- {
		if err := m.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	m.closers = nil
	return errors.Join(errs...)
}
