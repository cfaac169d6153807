// Package trade manages the trade log, validating records at the store
// boundary.
package trade

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/interfaces"
	"github.com/bobmcallan/folio/internal/models"
)

// Compile-time interface check
var _ interfaces.TradeService = (*Service)(nil)

// Service implements TradeService
type Service struct {
	storage interfaces.StorageManager
	logger  *common.Logger
	now     func() time.Time
}

// NewService creates a new trade service
func NewService(storage interfaces.StorageManager, logger *common.Logger) *Service {
	return &Service{
		storage: storage,
		logger:  logger,
		now:     time.Now,
	}
}

// List returns the owner's trades in replay order.
func (s *Service) List(ctx context.Context, ownerID string) ([]models.Trade, error) {
	trades, err := s.storage.TradeStore().ListTrades(ctx, ownerID)
	if err != nil {
		return nil, storeError(err, "failed to list trades")
	}
	return trades, nil
}

// Get returns one trade or models.ErrNotFound.
func (s *Service) Get(ctx context.Context, ownerID string, id int64) (*models.Trade, error) {
	t, err := s.storage.TradeStore().GetTrade(ctx, ownerID, id)
	if err != nil {
		return nil, storeError(err, "failed to get trade %d", id)
	}
	return t, nil
}

// Create validates and inserts a trade, assigning its id and creation time.
func (s *Service) Create(ctx context.Context, trade *models.Trade) (*models.Trade, error) {
	t := *trade
	if err := Normalize(&t); err != nil {
		return nil, err
	}
	t.ID = 0
	t.CreatedAt = s.now().UTC()

	if err := s.storage.TradeStore().SaveTrade(ctx, &t); err != nil {
		return nil, storeError(err, "failed to save trade")
	}
	s.logger.Info().
		Str("owner", t.OwnerID).
		Int64("id", t.ID).
		Str("kind", string(t.Kind)).
		Str("key", t.Key().String()).
		Msg("Trade created")
	return &t, nil
}

// Update replaces an existing trade. The creation timestamp is carried over
// unchanged, so cached valuations are not invalidated by edits.
func (s *Service) Update(ctx context.Context, trade *models.Trade) (*models.Trade, error) {
	existing, err := s.Get(ctx, trade.OwnerID, trade.ID)
	if err != nil {
		return nil, err
	}

	t := *trade
	if err := Normalize(&t); err != nil {
		return nil, err
	}
	t.CreatedAt = existing.CreatedAt

	if err := s.storage.TradeStore().SaveTrade(ctx, &t); err != nil {
		return nil, storeError(err, "failed to save trade %d", t.ID)
	}
	s.logger.Info().Str("owner", t.OwnerID).Int64("id", t.ID).Msg("Trade updated")
	return &t, nil
}

// Delete removes a trade.
func (s *Service) Delete(ctx context.Context, ownerID string, id int64) error {
	if err := s.storage.TradeStore().DeleteTrade(ctx, ownerID, id); err != nil {
		return storeError(err, "failed to delete trade %d", id)
	}
	s.logger.Info().Str("owner", ownerID).Int64("id", id).Msg("Trade deleted")
	return nil
}

// storeError marks a trade store failure as a provider outage. A missing
// record stays models.ErrNotFound.
func storeError(err error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("%s: %w", msg, err)
	}
	return fmt.Errorf("%w: %s: %w", models.ErrProviderUnavailable, msg, err)
}

// Normalize validates a trade in place: canonical case for symbol and
// currency, CASH symbol for cash lines, calendar-date trade date, and an
// amount defaulted to quantity × price. Failures wrap models.ErrInvalidTrade.
func Normalize(t *models.Trade) error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", models.ErrInvalidTrade, fmt.Sprintf(format, args...))
	}

	if strings.TrimSpace(t.OwnerID) == "" {
		return invalid("owner is required")
	}

	kind, err := models.ParseTradeKind(string(t.Kind))
	if err != nil {
		return invalid("%v", err)
	}
	t.Kind = kind

	class, err := models.ParseAssetClass(string(t.AssetClass))
	if err != nil {
		return invalid("%v", err)
	}
	t.AssetClass = class

	t.Currency = strings.ToUpper(strings.TrimSpace(t.Currency))
	if !common.IsKnownCurrency(t.Currency) {
		return invalid("unknown currency %q", t.Currency)
	}

	t.Symbol = strings.ToUpper(strings.TrimSpace(t.Symbol))
	if class == models.AssetClassCash {
		t.Symbol = models.CashSymbol
	}
	if t.Symbol == "" {
		return invalid("symbol is required")
	}

	if t.Quantity.IsNegative() {
		return invalid("quantity must not be negative")
	}
	if t.Price.IsNegative() {
		return invalid("price must not be negative")
	}
	if t.Amount.IsNegative() {
		return invalid("amount must not be negative")
	}
	if t.Quantity.IsZero() && t.Amount.IsZero() {
		return invalid("quantity or amount is required")
	}
	if class == models.AssetClassCash && t.Price.IsZero() {
		t.Price = decimal.NewFromInt(1)
	}
	if t.Amount.IsZero() {
		t.Amount = t.Quantity.Mul(t.Price)
	}

	if t.Date.IsZero() {
		return invalid("trade date is required")
	}
	t.Date = models.DateOf(t.Date)

	t.Name = strings.TrimSpace(t.Name)
	t.Note = strings.TrimSpace(t.Note)
	return nil
}
