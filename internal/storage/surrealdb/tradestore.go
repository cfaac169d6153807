package surrealdb

import (
	"context"
	"fmt"
	"time"

	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/interfaces"
	"github.com/bobmcallan/folio/internal/models"
	"github.com/shopspring/decimal"
	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// TradeStore implements interfaces.TradeStore using SurrealDB.
type TradeStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

// tradeRecord is the SurrealDB record shape for the trade table. Decimals are
// stored as strings so no precision is lost in the CBOR round trip.
type tradeRecord struct {
	TradeID    int64     `json:"trade_id"`
	OwnerID    string    `json:"owner_id"`
	Kind       string    `json:"kind"`
	AssetClass string    `json:"asset_class"`
	Symbol     string    `json:"symbol"`
	Name       string    `json:"name"`
	Quantity   string    `json:"quantity"`
	Price      string    `json:"price"`
	Amount     string    `json:"amount"`
	Currency   string    `json:"currency"`
	TradeDate  string    `json:"trade_date"` // 2006-01-02, sorts lexically
	Note       string    `json:"note"`
	CreatedAt  time.Time `json:"created_at"`
}

type counterRecord struct {
	Value int64 `json:"value"`
}

// NewTradeStore creates a new TradeStore.
func NewTradeStore(db *surrealdb.DB, logger *common.Logger) *TradeStore {
	return &TradeStore{db: db, logger: logger}
}

func tradeRID(id int64) surrealmodels.RecordID {
	return surrealmodels.NewRecordID("trade", id)
}

func toTradeRecord(t *models.Trade) tradeRecord {
	return tradeRecord{
		TradeID:    t.ID,
		OwnerID:    t.OwnerID,
		Kind:       string(t.Kind),
		AssetClass: string(t.AssetClass),
		Symbol:     t.Symbol,
		Name:       t.Name,
		Quantity:   t.Quantity.String(),
		Price:      t.Price.String(),
		Amount:     t.Amount.String(),
		Currency:   t.Currency,
		TradeDate:  models.DateOf(t.Date).Format(models.DateLayout),
		Note:       t.Note,
		CreatedAt:  t.CreatedAt.UTC(),
	}
}

func (r tradeRecord) toTrade() (models.Trade, error) {
	date, err := models.ParseDate(r.TradeDate)
	if err != nil {
		return models.Trade{}, err
	}
	t := models.Trade{
		ID:         r.TradeID,
		OwnerID:    r.OwnerID,
		Kind:       models.TradeKind(r.Kind),
		AssetClass: models.AssetClass(r.AssetClass),
		Symbol:     r.Symbol,
		Name:       r.Name,
		Currency:   r.Currency,
		Date:       date,
		Note:       r.Note,
		CreatedAt:  r.CreatedAt.UTC(),
	}
	for _, f := range []struct {
		dst *decimal.Decimal
		src string
	}{{&t.Quantity, r.Quantity}, {&t.Price, r.Price}, {&t.Amount, r.Amount}} {
		if f.src == "" {
			continue
		}
		v, err := decimal.NewFromString(f.src)
		if err != nil {
			return models.Trade{}, fmt.Errorf("trade %d: %w", r.TradeID, err)
		}
		*f.dst = v
	}
	return t, nil
}

func (s *TradeStore) ListTrades(ctx context.Context, ownerID string) ([]models.Trade, error) {
	sql := "SELECT * FROM trade WHERE owner_id = $owner ORDER BY trade_date ASC, trade_id ASC"
	rows, err := queryRows[tradeRecord](ctx, s.db, sql, map[string]any{"owner": ownerID})
	if err != nil {
		return nil, fmt.Errorf("failed to list trades: %w", err)
	}

	trades := make([]models.Trade, 0, len(rows))
	for _, r := range rows {
		t, err := r.toTrade()
		if err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, nil
}

func (s *TradeStore) GetTrade(ctx context.Context, ownerID string, id int64) (*models.Trade, error) {
	rec, err := surrealdb.Select[tradeRecord](ctx, s.db, tradeRID(id))
	if err != nil && !isNotFoundError(err) {
		return nil, fmt.Errorf("failed to select trade: %w", err)
	}
	if rec == nil || rec.OwnerID != ownerID {
		return nil, fmt.Errorf("trade %d: %w", id, models.ErrNotFound)
	}
	t, err := rec.toTrade()
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *TradeStore) SaveTrade(ctx context.Context, trade *models.Trade) error {
	if trade.ID == 0 {
		id, err := s.nextID(ctx)
		if err != nil {
			return err
		}
		trade.ID = id
	}

	if err := upsert[tradeRecord](ctx, s.db, tradeRID(trade.ID), toTradeRecord(trade)); err != nil {
		return fmt.Errorf("failed to save trade after retries: %w", err)
	}
	return nil
}

// nextID increments the shared trade counter. Ids are never reused.
func (s *TradeStore) nextID(ctx context.Context) (int64, error) {
	sql := "UPSERT $rid SET value += 1 RETURN AFTER"
	rows, err := queryRows[counterRecord](ctx, s.db, sql, map[string]any{
		"rid": surrealmodels.NewRecordID("counter", "trade"),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to allocate trade id: %w", err)
	}
	if len(rows) == 0 || rows[0].Value <= 0 {
		return 0, fmt.Errorf("failed to allocate trade id: empty counter")
	}
	return rows[0].Value, nil
}

func (s *TradeStore) DeleteTrade(ctx context.Context, ownerID string, id int64) error {
	if _, err := s.GetTrade(ctx, ownerID, id); err != nil {
		return err
	}
	if _, err := surrealdb.Delete[tradeRecord](ctx, s.db, tradeRID(id)); err != nil && !isNotFoundError(err) {
		return fmt.Errorf("failed to delete trade: %w", err)
	}
	return nil
}

func (s *TradeStore) LatestCreatedAt(ctx context.Context, ownerID string) (time.Time, error) {
	sql := "SELECT created_at FROM trade WHERE owner_id = $owner ORDER BY created_at DESC LIMIT 1"
	rows, err := queryRows[tradeRecord](ctx, s.db, sql, map[string]any{"owner": ownerID})
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read latest trade timestamp: %w", err)
	}
	if len(rows) == 0 {
		return time.Time{}, nil
	}
	return rows[0].CreatedAt.UTC(), nil
}

var _ interfaces.TradeStore = (*TradeStore)(nil)
