package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/interfaces"
	"github.com/bobmcallan/folio/internal/models"
	"github.com/jackc/pgx/v5"
)

const tradeColumns = `id, owner_id, kind, asset_class, symbol, name, quantity, price, amount, currency, trade_date, note, created_at`

// TradeStore implements interfaces.TradeStore on Postgres. Ids come from the
// BIGSERIAL sequence, so they are monotonically increasing and never reused.
type TradeStore struct {
	db     *DB
	logger *common.Logger
}

// NewTradeStore creates a new trade store
func NewTradeStore(db *DB, logger *common.Logger) *TradeStore {
	return &TradeStore{db: db, logger: logger}
}

func scanTrade(row pgx.Row) (models.Trade, error) {
	var t models.Trade
	var kind, class string
	err := row.Scan(
		&t.ID,
		&t.OwnerID,
		&kind,
		&class,
		&t.Symbol,
		&t.Name,
		&t.Quantity,
		&t.Price,
		&t.Amount,
		&t.Currency,
		&t.Date,
		&t.Note,
		&t.CreatedAt,
	)
	if err != nil {
		return t, err
	}
	t.Kind = models.TradeKind(kind)
	t.AssetClass = models.AssetClass(class)
	t.Date = models.DateOf(t.Date)
	t.CreatedAt = t.CreatedAt.UTC()
	return t, nil
}

// ListTrades returns the owner's trades in replay order
func (s *TradeStore) ListTrades(ctx context.Context, ownerID string) ([]models.Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE owner_id = $1 ORDER BY trade_date ASC, id ASC`

	rows, err := s.db.Pool().Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list trades: %w", err)
	}
	defer rows.Close()

	var trades []models.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate trades: %w", err)
	}
	return trades, nil
}

// GetTrade retrieves one trade scoped to its owner
func (s *TradeStore) GetTrade(ctx context.Context, ownerID string, id int64) (*models.Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE id = $1 AND owner_id = $2`

	t, err := scanTrade(s.db.Pool().QueryRow(ctx, query, id, ownerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("trade %d: %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get trade: %w", err)
	}
	return &t, nil
}

// SaveTrade inserts a new trade, or updates an existing one in place
func (s *TradeStore) SaveTrade(ctx context.Context, t *models.Trade) error {
	if t.ID == 0 {
		query := `
			INSERT INTO trades (owner_id, kind, asset_class, symbol, name, quantity, price, amount, currency, trade_date, note, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			RETURNING id
		`
		err := s.db.Pool().QueryRow(ctx, query,
			t.OwnerID, string(t.Kind), string(t.AssetClass), t.Symbol, t.Name,
			t.Quantity, t.Price, t.Amount, t.Currency, models.DateOf(t.Date), t.Note, t.CreatedAt.UTC(),
		).Scan(&t.ID)
		if err != nil {
			return fmt.Errorf("failed to insert trade: %w", err)
		}
		return nil
	}

	query := `
		UPDATE trades SET
			kind = $3, asset_class = $4, symbol = $5, name = $6,
			quantity = $7, price = $8, amount = $9, currency = $10,
			trade_date = $11, note = $12, created_at = $13
		WHERE id = $1 AND owner_id = $2
	`
	tag, err := s.db.Pool().Exec(ctx, query,
		t.ID, t.OwnerID, string(t.Kind), string(t.AssetClass), t.Symbol, t.Name,
		t.Quantity, t.Price, t.Amount, t.Currency, models.DateOf(t.Date), t.Note, t.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save trade: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("trade %d: %w", t.ID, models.ErrNotFound)
	}
	return nil
}

// DeleteTrade removes one trade scoped to its owner
func (s *TradeStore) DeleteTrade(ctx context.Context, ownerID string, id int64) error {
	tag, err := s.db.Pool().Exec(ctx, `DELETE FROM trades WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete trade: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("trade %d: %w", id, models.ErrNotFound)
	}
	return nil
}

// LatestCreatedAt returns the newest creation timestamp, zero when empty
func (s *TradeStore) LatestCreatedAt(ctx context.Context, ownerID string) (time.Time, error) {
	var latest *time.Time
	err := s.db.Pool().QueryRow(ctx, `SELECT MAX(created_at) FROM trades WHERE owner_id = $1`, ownerID).Scan(&latest)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read latest trade timestamp: %w", err)
	}
	if latest == nil {
		return time.Time{}, nil
	}
	return latest.UTC(), nil
}

var _ interfaces.TradeStore = (*TradeStore)(nil)
