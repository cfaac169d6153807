// Package surrealdb implements the Folio stores on SurrealDB.
package surrealdb

import (
	"context"
	"fmt"
	"strings"

	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/interfaces"
	"github.com/surrealdb/surrealdb.go"
)

// Tables defined on connect. SurrealDB v3 errors on querying tables that do
// not exist yet.
var tables = []string{"trade", "counter", "price_bar", "fx_rate", "valuation_cache"}

// Manager implements interfaces.StorageManager using SurrealDB.
type Manager struct {
	db     *surrealdb.DB
	logger *common.Logger

	tradeStore  *TradeStore
	marketStore *MarketStore
	cacheStore  *CacheStore
}

// Connect opens, authenticates and selects the namespace/database.
func Connect(ctx context.Context, config *common.StorageConfig) (*surrealdb.DB, error) {
	db, err := surrealdb.New(config.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SurrealDB: %w", err)
	}

	if _, err := db.SignIn(ctx, map[string]interface{}{
		"user": config.Username,
		"pass": config.Password,
	}); err != nil {
		db.Close(ctx)
		return nil, fmt.Errorf("failed to sign in to SurrealDB: %w", err)
	}

	if err := db.Use(ctx, config.Namespace, config.Database); err != nil {
		db.Close(ctx)
		return nil, fmt.Errorf("failed to select namespace/database: %w", err)
	}

	return db, nil
}

// DefineTables creates the Folio tables when missing.
func DefineTables(ctx context.Context, db *surrealdb.DB) error {
	for _, table := range tables {
		sql := fmt.Sprintf("DEFINE TABLE IF NOT EXISTS %s SCHEMALESS", table)
		if _, err := surrealdb.Query[any](ctx, db, sql, nil); err != nil {
			return fmt.Errorf("failed to define table %s: %w", table, err)
		}
	}
	return nil
}

// NewManager creates a new StorageManager connected to SurrealDB.
func NewManager(logger *common.Logger, config *common.Config) (*Manager, error) {
	ctx := context.Background()

	db, err := Connect(ctx, &config.Storage)
	if err != nil {
		return nil, err
	}

	if err := DefineTables(ctx, db); err != nil {
		db.Close(ctx)
		return nil, err
	}

	m := NewManagerWithDB(db, logger)

	logger.Info().
		Str("address", config.Storage.Address).
		Str("namespace", config.Storage.Namespace).
		Str("database", config.Storage.Database).
		Msg("SurrealDB storage manager initialized")

	return m, nil
}

// NewManagerWithDB wraps an already connected database.
func NewManagerWithDB(db *surrealdb.DB, logger *common.Logger) *Manager {
	return &Manager{
		db:          db,
		logger:      logger,
		tradeStore:  NewTradeStore(db, logger),
		marketStore: NewMarketStore(db, logger),
		cacheStore:  NewCacheStore(db, logger),
	}
}

func (m *Manager) TradeStore() interfaces.TradeStore {
	return m.tradeStore
}

func (m *Manager) PriceStore() interfaces.PriceStore {
	return m.marketStore
}

func (m *Manager) RateStore() interfaces.RateStore {
	return m.marketStore
}

func (m *Manager) ValuationCache() interfaces.ValuationCache {
	return m.cacheStore
}

func (m *Manager) Close() error {
	m.db.Close(context.Background())
	return nil
}

// isNotFoundError matches the SDK's error for deleting or selecting a missing
// record.
func isNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not found") || strings.Contains(msg, "does not exist")
}

// upsert writes content at rid, retrying transient failures.
func upsert[T any](ctx context.Context, db *surrealdb.DB, rid any, content any) error {
	sql := "UPSERT $rid CONTENT $data"
	vars := map[string]any{"rid": rid, "data": content}

	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		_, err := surrealdb.Query[[]T](ctx, db, sql, vars)
		if err == nil {
			return nil
		}
		lastErr = err
	}
	return lastErr
}

// queryRows runs sql and returns the first statement's rows.
func queryRows[T any](ctx context.Context, db *surrealdb.DB, sql string, vars map[string]any) ([]T, error) {
	results, err := surrealdb.Query[[]T](ctx, db, sql, vars)
	if err != nil {
		return nil, err
	}
	if results == nil || len(*results) == 0 {
		return nil, nil
	}
	return (*results)[0].Result, nil
}

// Compile-time check
var _ interfaces.StorageManager = (*Manager)(nil)
