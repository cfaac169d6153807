// Package storage composes the configured storage backends.
package storage

import (
	"context"
	"fmt"

	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/interfaces"
	"github.com/bobmcallan/folio/internal/storage/marketfs"
	"github.com/bobmcallan/folio/internal/storage/postgres"
	"github.com/bobmcallan/folio/internal/storage/redis"
	"github.com/bobmcallan/folio/internal/storage/surrealdb"
)

// Backend type constants.
const (
	BackendSurrealDB = "surrealdb"
	BackendFile      = "file"
	BackendPostgres  = "postgres"
	BackendRedis     = "redis"
)

var supportedBackends = map[string][]string{
	"market": {BackendSurrealDB, BackendFile},
	"trade":  {BackendSurrealDB, BackendPostgres},
	"cache":  {BackendSurrealDB, BackendRedis},
}

// NewStorageManager creates the storage manager described by config. Prices
// and exchange rates live in "surrealdb" (default) or "file", trades in
// "surrealdb" or "postgres", the valuation cache in "surrealdb" or "redis".
// SurrealDB is only connected when at least one store uses it.
func NewStorageManager(ctx context.Context, logger *common.Logger, config *common.Config) (*Manager, error) {
	market := backendOr(config.Storage.Market.Backend)
	trades := backendOr(config.Storage.Trades.Backend)
	cache := backendOr(config.Storage.Cache.Backend)
	for kind, backend := range map[string]string{"market": market, "trade": trades, "cache": cache} {
		if err := checkBackend(kind, backend); err != nil {
			return nil, err
		}
	}

	m := &Manager{logger: logger}

	if market == BackendSurrealDB || trades == BackendSurrealDB || cache == BackendSurrealDB {
		surreal, err := surrealdb.NewManager(logger, config)
		if err != nil {
			return nil, err
		}
		m.closers = append(m.closers, surreal.Close)
		m.market = surreal
		m.trades = surreal.TradeStore()
		m.cache = surreal.ValuationCache()
	}

	if market == BackendFile {
		fs, err := marketfs.NewStore(logger, config.Storage.DataPath)
		if err != nil {
			m.Close()
			return nil, err
		}
		m.market = fs
		m.closers = append(m.closers, fs.Close)
	}

	if trades == BackendPostgres {
		db, err := postgres.OpenFromConfig(ctx, &config.Postgres, logger)
		if err != nil {
			m.Close()
			return nil, fmt.Errorf("failed to open postgres trade store: %w", err)
		}
		m.trades = postgres.NewTradeStore(db, logger)
		m.closers = append(m.closers, func() error { db.Close(); return nil })
	}

	if cache == BackendRedis {
		client, err := redis.NewClient(&config.Redis)
		if err != nil {
			m.Close()
			return nil, err
		}
		rc := redis.NewValuationCache(client, config.Engine.GetCacheTTL(), logger)
		m.cache = rc
		m.closers = append(m.closers, rc.Close)
	}

	logger.Info().
		Str("market", market).
		Str("trades", trades).
		Str("cache", cache).
		Msg("Storage manager initialized")

	return m, nil
}

func checkBackend(kind, backend string) error {
	for _, b := range supportedBackends[kind] {
		if b == backend {
			return nil
		}
	}
	return fmt.Errorf("unknown %s backend: %s (supported: %v)", kind, backend, supportedBackends[kind])
}

func backendOr(backend string) string {
	if backend == "" {
		return BackendSurrealDB
	}
	return backend
}

var _ interfaces.StorageManager = (*Manager)(nil)
