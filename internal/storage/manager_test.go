package storage

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/models"
	"github.com/bobmcallan/folio/internal/testenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerCloseOrderAndErrors(t *testing.T) {
	var order []int
	boom := errors.New("boom")
	m := &Manager{closers: []func() error{
		func() error { order = append(order, 1); return nil },
		func() error { order = append(order, 2); return boom },
	}}

	err := m.Close()
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []int{2, 1}, order)
	assert.NoError(t, m.Close(), "second close is a no-op")
}

func TestBackendOr(t *testing.T) {
	assert.Equal(t, BackendSurrealDB, backendOr(""))
	assert.Equal(t, BackendPostgres, backendOr(BackendPostgres))
}

func surrealConfig(t *testing.T) *common.Config {
	sc := testenv.StartSurrealDB(t)
	cfg := common.NewDefaultConfig()
	cfg.Storage.Address = sc.Address()
	cfg.Storage.Namespace = "folio_test"
	cfg.Storage.Database = testenv.DatabaseName(t, "factory")
	return cfg
}

func TestNewStorageManager_Defaults(t *testing.T) {
	cfg := surrealConfig(t)

	m, err := NewStorageManager(context.Background(), common.NewSilentLogger(), cfg)
	require.NoError(t, err)
	defer m.Close()

	assert.NotNil(t, m.TradeStore())
	assert.NotNil(t, m.PriceStore())
	assert.NotNil(t, m.RateStore())
	assert.NotNil(t, m.ValuationCache())
}

func TestNewStorageManager_Postgres(t *testing.T) {
	cfg := surrealConfig(t)
	pc := testenv.StartPostgres(t)
	cfg.Storage.Trades.Backend = BackendPostgres
	cfg.Postgres.Host = pc.Host()
	cfg.Postgres.Port = mustPort(t, pc.Port())
	cfg.Postgres.Database = pc.NewDatabase(t)

	m, err := NewStorageManager(context.Background(), common.NewSilentLogger(), cfg)
	require.NoError(t, err)
	defer m.Close()

	trades, err := m.TradeStore().ListTrades(context.Background(), "alice")
	require.NoError(t, err)
	assert.Empty(t, trades)
}

func TestNewStorageManager_UnknownBackend(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*common.Config)
		wantErr string
	}{
		{"cache", func(c *common.Config) { c.Storage.Cache.Backend = "memcached" }, "unknown cache backend"},
		{"trades", func(c *common.Config) { c.Storage.Trades.Backend = "redis" }, "unknown trade backend"},
		{"market", func(c *common.Config) { c.Storage.Market.Backend = "postgres" }, "unknown market backend"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := common.NewDefaultConfig()
			tt.mutate(cfg)

			// Rejected before any connection is attempted.
			_, err := NewStorageManager(context.Background(), common.NewSilentLogger(), cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewStorageManager_WithoutSurrealDB(t *testing.T) {
	pc := testenv.StartPostgres(t)
	mr := miniredis.RunT(t)

	cfg := common.NewDefaultConfig()
	cfg.Storage.Address = "ws://127.0.0.1:1/rpc" // never dialled
	cfg.Storage.DataPath = t.TempDir()
	cfg.Storage.Market.Backend = BackendFile
	cfg.Storage.Trades.Backend = BackendPostgres
	cfg.Storage.Cache.Backend = BackendRedis
	cfg.Postgres.Host = pc.Host()
	cfg.Postgres.Port = mustPort(t, pc.Port())
	cfg.Postgres.Database = pc.NewDatabase(t)
	cfg.Redis.Host = mr.Host()
	cfg.Redis.Port = mustPort(t, mr.Port())

	m, err := NewStorageManager(context.Background(), common.NewSilentLogger(), cfg)
	require.NoError(t, err)
	defer m.Close()

	ctx := context.Background()
	_, ok, err := m.RateStore().LatestRate(ctx, "PKR")
	require.NoError(t, err)
	assert.False(t, ok)

	v, err := m.ValuationCache().Get(ctx, models.ValuationKey{OwnerID: "alice", Currency: "USD"})
	require.NoError(t, err)
	assert.Nil(t, v)
}

func mustPort(t *testing.T, s string) int {
	t.Helper()
	p, err := strconv.Atoi(s)
	require.NoError(t, err)
	return p
}
