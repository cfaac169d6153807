package cli

import (
	"bytes"
	"context"
	"flag"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/subcommands"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/folio/internal/app"
	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/interfaces"
	"github.com/bobmcallan/folio/internal/models"
	"github.com/bobmcallan/folio/internal/storage/marketfs"
)

// testStorage keeps trades and cached valuations in memory and market data
// in a marketfs store under a temp dir.
type testStorage struct {
	market *marketfs.Store

	mu     sync.Mutex
	trades []models.Trade
	nextID int64
	cache  map[string]*models.Valuation
}

func newTestStorage(t *testing.T) *testStorage {
	t.Helper()
	market, err := marketfs.NewStore(common.NewSilentLogger(), t.TempDir())
	require.NoError(t, err)
	return &testStorage{market: market, cache: make(map[string]*models.Valuation)}
}

func (s *testStorage) TradeStore() interfaces.TradeStore         { return testTrades{s} }
func (s *testStorage) PriceStore() interfaces.PriceStore         { return s.market.PriceStore() }
func (s *testStorage) RateStore() interfaces.RateStore           { return s.market.RateStore() }
func (s *testStorage) ValuationCache() interfaces.ValuationCache { return testCache{s} }

// Close is a no-op so one storage survives several commands.
func (s *testStorage) Close() error { return nil }

type testTrades struct{ s *testStorage }

func (t testTrades) ListTrades(_ context.Context, ownerID string) ([]models.Trade, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	var out []models.Trade
	for _, tr := range t.s.trades {
		if tr.OwnerID == ownerID {
			out = append(out, tr)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return models.TradeLess(out[i], out[j]) })
	return out, nil
}

func (t testTrades) GetTrade(_ context.Context, ownerID string, id int64) (*models.Trade, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for _, tr := range t.s.trades {
		if tr.ID == id && tr.OwnerID == ownerID {
			cp := tr
			return &cp, nil
		}
	}
	return nil, models.ErrNotFound
}

func (t testTrades) SaveTrade(_ context.Context, trade *models.Trade) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if trade.ID == 0 {
		t.s.nextID++
		trade.ID = t.s.nextID
	}
	t.s.trades = append(t.s.trades, *trade)
	return nil
}

func (t testTrades) DeleteTrade(context.Context, string, int64) error { return nil }

func (t testTrades) LatestCreatedAt(_ context.Context, ownerID string) (time.Time, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	var latest time.Time
	for _, tr := range t.s.trades {
		if tr.OwnerID == ownerID && tr.CreatedAt.After(latest) {
			latest = tr.CreatedAt
		}
	}
	return latest, nil
}

type testCache struct{ s *testStorage }

func (c testCache) Get(_ context.Context, key models.ValuationKey) (*models.Valuation, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	return c.s.cache[key.String()], nil
}

func (c testCache) Put(_ context.Context, v *models.Valuation) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	c.s.cache[v.Key.String()] = v
	return nil
}

// useStorage points openApp at store and captures stdout and stderr.
func useStorage(t *testing.T, store *testStorage) (out, errOut *bytes.Buffer) {
	t.Helper()
	out, errOut = &bytes.Buffer{}, &bytes.Buffer{}

	prevOpen, prevOut, prevErr := openApp, stdout, stderr
	t.Cleanup(func() { openApp, stdout, stderr = prevOpen, prevOut, prevErr })

	config := common.NewDefaultConfig()
	config.Storage.DataPath = store.market.DataPath()
	openApp = func(string) (*app.App, error) {
		return app.NewAppWithStorage(config, common.NewSilentLogger(), store), nil
	}
	stdout, stderr = out, errOut
	return out, errOut
}

// run parses args against cmd's flags and executes it.
func run(t *testing.T, cmd subcommands.Command, args ...string) subcommands.ExitStatus {
	t.Helper()
	fs := flag.NewFlagSet(cmd.Name(), flag.ContinueOnError)
	cmd.SetFlags(fs)
	require.NoError(t, fs.Parse(args))
	return cmd.Execute(context.Background(), fs)
}
