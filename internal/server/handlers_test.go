package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/folio/internal/interfaces"
	"github.com/bobmcallan/folio/internal/models"
)

func doRequest(t *testing.T, h http.Handler, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func asUser(owner string) map[string]string {
	return map[string]string{headerUserID: owner}
}

func daysAgo(n int) time.Time {
	return models.DateOf(time.Now().UTC()).AddDate(0, 0, -n)
}

// seedPortfolio records a deposit, a buy and a partial sale for owner and
// prices the stock.
func seedPortfolio(t *testing.T, store *memStorage, owner string) models.AssetKey {
	t.Helper()
	ctx := context.Background()
	created := time.Now().UTC().Add(-time.Hour)
	aapl := models.NewAssetKey(models.AssetClassEquityUS, "AAPL", "USD")

	trades := []models.Trade{
		{Kind: models.TradeAdd, AssetClass: models.AssetClassCash, Symbol: models.CashSymbol, Currency: "USD",
			Quantity: decimal.NewFromInt(1000), Price: decimal.NewFromInt(1), Amount: decimal.NewFromInt(1000), Date: daysAgo(10)},
		{Kind: models.TradeBuy, AssetClass: models.AssetClassEquityUS, Symbol: "AAPL", Currency: "USD",
			Quantity: decimal.NewFromInt(5), Price: decimal.NewFromInt(100), Amount: decimal.NewFromInt(500), Date: daysAgo(9)},
		{Kind: models.TradeSell, AssetClass: models.AssetClassEquityUS, Symbol: "AAPL", Currency: "USD",
			Quantity: decimal.NewFromInt(2), Price: decimal.NewFromInt(120), Amount: decimal.NewFromInt(240), Date: daysAgo(3)},
	}
	for i := range trades {
		trades[i].OwnerID = owner
		trades[i].CreatedAt = created
		require.NoError(t, store.TradeStore().SaveTrade(ctx, &trades[i]))
	}

	store.addPrice(aapl, daysAgo(9), 100)
	store.addPrice(aapl, daysAgo(5), 110)
	return aapl
}

func TestHealthAndVersion(t *testing.T) {
	h := newTestServer(newMemStorage(), 0).Handler()

	rr := doRequest(t, h, http.MethodGet, "/api/health", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"ok"`)

	rr = doRequest(t, h, http.MethodGet, "/api/version", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Contains(t, body, "version")
	assert.Contains(t, body, "commit")
}

func TestUnknownRouteAndMethod(t *testing.T) {
	h := newTestServer(newMemStorage(), 0).Handler()

	rr := doRequest(t, h, http.MethodGet, "/api/nope", nil, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	rr = doRequest(t, h, http.MethodPatch, "/api/trades", nil, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestTradeLifecycle(t *testing.T) {
	h := newTestServer(newMemStorage(), 0).Handler()
	alice := asUser("alice")

	rr := doRequest(t, h, http.MethodPost, "/api/trades", map[string]interface{}{
		"kind":        "buy",
		"asset_class": "equity-PK",
		"symbol":      "ogdc",
		"quantity":    "10",
		"price":       "85.5",
		"currency":    "pkr",
		"trade_date":  "2024-03-04",
	}, alice)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var created models.Trade
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	assert.Equal(t, int64(1), created.ID)
	assert.Equal(t, "OGDC", created.Symbol)
	assert.Equal(t, "PKR", created.Currency)
	assert.True(t, created.Amount.Equal(decimal.RequireFromString("855")), "amount defaults to quantity x price")
	assert.False(t, created.CreatedAt.IsZero())

	rr = doRequest(t, h, http.MethodGet, "/api/trades/1", nil, alice)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = doRequest(t, h, http.MethodPut, "/api/trades/1", map[string]interface{}{
		"kind":        "buy",
		"asset_class": "equity-PK",
		"symbol":      "OGDC",
		"quantity":    "12",
		"price":       "85.5",
		"currency":    "PKR",
		"trade_date":  "2024-03-04",
		"note":        "corrected",
	}, alice)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var updated models.Trade
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &updated))
	assert.True(t, updated.Quantity.Equal(decimal.NewFromInt(12)))
	assert.Equal(t, created.CreatedAt.Unix(), updated.CreatedAt.Unix(), "edits keep the creation time")

	rr = doRequest(t, h, http.MethodGet, "/api/trades", nil, alice)
	require.Equal(t, http.StatusOK, rr.Code)
	var list struct {
		Trades []models.Trade `json:"trades"`
		Count  int            `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Count)

	rr = doRequest(t, h, http.MethodDelete, "/api/trades/1", nil, alice)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = doRequest(t, h, http.MethodGet, "/api/trades/1", nil, alice)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = doRequest(t, h, http.MethodDelete, "/api/trades/1", nil, alice)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestTradeCreate_Rejections(t *testing.T) {
	h := newTestServer(newMemStorage(), 0).Handler()

	tests := []struct {
		name string
		body interface{}
	}{
		{"bad json", `{"kind":`},
		{"unknown kind", map[string]string{"kind": "gift", "asset_class": "crypto", "symbol": "BTC", "quantity": "1", "currency": "USD", "trade_date": "2024-01-01"}},
		{"unknown class", map[string]string{"kind": "buy", "asset_class": "bonds", "symbol": "X", "quantity": "1", "currency": "USD", "trade_date": "2024-01-01"}},
		{"bad date", map[string]string{"kind": "buy", "asset_class": "crypto", "symbol": "BTC", "quantity": "1", "currency": "USD", "trade_date": "01/02/2024"}},
		{"missing date", map[string]string{"kind": "buy", "asset_class": "crypto", "symbol": "BTC", "quantity": "1", "currency": "USD"}},
		{"unknown currency", map[string]string{"kind": "buy", "asset_class": "crypto", "symbol": "BTC", "quantity": "1", "currency": "ZZZ", "trade_date": "2024-01-01"}},
		{"negative quantity", map[string]string{"kind": "buy", "asset_class": "crypto", "symbol": "BTC", "quantity": "-1", "currency": "USD", "trade_date": "2024-01-01"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := doRequest(t, h, http.MethodPost, "/api/trades", tt.body, nil)
			assert.Equal(t, http.StatusBadRequest, rr.Code, rr.Body.String())
		})
	}
}

func TestTrades_OwnerIsolation(t *testing.T) {
	store := newMemStorage()
	h := newTestServer(store, 0).Handler()
	seedPortfolio(t, store, "alice")

	rr := doRequest(t, h, http.MethodGet, "/api/trades", nil, asUser("bob"))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"count":0`)

	rr = doRequest(t, h, http.MethodGet, "/api/trades/1", nil, asUser("bob"))
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = doRequest(t, h, http.MethodGet, "/api/trades", nil, asUser("alice"))
	assert.Contains(t, rr.Body.String(), `"count":3`)
}

func TestHoldings(t *testing.T) {
	store := newMemStorage()
	h := newTestServer(store, 0).Handler()
	aapl := seedPortfolio(t, store, "alice")

	rr := doRequest(t, h, http.MethodGet, "/api/holdings", nil, asUser("alice"))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var snap models.Snapshot
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &snap))
	require.Len(t, snap.Holdings, 1)
	hold := snap.Holdings[0]
	assert.Equal(t, aapl, hold.Key)
	assert.True(t, hold.Quantity.Equal(decimal.NewFromInt(3)))
	assert.InDelta(t, 110, hold.Price, 1e-9)
	assert.InDelta(t, 330, hold.MarketValue, 1e-9)
	assert.Equal(t, models.PriceSourceMarket, hold.PriceSource)

	require.Len(t, snap.Cash, 1)
	assert.True(t, snap.Cash[0].Quantity.Equal(decimal.NewFromInt(740)))

	// As of the buy date only the first price is known.
	rr = doRequest(t, h, http.MethodGet, "/api/holdings?date="+daysAgo(8).Format(models.DateLayout), nil, asUser("alice"))
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &snap))
	require.Len(t, snap.Holdings, 1)
	assert.True(t, snap.Holdings[0].Quantity.Equal(decimal.NewFromInt(5)))
	assert.InDelta(t, 100, snap.Holdings[0].Price, 1e-9)

	rr = doRequest(t, h, http.MethodGet, "/api/holdings?date=yesterday", nil, asUser("alice"))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRealized(t *testing.T) {
	store := newMemStorage()
	h := newTestServer(store, 0).Handler()
	seedPortfolio(t, store, "alice")

	rr := doRequest(t, h, http.MethodGet, "/api/realized", nil, asUser("alice"))
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Realized []models.RealizedPnL `json:"realized"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Realized, 1)
	assert.True(t, body.Realized[0].Realized.Equal(decimal.NewFromInt(40)), "got %s", body.Realized[0].Realized)

	rr = doRequest(t, h, http.MethodGet, "/api/realized", nil, asUser("bob"))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"realized":[]`)
}

func TestValuation_CachedOnSecondCall(t *testing.T) {
	store := newMemStorage()
	h := newTestServer(store, 0).Handler()
	seedPortfolio(t, store, "alice")

	var first, second interfaces.ValuationResult
	rr := doRequest(t, h, http.MethodGet, "/api/valuation", nil, asUser("alice"))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &first))

	assert.False(t, first.FromCache)
	assert.Equal(t, "USD", first.Key.Currency)
	require.NotEmpty(t, first.Series)
	assert.Equal(t, daysAgo(10), first.Series[0].Date)
	last := first.Series[len(first.Series)-1]
	assert.InDelta(t, 1070, last.TotalValue, 1e-6)

	rr = doRequest(t, h, http.MethodGet, "/api/valuation", nil, asUser("alice"))
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &second))
	assert.True(t, second.FromCache)
	assert.Equal(t, len(first.Series), len(second.Series))

	rr = doRequest(t, h, http.MethodGet, "/api/valuation?refresh=true", nil, asUser("alice"))
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &second))
	assert.False(t, second.FromCache)
}

func TestValuation_Window(t *testing.T) {
	store := newMemStorage()
	h := newTestServer(store, 0).Handler()
	seedPortfolio(t, store, "alice")

	from := daysAgo(6).Format(models.DateLayout)
	to := daysAgo(4).Format(models.DateLayout)
	rr := doRequest(t, h, http.MethodGet, "/api/valuation?from="+from+"&to="+to, nil, asUser("alice"))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var res interfaces.ValuationResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	require.Len(t, res.Series, 3)
	assert.Equal(t, daysAgo(6), res.Series[0].Date)
	assert.Equal(t, daysAgo(4), res.Series[2].Date)

	rr = doRequest(t, h, http.MethodGet, "/api/valuation?from="+to+"&to="+from, nil, asUser("alice"))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestValuation_BadOptions(t *testing.T) {
	h := newTestServer(newMemStorage(), 0).Handler()

	for _, q := range []string{"currency=ZZZ", "unify=maybe", "asset_class=bonds", "from=2024-13-01"} {
		rr := doRequest(t, h, http.MethodGet, "/api/valuation?"+q, nil, nil)
		assert.Equal(t, http.StatusBadRequest, rr.Code, q)
	}
}

func TestValuation_ReportingCurrencyHeader(t *testing.T) {
	store := newMemStorage()
	h := newTestServer(store, 0).Handler()
	seedPortfolio(t, store, "alice")
	store.addRate("PKR", models.MonthOf(daysAgo(30)), 0.0036)

	headers := map[string]string{headerUserID: "alice", headerReportingCurrency: "pkr"}
	rr := doRequest(t, h, http.MethodGet, "/api/valuation?unify=true", nil, headers)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var res interfaces.ValuationResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.Equal(t, "PKR", res.Key.Currency)
	assert.True(t, res.Key.Unify)
	require.NotEmpty(t, res.Series)
	assert.InDelta(t, 1070/0.0036, res.Series[len(res.Series)-1].TotalValue, 1e-3)

	// An explicit query currency wins over the header.
	rr = doRequest(t, h, http.MethodGet, "/api/valuation?unify=true&currency=USD", nil, headers)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.Equal(t, "USD", res.Key.Currency)
}

func TestValuationChart(t *testing.T) {
	store := newMemStorage()
	h := newTestServer(store, 0).Handler()
	seedPortfolio(t, store, "alice")

	rr := doRequest(t, h, http.MethodGet, "/api/valuation/chart", nil, asUser("alice"))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "image/png", rr.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rr.Body.Bytes(), []byte("\x89PNG")))
}

func TestProviderUnavailable(t *testing.T) {
	store := newMemStorage()
	h := newTestServer(store, 0).Handler()
	seedPortfolio(t, store, "alice")
	store.failPrices(errors.New("connection refused"))

	rr := doRequest(t, h, http.MethodGet, "/api/holdings", nil, asUser("alice"))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Contains(t, rr.Body.String(), "provider_unavailable")
	assert.NotContains(t, rr.Body.String(), "connection refused")
}

func TestTradeLogOutage(t *testing.T) {
	store := newMemStorage()
	h := newTestServer(store, 0).Handler()
	seedPortfolio(t, store, "alice")
	store.failTrades(errors.New("db gone"))

	for _, path := range []string{"/api/trades", "/api/trades/1", "/api/holdings", "/api/realized", "/api/valuation"} {
		rr := doRequest(t, h, http.MethodGet, path, nil, asUser("alice"))
		assert.Equal(t, http.StatusServiceUnavailable, rr.Code, path)
		assert.Contains(t, rr.Body.String(), "provider_unavailable", path)
		assert.NotContains(t, rr.Body.String(), "db gone", path)
	}
}

func TestFXRate(t *testing.T) {
	store := newMemStorage()
	h := newTestServer(store, 0).Handler()
	store.addRate("PKR", models.YearMonth{Year: 2024, Month: time.January}, 0.0035)
	store.addRate("PKR", models.YearMonth{Year: 2024, Month: time.March}, 0.0036)

	var res fxRateResponse
	rr := doRequest(t, h, http.MethodGet, "/api/fx/pkr?month=2024-02", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.Equal(t, "PKR", res.Currency)
	assert.Equal(t, "USD", res.BaseCurrency)
	assert.Equal(t, "2024-02", res.Month)
	assert.True(t, res.Found)
	assert.InDelta(t, 0.0035, res.Rate, 1e-12, "missing month falls back to the nearest earlier one")
	assert.InDelta(t, 0.0036, res.LatestRate, 1e-12)

	rr = doRequest(t, h, http.MethodGet, "/api/fx/JPY", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.False(t, res.Found)

	rr = doRequest(t, h, http.MethodGet, "/api/fx/ZZZ", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doRequest(t, h, http.MethodGet, "/api/fx/PKR?month=March", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestWriteErrorWithCode(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteErrorWithCode(rr, http.StatusTeapot, "short and stout", "teapot")

	assert.Equal(t, http.StatusTeapot, rr.Code)
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "short and stout", body.Error)
	assert.Equal(t, "teapot", body.Code)
}

func TestDecodeJSON_BodyTooLarge(t *testing.T) {
	huge := `{"note":"` + strings.Repeat("x", 2<<20) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/trades", strings.NewReader(huge))
	rr := httptest.NewRecorder()

	var v tradeRequest
	assert.False(t, DecodeJSON(rr, req, &v))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
