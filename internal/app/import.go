package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/bobmcallan/folio/internal/models"
)

// importFile is the seed format accepted by ImportFromFile. Every section is
// optional.
type importFile struct {
	Prices []importPrices `json:"prices"`
	Rates  []importRate   `json:"rates"`
	Trades []importTrade  `json:"trades"`
}

type importPrices struct {
	AssetClass string `json:"asset_class"`
	Symbol     string `json:"symbol"`
	Currency   string `json:"currency"`
	Bars       []struct {
		Date  string  `json:"date"`
		Close float64 `json:"close"`
	} `json:"bars"`
}

type importRate struct {
	Currency string  `json:"currency"`
	Month    string  `json:"month"`
	Rate     float64 `json:"rate"`
}

type importTrade struct {
	OwnerID    string          `json:"owner_id"`
	Kind       string          `json:"kind"`
	AssetClass string          `json:"asset_class"`
	Symbol     string          `json:"symbol"`
	Name       string          `json:"name"`
	Quantity   decimal.Decimal `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	TradeDate  string          `json:"trade_date"`
	Note       string          `json:"note"`
}

// ImportSummary counts what ImportFromFile wrote and what it skipped.
type ImportSummary struct {
	PriceBars int `json:"price_bars"`
	Rates     int `json:"rates"`
	Trades    int `json:"trades"`
	Skipped   int `json:"skipped"`
}

// ImportFromFile loads closing prices, exchange rates and trades from a JSON
// file. Malformed entries are skipped and logged; store failures abort.
// Trades go through the trade service, so each one is validated and receives
// a fresh id.
func (a *App) ImportFromFile(ctx context.Context, filePath string) (ImportSummary, error) {
	var sum ImportSummary

	data, err := os.ReadFile(filePath)
	if err != nil {
		return sum, fmt.Errorf("failed to read import file %s: %w", filePath, err)
	}

	var file importFile
	if err := json.Unmarshal(data, &file); err != nil {
		return sum, fmt.Errorf("failed to parse import file %s: %w", filePath, err)
	}

	for _, p := range file.Prices {
		class, err := models.ParseAssetClass(p.AssetClass)
		if err != nil || strings.TrimSpace(p.Symbol) == "" {
			a.Logger.Warn().Str("symbol", p.Symbol).Str("asset_class", p.AssetClass).Msg("Skipping price series with bad key")
			sum.Skipped += len(p.Bars)
			continue
		}
		key := models.NewAssetKey(class, p.Symbol, p.Currency)

		bars := make([]models.PriceBar, 0, len(p.Bars))
		for _, b := range p.Bars {
			date, err := models.ParseDate(b.Date)
			if err != nil || b.Close <= 0 {
				a.Logger.Warn().Str("key", key.String()).Str("date", b.Date).Msg("Skipping bad price bar")
				sum.Skipped++
				continue
			}
			bars = append(bars, models.PriceBar{Date: date, Close: b.Close})
		}
		if len(bars) == 0 {
			continue
		}
		if err := a.Storage.PriceStore().SavePrices(ctx, key, bars); err != nil {
			return sum, fmt.Errorf("failed to import prices for %s: %w", key, err)
		}
		sum.PriceBars += len(bars)
	}

	rates := make([]models.FXRate, 0, len(file.Rates))
	for _, r := range file.Rates {
		month, err := models.ParseYearMonth(r.Month)
		if err != nil || r.Rate <= 0 {
			a.Logger.Warn().Str("currency", r.Currency).Str("month", r.Month).Msg("Skipping bad exchange rate")
			sum.Skipped++
			continue
		}
		rates = append(rates, models.FXRate{Currency: strings.ToUpper(r.Currency), Month: month, Rate: r.Rate})
	}
	if len(rates) > 0 {
		if err := a.Storage.RateStore().SaveRates(ctx, rates); err != nil {
			return sum, fmt.Errorf("failed to import exchange rates: %w", err)
		}
		sum.Rates = len(rates)
	}

	for _, it := range file.Trades {
		t := models.Trade{
			OwnerID:    it.OwnerID,
			Kind:       models.TradeKind(it.Kind),
			AssetClass: models.AssetClass(it.AssetClass),
			Symbol:     it.Symbol,
			Name:       it.Name,
			Quantity:   it.Quantity,
			Price:      it.Price,
			Amount:     it.Amount,
			Currency:   it.Currency,
			Note:       it.Note,
		}
		if t.Date, err = models.ParseDate(it.TradeDate); err != nil {
			a.Logger.Warn().Str("owner", it.OwnerID).Str("symbol", it.Symbol).Str("trade_date", it.TradeDate).Msg("Skipping trade with bad date")
			sum.Skipped++
			continue
		}
		if _, err := a.TradeService.Create(ctx, &t); err != nil {
			if errors.Is(err, models.ErrInvalidTrade) {
				a.Logger.Warn().Err(err).Str("owner", it.OwnerID).Str("symbol", it.Symbol).Msg("Skipping invalid trade")
				sum.Skipped++
				continue
			}
			return sum, fmt.Errorf("failed to import trade: %w", err)
		}
		sum.Trades++
	}

	a.Logger.Info().
		Int("price_bars", sum.PriceBars).
		Int("rates", sum.Rates).
		Int("trades", sum.Trades).
		Int("skipped", sum.Skipped).
		Str("file", filePath).
		Msg("Import complete")
	return sum, nil
}
