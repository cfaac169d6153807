package surrealdb

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/interfaces"
	"github.com/bobmcallan/folio/internal/models"
	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// MarketStore holds closing prices and the monthly exchange-rate series.
type MarketStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

type priceBarRecord struct {
	AssetKey string  `json:"asset_key"`
	Date     string  `json:"date"`
	Close    float64 `json:"close"`
}

type fxRateRecord struct {
	Currency string  `json:"currency"`
	Month    string  `json:"month"`
	Rate     float64 `json:"rate"`
}

func NewMarketStore(db *surrealdb.DB, logger *common.Logger) *MarketStore {
	return &MarketStore{
		db:     db,
		logger: logger,
	}
}

func priceBarRID(key models.AssetKey, date string) surrealmodels.RecordID {
	return surrealmodels.NewRecordID("price_bar", key.String()+"_"+date)
}

func fxRateRID(currency string, month models.YearMonth) surrealmodels.RecordID {
	return surrealmodels.NewRecordID("fx_rate", currency+"_"+month.String())
}

// --- PriceStore ---

func (s *MarketStore) PriceAtOrBefore(ctx context.Context, key models.AssetKey, date time.Time) (float64, bool, error) {
	sql := "SELECT * FROM price_bar WHERE asset_key = $key AND date <= $date ORDER BY date DESC LIMIT 1"
	vars := map[string]any{
		"key":  key.String(),
		"date": models.DateOf(date).Format(models.DateLayout),
	}

	rows, err := queryRows[priceBarRecord](ctx, s.db, sql, vars)
	if err != nil {
		return 0, false, fmt.Errorf("failed to query price for %s: %w", key, err)
	}
	if len(rows) == 0 {
		return 0, false, nil
	}
	return rows[0].Close, true, nil
}

func (s *MarketStore) PriceHistory(ctx context.Context, key models.AssetKey, from, to time.Time) ([]models.PriceBar, error) {
	sql := "SELECT * FROM price_bar WHERE asset_key = $key"
	vars := map[string]any{"key": key.String()}
	if !from.IsZero() {
		sql += " AND date >= $from"
		vars["from"] = models.DateOf(from).Format(models.DateLayout)
	}
	if !to.IsZero() {
		sql += " AND date <= $to"
		vars["to"] = models.DateOf(to).Format(models.DateLayout)
	}
	sql += " ORDER BY date ASC"

	rows, err := queryRows[priceBarRecord](ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to query price history for %s: %w", key, err)
	}

	bars := make([]models.PriceBar, 0, len(rows))
	for _, r := range rows {
		date, err := models.ParseDate(r.Date)
		if err != nil {
			s.logger.Warn().Str("key", key.String()).Str("date", r.Date).Msg("Skipping price bar with bad date")
			continue
		}
		bars = append(bars, models.PriceBar{Date: date, Close: r.Close})
	}
	return bars, nil
}

func (s *MarketStore) SavePrices(ctx context.Context, key models.AssetKey, bars []models.PriceBar) error {
	for _, bar := range bars {
		date := models.DateOf(bar.Date).Format(models.DateLayout)
		rec := priceBarRecord{AssetKey: key.String(), Date: date, Close: bar.Close}
		if err := upsert[priceBarRecord](ctx, s.db, priceBarRID(key, date), rec); err != nil {
			return fmt.Errorf("failed to save price %s %s after retries: %w", key, date, err)
		}
	}
	s.logger.Debug().Str("key", key.String()).Int("bars", len(bars)).Msg("Prices saved")
	return nil
}

// --- RateStore ---

func (s *MarketStore) RateForMonth(ctx context.Context, currency string, month models.YearMonth) (float64, bool, error) {
	currency = strings.ToUpper(currency)
	rec, err := surrealdb.Select[fxRateRecord](ctx, s.db, fxRateRID(currency, month))
	if err != nil && !isNotFoundError(err) {
		return 0, false, fmt.Errorf("failed to select rate %s %s: %w", currency, month, err)
	}
	if rec == nil {
		return 0, false, nil
	}
	return rec.Rate, true, nil
}

func (s *MarketStore) LatestRate(ctx context.Context, currency string) (float64, bool, error) {
	sql := "SELECT * FROM fx_rate WHERE currency = $ccy ORDER BY month DESC LIMIT 1"
	rows, err := queryRows[fxRateRecord](ctx, s.db, sql, map[string]any{"ccy": strings.ToUpper(currency)})
	if err != nil {
		return 0, false, fmt.Errorf("failed to query latest rate for %s: %w", currency, err)
	}
	if len(rows) == 0 {
		return 0, false, nil
	}
	return rows[0].Rate, true, nil
}

func (s *MarketStore) RateSeries(ctx context.Context, currency string) ([]models.FXRate, error) {
	sql := "SELECT * FROM fx_rate WHERE currency = $ccy ORDER BY month ASC"
	rows, err := queryRows[fxRateRecord](ctx, s.db, sql, map[string]any{"ccy": strings.ToUpper(currency)})
	if err != nil {
		return nil, fmt.Errorf("failed to query rate series for %s: %w", currency, err)
	}

	series := make([]models.FXRate, 0, len(rows))
	for _, r := range rows {
		month, err := models.ParseYearMonth(r.Month)
		if err != nil {
			s.logger.Warn().Str("currency", r.Currency).Str("month", r.Month).Msg("Skipping rate with bad month")
			continue
		}
		series = append(series, models.FXRate{Currency: r.Currency, Month: month, Rate: r.Rate})
	}
	return series, nil
}

func (s *MarketStore) SaveRates(ctx context.Context, rates []models.FXRate) error {
	for _, r := range rates {
		ccy := strings.ToUpper(r.Currency)
		rec := fxRateRecord{Currency: ccy, Month: r.Month.String(), Rate: r.Rate}
		if err := upsert[fxRateRecord](ctx, s.db, fxRateRID(ccy, r.Month), rec); err != nil {
			return fmt.Errorf("failed to save rate %s %s after retries: %w", ccy, r.Month, err)
		}
	}
	s.logger.Debug().Int("rates", len(rates)).Msg("Exchange rates saved")
	return nil
}

var (
	_ interfaces.PriceStore = (*MarketStore)(nil)
	_ interfaces.RateStore  = (*MarketStore)(nil)
)
