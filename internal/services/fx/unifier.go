// Package fx converts amounts between currencies using a monthly
// exchange-rate series.
package fx

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/interfaces"
	"github.com/bobmcallan/folio/internal/models"
)

// Unifier implements interfaces.CurrencyConverter. Stored rates express one
// unit of a currency in the base currency, so any pair converts through base.
type Unifier struct {
	rates  interfaces.RateStore
	base   string
	logger *common.Logger
}

// NewUnifier creates a unifier over a rate store.
func NewUnifier(rates interfaces.RateStore, baseCurrency string, logger *common.Logger) *Unifier {
	return &Unifier{
		rates:  rates,
		base:   strings.ToUpper(baseCurrency),
		logger: logger,
	}
}

// BaseCurrency returns the currency rates are expressed in.
func (u *Unifier) BaseCurrency() string {
	return u.base
}

// Convert converts one amount. ok is false when either side has no
// obtainable rate; callers must then exclude the amount, not zero it.
func (u *Unifier) Convert(ctx context.Context, amount float64, from, to string, date time.Time) (float64, bool, error) {
	from, to = strings.ToUpper(from), strings.ToUpper(to)
	if from == to {
		return amount, true, nil
	}

	month := models.MonthOf(date)
	rf, ok, err := u.RateAt(ctx, from, month)
	if err != nil || !ok {
		return 0, false, err
	}
	rt, ok, err := u.RateAt(ctx, to, month)
	if err != nil || !ok {
		return 0, false, err
	}
	return amount * rf / rt, true, nil
}

// RateAt resolves the rate of currency for month: the exact month, else the
// nearest earlier month, else the latest rate in the whole series.
func (u *Unifier) RateAt(ctx context.Context, currency string, month models.YearMonth) (float64, bool, error) {
	currency = strings.ToUpper(currency)
	if currency == u.base {
		return 1, true, nil
	}

	rate, ok, err := u.rates.RateForMonth(ctx, currency, month)
	if err != nil {
		return 0, false, fmt.Errorf("%w: rate for %s %s: %w", models.ErrProviderUnavailable, currency, month, err)
	}
	if ok && rate > 0 {
		return rate, true, nil
	}

	series, err := u.rates.RateSeries(ctx, currency)
	if err != nil {
		return 0, false, fmt.Errorf("%w: rate series for %s: %w", models.ErrProviderUnavailable, currency, err)
	}
	if rate, ok := resolveEarlier(clean(series), month); ok {
		return rate, true, nil
	}

	rate, ok, err = u.rates.LatestRate(ctx, currency)
	if err != nil {
		return 0, false, fmt.Errorf("%w: latest rate for %s: %w", models.ErrProviderUnavailable, currency, err)
	}
	if !ok || rate <= 0 {
		u.logger.Debug().Str("currency", currency).Str("month", month.String()).Msg("No exchange rate available")
		return 0, false, nil
	}
	return rate, true, nil
}

// LatestRate returns the most recent stored rate of currency.
func (u *Unifier) LatestRate(ctx context.Context, currency string) (float64, bool, error) {
	currency = strings.ToUpper(currency)
	if currency == u.base {
		return 1, true, nil
	}
	rate, ok, err := u.rates.LatestRate(ctx, currency)
	if err != nil {
		return 0, false, fmt.Errorf("%w: latest rate for %s: %w", models.ErrProviderUnavailable, currency, err)
	}
	return rate, ok && rate > 0, nil
}

// Table bulk-loads the series of every listed currency for repeated in-memory
// conversion during one computation.
func (u *Unifier) Table(ctx context.Context, currencies ...string) (*RateTable, error) {
	t := &RateTable{base: u.base, series: make(map[string][]models.FXRate, len(currencies))}
	for _, c := range currencies {
		c = strings.ToUpper(c)
		if c == u.base {
			continue
		}
		if _, done := t.series[c]; done {
			continue
		}
		series, err := u.rates.RateSeries(ctx, c)
		if err != nil {
			return nil, fmt.Errorf("%w: rate series for %s: %w", models.ErrProviderUnavailable, c, err)
		}
		t.series[c] = clean(series)
		if len(t.series[c]) == 0 {
			u.logger.Warn().Str("currency", c).Msg("Currency has no exchange-rate history; it will be excluded from unified totals")
		}
	}
	return t, nil
}

// RateTable is an immutable set of loaded series.
type RateTable struct {
	base   string
	series map[string][]models.FXRate
}

// Rate resolves currency for month with the same fallback as Unifier.RateAt.
func (t *RateTable) Rate(currency string, month models.YearMonth) (float64, bool) {
	currency = strings.ToUpper(currency)
	if currency == t.base {
		return 1, true
	}
	series := t.series[currency]
	if rate, ok := resolveEarlier(series, month); ok {
		return rate, true
	}
	if len(series) > 0 {
		return series[len(series)-1].Rate, true
	}
	return 0, false
}

// Convert converts amount between currencies on date. ok is false when no
// rate is obtainable for either side.
func (t *RateTable) Convert(amount float64, from, to string, date time.Time) (float64, bool) {
	from, to = strings.ToUpper(from), strings.ToUpper(to)
	if from == to {
		return amount, true
	}
	month := models.MonthOf(date)
	rf, ok := t.Rate(from, month)
	if !ok {
		return 0, false
	}
	rt, ok := t.Rate(to, month)
	if !ok {
		return 0, false
	}
	return amount * rf / rt, true
}

// resolveEarlier finds the rate for month or the nearest earlier month in an
// ascending series.
func resolveEarlier(series []models.FXRate, month models.YearMonth) (float64, bool) {
	idx := sort.Search(len(series), func(i int) bool {
		return month.Before(series[i].Month)
	})
	if idx == 0 {
		return 0, false
	}
	return series[idx-1].Rate, true
}

// clean drops unusable rates and sorts ascending by month.
func clean(series []models.FXRate) []models.FXRate {
	out := make([]models.FXRate, 0, len(series))
	for _, r := range series {
		if r.Rate > 0 {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Month.Before(out[j].Month)
	})
	return out
}

var _ interfaces.CurrencyConverter = (*Unifier)(nil)
