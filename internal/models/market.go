package models

import (
	"fmt"
	"time"
)

// PriceBar is one daily closing price of an asset in its native currency.
type PriceBar struct {
	Date  time.Time `json:"date"`
	Close float64   `json:"close"`
}

// YearMonth is a calendar month, the granularity of the exchange-rate series.
type YearMonth struct {
	Year  int        `json:"year"`
	Month time.Month `json:"month"`
}

// MonthOf returns the calendar month containing t.
func MonthOf(t time.Time) YearMonth {
	return YearMonth{Year: t.Year(), Month: t.Month()}
}

// ParseYearMonth parses "2006-01".
func ParseYearMonth(s string) (YearMonth, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return YearMonth{}, fmt.Errorf("invalid month %q: %w", s, err)
	}
	return MonthOf(t), nil
}

// Index is a monotonically increasing ordinal usable for comparisons.
func (ym YearMonth) Index() int {
	return ym.Year*12 + int(ym.Month) - 1
}

// Before reports whether ym precedes o.
func (ym YearMonth) Before(o YearMonth) bool {
	return ym.Index() < o.Index()
}

func (ym YearMonth) String() string {
	return fmt.Sprintf("%04d-%02d", ym.Year, int(ym.Month))
}

// FXRate is the value of one unit of a currency expressed in the configured
// base currency, for one calendar month.
type FXRate struct {
	Currency string    `json:"currency"`
	Month    YearMonth `json:"month"`
	Rate     float64   `json:"rate"`
}
