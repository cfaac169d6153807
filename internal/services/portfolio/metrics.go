package portfolio

import (
	"math"

	"github.com/bobmcallan/folio/internal/models"
)

// MaxPercent caps reported percentages so tiny denominators cannot produce
// absurd figures.
const MaxPercent = 10000.0

// capPercent clamps p to ±MaxPercent and maps NaN/Inf to a defined value.
func capPercent(p float64) float64 {
	switch {
	case math.IsNaN(p):
		return 0
	case p > MaxPercent:
		return MaxPercent
	case p < -MaxPercent:
		return -MaxPercent
	}
	return p
}

// percentOf returns part/whole as a capped percentage, 0 when whole is zero.
func percentOf(part, whole float64) float64 {
	if whole == 0 {
		return 0
	}
	return capPercent(part / whole * 100)
}

// TotalReturn is the cumulative TWR over the series as a fraction.
func TotalReturn(series []models.DailyValuation) float64 {
	if len(series) < 2 {
		return 0
	}
	start, end := series[0].TWRIndex, series[len(series)-1].TWRIndex
	if start <= 0 {
		return 0
	}
	return end/start - 1
}

// CAGR annualises the TWR index growth over the series' calendar span.
func CAGR(series []models.DailyValuation) float64 {
	if len(series) < 2 {
		return 0
	}
	first, last := series[0], series[len(series)-1]
	days := last.Date.Sub(first.Date).Hours() / 24
	if days <= 0 || first.TWRIndex <= 0 || last.TWRIndex <= 0 {
		return 0
	}
	return math.Pow(last.TWRIndex/first.TWRIndex, 365.25/days) - 1
}

// MaxDrawdown is the largest peak-to-trough fall of the TWR index, as a
// positive fraction.
func MaxDrawdown(series []models.DailyValuation) float64 {
	var peak, worst float64
	for _, e := range series {
		if e.TWRIndex > peak {
			peak = e.TWRIndex
			continue
		}
		if peak > 0 {
			if dd := (peak - e.TWRIndex) / peak; dd > worst {
				worst = dd
			}
		}
	}
	return worst
}

// Summarize computes performance figures for a window of the series. The
// index is re-based implicitly because only ratios of it are used.
func Summarize(series []models.DailyValuation) models.Performance {
	if len(series) == 0 {
		return models.Performance{}
	}
	first, last := series[0], series[len(series)-1]

	var flows float64
	for _, e := range series[1:] {
		flows += e.CashFlow
	}

	return models.Performance{
		StartDate:      first.Date,
		EndDate:        last.Date,
		StartValue:     first.TotalValue,
		EndValue:       last.TotalValue,
		NetCashFlow:    flows,
		TotalReturnPct: capPercent(TotalReturn(series) * 100),
		CAGRPct:        capPercent(CAGR(series) * 100),
		MaxDrawdownPct: capPercent(MaxDrawdown(series) * 100),
	}
}
