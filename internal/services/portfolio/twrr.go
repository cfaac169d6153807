package portfolio

import (
	"math"

	"github.com/bobmcallan/folio/internal/models"
)

// baseIndex seeds the wealth index when the first day's value is zero.
const baseIndex = 100.0

// ApplyTWR fills DailyReturn and TWRIndex in place. Each day's flow is
// treated as arriving before that day's return is earned:
//
//	r_t = V_t / (V_{t-1} + F_t) - 1
//
// A zero denominator yields a return of 0.
func ApplyTWR(series []models.DailyValuation) {
	if len(series) == 0 {
		return
	}

	index := series[0].TotalValue
	if index == 0 {
		index = baseIndex
	}
	series[0].DailyReturn = 0
	series[0].TWRIndex = index

	for i := 1; i < len(series); i++ {
		r := SubPeriodReturn(series[i-1].TotalValue, series[i].TotalValue, series[i].CashFlow)
		index *= 1 + r
		series[i].DailyReturn = r
		series[i].TWRIndex = index
	}
}

// SubPeriodReturn is the adjusted-start return of one day.
func SubPeriodReturn(prevValue, value, flow float64) float64 {
	denom := prevValue + flow
	if math.Abs(denom) < 1e-9 {
		return 0
	}
	r := value/denom - 1
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0
	}
	return r
}
