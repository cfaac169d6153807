package server

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/Rhymond/go-money"

	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/interfaces"
	"github.com/bobmcallan/folio/internal/models"
)

// handleGlossary returns the engine's terms with live examples from the
// caller's valuation view. It accepts the same query as /api/valuation.
func (s *Server) handleGlossary(w http.ResponseWriter, r *http.Request) {
	opts, err := parseValuationOptions(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	ownerID := common.ResolveUserID(r.Context())

	res, err := s.app.PortfolioService.Valuation(r.Context(), ownerID, opts)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	resp := buildGlossary(res)
	resp.GeneratedAt = time.Now().UTC()
	WriteJSON(w, http.StatusOK, resp)
}

// buildGlossary constructs the glossary response from a valuation window.
func buildGlossary(res *interfaces.ValuationResult) *models.GlossaryResponse {
	ccy := res.Key.Currency
	resp := &models.GlossaryResponse{
		OwnerID:  res.Key.OwnerID,
		Currency: ccy,
	}

	if len(res.Series) > 0 {
		resp.Categories = append(resp.Categories, buildValuationCategory(res.Series[len(res.Series)-1], ccy))
	}

	if top := topHoldings(res.Holdings, 3); len(top) > 0 {
		resp.Categories = append(resp.Categories, buildHoldingCategory(top))
	}

	if len(res.Realized) > 0 {
		resp.Categories = append(resp.Categories, buildRealizedCategory(res.Realized, res.Performance.RealizedTotal, ccy))
	}

	if len(res.Series) > 0 {
		resp.Categories = append(resp.Categories, buildReturnCategory(res.Performance, res.Series[len(res.Series)-1], ccy))
	}

	return resp
}

func buildValuationCategory(last models.DailyValuation, ccy string) models.GlossaryCategory {
	excluded := "none"
	if len(last.Excluded) > 0 {
		excluded = strings.Join(last.Excluded, ", ")
	}
	return models.GlossaryCategory{
		Name: "Portfolio Valuation",
		Terms: []models.GlossaryTerm{
			{
				Term:       "market_value",
				Label:      "Market Value",
				Definition: "Value of all non-cash positions at the latest close on or before the date. Positions never priced are carried at cost.",
				Formula:    "sum(quantity * price) for each open position",
				Value:      last.MarketValue,
				Example:    fmtMoney(last.MarketValue, ccy),
			},
			{
				Term:       "cash",
				Label:      "Cash",
				Definition: "Running cash balance per currency. Purchases draw it down and may take it negative.",
				Formula:    "deposits + sale proceeds - withdrawals - purchase costs",
				Value:      last.Cash,
				Example:    fmtMoney(last.Cash, ccy),
			},
			{
				Term:       "total_value",
				Label:      "Total Value",
				Definition: "Cash plus market value in the view currency.",
				Formula:    "cash + market_value",
				Value:      last.TotalValue,
				Example:    fmt.Sprintf("%s + %s = %s", fmtMoney(last.Cash, ccy), fmtMoney(last.MarketValue, ccy), fmtMoney(last.TotalValue, ccy)),
			},
			{
				Term:       "excluded_currencies",
				Label:      "Excluded Currencies",
				Definition: "Currencies left out of the day's total because no exchange rate was known for them.",
				Value:      last.Excluded,
				Example:    excluded,
			},
		},
	}
}

// buildHoldingCategory uses the largest positions as examples.
func buildHoldingCategory(top []models.Holding) models.GlossaryCategory {
	return models.GlossaryCategory{
		Name: "Holdings",
		Terms: []models.GlossaryTerm{
			{
				Term:       "avg_cost",
				Label:      "Average Cost",
				Definition: "Cost per unit weighted over the lots still open after FIFO matching.",
				Formula:    "sum(remaining * lot_price) / sum(remaining)",
				Value:      topVal(top, func(h models.Holding) float64 { return h.AvgCost.InexactFloat64() }),
				Example: fmtHoldingCalc(top, func(h models.Holding) string {
					return fmt.Sprintf("%s / %s = %s", fmtMoney(h.TotalCost.InexactFloat64(), h.Key.Currency), h.Quantity, h.AvgCost.StringFixed(4))
				}),
			},
			{
				Term:       "holding_market_value",
				Label:      "Holding Market Value",
				Definition: "Value of one position in its own currency.",
				Formula:    "quantity * price",
				Value:      topVal(top, func(h models.Holding) float64 { return h.MarketValue }),
				Example: fmtHoldingCalc(top, func(h models.Holding) string {
					return fmt.Sprintf("%s * %.4f = %s", h.Quantity, h.Price, fmtMoney(h.MarketValue, h.Key.Currency))
				}),
			},
			{
				Term:       "unrealized_gain",
				Label:      "Unrealized Gain",
				Definition: "Gain or loss on the open lots had they been sold at the valuation price.",
				Formula:    "market_value - total_cost",
				Value:      topVal(top, func(h models.Holding) float64 { return h.UnrealizedGain }),
				Example: fmtHoldingCalc(top, func(h models.Holding) string {
					return fmt.Sprintf("%s - %s = %s (%.2f%%)", fmtMoney(h.MarketValue, h.Key.Currency),
						fmtMoney(h.TotalCost.InexactFloat64(), h.Key.Currency), fmtMoney(h.UnrealizedGain, h.Key.Currency), h.UnrealizedGainPct)
				}),
			},
		},
	}
}

func buildRealizedCategory(realized []models.RealizedPnL, total float64, ccy string) models.GlossaryCategory {
	first := realized[0]
	return models.GlossaryCategory{
		Name: "Realized Profit",
		Terms: []models.GlossaryTerm{
			{
				Term:       "realized",
				Label:      "Realized Profit",
				Definition: "Profit locked in by sales, matched against the oldest open lots first. Removals consume lots without realizing profit.",
				Formula:    "sale proceeds - cost of the matched lots",
				Value:      first.Realized.InexactFloat64(),
				Example: fmt.Sprintf("%s: %s - %s = %s", first.Key.Symbol,
					fmtMoney(first.Proceeds.InexactFloat64(), first.Key.Currency),
					fmtMoney(first.Cost.InexactFloat64(), first.Key.Currency),
					fmtMoney(first.Realized.InexactFloat64(), first.Key.Currency)),
			},
			{
				Term:       "realized_total",
				Label:      "Realized Total",
				Definition: "Realized profit of every position in the view currency. Positions without a known rate are left out.",
				Value:      total,
				Example:    fmtMoney(total, ccy),
			},
		},
	}
}

func buildReturnCategory(p models.Performance, last models.DailyValuation, ccy string) models.GlossaryCategory {
	return models.GlossaryCategory{
		Name: "Returns",
		Terms: []models.GlossaryTerm{
			{
				Term:       "cash_flow",
				Label:      "Cash Flow",
				Definition: "External money moved in or out on a day. Deposits are positive, withdrawals negative. In the cash-only view, purchases and sales count as flows as well.",
				Value:      p.NetCashFlow,
				Example:    fmtMoney(p.NetCashFlow, ccy) + " over the window",
			},
			{
				Term:       "daily_return",
				Label:      "Daily Return",
				Definition: "Return earned on the day, with the day's cash flow treated as arriving before the market moved. Zero when the starting base is zero.",
				Formula:    "value_today / (value_yesterday + flow_today) - 1",
				Value:      last.DailyReturn,
				Example:    fmt.Sprintf("%.4f%% on %s", last.DailyReturn*100, last.Date.Format(models.DateLayout)),
			},
			{
				Term:       "twr_index",
				Label:      "TWR Index",
				Definition: "Chain-linked wealth index seeded with the first day's value (100 when that is zero). Deposits and withdrawals do not move it.",
				Formula:    "index_yesterday * (1 + daily_return)",
				Value:      last.TWRIndex,
				Example:    fmt.Sprintf("%.4f", last.TWRIndex),
			},
			{
				Term:       "total_return_pct",
				Label:      "Time-Weighted Return",
				Definition: "Growth of the TWR index across the window.",
				Formula:    "(index_end / index_start - 1) * 100",
				Value:      p.TotalReturnPct,
				Example:    fmt.Sprintf("%.2f%%", p.TotalReturnPct),
			},
			{
				Term:       "max_drawdown_pct",
				Label:      "Max Drawdown",
				Definition: "Largest fall of the TWR index from a previous peak within the window.",
				Value:      p.MaxDrawdownPct,
				Example:    fmt.Sprintf("%.2f%%", p.MaxDrawdownPct),
			},
		},
	}
}

// --- Helpers ---

func fmtMoney(v float64, ccy string) string {
	return money.NewFromFloat(v, strings.ToUpper(ccy)).Display()
}

func topHoldings(holdings []models.Holding, n int) []models.Holding {
	sorted := make([]models.Holding, 0, len(holdings))
	for _, h := range holdings {
		if !h.Key.IsCash() {
			sorted = append(sorted, h)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ReportingValue > sorted[j].ReportingValue
	})
	if n > len(sorted) {
		n = len(sorted)
	}
	return sorted[:n]
}

func topVal(holdings []models.Holding, fn func(models.Holding) float64) float64 {
	if len(holdings) == 0 {
		return 0
	}
	return fn(holdings[0])
}

func fmtHoldingCalc(holdings []models.Holding, fn func(models.Holding) string) string {
	parts := make([]string, 0, len(holdings))
	for _, h := range holdings {
		parts = append(parts, fmt.Sprintf("%s: %s", h.Key.Symbol, fn(h)))
	}
	return strings.Join(parts, " | ")
}
