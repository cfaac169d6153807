package server

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/models"
)

// tradeRequest is the wire shape accepted by POST and PUT /api/trades.
type tradeRequest struct {
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

func (req tradeRequest) toTrade(ownerID string) (*models.Trade, error) {
	kind, err := models.ParseTradeKind(req.Kind)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidTrade, err)
	}
	class, err := models.ParseAssetClass(req.AssetClass)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidTrade, err)
	}
	var date time.Time
	if req.TradeDate != "" {
		if date, err = models.ParseDate(req.TradeDate); err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrInvalidTrade, err)
		}
	}
	return &models.Trade{
		OwnerID:    ownerID,
		Kind:       kind,
		AssetClass: class,
		Symbol:     req.Symbol,
		Name:       req.Name,
		Quantity:   req.Quantity,
		Price:      req.Price,
		Amount:     req.Amount,
		Currency:   req.Currency,
		Date:       date,
		Note:       req.Note,
	}, nil
}

func tradeID(r *http.Request) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
}

// --- Trade log ---

func (s *Server) handleTradeList(w http.ResponseWriter, r *http.Request) {
	trades, err := s.app.TradeService.List(r.Context(), common.ResolveUserID(r.Context()))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if trades == nil {
		trades = []models.Trade{}
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"trades": trades, "count": len(trades)})
}

func (s *Server) handleTradeGet(w http.ResponseWriter, r *http.Request) {
	id, err := tradeID(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid trade id")
		return
	}
	t, err := s.app.TradeService.Get(r.Context(), common.ResolveUserID(r.Context()), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, t)
}

func (s *Server) handleTradeCreate(w http.ResponseWriter, r *http.Request) {
	var req tradeRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	t, err := req.toTrade(common.ResolveUserID(r.Context()))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	created, err := s.app.TradeService.Create(r.Context(), t)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, created)
}

func (s *Server) handleTradeUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := tradeID(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid trade id")
		return
	}
	var req tradeRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	t, err := req.toTrade(common.ResolveUserID(r.Context()))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	t.ID = id
	updated, err := s.app.TradeService.Update(r.Context(), t)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, updated)
}

func (s *Server) handleTradeDelete(w http.ResponseWriter, r *http.Request) {
	id, err := tradeID(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid trade id")
		return
	}
	if err := s.app.TradeService.Delete(r.Context(), common.ResolveUserID(r.Context()), id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Engine ---

func (s *Server) handleHoldings(w http.ResponseWriter, r *http.Request) {
	opts, err := parseValuationOptions(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	var asOf time.Time
	if v := r.URL.Query().Get("date"); v != "" {
		if asOf, err = models.ParseDate(v); err != nil {
			WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	snap, err := s.app.PortfolioService.PricedSnapshot(r.Context(), common.ResolveUserID(r.Context()), asOf, opts)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, snap)
}

func (s *Server) handleRealized(w http.ResponseWriter, r *http.Request) {
	realized, err := s.app.PortfolioService.Realized(r.Context(), common.ResolveUserID(r.Context()))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if realized == nil {
		realized = []models.RealizedPnL{}
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"realized": realized})
}

func (s *Server) handleValuation(w http.ResponseWriter, r *http.Request) {
	opts, err := parseValuationOptions(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := s.app.PortfolioService.Valuation(r.Context(), common.ResolveUserID(r.Context()), opts)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, res)
}

func (s *Server) handleValuationChart(w http.ResponseWriter, r *http.Request) {
	opts, err := parseValuationOptions(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	png, err := s.app.PortfolioService.ValuationChart(r.Context(), common.ResolveUserID(r.Context()), opts)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(png)))
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

// --- Exchange rates ---

type fxRateResponse struct {
	Currency     string  `json:"currency"`
	BaseCurrency string  `json:"base_currency"`
	Month        string  `json:"month"`
	Rate         float64 `json:"rate"`
	Found        bool    `json:"found"`
	LatestRate   float64 `json:"latest_rate,omitempty"`
}

func (s *Server) handleFXRate(w http.ResponseWriter, r *http.Request) {
	currency := strings.ToUpper(mux.Vars(r)["currency"])
	if !common.IsKnownCurrency(currency) {
		WriteError(w, http.StatusBadRequest, fmt.Sprintf("unknown currency %q", currency))
		return
	}

	month := models.MonthOf(time.Now().UTC())
	if v := r.URL.Query().Get("month"); v != "" {
		var err error
		if month, err = models.ParseYearMonth(v); err != nil {
			WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	ctx := r.Context()
	rate, found, err := s.app.Unifier.RateAt(ctx, currency, month)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	resp := fxRateResponse{
		Currency:     currency,
		BaseCurrency: s.app.Unifier.BaseCurrency(),
		Month:        month.String(),
		Rate:         rate,
		Found:        found,
	}
	if latest, ok, err := s.app.Unifier.LatestRate(ctx, currency); err != nil {
		s.writeServiceError(w, r, err)
		return
	} else if ok {
		resp.LatestRate = latest
	}
	WriteJSON(w, http.StatusOK, resp)
}
