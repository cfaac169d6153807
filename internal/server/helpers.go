package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/interfaces"
	"github.com/bobmcallan/folio/internal/models"
)

// ErrorResponse is the standard error format for REST API responses.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// WriteError writes a JSON error response.
func WriteError(w http.ResponseWriter, statusCode int, message string) {
	WriteJSON(w, statusCode, ErrorResponse{Error: message})
}

// WriteErrorWithCode writes a JSON error response with an error code.
func WriteErrorWithCode(w http.ResponseWriter, statusCode int, message, code string) {
	WriteJSON(w, statusCode, ErrorResponse{Error: message, Code: code})
}

// writeServiceError maps service errors onto HTTP statuses.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, models.ErrInvalidTrade):
		WriteErrorWithCode(w, http.StatusBadRequest, err.Error(), "invalid_trade")
	case errors.Is(err, models.ErrNotFound):
		WriteErrorWithCode(w, http.StatusNotFound, err.Error(), "not_found")
	case errors.Is(err, models.ErrProviderUnavailable):
		s.logger.Warn().Err(err).Str("path", r.URL.Path).Msg("Upstream store unavailable")
		WriteErrorWithCode(w, http.StatusServiceUnavailable, "Upstream data provider unavailable", "provider_unavailable")
	default:
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
		WriteError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// DecodeJSON reads and decodes JSON from the request body into v.
// Returns false and writes a 400 error if decoding fails.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if r.Body == nil {
		WriteError(w, http.StatusBadRequest, "Request body is required")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return false
	}
	return true
}

// parseValuationOptions reads currency, unify, asset_class, from, to and
// refresh from the query string.
func parseValuationOptions(r *http.Request) (interfaces.ValuationOptions, error) {
	q := r.URL.Query()
	opts := interfaces.ValuationOptions{
		Currency: strings.ToUpper(strings.TrimSpace(q.Get("currency"))),
	}

	if opts.Currency != "" && !common.IsKnownCurrency(opts.Currency) {
		return opts, fmt.Errorf("unknown currency %q", opts.Currency)
	}

	var err error
	if opts.Unify, err = parseBool(q.Get("unify")); err != nil {
		return opts, fmt.Errorf("unify: %w", err)
	}
	if opts.Refresh, err = parseBool(q.Get("refresh")); err != nil {
		return opts, fmt.Errorf("refresh: %w", err)
	}
	if v := q.Get("asset_class"); v != "" {
		if opts.AssetClass, err = models.ParseAssetClass(v); err != nil {
			return opts, err
		}
	}
	if v := q.Get("from"); v != "" {
		if opts.From, err = models.ParseDate(v); err != nil {
			return opts, err
		}
	}
	if v := q.Get("to"); v != "" {
		if opts.To, err = models.ParseDate(v); err != nil {
			return opts, err
		}
	}
	if !opts.From.IsZero() && !opts.To.IsZero() && opts.To.Before(opts.From) {
		return opts, fmt.Errorf("to %s is before from %s", q.Get("to"), q.Get("from"))
	}
	return opts, nil
}

func parseBool(v string) (bool, error) {
	if v == "" {
		return false, nil
	}
	return strconv.ParseBool(v)
}
