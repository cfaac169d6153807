package server

import (
	"net/http"

	"github.com/bobmcallan/folio/internal/common"
)

// registerRoutes sets up all REST API routes on the router.
func (s *Server) registerRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	// System
	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet, http.MethodHead)
	api.HandleFunc("/version", s.handleVersion).Methods(http.MethodGet, http.MethodHead)

	// Trade log
	api.HandleFunc("/trades", s.handleTradeList).Methods(http.MethodGet)
	api.HandleFunc("/trades", s.handleTradeCreate).Methods(http.MethodPost)
	api.HandleFunc("/trades/{id:[0-9]+}", s.handleTradeGet).Methods(http.MethodGet)
	api.HandleFunc("/trades/{id:[0-9]+}", s.handleTradeUpdate).Methods(http.MethodPut)
	api.HandleFunc("/trades/{id:[0-9]+}", s.handleTradeDelete).Methods(http.MethodDelete)

	// Engine
	api.HandleFunc("/holdings", s.handleHoldings).Methods(http.MethodGet)
	api.HandleFunc("/realized", s.handleRealized).Methods(http.MethodGet)
	api.HandleFunc("/valuation", s.handleValuation).Methods(http.MethodGet)
	api.HandleFunc("/valuation/chart", s.handleValuationChart).Methods(http.MethodGet)
	api.HandleFunc("/glossary", s.handleGlossary).Methods(http.MethodGet)

	// Exchange rates
	api.HandleFunc("/fx/{currency}", s.handleFXRate).Methods(http.MethodGet)

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, http.StatusNotFound, "Not found")
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{
		"version": common.GetVersion(),
		"build":   common.GetBuild(),
		"commit":  common.GetGitCommit(),
	})
}
