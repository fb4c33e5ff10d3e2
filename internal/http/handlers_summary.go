package http

import (
	"net/http"
	"strconv"
	"time"

	"finitor/internal/services"
)

func (s *Server) handleMonthlySummary(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	year, err := queryInt(r, "year", strconv.Itoa(now.Year()))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	month, err := queryInt(r, "month", strconv.Itoa(int(now.Month())))
	if err != nil || month < 1 || month > 12 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "month must be 1-12"})
		return
	}

	sum, err := s.agg.MonthlySummary(r.Context(), year, month, s.displayCurrency(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleYearlySummary(w http.ResponseWriter, r *http.Request) {
	year, err := queryInt(r, "year", strconv.Itoa(time.Now().Year()))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	sum, err := s.agg.YearlySummary(r.Context(), year, s.displayCurrency(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleSummarizeBy(w http.ResponseWriter, r *http.Request) {
	dim := services.Dimension(r.URL.Query().Get("dim"))
	if dim == "" {
		dim = services.ByCategory
	}

	filter, err := filterFromQuery(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	totals, err := s.agg.SummarizeBy(r.Context(), dim, filter, s.displayCurrency(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, totals)
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	asOf, err := queryDate(r, "as_of")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	display := s.displayCurrency(r)
	balance, err := s.agg.Balance(r.Context(), asOf, display)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"balance_minor": balance,
		"currency":      display,
	})
}
