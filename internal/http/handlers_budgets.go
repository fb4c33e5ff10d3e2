package http

import (
	"net/http"
	"strings"

	"finitor/internal/core"
)

type budgetRequest struct {
	Category   string `json:"category"`
	Period     string `json:"period"`
	LimitMinor int64  `json:"limit_minor"`
	Currency   string `json:"currency"`
}

func (s *Server) handleListBudgets(w http.ResponseWriter, r *http.Request) {
	rows, err := s.budgets.Budgets(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if rows == nil {
		rows = []core.Budget{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleSetBudget(w http.ResponseWriter, r *http.Request) {
	var req budgetRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	err := s.budgets.SetBudget(r.Context(), core.Budget{
		Category:   req.Category,
		Period:     core.Period(req.Period),
		LimitMinor: req.LimitMinor,
		Currency:   strings.ToUpper(strings.TrimSpace(req.Currency)),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteBudget(w http.ResponseWriter, r *http.Request) {
	category := strings.TrimSpace(r.URL.Query().Get("category"))
	period := core.Period(r.URL.Query().Get("period"))

	if err := s.budgets.RemoveBudget(r.Context(), category, period); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCheckBudget(w http.ResponseWriter, r *http.Request) {
	category := strings.TrimSpace(r.URL.Query().Get("category"))
	period := core.Period(r.URL.Query().Get("period"))
	if period == "" {
		period = core.PeriodMonth
	}

	ref, err := queryDate(r, "ref")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if ref.IsZero() {
		ref = core.Today()
	}

	display := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("currency")))
	status, err := s.budgets.Check(r.Context(), category, period, ref, display)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	rows, err := s.budgets.UnreadAlerts(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if rows == nil {
		rows = []core.Alert{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleMarkAlertRead(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if err := s.budgets.MarkAlertRead(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
