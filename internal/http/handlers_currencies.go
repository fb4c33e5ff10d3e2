package http

import (
	"net/http"
	"strings"
	"time"

	"finitor/internal/currency"

	"github.com/shopspring/decimal"
)

type currencyResponse struct {
	Code       string `json:"code"`
	Name       string `json:"name"`
	Symbol     string `json:"symbol,omitempty"`
	RateToBase string `json:"rate_to_base"`
	MinorUnits int32  `json:"minor_units"`
	IsBase     bool   `json:"is_base"`
	UpdatedAt  string `json:"updated_at,omitempty"`
}

func (s *Server) handleListCurrencies(w http.ResponseWriter, r *http.Request) {
	rows, err := s.rates.ListCurrencies(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	out := make([]currencyResponse, 0, len(rows))
	for _, c := range rows {
		resp := currencyResponse{
			Code:       c.Code,
			Name:       c.Name,
			Symbol:     c.Symbol,
			RateToBase: c.RateToBase.String(),
			MinorUnits: c.MinorUnits,
			IsBase:     c.IsBase,
		}
		if !c.UpdatedAt.IsZero() {
			resp.UpdatedAt = c.UpdatedAt.Format(time.RFC3339)
		}
		out = append(out, resp)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleUpsertCurrency(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code       string `json:"code"`
		Name       string `json:"name"`
		Symbol     string `json:"symbol,omitempty"`
		RateToBase string `json:"rate_to_base"`
		MinorUnits int32  `json:"minor_units"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	rate, err := decimal.NewFromString(strings.TrimSpace(req.RateToBase))
	if err != nil {
		s.writeError(w, r, currency.ErrInvalidRate)
		return
	}

	err = s.rates.UpsertCurrency(r.Context(), currency.Currency{
		Code:       req.Code,
		Name:       req.Name,
		Symbol:     req.Symbol,
		RateToBase: rate,
		MinorUnits: req.MinorUnits,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetBaseCurrency(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if err := s.rates.SetBaseCurrency(r.Context(), req.Code); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRefreshRates(w http.ResponseWriter, r *http.Request) {
	if err := s.rates.Refresh(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
