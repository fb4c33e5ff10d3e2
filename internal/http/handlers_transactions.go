package http

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"finitor/internal/core"
	"finitor/internal/export"
	"finitor/internal/log"
)

type transactionRequest struct {
	// Amount is free-form text like "$20" or "30k"; the sign comes
	// from Kind. AmountMinor plus Currency is the exact alternative.
	Amount      string   `json:"amount,omitempty"`
	Kind        string   `json:"kind,omitempty"`
	AmountMinor int64    `json:"amount_minor,omitempty"`
	Currency    string   `json:"currency,omitempty"`
	Description string   `json:"description,omitempty"`
	Category    string   `json:"category"`
	Source      string   `json:"source"`
	Date        string   `json:"date"`
	Recurrence  string   `json:"recurrence,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Note        string   `json:"note,omitempty"`
}

type transactionResponse struct {
	ID          int64    `json:"id"`
	AmountMinor int64    `json:"amount_minor"`
	Currency    string   `json:"currency"`
	Kind        string   `json:"kind"`
	Description string   `json:"description,omitempty"`
	Category    string   `json:"category"`
	Source      string   `json:"source"`
	Date        string   `json:"date"`
	Recurrence  string   `json:"recurrence"`
	NextDate    string   `json:"next_date,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Note        string   `json:"note,omitempty"`
	CreatedAt   string   `json:"created_at,omitempty"`
}

func toResponse(tx core.Transaction) transactionResponse {
	resp := transactionResponse{
		ID:          tx.ID,
		AmountMinor: tx.AmountMinor,
		Currency:    tx.Currency,
		Kind:        string(tx.Kind()),
		Description: tx.Description,
		Category:    tx.Category,
		Source:      tx.Source,
		Date:        tx.Date.String(),
		Recurrence:  string(tx.Recurrence),
		Tags:        tx.Tags,
		Note:        tx.Note,
	}
	if !tx.NextDate.IsZero() {
		resp.NextDate = tx.NextDate.String()
	}
	if !tx.CreatedAt.IsZero() {
		resp.CreatedAt = tx.CreatedAt.Format(time.RFC3339)
	}
	return resp
}

func (s *Server) handleAddTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	tx := core.Transaction{
		AmountMinor: req.AmountMinor,
		Currency:    strings.ToUpper(strings.TrimSpace(req.Currency)),
		Description: req.Description,
		Category:    req.Category,
		Source:      req.Source,
		Recurrence:  core.Recurrence(req.Recurrence),
		Tags:        req.Tags,
		Note:        req.Note,
	}

	if req.Amount != "" {
		minor, code, err := s.ledger.ParseAmount(r.Context(), req.Amount)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		// Parsed text is a magnitude; expenses go negative.
		if req.Kind == "" || req.Kind == string(core.KindExpense) {
			minor = -minor
		} else if req.Kind != string(core.KindIncome) {
			writeJSON(w, http.StatusBadRequest, errorResponse{
				Error: fmt.Sprintf("invalid kind %q", req.Kind),
			})
			return
		}
		tx.AmountMinor = minor
		tx.Currency = code
	}

	if req.Date == "" {
		tx.Date = core.Today()
	} else {
		d, err := core.ParseDate(req.Date)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		tx.Date = d
	}

	id, err := s.ledger.Add(r.Context(), tx)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	created, err := s.ledger.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toResponse(created))
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	tx, err := s.ledger.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(tx))
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	var req struct {
		AmountMinor *int64    `json:"amount_minor,omitempty"`
		Currency    *string   `json:"currency,omitempty"`
		Description *string   `json:"description,omitempty"`
		Category    *string   `json:"category,omitempty"`
		Source      *string   `json:"source,omitempty"`
		Date        *string   `json:"date,omitempty"`
		Tags        *[]string `json:"tags,omitempty"`
		Note        *string   `json:"note,omitempty"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	patch := core.TransactionPatch{
		AmountMinor: req.AmountMinor,
		Currency:    req.Currency,
		Description: req.Description,
		Category:    req.Category,
		Source:      req.Source,
		Tags:        req.Tags,
		Note:        req.Note,
	}
	if req.Date != nil {
		d, err := core.ParseDate(*req.Date)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		patch.Date = &d
	}

	if err := s.ledger.Update(r.Context(), id, patch); err != nil {
		s.writeError(w, r, err)
		return
	}
	tx, err := s.ledger.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(tx))
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if err := s.ledger.Delete(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFromQuery(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	rows, err := s.ledger.List(r.Context(), filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	out := make([]transactionResponse, 0, len(rows))
	for _, tx := range rows {
		out = append(out, toResponse(tx))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFromQuery(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	snap, err := s.rates.Snapshot(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	display := s.displayCurrency(r)
	seq := s.ledger.Query(r.Context(), filter)

	switch format := r.URL.Query().Get("format"); format {
	case "", "json":
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		if err := export.WriteJSON(w, seq, snap, display); err != nil {
			s.logger.ErrorContext(r.Context(), "export failed", "format", "json", log.FieldError, err)
		}
	case "csv":
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="transactions.csv"`)
		if err := export.WriteCSV(w, seq, snap, display); err != nil {
			s.logger.ErrorContext(r.Context(), "export failed", "format", "csv", log.FieldError, err)
		}
	default:
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error: fmt.Sprintf("unsupported format %q", format),
		})
	}
}

func filterFromQuery(r *http.Request) (core.Filter, error) {
	var (
		f   core.Filter
		err error
	)
	if f.From, err = queryDate(r, "from"); err != nil {
		return core.Filter{}, err
	}
	if f.To, err = queryDate(r, "to"); err != nil {
		return core.Filter{}, err
	}
	if f.On, err = queryDate(r, "on"); err != nil {
		return core.Filter{}, err
	}
	f.Category = strings.TrimSpace(r.URL.Query().Get("category"))
	f.Source = strings.TrimSpace(r.URL.Query().Get("source"))
	f.Search = strings.TrimSpace(r.URL.Query().Get("search"))

	switch kind := r.URL.Query().Get("kind"); kind {
	case "":
	case string(core.KindIncome):
		f.Kind = core.KindIncome
	case string(core.KindExpense):
		f.Kind = core.KindExpense
	default:
		return core.Filter{}, fmt.Errorf("invalid kind %q", kind)
	}

	switch templates := r.URL.Query().Get("templates"); templates {
	case "", "exclude":
	case "only":
		f.Templates = core.TemplatesOnly
	case "include":
		f.Templates = core.TemplatesInclude
	default:
		return core.Filter{}, fmt.Errorf("invalid templates mode %q", templates)
	}

	return f, nil
}
