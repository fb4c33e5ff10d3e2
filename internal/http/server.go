package http

import (
	"context"
	"net/http"
	"time"

	"finitor/internal/log"
	"finitor/internal/services"
)

// Server exposes the ledger as a JSON API.
type Server struct {
	http.Server

	ledger  *services.LedgerService
	rates   *services.RateService
	agg     *services.AggregationEngine
	budgets *services.BudgetEngine

	displayDefault string
	logger         *log.Logger
}

// NewServer configures routes, returning a ready-to-run http.Server.
func NewServer(addr string, ledger *services.LedgerService, rates *services.RateService, agg *services.AggregationEngine, budgets *services.BudgetEngine, displayDefault string, logger *log.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		ledger:         ledger,
		rates:          rates,
		agg:            agg,
		budgets:        budgets,
		displayDefault: displayDefault,
		logger:         logger.WithComponent(log.ComponentHTTP),
	}

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("POST /api/transactions", s.withLogging(s.handleAddTransaction))
	mux.HandleFunc("GET /api/transactions", s.withLogging(s.handleListTransactions))
	mux.HandleFunc("GET /api/transactions/{id}", s.withLogging(s.handleGetTransaction))
	mux.HandleFunc("PATCH /api/transactions/{id}", s.withLogging(s.handleUpdateTransaction))
	mux.HandleFunc("DELETE /api/transactions/{id}", s.withLogging(s.handleDeleteTransaction))
	mux.HandleFunc("GET /api/export", s.withLogging(s.handleExport))

	mux.HandleFunc("GET /api/summary/month", s.withLogging(s.handleMonthlySummary))
	mux.HandleFunc("GET /api/summary/year", s.withLogging(s.handleYearlySummary))
	mux.HandleFunc("GET /api/summary/by", s.withLogging(s.handleSummarizeBy))
	mux.HandleFunc("GET /api/balance", s.withLogging(s.handleBalance))

	mux.HandleFunc("GET /api/currencies", s.withLogging(s.handleListCurrencies))
	mux.HandleFunc("PUT /api/currencies", s.withLogging(s.handleUpsertCurrency))
	mux.HandleFunc("PUT /api/currencies/base", s.withLogging(s.handleSetBaseCurrency))
	mux.HandleFunc("POST /api/currencies/refresh", s.withLogging(s.handleRefreshRates))

	mux.HandleFunc("GET /api/budgets", s.withLogging(s.handleListBudgets))
	mux.HandleFunc("PUT /api/budgets", s.withLogging(s.handleSetBudget))
	mux.HandleFunc("DELETE /api/budgets", s.withLogging(s.handleDeleteBudget))
	mux.HandleFunc("GET /api/budgets/check", s.withLogging(s.handleCheckBudget))

	mux.HandleFunc("GET /api/alerts", s.withLogging(s.handleListAlerts))
	mux.HandleFunc("POST /api/alerts/{id}/read", s.withLogging(s.handleMarkAlertRead))

	return s
}

// withLogging tags each request with an id and logs start and
// completion with the final status code.
func (s *Server) withLogging(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := generateRequestID()

		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		s.logger.InfoContext(ctx, "request started",
			log.FieldRequestID, requestID,
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path)

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		s.logger.InfoContext(ctx, "request completed",
			log.FieldRequestID, requestID,
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path,
			log.FieldStatusCode, rw.statusCode,
			log.FieldDuration, time.Since(start).Milliseconds())
	}
}

type requestIDKey struct{}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if _, err := s.rates.Snapshot(r.Context()); err != nil {
		http.Error(w, "storage not ready", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
