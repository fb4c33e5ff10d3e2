package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"finitor/internal/currency"
	"finitor/internal/log"
	"finitor/internal/services"
	"finitor/internal/storage"

	"github.com/shopspring/decimal"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	ctx := context.Background()
	if err := repo.EnsureBaseCurrency(ctx, "VND", "Vietnamese Dong", 0); err != nil {
		t.Fatalf("seed base: %v", err)
	}
	err = repo.UpsertCurrency(ctx, currency.Currency{
		Code: "USD", Name: "US Dollar", Symbol: "$",
		RateToBase: decimal.New(24000, 0), MinorUnits: 2,
	})
	if err != nil {
		t.Fatalf("seed USD: %v", err)
	}

	logger := log.New(log.DefaultConfig())
	rateSvc := services.NewRateService(repo, nil, time.Hour, logger)
	ledger := services.NewLedgerService(repo, rateSvc, nil, "VND", logger)
	agg := services.NewAggregationEngine(repo, rateSvc)
	budgets := services.NewBudgetEngine(repo, rateSvc, time.Hour, logger)

	return NewServer(":0", ledger, rateSvc, agg, budgets, "VND", logger)
}

func doJSON(t *testing.T, srv *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)
	return rec
}

func TestAddAndGetTransactionHandler(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/transactions",
		`{"amount":"$20","category":"Food","source":"card","date":"2024-03-01"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}

	var created transactionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if created.AmountMinor != -2000 || created.Currency != "USD" || created.Kind != "expense" {
		t.Fatalf("created = %+v", created)
	}

	rec = doJSON(t, srv, http.MethodGet, "/api/transactions/1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}

	rec = doJSON(t, srv, http.MethodGet, "/api/transactions/999", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing row status = %d, want 404", rec.Code)
	}
}

func TestAddTransactionValidationStatus(t *testing.T) {
	srv := newTestServer(t)

	cases := []struct {
		name string
		body string
		want int
	}{
		{"bad amount text", `{"amount":"abc","category":"a","source":"b"}`, http.StatusUnprocessableEntity},
		{"unknown symbol", `{"amount":"£20","category":"a","source":"b"}`, http.StatusUnprocessableEntity},
		{"unknown currency", `{"amount_minor":-100,"currency":"XXX","category":"a","source":"b","date":"2024-01-01"}`, http.StatusUnprocessableEntity},
		{"missing category", `{"amount_minor":-100,"currency":"VND","source":"b","date":"2024-01-01"}`, http.StatusUnprocessableEntity},
		{"bad date", `{"amount_minor":-100,"currency":"VND","category":"a","source":"b","date":"2024-02-30"}`, http.StatusUnprocessableEntity},
		{"bad kind", `{"amount":"20","kind":"transfer","category":"a","source":"b"}`, http.StatusBadRequest},
		{"unknown field", `{"amout":"20"}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, srv, http.MethodPost, "/api/transactions", tc.body)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tc.want, rec.Body)
			}
		})
	}
}

func TestMonthlySummaryHandler(t *testing.T) {
	srv := newTestServer(t)

	adds := []string{
		`{"amount_minor":500000,"currency":"VND","category":"Salary","source":"job","date":"2024-03-01"}`,
		`{"amount_minor":-200000,"currency":"VND","category":"Food","source":"cash","date":"2024-03-10"}`,
	}
	for _, body := range adds {
		if rec := doJSON(t, srv, http.MethodPost, "/api/transactions", body); rec.Code != http.StatusCreated {
			t.Fatalf("seed failed: %d %s", rec.Code, rec.Body)
		}
	}

	rec := doJSON(t, srv, http.MethodGet, "/api/summary/month?year=2024&month=3", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var sum struct {
		IncomeMinor  int64
		ExpenseMinor int64
		NetMinor     int64
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &sum); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sum.IncomeMinor != 500000 || sum.ExpenseMinor != 200000 || sum.NetMinor != 300000 {
		t.Fatalf("summary = %+v", sum)
	}
}

func TestBudgetHandlers(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPut, "/api/budgets",
		`{"category":"Food","period":"month","limit_minor":300000,"currency":"VND"}`)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("set budget status = %d, body %s", rec.Code, rec.Body)
	}

	doJSON(t, srv, http.MethodPost, "/api/transactions",
		`{"amount_minor":-100000,"currency":"VND","category":"Food","source":"cash","date":"2024-03-05"}`)

	rec = doJSON(t, srv, http.MethodGet, "/api/budgets/check?category=Food&period=month&ref=2024-03-15", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("check status = %d, body %s", rec.Code, rec.Body)
	}
	var status struct {
		SpentMinor     int64
		RemainingMinor int64
		Exceeded       bool
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if status.SpentMinor != 100000 || status.RemainingMinor != 200000 || status.Exceeded {
		t.Fatalf("status = %+v", status)
	}

	rec = doJSON(t, srv, http.MethodGet, "/api/budgets/check?category=Nope&period=month", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing budget status = %d, want 404", rec.Code)
	}
}

func TestAlertHandlers(t *testing.T) {
	srv := newTestServer(t)

	doJSON(t, srv, http.MethodPut, "/api/budgets",
		`{"category":"Food","period":"month","limit_minor":100000,"currency":"VND"}`)
	doJSON(t, srv, http.MethodPost, "/api/transactions",
		`{"amount_minor":-150000,"currency":"VND","category":"Food","source":"cash","date":"2024-03-05"}`)

	rec := doJSON(t, srv, http.MethodGet, "/api/alerts", "")
	if rec.Code != http.StatusOK || rec.Body.String() != "[]\n" {
		t.Fatalf("alerts before check: status %d, body %q", rec.Code, rec.Body)
	}

	// An exceeded budget check leaves an unread alert behind.
	doJSON(t, srv, http.MethodGet, "/api/budgets/check?category=Food&period=month&ref=2024-03-15", "")

	rec = doJSON(t, srv, http.MethodGet, "/api/alerts", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list alerts status = %d", rec.Code)
	}
	var alerts []struct {
		ID      int64
		Type    string
		Message string
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &alerts); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(alerts) != 1 || alerts[0].Type != "budget" || !strings.Contains(alerts[0].Message, "Food") {
		t.Fatalf("alerts = %+v", alerts)
	}

	rec = doJSON(t, srv, http.MethodPost, fmt.Sprintf("/api/alerts/%d/read", alerts[0].ID), "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("ack status = %d, body %s", rec.Code, rec.Body)
	}
	rec = doJSON(t, srv, http.MethodGet, "/api/alerts", "")
	if rec.Body.String() != "[]\n" {
		t.Fatalf("alerts after ack = %q", rec.Body)
	}

	rec = doJSON(t, srv, http.MethodPost, "/api/alerts/999/read", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("ack missing alert status = %d, want 404", rec.Code)
	}
}

func TestExportHandler(t *testing.T) {
	srv := newTestServer(t)

	doJSON(t, srv, http.MethodPost, "/api/transactions",
		`{"amount_minor":-30000,"currency":"VND","category":"Food","source":"cash","date":"2024-03-01"}`)

	rec := doJSON(t, srv, http.MethodGet, "/api/export?format=csv", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Fatalf("content type = %q", ct)
	}
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want header + 1 row:\n%s", len(lines), rec.Body)
	}

	rec = doJSON(t, srv, http.MethodGet, "/api/export?format=xml", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad format status = %d, want 400", rec.Code)
	}
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(t)

	if rec := doJSON(t, srv, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Fatalf("healthz = %d", rec.Code)
	}
	if rec := doJSON(t, srv, http.MethodGet, "/readyz", ""); rec.Code != http.StatusOK {
		t.Fatalf("readyz = %d", rec.Code)
	}
}
