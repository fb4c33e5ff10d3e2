package services

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"finitor/internal/core"
	"finitor/internal/currency"
	"finitor/internal/log"
	"finitor/internal/rates"
	"finitor/internal/storage"

	"github.com/shopspring/decimal"
)

type fixture struct {
	repo   *storage.SQLiteRepository
	rates  *RateService
	ledger *LedgerService
}

func newFixture(t *testing.T, provider rates.Provider) *fixture {
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
	rateSvc := NewRateService(repo, provider, time.Hour, logger)
	return &fixture{
		repo:   repo,
		rates:  rateSvc,
		ledger: NewLedgerService(repo, rateSvc, nil, "VND", logger),
	}
}

func (f *fixture) add(t *testing.T, amount int64, curr, category string, date core.Date) int64 {
	t.Helper()
	id, err := f.ledger.Add(context.Background(), core.Transaction{
		AmountMinor: amount,
		Currency:    curr,
		Category:    category,
		Source:      "test",
		Date:        date,
	})
	if err != nil {
		t.Fatalf("add %d %s: %v", amount, curr, err)
	}
	return id
}

func TestLedgerParseAmount(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	minor, code, err := f.ledger.ParseAmount(ctx, "$20")
	if err != nil || minor != 2000 || code != "USD" {
		t.Fatalf("ParseAmount($20) = %d %s, err %v", minor, code, err)
	}
	minor, code, err = f.ledger.ParseAmount(ctx, "30k")
	if err != nil || minor != 30000 || code != "VND" {
		t.Fatalf("ParseAmount(30k) = %d %s, err %v", minor, code, err)
	}
	if _, _, err := f.ledger.ParseAmount(ctx, "£20"); !errors.Is(err, currency.ErrUnknownCurrencySymbol) {
		t.Fatalf("got %v, want ErrUnknownCurrencySymbol", err)
	}
}

func TestLedgerAddWithNilAMQPClient(t *testing.T) {
	f := newFixture(t, nil)

	// No broker configured; the write must still succeed.
	id := f.add(t, -30000, "VND", "Food", core.NewDate(2024, 3, 1))
	got, err := f.ledger.Get(context.Background(), id)
	if err != nil || got.AmountMinor != -30000 {
		t.Fatalf("Get after add: %+v, err %v", got, err)
	}
}

func TestMonthlySummary(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	f.add(t, 500000, "VND", "Salary", core.NewDate(2024, 3, 1))
	f.add(t, -200000, "VND", "Food", core.NewDate(2024, 3, 10))
	f.add(t, -999999, "VND", "Food", core.NewDate(2024, 4, 1)) // outside the month

	engine := NewAggregationEngine(f.repo, f.rates)
	sum, err := engine.MonthlySummary(ctx, 2024, 3, "VND")
	if err != nil {
		t.Fatalf("MonthlySummary: %v", err)
	}
	if sum.IncomeMinor != 500000 || sum.ExpenseMinor != 200000 || sum.NetMinor != 300000 {
		t.Fatalf("summary = %+v, want 500000/200000/300000", sum)
	}
}

func TestBalanceMatchesConvertedSum(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	f.add(t, 500000, "VND", "Salary", core.NewDate(2024, 3, 1))
	f.add(t, -1000, "USD", "Travel", core.NewDate(2024, 3, 5)) // -$10 = -240000 VND
	f.add(t, -50000, "VND", "Food", core.NewDate(2024, 3, 10))

	engine := NewAggregationEngine(f.repo, f.rates)
	balance, err := engine.Balance(ctx, core.Date{}, "VND")
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}

	snap, err := f.rates.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	var want int64
	rows, err := f.ledger.List(ctx, core.Filter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	for _, tx := range rows {
		converted, err := snap.Convert(tx.AmountMinor, tx.Currency, "VND")
		if err != nil {
			t.Fatalf("convert: %v", err)
		}
		want += converted
	}
	if balance != want {
		t.Fatalf("balance = %d, want sum of converted rows %d", balance, want)
	}
	if balance != 500000-240000-50000 {
		t.Fatalf("balance = %d, want 210000", balance)
	}

	// asOf cuts off later rows.
	early, err := engine.Balance(ctx, core.NewDate(2024, 3, 1), "VND")
	if err != nil || early != 500000 {
		t.Fatalf("balance asOf Mar 1 = %d, err %v, want 500000", early, err)
	}
}

func TestSummarizeByDimension(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	f.add(t, -100000, "VND", "Food", core.NewDate(2024, 3, 1))
	f.add(t, -50000, "VND", "Food", core.NewDate(2024, 3, 2))
	f.add(t, -9000, "VND", "Transport", core.NewDate(2024, 3, 3))

	engine := NewAggregationEngine(f.repo, f.rates)
	totals, err := engine.SummarizeBy(ctx, ByCategory, core.Filter{}, "VND")
	if err != nil {
		t.Fatalf("SummarizeBy: %v", err)
	}
	if len(totals) != 2 {
		t.Fatalf("got %d groups, want 2", len(totals))
	}
	if totals[0].Name != "Food" || totals[0].TotalMinor != -150000 {
		t.Fatalf("food group = %+v", totals[0])
	}
	if totals[1].Name != "Transport" || totals[1].TotalMinor != -9000 {
		t.Fatalf("transport group = %+v", totals[1])
	}

	// The filter narrows the rows the grouping sees.
	totals, err = engine.SummarizeBy(ctx, ByCategory, core.Filter{Category: "Food", From: core.NewDate(2024, 3, 2)}, "VND")
	if err != nil {
		t.Fatalf("SummarizeBy filtered: %v", err)
	}
	if len(totals) != 1 || totals[0].Name != "Food" || totals[0].TotalMinor != -50000 {
		t.Fatalf("filtered groups = %+v, want Food -50000 only", totals)
	}

	if _, err := engine.SummarizeBy(ctx, "note", core.Filter{}, "VND"); !errors.Is(err, ErrInvalidDimension) {
		t.Fatalf("got %v, want ErrInvalidDimension", err)
	}
}

func TestBudgetCheck(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	engine := NewBudgetEngine(f.repo, f.rates, time.Hour, log.New(log.DefaultConfig()))
	err := engine.SetBudget(ctx, core.Budget{
		Category: "Food", Period: core.PeriodMonth, LimitMinor: 300000, Currency: "VND",
	})
	if err != nil {
		t.Fatalf("SetBudget: %v", err)
	}

	f.add(t, -200000, "VND", "Food", core.NewDate(2024, 3, 5))
	f.add(t, -100000, "VND", "Food", core.NewDate(2024, 2, 20)) // previous month
	f.add(t, 500000, "VND", "Food", core.NewDate(2024, 3, 7))   // income never counts as spending

	ref := core.NewDate(2024, 3, 15)
	status, err := engine.Check(ctx, "Food", core.PeriodMonth, ref, "")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if status.SpentMinor != 200000 || status.RemainingMinor != 100000 || status.Exceeded {
		t.Fatalf("status = %+v", status)
	}

	// Spending exactly the limit is still within budget.
	f.add(t, -100000, "VND", "Food", core.NewDate(2024, 3, 20))
	status, err = engine.Check(ctx, "Food", core.PeriodMonth, ref, "")
	if err != nil {
		t.Fatalf("Check at limit: %v", err)
	}
	if status.SpentMinor != 300000 || status.Exceeded {
		t.Fatalf("at limit: %+v, want not exceeded", status)
	}

	f.add(t, -1000, "VND", "Food", core.NewDate(2024, 3, 21))
	status, err = engine.Check(ctx, "Food", core.PeriodMonth, ref, "")
	if err != nil {
		t.Fatalf("Check over limit: %v", err)
	}
	if !status.Exceeded || status.RemainingMinor != -1000 {
		t.Fatalf("over limit: %+v", status)
	}

	// Re-expressed in USD on request: 301000 VND spent at 24000 VND/USD.
	status, err = engine.Check(ctx, "Food", core.PeriodMonth, ref, "USD")
	if err != nil {
		t.Fatalf("Check in USD: %v", err)
	}
	if status.Currency != "USD" || status.LimitMinor != 1250 || status.SpentMinor != 1254 {
		t.Fatalf("USD status = %+v", status)
	}

	if _, err := engine.Check(ctx, "Nope", core.PeriodMonth, ref, ""); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("missing budget: got %v, want ErrNotFound", err)
	}
}

func TestBudgetCheckRecordsAlert(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	engine := NewBudgetEngine(f.repo, f.rates, time.Hour, log.New(log.DefaultConfig()))
	err := engine.SetBudget(ctx, core.Budget{
		Category: "Food", Period: core.PeriodMonth, LimitMinor: 100000, Currency: "VND",
	})
	if err != nil {
		t.Fatalf("SetBudget: %v", err)
	}
	ref := core.NewDate(2024, 3, 15)

	// Within budget leaves no alert behind.
	f.add(t, -50000, "VND", "Food", core.NewDate(2024, 3, 5))
	if _, err := engine.Check(ctx, "Food", core.PeriodMonth, ref, ""); err != nil {
		t.Fatalf("Check: %v", err)
	}
	alerts, err := engine.UnreadAlerts(ctx)
	if err != nil || len(alerts) != 0 {
		t.Fatalf("alerts within budget = %v, err %v", alerts, err)
	}

	f.add(t, -60000, "VND", "Food", core.NewDate(2024, 3, 6))
	status, err := engine.Check(ctx, "Food", core.PeriodMonth, ref, "")
	if err != nil || !status.Exceeded {
		t.Fatalf("Check over limit: %+v, err %v", status, err)
	}
	alerts, err = engine.UnreadAlerts(ctx)
	if err != nil || len(alerts) != 1 {
		t.Fatalf("alerts = %v, err %v, want one", alerts, err)
	}
	if alerts[0].Type != core.AlertTypeBudget || !strings.Contains(alerts[0].Message, "Food") {
		t.Fatalf("alert = %+v", alerts[0])
	}

	// Re-checking the same overrun does not pile up duplicates.
	if _, err := engine.Check(ctx, "Food", core.PeriodMonth, ref, ""); err != nil {
		t.Fatalf("second Check: %v", err)
	}
	alerts, err = engine.UnreadAlerts(ctx)
	if err != nil || len(alerts) != 1 {
		t.Fatalf("alerts after re-check = %v, err %v, want still one", alerts, err)
	}

	// Once acknowledged, the next check raises it again.
	if err := engine.MarkAlertRead(ctx, alerts[0].ID); err != nil {
		t.Fatalf("MarkAlertRead: %v", err)
	}
	if _, err := engine.Check(ctx, "Food", core.PeriodMonth, ref, ""); err != nil {
		t.Fatalf("Check after ack: %v", err)
	}
	alerts, err = engine.UnreadAlerts(ctx)
	if err != nil || len(alerts) != 1 {
		t.Fatalf("alerts after ack and re-check = %v, err %v", alerts, err)
	}
}

func TestRateServiceRefresh(t *testing.T) {
	provider := rates.NewStaticProvider([]currency.Quote{
		{Code: "USD", Name: "US Dollar", Rate: decimal.New(25000, 0)},
		{Code: "EUR", Name: "Euro", Rate: decimal.New(27000, 0)},
	})
	f := newFixture(t, provider)
	ctx := context.Background()

	// Warm the cache with the seeded table, then refresh.
	snap, err := f.rates.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	usd, _ := snap.Get("USD")
	if !usd.RateToBase.Equal(decimal.New(24000, 0)) {
		t.Fatalf("seeded rate = %s", usd.RateToBase)
	}

	if err := f.rates.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	// Refresh must invalidate the cached snapshot.
	snap, err = f.rates.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot after refresh: %v", err)
	}
	usd, _ = snap.Get("USD")
	if !usd.RateToBase.Equal(decimal.New(25000, 0)) {
		t.Fatalf("rate after refresh = %s, want 25000", usd.RateToBase)
	}
	if _, err := snap.Get("EUR"); err != nil {
		t.Fatalf("EUR missing after refresh: %v", err)
	}
}

func TestRateServiceRefreshFailureLeavesTable(t *testing.T) {
	provider := rates.NewStaticProvider([]currency.Quote{
		{Code: "USD", Rate: decimal.New(-1, 0)},
	})
	f := newFixture(t, provider)
	ctx := context.Background()

	if err := f.rates.Refresh(ctx); !errors.Is(err, currency.ErrInvalidRate) {
		t.Fatalf("got %v, want ErrInvalidRate", err)
	}
	snap, err := f.rates.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	usd, _ := snap.Get("USD")
	if !usd.RateToBase.Equal(decimal.New(24000, 0)) {
		t.Fatalf("rate moved after failed refresh: %s", usd.RateToBase)
	}
}

func TestMaterializerCatchesUp(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	tmpl := core.Transaction{
		AmountMinor: -500000,
		Currency:    "VND",
		Category:    "Rent",
		Source:      "bank",
		Date:        core.NewDate(2024, 1, 1),
		Recurrence:  core.Monthly,
	}
	if _, err := f.ledger.Add(ctx, tmpl); err != nil {
		t.Fatalf("add template: %v", err)
	}

	m := NewRecurringMaterializer(f.repo, log.New(log.DefaultConfig()))
	written, err := m.Run(ctx, core.NewDate(2024, 3, 15))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if written != 3 {
		t.Fatalf("wrote %d rows, want 3 (Jan, Feb, Mar)", written)
	}

	rows, err := f.ledger.List(ctx, core.Filter{Category: "Rent"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d concrete rows, want 3", len(rows))
	}
	for i, wantDate := range []string{"2024-01-01", "2024-02-01", "2024-03-01"} {
		if rows[i].Date.String() != wantDate || rows[i].IsTemplate() {
			t.Fatalf("row %d = %s template=%v, want %s", i, rows[i].Date, rows[i].IsTemplate(), wantDate)
		}
	}

	// A second run with the same asOf writes nothing.
	written, err = m.Run(ctx, core.NewDate(2024, 3, 15))
	if err != nil || written != 0 {
		t.Fatalf("second run wrote %d, err %v", written, err)
	}
}
