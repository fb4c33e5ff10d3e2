package storage

import (
	"context"
	"errors"
	"testing"

	"finitor/internal/core"
	"finitor/internal/currency"
)

func TestBudgetCRUD(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	b := core.Budget{
		Category:   "Food",
		Period:     core.PeriodMonth,
		LimitMinor: 3000000,
		Currency:   "VND",
	}
	if err := repo.UpsertBudget(ctx, b); err != nil {
		t.Fatalf("UpsertBudget: %v", err)
	}

	got, err := repo.GetBudget(ctx, "Food", core.PeriodMonth)
	if err != nil {
		t.Fatalf("GetBudget: %v", err)
	}
	if got.LimitMinor != 3000000 || got.Currency != "VND" {
		t.Fatalf("unexpected budget: %+v", got)
	}

	// Same (category, period) replaces; the year period is a separate row.
	b.LimitMinor = 2500000
	if err := repo.UpsertBudget(ctx, b); err != nil {
		t.Fatalf("replace: %v", err)
	}
	b.Period = core.PeriodYear
	b.LimitMinor = 30000000
	if err := repo.UpsertBudget(ctx, b); err != nil {
		t.Fatalf("year budget: %v", err)
	}

	all, err := repo.ListBudgets(ctx)
	if err != nil {
		t.Fatalf("ListBudgets: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("got %d budgets, want 2", len(all))
	}
	month, err := repo.GetBudget(ctx, "Food", core.PeriodMonth)
	if err != nil || month.LimitMinor != 2500000 {
		t.Fatalf("month budget after replace: %+v, err %v", month, err)
	}

	if err := repo.DeleteBudget(ctx, "Food", core.PeriodMonth); err != nil {
		t.Fatalf("DeleteBudget: %v", err)
	}
	if _, err := repo.GetBudget(ctx, "Food", core.PeriodMonth); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
	if err := repo.DeleteBudget(ctx, "Food", core.PeriodMonth); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("double delete: got %v, want ErrNotFound", err)
	}
}

func TestBudgetValidation(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	cases := []struct {
		name string
		b    core.Budget
		want error
	}{
		{"empty category", core.Budget{Period: core.PeriodMonth, LimitMinor: 1, Currency: "VND"}, core.ErrEmptyCategory},
		{"bad period", core.Budget{Category: "Food", Period: "week", LimitMinor: 1, Currency: "VND"}, core.ErrInvalidPeriod},
		{"zero limit", core.Budget{Category: "Food", Period: core.PeriodMonth, Currency: "VND"}, core.ErrInvalidLimit},
		{"unknown currency", core.Budget{Category: "Food", Period: core.PeriodMonth, LimitMinor: 1, Currency: "XXX"}, currency.ErrUnknownCurrency},
	}
	for _, tc := range cases {
		if err := repo.UpsertBudget(ctx, tc.b); !errors.Is(err, tc.want) {
			t.Fatalf("%s: got %v, want %v", tc.name, err, tc.want)
		}
	}
}
