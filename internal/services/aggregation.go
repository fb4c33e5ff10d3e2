package services

import (
	"context"
	"fmt"
	"sort"

	"finitor/internal/core"
	"finitor/internal/storage"
)

// Dimension selects the grouping column for SummarizeBy.
type Dimension string

const (
	ByCategory Dimension = "category"
	BySource   Dimension = "source"
)

// ErrInvalidDimension rejects grouping columns the engine does not know.
var ErrInvalidDimension = fmt.Errorf("invalid aggregation dimension")

// AggregationEngine computes read-only summaries over the ledger. All
// money is converted into the requested display currency with the
// snapshot taken at query time, so converted historical values drift
// as rates move.
type AggregationEngine struct {
	storage *storage.SQLiteRepository
	rates   *RateService
}

func NewAggregationEngine(repo *storage.SQLiteRepository, rates *RateService) *AggregationEngine {
	return &AggregationEngine{storage: repo, rates: rates}
}

// SummarizeBy groups signed totals by category or source over whatever
// the filter selects. Zero From/To leave that side of the range open.
// Results are sorted by name for stable output.
func (e *AggregationEngine) SummarizeBy(ctx context.Context, dim Dimension, filter core.Filter, display string) ([]core.DimensionTotal, error) {
	if dim != ByCategory && dim != BySource {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDimension, dim)
	}

	snap, err := e.rates.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	totals := make(map[string]int64)
	for tx, err := range e.storage.QueryTransactions(ctx, filter) {
		if err != nil {
			return nil, err
		}
		converted, err := snap.Convert(tx.AmountMinor, tx.Currency, display)
		if err != nil {
			return nil, fmt.Errorf("convert transaction %d: %w", tx.ID, err)
		}
		key := tx.Category
		if dim == BySource {
			key = tx.Source
		}
		totals[key] += converted
	}

	out := make([]core.DimensionTotal, 0, len(totals))
	for name, total := range totals {
		out = append(out, core.DimensionTotal{Name: name, TotalMinor: total})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// MonthlySummary reports income, expense magnitude and net for one
// calendar month.
func (e *AggregationEngine) MonthlySummary(ctx context.Context, year, month int, display string) (core.MonthlySummary, error) {
	from, to := core.PeriodMonth.Window(core.NewDate(year, month, 1))
	income, expense, err := e.directionTotals(ctx, from, to, display)
	if err != nil {
		return core.MonthlySummary{}, err
	}
	return core.MonthlySummary{
		Year:         year,
		Month:        month,
		Currency:     display,
		IncomeMinor:  income,
		ExpenseMinor: expense,
		NetMinor:     income - expense,
	}, nil
}

// YearlySummary is the same breakdown over a whole year.
func (e *AggregationEngine) YearlySummary(ctx context.Context, year int, display string) (core.YearlySummary, error) {
	from, to := core.PeriodYear.Window(core.NewDate(year, 1, 1))
	income, expense, err := e.directionTotals(ctx, from, to, display)
	if err != nil {
		return core.YearlySummary{}, err
	}
	return core.YearlySummary{
		Year:         year,
		Currency:     display,
		IncomeMinor:  income,
		ExpenseMinor: expense,
		NetMinor:     income - expense,
	}, nil
}

// Balance is the signed sum of everything dated on or before asOf, or
// of the whole ledger when asOf is the zero date.
func (e *AggregationEngine) Balance(ctx context.Context, asOf core.Date, display string) (int64, error) {
	snap, err := e.rates.Snapshot(ctx)
	if err != nil {
		return 0, err
	}

	var balance int64
	for tx, err := range e.storage.QueryTransactions(ctx, core.Filter{To: asOf}) {
		if err != nil {
			return 0, err
		}
		converted, err := snap.Convert(tx.AmountMinor, tx.Currency, display)
		if err != nil {
			return 0, fmt.Errorf("convert transaction %d: %w", tx.ID, err)
		}
		balance += converted
	}
	return balance, nil
}

func (e *AggregationEngine) directionTotals(ctx context.Context, from, to core.Date, display string) (income, expense int64, err error) {
	snap, err := e.rates.Snapshot(ctx)
	if err != nil {
		return 0, 0, err
	}

	for tx, err := range e.storage.QueryTransactions(ctx, core.Filter{From: from, To: to}) {
		if err != nil {
			return 0, 0, err
		}
		converted, err := snap.Convert(tx.AmountMinor, tx.Currency, display)
		if err != nil {
			return 0, 0, fmt.Errorf("convert transaction %d: %w", tx.ID, err)
		}
		if converted >= 0 {
			income += converted
		} else {
			expense += -converted
		}
	}
	return income, expense, nil
}
