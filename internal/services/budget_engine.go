package services

import (
	"context"
	"fmt"
	"time"

	"finitor/internal/core"
	"finitor/internal/log"
	"finitor/internal/storage"
)

// BudgetEngine compares spending in a period window against a stored
// limit. An exceeded check leaves an unread alert behind; everything
// else is the caller's business.
type BudgetEngine struct {
	storage *storage.SQLiteRepository
	rates   *RateService
	maxAge  time.Duration
	logger  *log.Logger
}

func NewBudgetEngine(repo *storage.SQLiteRepository, rates *RateService, maxAge time.Duration, logger *log.Logger) *BudgetEngine {
	return &BudgetEngine{
		storage: repo,
		rates:   rates,
		maxAge:  maxAge,
		logger:  logger.WithComponent(log.ComponentBudget),
	}
}

// Check sums the category's expenses over the period window containing
// ref, converted into the budget's own currency, and re-expresses the
// result in display when that differs. Exceeded is strict: spending
// exactly the limit is still within budget.
func (e *BudgetEngine) Check(ctx context.Context, category string, period core.Period, ref core.Date, display string) (core.BudgetStatus, error) {
	budget, err := e.storage.GetBudget(ctx, category, period)
	if err != nil {
		return core.BudgetStatus{}, fmt.Errorf("get budget: %w", err)
	}

	snap, err := e.rates.Snapshot(ctx)
	if err != nil {
		return core.BudgetStatus{}, err
	}

	from, to := period.Window(ref)
	now := time.Now()
	var (
		spent int64
		stale bool
	)
	for tx, err := range e.storage.QueryTransactions(ctx, core.Filter{
		Category: category, From: from, To: to, Kind: core.KindExpense,
	}) {
		if err != nil {
			return core.BudgetStatus{}, err
		}
		converted, err := snap.Convert(tx.AmountMinor, tx.Currency, budget.Currency)
		if err != nil {
			return core.BudgetStatus{}, fmt.Errorf("convert transaction %d: %w", tx.ID, err)
		}
		spent += -converted

		if old, err := snap.IsStale(tx.Currency, e.maxAge, now); err == nil && old {
			stale = true
		}
	}

	status := core.BudgetStatus{
		Category:       budget.Category,
		Period:         budget.Period,
		Currency:       budget.Currency,
		LimitMinor:     budget.LimitMinor,
		SpentMinor:     spent,
		RemainingMinor: budget.LimitMinor - spent,
		Exceeded:       spent > budget.LimitMinor,
		StaleRates:     stale,
	}
	if status.Exceeded {
		e.recordOverrun(ctx, budget, from, spent)
	}

	if display != "" && display != budget.Currency {
		if status.LimitMinor, err = snap.Convert(budget.LimitMinor, budget.Currency, display); err != nil {
			return core.BudgetStatus{}, fmt.Errorf("convert limit: %w", err)
		}
		if status.SpentMinor, err = snap.Convert(spent, budget.Currency, display); err != nil {
			return core.BudgetStatus{}, fmt.Errorf("convert spent: %w", err)
		}
		status.RemainingMinor = status.LimitMinor - status.SpentMinor
		status.Currency = display
	}

	return status, nil
}

// recordOverrun leaves an unread alert for an exceeded budget. The
// message carries the window start and the spent total, so the same
// overrun alerts once and a further escalation alerts again. Failures
// are logged and never fail the check itself.
func (e *BudgetEngine) recordOverrun(ctx context.Context, budget core.Budget, windowStart core.Date, spent int64) {
	msg := fmt.Sprintf("budget %s/%s from %s exceeded: spent %d of %d %s",
		budget.Category, budget.Period, windowStart, spent, budget.LimitMinor, budget.Currency)
	if _, err := e.storage.RecordAlert(ctx, core.AlertTypeBudget, msg); err != nil {
		e.logger.ErrorContext(ctx, "failed to record budget alert", log.FieldError, err)
	}
}

// UnreadAlerts lists pending alerts, newest first.
func (e *BudgetEngine) UnreadAlerts(ctx context.Context) ([]core.Alert, error) {
	return e.storage.UnreadAlerts(ctx)
}

// MarkAlertRead acknowledges one alert.
func (e *BudgetEngine) MarkAlertRead(ctx context.Context, id int64) error {
	return e.storage.MarkAlertRead(ctx, id)
}

// SetBudget stores or replaces the limit for a (category, period) pair.
func (e *BudgetEngine) SetBudget(ctx context.Context, b core.Budget) error {
	return e.storage.UpsertBudget(ctx, b)
}

// Budgets lists all stored limits.
func (e *BudgetEngine) Budgets(ctx context.Context) ([]core.Budget, error) {
	return e.storage.ListBudgets(ctx)
}

// RemoveBudget deletes the limit for a (category, period) pair.
func (e *BudgetEngine) RemoveBudget(ctx context.Context, category string, period core.Period) error {
	return e.storage.DeleteBudget(ctx, category, period)
}
