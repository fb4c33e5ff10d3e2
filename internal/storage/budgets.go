package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"finitor/internal/core"
)

// UpsertBudget inserts or replaces the budget for (category, period).
func (r *SQLiteRepository) UpsertBudget(ctx context.Context, b core.Budget) error {
	if err := b.Validate(); err != nil {
		return err
	}
	if err := r.currencyExists(ctx, b.Currency); err != nil {
		return err
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO budgets (category, period, limit_minor, currency_code, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(category, period) DO UPDATE SET
			limit_minor = excluded.limit_minor,
			currency_code = excluded.currency_code`,
		strings.TrimSpace(b.Category), string(b.Period), b.LimitMinor,
		normalizeCode(b.Currency), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("upsert budget %s/%s: %w", b.Category, b.Period, mapErr(err))
	}

	slog.InfoContext(ctx, "Budget saved",
		"category", b.Category, "period", string(b.Period), "limit_minor", b.LimitMinor)
	return nil
}

// GetBudget returns the budget configured for (category, period).
func (r *SQLiteRepository) GetBudget(ctx context.Context, category string, period core.Period) (core.Budget, error) {
	var b core.Budget
	var p string
	err := r.db.QueryRowContext(ctx, `
		SELECT category, period, limit_minor, currency_code FROM budgets
		WHERE category = ? AND period = ?`,
		strings.TrimSpace(category), string(period)).
		Scan(&b.Category, &p, &b.LimitMinor, &b.Currency)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Budget{}, core.ErrNotFound
	}
	if err != nil {
		return core.Budget{}, fmt.Errorf("get budget %s/%s: %w", category, period, mapErr(err))
	}
	b.Period = core.Period(p)
	return b, nil
}

// ListBudgets returns every configured budget.
func (r *SQLiteRepository) ListBudgets(ctx context.Context) ([]core.Budget, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT category, period, limit_minor, currency_code FROM budgets ORDER BY category, period`)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", mapErr(err))
	}
	defer rows.Close()

	var out []core.Budget
	for rows.Next() {
		var b core.Budget
		var p string
		if err := rows.Scan(&b.Category, &p, &b.LimitMinor, &b.Currency); err != nil {
			return nil, fmt.Errorf("scan budget: %w", err)
		}
		b.Period = core.Period(p)
		out = append(out, b)
	}
	return out, mapErr(rows.Err())
}

// DeleteBudget removes the budget for (category, period).
func (r *SQLiteRepository) DeleteBudget(ctx context.Context, category string, period core.Period) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM budgets WHERE category = ? AND period = ?`,
		strings.TrimSpace(category), string(period))
	if err != nil {
		return fmt.Errorf("delete budget %s/%s: %w", category, period, mapErr(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrNotFound
	}
	return nil
}
