package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"finitor/internal/currency"

	"github.com/shopspring/decimal"
)

const currencyColumns = `code, display_name, symbol, rate_to_base, minor_units, is_base, updated_at`

// UpsertCurrency inserts or replaces a currency row. The base flag of
// an existing row survives the upsert; rates are rejected at or below
// zero.
func (r *SQLiteRepository) UpsertCurrency(ctx context.Context, c currency.Currency) error {
	code := normalizeCode(c.Code)
	if code == "" {
		return fmt.Errorf("%w: empty code", currency.ErrUnknownCurrency)
	}
	if !c.RateToBase.IsPositive() {
		return fmt.Errorf("%w: %s %s", currency.ErrInvalidRate, code, c.RateToBase)
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO currencies (code, display_name, symbol, rate_to_base, minor_units, is_base, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(code) DO UPDATE SET
			display_name = excluded.display_name,
			symbol = excluded.symbol,
			rate_to_base = excluded.rate_to_base,
			minor_units = excluded.minor_units,
			updated_at = excluded.updated_at`,
		code, c.Name, c.Symbol, c.RateToBase.String(), c.MinorUnits,
		boolToInt(c.IsBase), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("upsert currency %s: %w", code, mapErr(err))
	}

	slog.InfoContext(ctx, "Currency upserted", "code", code, "rate_to_base", c.RateToBase.String())
	return nil
}

// GetCurrency returns one currency row by code.
func (r *SQLiteRepository) GetCurrency(ctx context.Context, code string) (currency.Currency, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+currencyColumns+` FROM currencies WHERE code = ?`, normalizeCode(code))
	c, err := scanCurrency(row)
	if errors.Is(err, sql.ErrNoRows) {
		return currency.Currency{}, fmt.Errorf("%w: %s", currency.ErrUnknownCurrency, code)
	}
	if err != nil {
		return currency.Currency{}, fmt.Errorf("get currency %s: %w", code, mapErr(err))
	}
	return c, nil
}

// ListCurrencies returns every currency row ordered by code.
func (r *SQLiteRepository) ListCurrencies(ctx context.Context) ([]currency.Currency, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+currencyColumns+` FROM currencies ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("list currencies: %w", mapErr(err))
	}
	defer rows.Close()

	var out []currency.Currency
	for rows.Next() {
		c, err := scanCurrency(rows)
		if err != nil {
			return nil, fmt.Errorf("scan currency: %w", err)
		}
		out = append(out, c)
	}
	return out, mapErr(rows.Err())
}

// LoadSnapshot reads the whole table into an immutable snapshot.
func (r *SQLiteRepository) LoadSnapshot(ctx context.Context) (currency.Snapshot, error) {
	rows, err := r.ListCurrencies(ctx)
	if err != nil {
		return currency.Snapshot{}, err
	}
	return currency.NewSnapshot(rows), nil
}

// SetBaseCurrency designates code as the single base and pins its rate
// to 1. Other rates are left untouched: after a base change it is the
// caller's job to re-supply rates expressed against the new base.
func (r *SQLiteRepository) SetBaseCurrency(ctx context.Context, code string) error {
	code = normalizeCode(code)

	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin set base: %w", mapErr(err))
	}
	defer dbTx.Rollback()

	res, err := dbTx.ExecContext(ctx,
		`UPDATE currencies SET is_base = 1, rate_to_base = '1', updated_at = ? WHERE code = ?`,
		time.Now().UTC().Format(time.RFC3339), code)
	if err != nil {
		return fmt.Errorf("set base %s: %w", code, mapErr(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", currency.ErrUnknownCurrency, code)
	}
	if _, err := dbTx.ExecContext(ctx,
		`UPDATE currencies SET is_base = 0 WHERE code != ?`, code); err != nil {
		return fmt.Errorf("clear previous base: %w", mapErr(err))
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("commit set base: %w", mapErr(err))
	}

	slog.InfoContext(ctx, "Base currency changed", "code", code)
	return nil
}

// ApplyRateBatch applies a provider batch in one SQL transaction.
// Every quote is validated before the first write, so a batch with a
// single bad entry leaves the table exactly as it was. A quote for the
// base currency is only accepted at rate 1 (the base is pinned).
func (r *SQLiteRepository) ApplyRateBatch(ctx context.Context, quotes []currency.Quote) error {
	base := ""
	if snap, err := r.LoadSnapshot(ctx); err == nil {
		base, _ = snap.Base()
	}

	for _, q := range quotes {
		if err := q.Validate(); err != nil {
			return err
		}
		if normalizeCode(q.Code) == base && !q.Rate.Equal(decimal.New(1, 0)) {
			return fmt.Errorf("%w: base %s rate must stay 1, got %s", currency.ErrInvalidRate, base, q.Rate)
		}
	}

	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin rate batch: %w", mapErr(err))
	}
	defer dbTx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)
	for _, q := range quotes {
		code := normalizeCode(q.Code)
		_, err := dbTx.ExecContext(ctx, `
			INSERT INTO currencies (code, display_name, symbol, rate_to_base, minor_units, is_base, updated_at)
			VALUES (?, ?, '', ?, 2, 0, ?)
			ON CONFLICT(code) DO UPDATE SET
				display_name = CASE WHEN excluded.display_name != '' THEN excluded.display_name ELSE currencies.display_name END,
				rate_to_base = excluded.rate_to_base,
				updated_at = excluded.updated_at`,
			code, q.Name, q.Rate.String(), now)
		if err != nil {
			return fmt.Errorf("apply rate %s: %w", code, mapErr(err))
		}
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("commit rate batch: %w", mapErr(err))
	}

	slog.InfoContext(ctx, "Rate batch applied", "quotes", len(quotes))
	return nil
}

// EnsureBaseCurrency seeds the base currency on first start. An
// existing base (same code or another) is left alone.
func (r *SQLiteRepository) EnsureBaseCurrency(ctx context.Context, code, name string, minorUnits int32) error {
	snap, err := r.LoadSnapshot(ctx)
	if err != nil {
		return err
	}
	if _, err := snap.Base(); err == nil {
		return nil
	}

	c := currency.Currency{
		Code:       normalizeCode(code),
		Name:       name,
		RateToBase: decimal.New(1, 0),
		MinorUnits: minorUnits,
		IsBase:     true,
	}
	if err := r.UpsertCurrency(ctx, c); err != nil {
		return err
	}
	return r.SetBaseCurrency(ctx, c.Code)
}

func (r *SQLiteRepository) currencyExists(ctx context.Context, code string) error {
	var one int
	err := r.db.QueryRowContext(ctx,
		`SELECT 1 FROM currencies WHERE code = ?`, normalizeCode(code)).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", currency.ErrUnknownCurrency, code)
	}
	if err != nil {
		return fmt.Errorf("check currency %s: %w", code, mapErr(err))
	}
	return nil
}

func scanCurrency(row rowScanner) (currency.Currency, error) {
	var (
		c         currency.Currency
		rate      string
		isBase    int
		updatedAt string
	)
	if err := row.Scan(&c.Code, &c.Name, &c.Symbol, &rate, &c.MinorUnits, &isBase, &updatedAt); err != nil {
		return currency.Currency{}, err
	}
	d, err := decimal.NewFromString(rate)
	if err != nil {
		return currency.Currency{}, fmt.Errorf("stored rate %q: %w", rate, err)
	}
	c.RateToBase = d
	c.IsBase = isBase != 0
	if t, err := time.Parse(time.RFC3339, updatedAt); err == nil {
		c.UpdatedAt = t
	}
	return c, nil
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
