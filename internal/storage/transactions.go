package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"time"

	"finitor/internal/core"
)

const transactionColumns = `id, amount_minor, currency_code, description, category, source,
	date, recurrence, next_date, tags, note, created_at`

// AddTransaction validates and persists a transaction, returning the
// id SQLite assigned. AUTOINCREMENT guarantees an id is never reused,
// even after the highest row is deleted.
func (r *SQLiteRepository) AddTransaction(ctx context.Context, tx core.Transaction) (int64, error) {
	if err := tx.Validate(); err != nil {
		return 0, err
	}
	if err := r.currencyExists(ctx, tx.Currency); err != nil {
		return 0, err
	}

	if tx.Recurrence == "" {
		tx.Recurrence = core.None
	}
	// A fresh template materializes first on its own start date.
	if tx.IsTemplate() && tx.NextDate.IsZero() {
		tx.NextDate = tx.Date
	}

	tags, err := marshalTags(tx.Tags)
	if err != nil {
		return 0, fmt.Errorf("marshal tags: %w", err)
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO transactions (amount_minor, currency_code, description, category, source,
			date, recurrence, next_date, tags, note, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.AmountMinor, tx.Currency, tx.Description,
		strings.TrimSpace(tx.Category), strings.TrimSpace(tx.Source),
		tx.Date.String(), string(tx.Recurrence), nullableDate(tx.NextDate),
		tags, tx.Note, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("insert transaction: %w", mapErr(err))
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}

	slog.InfoContext(ctx, "Transaction saved",
		"id", id,
		"amount_minor", tx.AmountMinor,
		"currency", tx.Currency,
		"category", tx.Category,
		"date", tx.Date.String())

	return id, nil
}

// GetTransaction returns a single transaction by id.
func (r *SQLiteRepository) GetTransaction(ctx context.Context, id int64) (core.Transaction, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
	tx, err := scanTransaction(row)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction %d: %w", id, mapErr(err))
	}
	return tx, nil
}

// UpdateTransaction applies a partial update. The merged row passes
// the same validation as AddTransaction before anything is written.
func (r *SQLiteRepository) UpdateTransaction(ctx context.Context, id int64, patch core.TransactionPatch) error {
	current, err := r.GetTransaction(ctx, id)
	if err != nil {
		return err
	}

	if patch.AmountMinor != nil {
		current.AmountMinor = *patch.AmountMinor
	}
	if patch.Currency != nil {
		current.Currency = *patch.Currency
	}
	if patch.Description != nil {
		current.Description = *patch.Description
	}
	if patch.Category != nil {
		current.Category = *patch.Category
	}
	if patch.Source != nil {
		current.Source = *patch.Source
	}
	if patch.Date != nil {
		current.Date = *patch.Date
	}
	if patch.Tags != nil {
		current.Tags = *patch.Tags
	}
	if patch.Note != nil {
		current.Note = *patch.Note
	}

	if err := current.Validate(); err != nil {
		return err
	}
	if patch.Currency != nil {
		if err := r.currencyExists(ctx, current.Currency); err != nil {
			return err
		}
	}

	tags, err := marshalTags(current.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE transactions
		SET amount_minor = ?, currency_code = ?, description = ?, category = ?,
			source = ?, date = ?, tags = ?, note = ?
		WHERE id = ?`,
		current.AmountMinor, current.Currency, current.Description,
		strings.TrimSpace(current.Category), strings.TrimSpace(current.Source),
		current.Date.String(), tags, current.Note, id)
	if err != nil {
		return fmt.Errorf("update transaction %d: %w", id, mapErr(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrNotFound
	}

	slog.InfoContext(ctx, "Transaction updated", "id", id)
	return nil
}

// DeleteTransaction removes a transaction permanently.
func (r *SQLiteRepository) DeleteTransaction(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete transaction %d: %w", id, mapErr(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrNotFound
	}

	slog.InfoContext(ctx, "Transaction deleted", "id", id)
	return nil
}

// AdvanceTemplate moves a recurring template's next materialization
// date forward. Used only by the recurring worker.
func (r *SQLiteRepository) AdvanceTemplate(ctx context.Context, id int64, next core.Date) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE transactions SET next_date = ? WHERE id = ? AND recurrence != 'none'`,
		next.String(), id)
	if err != nil {
		return fmt.Errorf("advance template %d: %w", id, mapErr(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrNotFound
	}
	return nil
}

// QueryTransactions returns a lazy sequence ordered by (date, id).
// Each range over the sequence re-runs the query, so the result is
// restartable; abandoning the loop early closes the rows immediately.
func (r *SQLiteRepository) QueryTransactions(ctx context.Context, f core.Filter) iter.Seq2[core.Transaction, error] {
	query, args := buildTransactionQuery(f)
	return func(yield func(core.Transaction, error) bool) {
		rows, err := r.db.QueryContext(ctx, query, args...)
		if err != nil {
			yield(core.Transaction{}, fmt.Errorf("query transactions: %w", mapErr(err)))
			return
		}
		defer rows.Close()

		for rows.Next() {
			tx, err := scanTransaction(rows)
			if err != nil {
				yield(core.Transaction{}, fmt.Errorf("scan transaction: %w", err))
				return
			}
			if !yield(tx, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(core.Transaction{}, fmt.Errorf("iterate transactions: %w", mapErr(err)))
		}
	}
}

// CollectTransactions drains a query into a slice.
func (r *SQLiteRepository) CollectTransactions(ctx context.Context, f core.Filter) ([]core.Transaction, error) {
	var out []core.Transaction
	for tx, err := range r.QueryTransactions(ctx, f) {
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, nil
}

// DueTemplates returns recurring templates whose next_date is on or
// before the given date.
func (r *SQLiteRepository) DueTemplates(ctx context.Context, asOf core.Date) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE recurrence != 'none' AND next_date IS NOT NULL AND next_date <= ?
		ORDER BY next_date, id`, asOf.String())
	if err != nil {
		return nil, fmt.Errorf("query due templates: %w", mapErr(err))
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		out = append(out, tx)
	}
	return out, mapErr(rows.Err())
}

func buildTransactionQuery(f core.Filter) (string, []any) {
	var (
		where []string
		args  []any
	)

	switch f.Templates {
	case core.TemplatesOnly:
		where = append(where, "recurrence != 'none'")
	case core.TemplatesInclude:
		// no constraint
	default:
		where = append(where, "recurrence = 'none'")
	}

	if f.ID != 0 {
		where = append(where, "id = ?")
		args = append(args, f.ID)
	}
	if !f.On.IsZero() {
		where = append(where, "date = ?")
		args = append(args, f.On.String())
	}
	if !f.From.IsZero() {
		where = append(where, "date >= ?")
		args = append(args, f.From.String())
	}
	if !f.To.IsZero() {
		where = append(where, "date <= ?")
		args = append(args, f.To.String())
	}
	if f.Category != "" {
		where = append(where, "category = ?")
		args = append(args, f.Category)
	}
	if f.Source != "" {
		where = append(where, "source = ?")
		args = append(args, f.Source)
	}
	switch f.Kind {
	case core.KindIncome:
		where = append(where, "amount_minor > 0")
	case core.KindExpense:
		where = append(where, "amount_minor < 0")
	}
	if f.Search != "" {
		where = append(where, "(description LIKE ? OR category LIKE ? OR source LIKE ?)")
		needle := "%" + f.Search + "%"
		args = append(args, needle, needle, needle)
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY date, id"
	return query, args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (core.Transaction, error) {
	var (
		tx        core.Transaction
		date      string
		rec       string
		nextDate  sql.NullString
		tags      sql.NullString
		createdAt string
	)
	err := row.Scan(&tx.ID, &tx.AmountMinor, &tx.Currency, &tx.Description,
		&tx.Category, &tx.Source, &date, &rec, &nextDate, &tags, &tx.Note, &createdAt)
	if err != nil {
		return core.Transaction{}, err
	}

	if tx.Date, err = core.ParseDate(date); err != nil {
		return core.Transaction{}, fmt.Errorf("stored date %q: %w", date, err)
	}
	tx.Recurrence = core.Recurrence(rec)
	if nextDate.Valid && nextDate.String != "" {
		if tx.NextDate, err = core.ParseDate(nextDate.String); err != nil {
			return core.Transaction{}, fmt.Errorf("stored next date %q: %w", nextDate.String, err)
		}
	}
	if tags.Valid && tags.String != "" {
		if err := json.Unmarshal([]byte(tags.String), &tx.Tags); err != nil {
			return core.Transaction{}, fmt.Errorf("stored tags: %w", err)
		}
	}
	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		tx.CreatedAt = t
	}
	return tx, nil
}

func marshalTags(tags []string) (sql.NullString, error) {
	if len(tags) == 0 {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func nullableDate(d core.Date) sql.NullString {
	if d.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}
