package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"finitor/internal/core"
)

// RecordAlert stores an unread alert unless an identical one is already
// waiting to be read. It reports whether a row was written, so repeated
// checks of the same overrun do not pile up duplicates.
func (r *SQLiteRepository) RecordAlert(ctx context.Context, alertType, message string) (bool, error) {
	alertType = strings.TrimSpace(alertType)
	message = strings.TrimSpace(message)
	if alertType == "" || message == "" {
		return false, fmt.Errorf("record alert: empty type or message")
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO alerts (type, message, created_at)
		SELECT ?, ?, ?
		WHERE NOT EXISTS (
			SELECT 1 FROM alerts WHERE type = ? AND message = ? AND is_read = 0
		)`,
		alertType, message, time.Now().UTC().Format(time.RFC3339),
		alertType, message)
	if err != nil {
		return false, fmt.Errorf("record alert: %w", mapErr(err))
	}

	n, _ := res.RowsAffected()
	if n == 0 {
		return false, nil
	}
	slog.InfoContext(ctx, "Alert recorded", "type", alertType, "message", message)
	return true, nil
}

// UnreadAlerts returns pending alerts, newest first.
func (r *SQLiteRepository) UnreadAlerts(ctx context.Context) ([]core.Alert, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, type, message, created_at, is_read FROM alerts
		WHERE is_read = 0 ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list unread alerts: %w", mapErr(err))
	}
	defer rows.Close()

	var out []core.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, mapErr(rows.Err())
}

// MarkAlertRead acknowledges one alert.
func (r *SQLiteRepository) MarkAlertRead(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE alerts SET is_read = 1 WHERE id = ? AND is_read = 0`, id)
	if err != nil {
		return fmt.Errorf("mark alert %d read: %w", id, mapErr(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrNotFound
	}
	return nil
}

func scanAlert(rows *sql.Rows) (core.Alert, error) {
	var (
		a       core.Alert
		created string
		read    int
	)
	if err := rows.Scan(&a.ID, &a.Type, &a.Message, &created, &read); err != nil {
		return core.Alert{}, fmt.Errorf("scan alert: %w", err)
	}
	ts, err := time.Parse(time.RFC3339, created)
	if err != nil {
		return core.Alert{}, fmt.Errorf("parse alert timestamp %q: %w", created, err)
	}
	a.CreatedAt = ts
	a.Read = read != 0
	return a, nil
}
