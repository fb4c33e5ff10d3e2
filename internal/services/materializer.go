package services

import (
	"context"
	"fmt"

	"finitor/internal/core"
	"finitor/internal/log"
	"finitor/internal/storage"
)

// RecurringMaterializer turns due templates into concrete dated
// transactions. Template rows themselves never show up in queries or
// totals; only the rows written here do.
type RecurringMaterializer struct {
	storage *storage.SQLiteRepository
	logger  *log.Logger
}

func NewRecurringMaterializer(repo *storage.SQLiteRepository, logger *log.Logger) *RecurringMaterializer {
	return &RecurringMaterializer{
		storage: repo,
		logger:  logger.WithComponent(log.ComponentRecurring),
	}
}

// Run materializes every occurrence due on or before asOf and returns
// how many rows were written. A template that fell behind catches up
// with one row per missed occurrence.
func (m *RecurringMaterializer) Run(ctx context.Context, asOf core.Date) (int, error) {
	written := 0
	for {
		due, err := m.storage.DueTemplates(ctx, asOf)
		if err != nil {
			return written, fmt.Errorf("list due templates: %w", err)
		}
		if len(due) == 0 {
			return written, nil
		}

		for _, tmpl := range due {
			if err := m.materialize(ctx, tmpl); err != nil {
				return written, err
			}
			written++
		}
	}
}

func (m *RecurringMaterializer) materialize(ctx context.Context, tmpl core.Transaction) error {
	concrete := core.Transaction{
		AmountMinor: tmpl.AmountMinor,
		Currency:    tmpl.Currency,
		Description: tmpl.Description,
		Category:    tmpl.Category,
		Source:      tmpl.Source,
		Date:        tmpl.NextDate,
		Recurrence:  core.None,
		Tags:        tmpl.Tags,
		Note:        tmpl.Note,
	}
	id, err := m.storage.AddTransaction(ctx, concrete)
	if err != nil {
		return fmt.Errorf("materialize template %d: %w", tmpl.ID, err)
	}

	next := tmpl.Recurrence.Advance(tmpl.NextDate)
	if err := m.storage.AdvanceTemplate(ctx, tmpl.ID, next); err != nil {
		return fmt.Errorf("advance template %d: %w", tmpl.ID, err)
	}

	m.logger.InfoContext(ctx, "materialized recurring transaction",
		"template_id", tmpl.ID,
		log.FieldTransactionID, id,
		"date", tmpl.NextDate.String(),
		"next", next.String())
	return nil
}
