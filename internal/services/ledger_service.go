package services

import (
	"context"
	"fmt"
	"iter"

	"finitor/internal/amqp"
	"finitor/internal/core"
	"finitor/internal/currency"
	"finitor/internal/log"
	"finitor/internal/storage"
)

// LedgerService orchestrates transaction writes across SQLite and AMQP.
// The AMQP client may be nil; publish failures never fail the write.
type LedgerService struct {
	storage         *storage.SQLiteRepository
	rates           *RateService
	amqpClient      *amqp.Client
	defaultCurrency string
	logger          *log.Logger
}

func NewLedgerService(repo *storage.SQLiteRepository, rates *RateService, amqpClient *amqp.Client, defaultCurrency string, logger *log.Logger) *LedgerService {
	return &LedgerService{
		storage:         repo,
		rates:           rates,
		amqpClient:      amqpClient,
		defaultCurrency: defaultCurrency,
		logger:          logger.WithComponent(log.ComponentLedger),
	}
}

// ParseAmount turns free-form user input like "$20" or "30k" into
// minor units plus a resolved currency code, against the current
// snapshot.
func (s *LedgerService) ParseAmount(ctx context.Context, text string) (int64, string, error) {
	snap, err := s.rates.Snapshot(ctx)
	if err != nil {
		return 0, "", err
	}
	return currency.ParseAmount(text, s.defaultCurrency, snap)
}

// Add saves a transaction and announces it. The returned id is final
// even when the announcement fails.
func (s *LedgerService) Add(ctx context.Context, tx core.Transaction) (int64, error) {
	id, err := s.storage.AddTransaction(ctx, tx)
	if err != nil {
		return 0, fmt.Errorf("add transaction: %w", err)
	}

	s.publishEvent(ctx, id, amqp.ActionAdded)
	return id, nil
}

// Update applies a partial patch and announces the change.
func (s *LedgerService) Update(ctx context.Context, id int64, patch core.TransactionPatch) error {
	if err := s.storage.UpdateTransaction(ctx, id, patch); err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}

	s.publishEvent(ctx, id, amqp.ActionUpdated)
	return nil
}

// Delete removes a transaction and announces the removal.
func (s *LedgerService) Delete(ctx context.Context, id int64) error {
	if err := s.storage.DeleteTransaction(ctx, id); err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}

	s.publishEvent(ctx, id, amqp.ActionDeleted)
	return nil
}

// Get returns one transaction by id.
func (s *LedgerService) Get(ctx context.Context, id int64) (core.Transaction, error) {
	return s.storage.GetTransaction(ctx, id)
}

// Query streams matching transactions ordered by (date, id).
func (s *LedgerService) Query(ctx context.Context, f core.Filter) iter.Seq2[core.Transaction, error] {
	return s.storage.QueryTransactions(ctx, f)
}

// List drains a query into a slice.
func (s *LedgerService) List(ctx context.Context, f core.Filter) ([]core.Transaction, error) {
	return s.storage.CollectTransactions(ctx, f)
}

func (s *LedgerService) publishEvent(ctx context.Context, id int64, action string) {
	if s.amqpClient == nil {
		return
	}
	if err := s.amqpClient.PublishLedgerEvent(ctx, id, action); err != nil {
		// The write already succeeded; the worker catches up on the
		// next event or backup cycle.
		s.logger.ErrorContext(ctx, "failed to publish ledger event",
			log.FieldTransactionID, id, log.FieldAction, action, log.FieldError, err)
	}
}

// Close releases storage and AMQP resources.
func (s *LedgerService) Close() error {
	var errs []error

	if s.storage != nil {
		if err := s.storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}
	if s.amqpClient != nil {
		if err := s.amqpClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close ledger service: %v", errs)
	}
	return nil
}
