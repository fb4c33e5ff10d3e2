package services

import (
	"context"
	"fmt"
	"time"

	"finitor/internal/cache"
	"finitor/internal/currency"
	"finitor/internal/log"
	"finitor/internal/rates"
	"finitor/internal/storage"
)

const snapshotCacheKey = "currency-snapshot"

// RateService owns the currency table: it caches snapshots, applies
// provider refreshes atomically and invalidates the cache on every
// write.
type RateService struct {
	storage  *storage.SQLiteRepository
	provider rates.Provider
	cache    *cache.LRUCache[currency.Snapshot]
	maxAge   time.Duration
	logger   *log.Logger
}

func NewRateService(repo *storage.SQLiteRepository, provider rates.Provider, maxAge time.Duration, logger *log.Logger) *RateService {
	return &RateService{
		storage:  repo,
		provider: provider,
		cache:    cache.NewLRUCache[currency.Snapshot](1, time.Minute),
		maxAge:   maxAge,
		logger:   logger.WithComponent(log.ComponentRates),
	}
}

// Snapshot returns the current currency table as an immutable value.
// Conversions done against one snapshot stay mutually consistent even
// if rates change mid-request.
func (s *RateService) Snapshot(ctx context.Context) (currency.Snapshot, error) {
	if snap, ok := s.cache.Get(snapshotCacheKey); ok {
		return snap, nil
	}

	snap, err := s.storage.LoadSnapshot(ctx)
	if err != nil {
		return currency.Snapshot{}, fmt.Errorf("load snapshot: %w", err)
	}
	s.cache.Set(snapshotCacheKey, snap)
	return snap, nil
}

// Convert converts an amount between two known currencies using the
// current snapshot.
func (s *RateService) Convert(ctx context.Context, amountMinor int64, from, to string) (int64, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return 0, err
	}
	return snap.Convert(amountMinor, from, to)
}

// Refresh pulls quotes from the provider and applies them as one
// atomic batch. A provider failure leaves the stored table untouched.
func (s *RateService) Refresh(ctx context.Context) error {
	if s.provider == nil {
		s.logger.WarnContext(ctx, "no rate provider configured, skipping refresh")
		return nil
	}

	quotes, err := s.provider.FetchQuotes(ctx)
	if err != nil {
		return fmt.Errorf("fetch quotes: %w", err)
	}
	if err := s.storage.ApplyRateBatch(ctx, quotes); err != nil {
		return fmt.Errorf("apply rate batch: %w", err)
	}

	s.cache.Delete(snapshotCacheKey)
	s.logger.InfoContext(ctx, "refreshed exchange rates", "quotes", len(quotes))
	return nil
}

// UpsertCurrency registers or updates a single currency by hand.
func (s *RateService) UpsertCurrency(ctx context.Context, c currency.Currency) error {
	if err := s.storage.UpsertCurrency(ctx, c); err != nil {
		return err
	}
	s.cache.Delete(snapshotCacheKey)
	return nil
}

// SetBaseCurrency moves the base designation to another known currency.
func (s *RateService) SetBaseCurrency(ctx context.Context, code string) error {
	if err := s.storage.SetBaseCurrency(ctx, code); err != nil {
		return err
	}
	s.cache.Delete(snapshotCacheKey)
	return nil
}

// ListCurrencies returns the stored currency table.
func (s *RateService) ListCurrencies(ctx context.Context) ([]currency.Currency, error) {
	return s.storage.ListCurrencies(ctx)
}

// CleanExpired drops expired snapshots, satisfying cache.Cleaner so a
// cache.Manager can sweep this service.
func (s *RateService) CleanExpired() int {
	return s.cache.CleanExpired()
}

// IsStale reports whether a currency's rate is older than the
// configured max age. Advisory only.
func (s *RateService) IsStale(ctx context.Context, code string) (bool, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return false, err
	}
	return snap.IsStale(code, s.maxAge, time.Now())
}
