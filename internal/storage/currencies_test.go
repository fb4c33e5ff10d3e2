package storage

import (
	"context"
	"errors"
	"testing"

	"finitor/internal/currency"

	"github.com/shopspring/decimal"
)

func TestUpsertAndGetCurrency(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	got, err := repo.GetCurrency(ctx, "usd")
	if err != nil {
		t.Fatalf("GetCurrency: %v", err)
	}
	if got.Code != "USD" || !got.RateToBase.Equal(decimal.New(24000, 0)) || got.MinorUnits != 2 {
		t.Fatalf("unexpected currency: %+v", got)
	}

	// Upsert updates the rate in place.
	err = repo.UpsertCurrency(ctx, currency.Currency{
		Code: "USD", Name: "US Dollar", Symbol: "$",
		RateToBase: decimal.New(25500, 0), MinorUnits: 2,
	})
	if err != nil {
		t.Fatalf("UpsertCurrency: %v", err)
	}
	got, err = repo.GetCurrency(ctx, "USD")
	if err != nil || !got.RateToBase.Equal(decimal.New(25500, 0)) {
		t.Fatalf("rate after upsert = %s, err %v", got.RateToBase, err)
	}

	if _, err := repo.GetCurrency(ctx, "XYZ"); !errors.Is(err, currency.ErrUnknownCurrency) {
		t.Fatalf("got %v, want ErrUnknownCurrency", err)
	}
	err = repo.UpsertCurrency(ctx, currency.Currency{Code: "EUR", RateToBase: decimal.Zero, MinorUnits: 2})
	if !errors.Is(err, currency.ErrInvalidRate) {
		t.Fatalf("zero rate: got %v, want ErrInvalidRate", err)
	}
}

func TestEnsureBaseCurrencyIsIdempotent(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	// newTestRepo already seeded VND as base; a second call must not reset anything.
	if err := repo.EnsureBaseCurrency(ctx, "USD", "US Dollar", 2); err != nil {
		t.Fatalf("EnsureBaseCurrency: %v", err)
	}
	snap, err := repo.LoadSnapshot(ctx)
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	base, err := snap.Base()
	if err != nil || base != "VND" {
		t.Fatalf("base = %q, err %v, want VND", base, err)
	}
}

func TestSetBaseCurrency(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if err := repo.SetBaseCurrency(ctx, "USD"); err != nil {
		t.Fatalf("SetBaseCurrency: %v", err)
	}
	snap, err := repo.LoadSnapshot(ctx)
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	baseCode, err := snap.Base()
	if err != nil || baseCode != "USD" {
		t.Fatalf("base = %q, err %v, want USD", baseCode, err)
	}
	usd, err := snap.Get("USD")
	if err != nil || !usd.RateToBase.Equal(decimal.New(1, 0)) {
		t.Fatalf("base rate after switch: %s, err %v", usd.RateToBase, err)
	}
	old, err := snap.Get("VND")
	if err != nil {
		t.Fatalf("Get VND: %v", err)
	}
	if old.IsBase {
		t.Fatalf("VND still flagged as base")
	}

	if err := repo.SetBaseCurrency(ctx, "XYZ"); !errors.Is(err, currency.ErrUnknownCurrency) {
		t.Fatalf("unknown base: got %v, want ErrUnknownCurrency", err)
	}
}

func TestApplyRateBatchIsAtomic(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	bad := []currency.Quote{
		{Code: "USD", Name: "US Dollar", Rate: decimal.New(25000, 0)},
		{Code: "EUR", Name: "Euro", Rate: decimal.Zero},
	}
	if err := repo.ApplyRateBatch(ctx, bad); !errors.Is(err, currency.ErrInvalidRate) {
		t.Fatalf("bad batch: got %v, want ErrInvalidRate", err)
	}

	// The valid quote in the rejected batch must not have landed.
	got, err := repo.GetCurrency(ctx, "USD")
	if err != nil || !got.RateToBase.Equal(decimal.New(24000, 0)) {
		t.Fatalf("rate after rejected batch = %s, err %v", got.RateToBase, err)
	}
	if _, err := repo.GetCurrency(ctx, "EUR"); !errors.Is(err, currency.ErrUnknownCurrency) {
		t.Fatalf("EUR must not exist after rejected batch, got %v", err)
	}

	good := []currency.Quote{
		{Code: "USD", Name: "US Dollar", Rate: decimal.New(25000, 0)},
		{Code: "EUR", Name: "Euro", Rate: decimal.New(27000, 0)},
		{Code: "VND", Name: "Vietnamese Dong", Rate: decimal.New(1, 0)},
	}
	if err := repo.ApplyRateBatch(ctx, good); err != nil {
		t.Fatalf("ApplyRateBatch: %v", err)
	}
	snap, err := repo.LoadSnapshot(ctx)
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	usd, _ := snap.Get("USD")
	eur, _ := snap.Get("EUR")
	if !usd.RateToBase.Equal(decimal.New(25000, 0)) || !eur.RateToBase.Equal(decimal.New(27000, 0)) {
		t.Fatalf("rates after batch: USD %s, EUR %s", usd.RateToBase, eur.RateToBase)
	}
	if base, _ := snap.Base(); base != "VND" {
		t.Fatalf("batch must not move the base, got %q", base)
	}
}

func TestApplyRateBatchRejectsRebasedQuote(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	batch := []currency.Quote{
		{Code: "VND", Name: "Vietnamese Dong", Rate: decimal.New(2, 0)},
	}
	if err := repo.ApplyRateBatch(ctx, batch); !errors.Is(err, currency.ErrInvalidRate) {
		t.Fatalf("got %v, want ErrInvalidRate", err)
	}
	snap, err := repo.LoadSnapshot(ctx)
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	vnd, err := snap.Get("VND")
	if err != nil || !vnd.RateToBase.Equal(decimal.New(1, 0)) {
		t.Fatalf("base rate moved to %s, err %v", vnd.RateToBase, err)
	}
}
