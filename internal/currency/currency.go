// Package currency models the currency table and the conversion math
// on top of it. Rates are kept as decimals and every money-producing
// path rounds through the same half-to-even primitive, so repeated
// summaries cannot drift.
package currency

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmountFormat   = errors.New("invalid amount format")
	ErrUnknownCurrencySymbol = errors.New("unknown currency symbol")
	ErrUnknownCurrency       = errors.New("unknown currency")
	ErrInvalidRate           = errors.New("rate must be positive")
	ErrNoBaseCurrency        = errors.New("no base currency configured")
)

// Currency is one row of the currency table.
//
// RateToBase is denominated as base-currency units per 1 unit of this
// currency: with VND as base and USD at 24000, one USD buys 24000 VND.
// The base row itself is pinned to rate 1. Every non-base currency
// resolves to the base through this single stored rate; there are no
// transitive chains.
type Currency struct {
	Code       string // upper-cased, e.g. "USD"
	Name       string
	Symbol     string // optional leading symbol, e.g. "$"
	RateToBase decimal.Decimal
	MinorUnits int32 // decimal places of the smallest unit (USD 2, VND 0)
	IsBase     bool
	UpdatedAt  time.Time
}

// Quote is one entry of a rate-provider batch.
type Quote struct {
	Code string
	Name string
	Rate decimal.Decimal
}

func (q Quote) Validate() error {
	if q.Code == "" {
		return fmt.Errorf("%w: empty code", ErrUnknownCurrency)
	}
	if !q.Rate.IsPositive() {
		return fmt.Errorf("%w: %s %s", ErrInvalidRate, q.Code, q.Rate)
	}
	return nil
}

// Snapshot is an immutable view of the currency table taken at query
// time. Converting through a snapshot makes a report reproducible for
// a given transaction set: later rate refreshes do not leak into an
// aggregation that is already running.
type Snapshot struct {
	base     string
	byCode   map[string]Currency
	bySymbol map[string]string // symbol -> code
}

// NewSnapshot builds a snapshot from table rows.
func NewSnapshot(rows []Currency) Snapshot {
	s := Snapshot{
		byCode:   make(map[string]Currency, len(rows)),
		bySymbol: make(map[string]string),
	}
	for _, c := range rows {
		s.byCode[c.Code] = c
		if c.Symbol != "" {
			s.bySymbol[c.Symbol] = c.Code
		}
		if c.IsBase {
			s.base = c.Code
		}
	}
	return s
}

// Base returns the base currency code, or ErrNoBaseCurrency when the
// table carries none.
func (s Snapshot) Base() (string, error) {
	if s.base == "" {
		return "", ErrNoBaseCurrency
	}
	return s.base, nil
}

// Get returns the currency for code.
func (s Snapshot) Get(code string) (Currency, error) {
	c, ok := s.byCode[code]
	if !ok {
		return Currency{}, fmt.Errorf("%w: %s", ErrUnknownCurrency, code)
	}
	return c, nil
}

// Codes returns every code present in the snapshot, unordered.
func (s Snapshot) Codes() []string {
	codes := make([]string, 0, len(s.byCode))
	for code := range s.byCode {
		codes = append(codes, code)
	}
	return codes
}

// Convert re-expresses amountMinor (minor units of from) in minor
// units of to. Same-currency conversion returns the input untouched;
// everything else goes minor -> major, through the base via the two
// stored rates, and back to minor units with RoundToMinor.
func (s Snapshot) Convert(amountMinor int64, from, to string) (int64, error) {
	if from == to {
		// Identity must be exact, no rounding round-trip.
		if _, err := s.Get(from); err != nil {
			return 0, err
		}
		return amountMinor, nil
	}
	src, err := s.Get(from)
	if err != nil {
		return 0, err
	}
	dst, err := s.Get(to)
	if err != nil {
		return 0, err
	}
	major := decimal.New(amountMinor, -src.MinorUnits)
	inBase := major.Mul(src.RateToBase)
	inTarget := inBase.Div(dst.RateToBase)
	return RoundToMinor(inTarget, dst.MinorUnits), nil
}

// IsStale reports whether the rate for code was last refreshed more
// than maxAge before now. Staleness is advisory: conversion keeps
// working on stale rates, callers decide whether to warn.
func (s Snapshot) IsStale(code string, maxAge time.Duration, now time.Time) (bool, error) {
	c, err := s.Get(code)
	if err != nil {
		return false, err
	}
	if c.IsBase {
		return false, nil
	}
	return now.Sub(c.UpdatedAt) > maxAge, nil
}

// RoundToMinor turns a major-unit decimal into minor units, rounding
// half-to-even. This is the single rounding primitive shared by the
// parser and the converter.
func RoundToMinor(major decimal.Decimal, minorUnits int32) int64 {
	return major.Shift(minorUnits).RoundBank(0).IntPart()
}
