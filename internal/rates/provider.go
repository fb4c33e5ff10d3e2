package rates

import (
	"context"
	"errors"

	"finitor/internal/currency"
)

// ErrProviderUnavailable wraps any transport or decoding failure so
// callers can tell "the provider is down" apart from a bad quote.
var ErrProviderUnavailable = errors.New("rate provider unavailable")

// Provider supplies exchange rate quotes against the base currency.
type Provider interface {
	FetchQuotes(ctx context.Context) ([]currency.Quote, error)
}
