package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"finitor/internal/currency"
	"finitor/internal/log"

	"github.com/shopspring/decimal"
)

const defaultFetchTimeout = 10 * time.Second

// quotePayload is the wire shape served by the rate endpoint. Rates
// travel as decimal strings, never floats.
type quotePayload struct {
	Quotes []struct {
		Code string `json:"code"`
		Name string `json:"name"`
		Rate string `json:"rate"`
	} `json:"quotes"`
}

// HTTPProvider fetches quotes from a JSON endpoint.
type HTTPProvider struct {
	url    string
	client *http.Client
	logger *log.Logger
}

func NewHTTPProvider(url string, logger *log.Logger) *HTTPProvider {
	return &HTTPProvider{
		url:    url,
		client: &http.Client{Timeout: defaultFetchTimeout},
		logger: logger.WithComponent(log.ComponentRates),
	}
}

func (p *HTTPProvider) FetchQuotes(ctx context.Context) ([]currency.Quote, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrProviderUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrProviderUnavailable, resp.StatusCode)
	}

	var payload quotePayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: decode body: %v", ErrProviderUnavailable, err)
	}

	quotes := make([]currency.Quote, 0, len(payload.Quotes))
	for _, q := range payload.Quotes {
		rate, err := decimal.NewFromString(q.Rate)
		if err != nil {
			return nil, fmt.Errorf("%w: quote %s has rate %q", ErrProviderUnavailable, q.Code, q.Rate)
		}
		quotes = append(quotes, currency.Quote{Code: q.Code, Name: q.Name, Rate: rate})
	}

	p.logger.DebugContext(ctx, "fetched rate quotes", "count", len(quotes))
	return quotes, nil
}

// StaticProvider serves a fixed set of quotes. Useful for development
// setups without a rate endpoint.
type StaticProvider struct {
	quotes []currency.Quote
}

func NewStaticProvider(quotes []currency.Quote) *StaticProvider {
	return &StaticProvider{quotes: quotes}
}

func (p *StaticProvider) FetchQuotes(_ context.Context) ([]currency.Quote, error) {
	out := make([]currency.Quote, len(p.quotes))
	copy(out, p.quotes)
	return out, nil
}
