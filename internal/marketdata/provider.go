// Package marketdata defines the interface for fetching asset quotes and
// daily price history from external market data sources.
package marketdata

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Quote is a current market snapshot for one ticker.
type Quote struct {
	Ticker        string
	Price         decimal.Decimal
	PreviousClose decimal.NullDecimal
	Currency      string
	Volume        int64
	AsOf          time.Time
}

// Bar is one day of price history for a ticker.
type Bar struct {
	Date   time.Time
	Open   decimal.NullDecimal
	High   decimal.NullDecimal
	Low    decimal.NullDecimal
	Close  decimal.Decimal
	Volume int64
}

// FetchError represents a failed quote fetch for a specific ticker.
type FetchError struct {
	Ticker string
	Err    error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to fetch quote for %s: %v", e.Ticker, e.Err)
}

// Provider fetches market data for a set of tickers.
type Provider interface {
	// Name returns the provider's display name (e.g. "Yahoo Finance").
	Name() string

	// Quotes fetches current quotes for the given tickers.
	// Returns successful results and any per-ticker errors.
	// A provider should return as many quotes as possible, even if some fail.
	Quotes(ctx context.Context, tickers []string) ([]Quote, []FetchError)

	// DailyHistory fetches up to the given number of calendar days of daily
	// bars for one ticker, oldest first.
	DailyHistory(ctx context.Context, ticker string, days int) ([]Bar, error)
}
