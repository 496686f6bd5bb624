package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	yahooDefaultBaseURL = "https://query1.finance.yahoo.com"
	yahooBatchMax       = 50
	yahooUA             = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7)"
)

// yahooQuoteResponse is the top-level response of the v7 quote endpoint.
type yahooQuoteResponse struct {
	QuoteResponse struct {
		Result []yahooQuoteResult `json:"result"`
		Error  *json.RawMessage   `json:"error"`
	} `json:"quoteResponse"`
}

// yahooQuoteResult is a single quote result from Yahoo Finance.
type yahooQuoteResult struct {
	Symbol                     string  `json:"symbol"`
	RegularMarketPrice         float64 `json:"regularMarketPrice"`
	RegularMarketPreviousClose float64 `json:"regularMarketPreviousClose"`
	RegularMarketVolume        int64   `json:"regularMarketVolume"`
	Currency                   string  `json:"currency"`
}

// yahooChartResponse is the top-level response of the v8 chart endpoint.
type yahooChartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*int64   `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// YahooProvider fetches quotes and daily price history from Yahoo Finance.
type YahooProvider struct {
	httpClient *http.Client
	baseURL    string // overridable for tests
}

// NewYahooProvider creates a new Yahoo Finance market data provider.
// An empty baseURL falls back to the public endpoint.
func NewYahooProvider(httpClient *http.Client, baseURL string) *YahooProvider {
	if baseURL == "" {
		baseURL = yahooDefaultBaseURL
	}
	return &YahooProvider{httpClient: httpClient, baseURL: strings.TrimRight(baseURL, "/")}
}

// Name returns the provider's display name.
func (p *YahooProvider) Name() string { return "Yahoo Finance" }

// Quotes fetches current quotes in batches of up to 50 tickers.
func (p *YahooProvider) Quotes(ctx context.Context, tickers []string) ([]Quote, []FetchError) {
	if len(tickers) == 0 {
		return nil, nil
	}

	var allQuotes []Quote
	var allErrors []FetchError
	now := time.Now().UTC()

	for i := 0; i < len(tickers); i += yahooBatchMax {
		end := min(i+yahooBatchMax, len(tickers))
		quotes, fetchErrors := p.fetchBatch(ctx, tickers[i:end], now)
		allQuotes = append(allQuotes, quotes...)
		allErrors = append(allErrors, fetchErrors...)
	}

	return allQuotes, allErrors
}

// fetchBatch fetches quotes for a single batch of tickers.
func (p *YahooProvider) fetchBatch(ctx context.Context, tickers []string, now time.Time) ([]Quote, []FetchError) {
	url := p.baseURL + "/v7/finance/quote?symbols=" + strings.Join(tickers, ",")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, batchErrors(tickers, fmt.Errorf("building request: %w", err))
	}
	req.Header.Set("User-Agent", yahooUA)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, batchErrors(tickers, fmt.Errorf("http request: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, batchErrors(tickers, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	var quoteResp yahooQuoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&quoteResp); err != nil {
		return nil, batchErrors(tickers, fmt.Errorf("decoding response: %w", err))
	}

	// Index results by symbol for lookup.
	resultMap := make(map[string]yahooQuoteResult, len(quoteResp.QuoteResponse.Result))
	for _, r := range quoteResp.QuoteResponse.Result {
		resultMap[r.Symbol] = r
	}

	var quotes []Quote
	var fetchErrors []FetchError

	for _, ticker := range tickers {
		result, found := resultMap[ticker]
		if !found {
			fetchErrors = append(fetchErrors, FetchError{
				Ticker: ticker,
				Err:    fmt.Errorf("symbol %s not found in response", ticker),
			})
			continue
		}
		if result.RegularMarketPrice == 0 {
			fetchErrors = append(fetchErrors, FetchError{
				Ticker: ticker,
				Err:    fmt.Errorf("zero price for %s", ticker),
			})
			continue
		}

		quote := Quote{
			Ticker:   ticker,
			Price:    decimal.NewFromFloat(result.RegularMarketPrice),
			Currency: strings.ToUpper(result.Currency),
			Volume:   result.RegularMarketVolume,
			AsOf:     now,
		}
		if result.RegularMarketPreviousClose > 0 {
			quote.PreviousClose = decimal.NewNullDecimal(
				decimal.NewFromFloat(result.RegularMarketPreviousClose))
		}
		quotes = append(quotes, quote)
	}

	return quotes, fetchErrors
}

// DailyHistory fetches daily bars via the v8 chart endpoint, oldest first.
// Null entries in the chart arrays (halted or partial days) are skipped.
func (p *YahooProvider) DailyHistory(ctx context.Context, ticker string, days int) ([]Bar, error) {
	url := fmt.Sprintf("%s/v8/finance/chart/%s?interval=1d&range=%dd", p.baseURL, ticker, days)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building chart request: %w", err)
	}
	req.Header.Set("User-Agent", yahooUA)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chart http request for %s: %w", ticker, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("chart request for %s: unexpected status %d", ticker, resp.StatusCode)
	}

	var chartResp yahooChartResponse
	if err := json.NewDecoder(resp.Body).Decode(&chartResp); err != nil {
		return nil, fmt.Errorf("decoding chart response for %s: %w", ticker, err)
	}

	if chartResp.Chart.Error != nil {
		return nil, fmt.Errorf("chart error for %s: %s: %s",
			ticker, chartResp.Chart.Error.Code, chartResp.Chart.Error.Description)
	}
	if len(chartResp.Chart.Result) == 0 || len(chartResp.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, fmt.Errorf("no chart results for %s", ticker)
	}

	result := chartResp.Chart.Result[0]
	series := result.Indicators.Quote[0]

	bars := make([]Bar, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if i >= len(series.Close) || series.Close[i] == nil || *series.Close[i] <= 0 {
			continue
		}
		bar := Bar{
			Date:  chartDate(ts),
			Open:  nullFromPtr(at(series.Open, i)),
			High:  nullFromPtr(at(series.High, i)),
			Low:   nullFromPtr(at(series.Low, i)),
			Close: decimal.NewFromFloat(*series.Close[i]),
		}
		if v := at(series.Volume, i); v != nil {
			bar.Volume = *v
		}
		bars = append(bars, bar)
	}

	return bars, nil
}

// batchErrors creates FetchErrors for all tickers in a failed batch.
func batchErrors(tickers []string, err error) []FetchError {
	errors := make([]FetchError, len(tickers))
	for i, ticker := range tickers {
		errors[i] = FetchError{Ticker: ticker, Err: err}
	}
	return errors
}

// chartDate converts a chart timestamp to its UTC calendar day.
func chartDate(ts int64) time.Time {
	t := time.Unix(ts, 0).UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// at safely indexes a chart array that may be shorter than the timestamps.
func at[T any](values []*T, i int) *T {
	if i >= len(values) {
		return nil
	}
	return values[i]
}

func nullFromPtr(v *float64) decimal.NullDecimal {
	if v == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(decimal.NewFromFloat(*v))
}
