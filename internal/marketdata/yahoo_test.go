package marketdata

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// quoteEntry builds one v7 quote result as raw JSON.
func quoteEntry(symbol string, price, prevClose float64, volume int64, currency string) string {
	return fmt.Sprintf(
		`{"symbol":%q,"regularMarketPrice":%v,"regularMarketPreviousClose":%v,"regularMarketVolume":%d,"currency":%q}`,
		symbol, price, prevClose, volume, currency)
}

// newQuoteMockServer serves v7 quote responses. entries maps ticker to a raw
// JSON result entry; requested tickers without an entry are simply absent
// from the response, as on the real endpoint.
func newQuoteMockServer(entries map[string]string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		symbols := strings.Split(r.URL.Query().Get("symbols"), ",")
		var results []string
		for _, s := range symbols {
			if entry, ok := entries[s]; ok {
				results = append(results, entry)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"quoteResponse":{"result":[%s],"error":null}}`, strings.Join(results, ","))
	}))
}

func TestYahooProvider_Quotes_Success(t *testing.T) {
	server := newQuoteMockServer(map[string]string{
		"PETR4.SA": quoteEntry("PETR4.SA", 38.42, 38.10, 1200000, "BRL"),
		"VALE3.SA": quoteEntry("VALE3.SA", 61.05, 60.80, 900000, "BRL"),
		"AAPL":     quoteEntry("AAPL", 178.72, 176.50, 5000000, "USD"),
	})
	defer server.Close()

	p := NewYahooProvider(server.Client(), server.URL)
	quotes, fetchErrors := p.Quotes(context.Background(), []string{"PETR4.SA", "VALE3.SA", "AAPL"})

	if len(fetchErrors) != 0 {
		t.Fatalf("expected 0 errors, got %d: %v", len(fetchErrors), fetchErrors)
	}
	if len(quotes) != 3 {
		t.Fatalf("expected 3 quotes, got %d", len(quotes))
	}

	expected := map[string]struct {
		price    string
		prev     string
		currency string
	}{
		"PETR4.SA": {"38.42", "38.10", "BRL"},
		"VALE3.SA": {"61.05", "60.80", "BRL"},
		"AAPL":     {"178.72", "176.50", "USD"},
	}
	for _, q := range quotes {
		want, ok := expected[q.Ticker]
		if !ok {
			t.Errorf("unexpected ticker %s", q.Ticker)
			continue
		}
		if !q.Price.Equal(dec(want.price)) {
			t.Errorf("%s: got price %s, want %s", q.Ticker, q.Price, want.price)
		}
		if !q.PreviousClose.Valid || !q.PreviousClose.Decimal.Equal(dec(want.prev)) {
			t.Errorf("%s: got previous close %v, want %s", q.Ticker, q.PreviousClose, want.prev)
		}
		if q.Currency != want.currency {
			t.Errorf("%s: got currency %q, want %q", q.Ticker, q.Currency, want.currency)
		}
	}
}

func TestYahooProvider_Quotes_PartialFailure(t *testing.T) {
	// FAKESYM has no entry and is absent from the response.
	server := newQuoteMockServer(map[string]string{
		"PETR4.SA": quoteEntry("PETR4.SA", 38.42, 38.10, 1200000, "BRL"),
	})
	defer server.Close()

	p := NewYahooProvider(server.Client(), server.URL)
	quotes, fetchErrors := p.Quotes(context.Background(), []string{"PETR4.SA", "FAKESYM"})

	if len(quotes) != 1 {
		t.Errorf("expected 1 quote, got %d", len(quotes))
	}
	if len(fetchErrors) != 1 {
		t.Fatalf("expected 1 error, got %d", len(fetchErrors))
	}
	if fetchErrors[0].Ticker != "FAKESYM" {
		t.Errorf("expected error for FAKESYM, got %s", fetchErrors[0].Ticker)
	}
}

func TestYahooProvider_Quotes_ZeroPrice(t *testing.T) {
	server := newQuoteMockServer(map[string]string{
		"DEAD": quoteEntry("DEAD", 0, 0, 0, "BRL"),
	})
	defer server.Close()

	p := NewYahooProvider(server.Client(), server.URL)
	quotes, fetchErrors := p.Quotes(context.Background(), []string{"DEAD"})

	if len(quotes) != 0 {
		t.Errorf("expected 0 quotes for zero price, got %d", len(quotes))
	}
	if len(fetchErrors) != 1 {
		t.Fatalf("expected 1 error, got %d", len(fetchErrors))
	}
	if !strings.Contains(fetchErrors[0].Err.Error(), "zero price") {
		t.Errorf("expected error about zero price, got: %v", fetchErrors[0].Err)
	}
}

func TestYahooProvider_Quotes_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	p := NewYahooProvider(server.Client(), server.URL)
	quotes, fetchErrors := p.Quotes(context.Background(), []string{"PETR4.SA", "VALE3.SA"})

	if len(quotes) != 0 {
		t.Errorf("expected 0 quotes, got %d", len(quotes))
	}
	if len(fetchErrors) != 2 {
		t.Fatalf("expected 2 errors, got %d", len(fetchErrors))
	}
	for _, fe := range fetchErrors {
		if !strings.Contains(fe.Err.Error(), "500") {
			t.Errorf("expected error to mention 500, got: %v", fe.Err)
		}
	}
}

func TestYahooProvider_Quotes_SplitsLargeBatches(t *testing.T) {
	var requestCount atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestCount.Add(1)
		symbols := strings.Split(r.URL.Query().Get("symbols"), ",")
		if len(symbols) > yahooBatchMax {
			t.Errorf("batch of %d symbols exceeds limit %d", len(symbols), yahooBatchMax)
		}
		var results []string
		for _, s := range symbols {
			results = append(results, quoteEntry(s, 10.00, 9.80, 100, "BRL"))
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"quoteResponse":{"result":[%s],"error":null}}`, strings.Join(results, ","))
	}))
	defer server.Close()

	tickers := make([]string, 120)
	for i := range tickers {
		tickers[i] = fmt.Sprintf("SYM%03d.SA", i)
	}

	p := NewYahooProvider(server.Client(), server.URL)
	quotes, fetchErrors := p.Quotes(context.Background(), tickers)

	if len(fetchErrors) != 0 {
		t.Fatalf("expected 0 errors, got %d: %v", len(fetchErrors), fetchErrors)
	}
	if len(quotes) != 120 {
		t.Errorf("expected 120 quotes, got %d", len(quotes))
	}
	if got := requestCount.Load(); got != 3 {
		t.Errorf("expected 3 batch requests, got %d", got)
	}
}

func TestYahooProvider_DailyHistory_Success(t *testing.T) {
	// Jan 2, Jan 5 and Jan 6 2026; Jan 5 has null entries (halted day).
	const chartBody = `{"chart":{"result":[{"timestamp":[1767312000,1767571200,1767657600],` +
		`"indicators":{"quote":[{"open":[10.0,null,10.6],"high":[10.5,null,11.0],` +
		`"low":[9.8,null,10.4],"close":[10.2,null,10.8],"volume":[1000,null,1200]}]}}],"error":null}}`

	var capturedPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedPath = r.URL.Path + "?" + r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, chartBody)
	}))
	defer server.Close()

	p := NewYahooProvider(server.Client(), server.URL)
	bars, err := p.DailyHistory(context.Background(), "PETR4.SA", 30)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if !strings.Contains(capturedPath, "/v8/finance/chart/PETR4.SA") {
		t.Errorf("expected chart path for PETR4.SA, got %s", capturedPath)
	}
	if !strings.Contains(capturedPath, "range=30d") {
		t.Errorf("expected range=30d in query, got %s", capturedPath)
	}

	if len(bars) != 2 {
		t.Fatalf("expected null close to be skipped, got %d bars", len(bars))
	}

	wantFirst := time.Date(2026, time.January, 2, 0, 0, 0, 0, time.UTC)
	if !bars[0].Date.Equal(wantFirst) {
		t.Errorf("expected first bar on %v, got %v", wantFirst, bars[0].Date)
	}
	if !bars[0].Close.Equal(dec("10.2")) {
		t.Errorf("expected first close 10.2, got %s", bars[0].Close)
	}
	if !bars[0].Open.Valid || !bars[0].Open.Decimal.Equal(dec("10")) {
		t.Errorf("expected first open 10, got %v", bars[0].Open)
	}
	if bars[0].Volume != 1000 {
		t.Errorf("expected first volume 1000, got %d", bars[0].Volume)
	}
	if !bars[1].Close.Equal(dec("10.8")) {
		t.Errorf("expected second close 10.8, got %s", bars[1].Close)
	}
}

func TestYahooProvider_DailyHistory_ChartError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found, symbol may be delisted"}}}`)
	}))
	defer server.Close()

	p := NewYahooProvider(server.Client(), server.URL)
	bars, err := p.DailyHistory(context.Background(), "DELISTED.SA", 30)

	if bars != nil {
		t.Errorf("expected no bars, got %d", len(bars))
	}
	if err == nil || !strings.Contains(err.Error(), "Not Found") {
		t.Errorf("expected error to mention 'Not Found', got: %v", err)
	}
}

func TestYahooProvider_DailyHistory_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	p := NewYahooProvider(server.Client(), server.URL)
	_, err := p.DailyHistory(context.Background(), "PETR4.SA", 30)

	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Errorf("expected error to mention 429, got: %v", err)
	}
}
