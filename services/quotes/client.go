package quotes

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"marketdata_backend/models"

	"github.com/shopspring/decimal"
)

// Client constants
const (
	DefaultFetchTimeout = 15 * time.Second
	historyInterval     = "1day"
)

// Client performs one external quote fetch per symbol against the provider.
type Client interface {
	Fetch(ctx context.Context, symbol string) (*models.Quote, error)
	TimeSeries(ctx context.Context, symbol string, days int) ([]Bar, error)
}

// Bar is one daily OHLCV point from the provider's time-series endpoint.
type Bar struct {
	Symbol string          `json:"symbol"`
	Date   time.Time       `json:"date"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume int64           `json:"volume"`
}

// FetchError describes a failed quote fetch for one symbol. Fetch failures
// are recorded per symbol and never abort a whole refresh cycle.
type FetchError struct {
	Symbol string
	Reason string
	Err    error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %s: %v", e.Symbol, e.Reason, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s", e.Symbol, e.Reason)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// quoteResponse mirrors the provider's quote endpoint payload. All numeric
// fields arrive as strings.
type quoteResponse struct {
	Symbol        string `json:"symbol"`
	Open          string `json:"open"`
	High          string `json:"high"`
	Low           string `json:"low"`
	Close         string `json:"close"`
	Volume        string `json:"volume"`
	PreviousClose string `json:"previous_close"`
}

// timeSeriesResponse mirrors the provider's time-series endpoint payload.
type timeSeriesResponse struct {
	Values []timeSeriesValue `json:"values"`
}

type timeSeriesValue struct {
	Datetime string `json:"datetime"`
	Open     string `json:"open"`
	High     string `json:"high"`
	Low      string `json:"low"`
	Close    string `json:"close"`
	Volume   string `json:"volume"`
}

// HTTPClient fetches quotes from the Twelve Data style REST API.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	now        func() time.Time
}

// NewHTTPClient creates a provider client with a bounded request timeout so
// a single unresponsive call cannot stall a whole refresh cycle.
func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	return &HTTPClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		now:        time.Now,
	}
}

// SetNowFunc overrides the quote timestamp source. Intended for tests.
func (c *HTTPClient) SetNowFunc(now func() time.Time) {
	c.now = now
}

// Fetch retrieves the current quote for one symbol. A response missing the
// close or previous_close fields is a fetch failure, not a partial success.
func (c *HTTPClient) Fetch(ctx context.Context, symbol string) (*models.Quote, error) {
	endpoint := fmt.Sprintf("%s/quote?symbol=%s&apikey=%s",
		c.baseURL, url.QueryEscape(symbol), url.QueryEscape(c.apiKey))

	body, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, &FetchError{Symbol: symbol, Reason: "request failed", Err: err}
	}

	var resp quoteResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &FetchError{Symbol: symbol, Reason: "malformed response", Err: err}
	}

	if resp.Close == "" || resp.PreviousClose == "" {
		return nil, &FetchError{Symbol: symbol, Reason: "response missing close or previous_close"}
	}

	closePrice, err := decimal.NewFromString(resp.Close)
	if err != nil {
		return nil, &FetchError{Symbol: symbol, Reason: "invalid close", Err: err}
	}
	previousClose, err := decimal.NewFromString(resp.PreviousClose)
	if err != nil {
		return nil, &FetchError{Symbol: symbol, Reason: "invalid previous_close", Err: err}
	}

	// Open/high/low fall back to the close when the provider omits them.
	open := parseDecimalOr(resp.Open, closePrice)
	high := parseDecimalOr(resp.High, closePrice)
	low := parseDecimalOr(resp.Low, closePrice)
	volume := parseVolume(resp.Volume)

	quote := models.NewQuote(symbol, "", open, high, low, closePrice, volume, previousClose, c.now())
	return &quote, nil
}

// TimeSeries retrieves up to days daily bars for one symbol, newest first
// as served by the provider.
func (c *HTTPClient) TimeSeries(ctx context.Context, symbol string, days int) ([]Bar, error) {
	endpoint := fmt.Sprintf("%s/time_series?symbol=%s&interval=%s&outputsize=%d&apikey=%s",
		c.baseURL, url.QueryEscape(symbol), historyInterval, days, url.QueryEscape(c.apiKey))

	body, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, &FetchError{Symbol: symbol, Reason: "time series request failed", Err: err}
	}

	var resp timeSeriesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &FetchError{Symbol: symbol, Reason: "malformed time series response", Err: err}
	}
	if len(resp.Values) == 0 {
		return nil, &FetchError{Symbol: symbol, Reason: "empty time series response"}
	}

	bars := make([]Bar, 0, len(resp.Values))
	for _, v := range resp.Values {
		closePrice, err := decimal.NewFromString(v.Close)
		if err != nil {
			// Skip unparsable points rather than failing the reload.
			continue
		}
		date, err := parseBarDate(v.Datetime)
		if err != nil {
			continue
		}
		bars = append(bars, Bar{
			Symbol: symbol,
			Date:   date,
			Open:   parseDecimalOr(v.Open, closePrice),
			High:   parseDecimalOr(v.High, closePrice),
			Low:    parseDecimalOr(v.Low, closePrice),
			Close:  closePrice,
			Volume: parseVolume(v.Volume),
		})
	}

	return bars, nil
}

// get performs one HTTP GET and returns the response body.
func (c *HTTPClient) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("provider error (status %d): %s", resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return body, nil
}

func parseDecimalOr(value string, fallback decimal.Decimal) decimal.Decimal {
	if value == "" {
		return fallback
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return fallback
	}
	return d
}

func parseVolume(value string) int64 {
	if value == "" {
		return 0
	}
	v, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0
	}
	return v
}

func parseBarDate(value string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized datetime %q", value)
}
