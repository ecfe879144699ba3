package finnhub

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"
	"github.com/jmanzanog/stock-screener/internal/domain"
	"github.com/jmanzanog/stock-screener/internal/infrastructure/marketdata"
)

const (
	defaultBaseURL = "https://finnhub.io/api/v1"
	quotePath      = "/quote"
	profilePath    = "/stock/profile2"
	metricPath     = "/stock/metric"

	// marketCapitalization is reported in millions of the listing currency.
	marketCapScale = 1_000_000
)

// Client implements FundamentalsProvider using the Finnhub API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new Finnhub API client.
func NewClient(apiKey string) *Client {
	return &Client{
		baseURL: defaultBaseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// NewClientWithHTTPClient creates a new Finnhub client with a custom HTTP client (for testing).
func NewClientWithHTTPClient(apiKey string, httpClient *http.Client) *Client {
	return &Client{
		baseURL:    defaultBaseURL,
		apiKey:     apiKey,
		httpClient: httpClient,
	}
}

// SetBaseURL sets the base URL for the API (useful for testing).
func (c *Client) SetBaseURL(baseURL string) {
	c.baseURL = baseURL
}

// quoteResponse represents the Finnhub quote response.
type quoteResponse struct {
	Current       float64 `json:"c"`  // Current price
	PreviousClose float64 `json:"pc"` // Previous close price
	Timestamp     int64   `json:"t"`  // Timestamp
}

// profileResponse represents the Finnhub company profile response.
type profileResponse struct {
	Currency             string   `json:"currency"`
	Exchange             string   `json:"exchange"`
	FinnhubIndustry      string   `json:"finnhubIndustry"`
	MarketCapitalization *float64 `json:"marketCapitalization"`
	Name                 string   `json:"name"`
	Ticker               string   `json:"ticker"`
}

// metricResponse carries the basic financials; ROE and dividend yield are
// already percentages.
type metricResponse struct {
	Metric struct {
		PETTM                        *float64 `json:"peTTM"`
		PBQuarterly                  *float64 `json:"pbQuarterly"`
		ROETTM                       *float64 `json:"roeTTM"`
		DividendYieldIndicatedAnnual *float64 `json:"dividendYieldIndicatedAnnual"`
	} `json:"metric"`
}

// FetchFundamentals combines the profile, basic financials and quote
// endpoints into one snapshot.
func (c *Client) FetchFundamentals(ctx context.Context, symbol string, market domain.Market) (*marketdata.Fundamentals, error) {
	ticker := marketdata.ProviderSymbol(symbol, market)

	var profile profileResponse
	if err := c.get(ctx, profilePath, url.Values{"symbol": {ticker}}, symbol, &profile); err != nil {
		return nil, err
	}
	// Finnhub answers unknown symbols with an empty object
	if profile.Name == "" && profile.Currency == "" {
		return nil, marketdata.NotFound(symbol, fmt.Errorf("no profile data found for symbol: %s", ticker))
	}

	var quote quoteResponse
	if err := c.get(ctx, quotePath, url.Values{"symbol": {ticker}}, symbol, &quote); err != nil {
		return nil, err
	}
	if quote.Current == 0 && quote.PreviousClose == 0 && quote.Timestamp == 0 {
		return nil, marketdata.NotFound(symbol, fmt.Errorf("no quote data found for symbol: %s", ticker))
	}

	var metrics metricResponse
	if err := c.get(ctx, metricPath, url.Values{"symbol": {ticker}, "metric": {"all"}}, symbol, &metrics); err != nil {
		return nil, err
	}

	price := quote.Current
	return &marketdata.Fundamentals{
		Symbol:        symbol,
		Name:          profile.Name,
		Sector:        profile.FinnhubIndustry,
		Currency:      profile.Currency,
		Price:         marketdata.NormalizeFloat(&price, 1),
		MarketCap:     marketdata.NormalizeFloat(profile.MarketCapitalization, marketCapScale),
		PERatio:       marketdata.NormalizeFloat(metrics.Metric.PETTM, 1),
		PBRatio:       marketdata.NormalizeFloat(metrics.Metric.PBQuarterly, 1),
		ROE:           marketdata.NormalizeFloat(metrics.Metric.ROETTM, 1),
		DividendYield: marketdata.NormalizeFloat(metrics.Metric.DividendYieldIndicatedAnnual, 1),
	}, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, symbol string, out any) error {
	params.Set("token", c.apiKey)
	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return marketdata.Transient(symbol, fmt.Errorf("failed to execute request: %w", err))
	}

	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			slog.Warn("failed to close response body", "error", closeErr, "path", path)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return marketdata.ClassifyStatus(symbol, resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return marketdata.Malformed(symbol, fmt.Errorf("failed to decode response: %w", err))
	}
	return nil
}

var _ marketdata.FundamentalsProvider = (*Client)(nil)
