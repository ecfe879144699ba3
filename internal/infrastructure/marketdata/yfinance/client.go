package yfinance

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
	defaultBaseURL   = "http://localhost:8000"
	fundamentalsPath = "/api/v1/fundamentals"
)

// Client implements FundamentalsProvider against the yfinance Market Data
// Service, a lightweight Python microservice wrapping Yahoo Finance.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new yfinance Market Data Service client with default settings.
func NewClient() *Client {
	return NewClientWithBaseURL(defaultBaseURL)
}

// NewClientWithBaseURL creates a new client with a custom base URL (useful for K8s deployments).
func NewClientWithBaseURL(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// NewClientWithHTTPClient creates a new client with a custom HTTP client (for testing).
func NewClientWithHTTPClient(httpClient *http.Client) *Client {
	return &Client{
		baseURL:    defaultBaseURL,
		httpClient: httpClient,
	}
}

// SetBaseURL sets the base URL for the API (useful for testing).
func (c *Client) SetBaseURL(baseURL string) {
	c.baseURL = baseURL
}

// fundamentalsResponse mirrors Yahoo's quoteSummary fields. Ratios such as
// returnOnEquity and dividendYield are fractions (0.12 == 12%).
type fundamentalsResponse struct {
	Symbol         string   `json:"symbol"`
	Name           string   `json:"name"`
	Sector         string   `json:"sector"`
	Currency       string   `json:"currency"`
	Price          *float64 `json:"price"`
	MarketCap      *float64 `json:"marketCap"`
	TrailingPE     *float64 `json:"trailingPE"`
	PriceToBook    *float64 `json:"priceToBook"`
	ReturnOnEquity *float64 `json:"returnOnEquity"`
	DividendYield  *float64 `json:"dividendYield"`
}

// errorResponse represents an error response from the API.
type errorResponse struct {
	Detail string `json:"detail"`
}

// FetchFundamentals retrieves the fundamentals snapshot for one symbol.
func (c *Client) FetchFundamentals(ctx context.Context, symbol string, market domain.Market) (*marketdata.Fundamentals, error) {
	ticker := marketdata.ProviderSymbol(symbol, market)
	reqURL := fmt.Sprintf("%s%s/%s", c.baseURL, fundamentalsPath, url.PathEscape(ticker))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, marketdata.Transient(symbol, fmt.Errorf("failed to execute request: %w", err))
	}

	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			slog.Warn("failed to close response body", "error", closeErr, "url", reqURL)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		detail := string(body)
		var errResp errorResponse
		if json.Unmarshal(body, &errResp) == nil && errResp.Detail != "" {
			detail = errResp.Detail
		}
		return nil, marketdata.ClassifyStatus(symbol, resp.StatusCode, detail)
	}

	var fr fundamentalsResponse
	if err := json.NewDecoder(resp.Body).Decode(&fr); err != nil {
		return nil, marketdata.Malformed(symbol, fmt.Errorf("failed to decode response: %w", err))
	}

	if fr.Price == nil {
		return nil, marketdata.Malformed(symbol, fmt.Errorf("no price data for symbol: %s", ticker))
	}

	return &marketdata.Fundamentals{
		Symbol:        symbol,
		Name:          fr.Name,
		Sector:        fr.Sector,
		Currency:      fr.Currency,
		Price:         marketdata.NormalizeFloat(fr.Price, 1),
		MarketCap:     marketdata.NormalizeFloat(fr.MarketCap, 1),
		PERatio:       marketdata.NormalizeFloat(fr.TrailingPE, 1),
		PBRatio:       marketdata.NormalizeFloat(fr.PriceToBook, 1),
		ROE:           marketdata.NormalizeFloat(fr.ReturnOnEquity, 100),
		DividendYield: marketdata.NormalizeFloat(fr.DividendYield, 100),
	}, nil
}

// Compile-time check that Client implements FundamentalsProvider.
var _ marketdata.FundamentalsProvider = (*Client)(nil)
