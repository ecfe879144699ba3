package twelvedata

import (
	"context"
	"errors"
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
	defaultBaseURL = "https://api.twelvedata.com"
	statisticsPath = "/statistics"
	quotePath      = "/quote"

	tokyoExchange = "JPX"
)

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(apiKey string) *Client {
	return &Client{
		baseURL: defaultBaseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// SetBaseURL sets the base URL for the API (useful for testing).
func (c *Client) SetBaseURL(baseURL string) {
	c.baseURL = baseURL
}

// apiStatus is embedded in every payload; Twelve Data reports failures
// with HTTP 200 and status "error".
type apiStatus struct {
	Status  string `json:"status"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type statisticsResponse struct {
	apiStatus
	Meta struct {
		Symbol   string `json:"symbol"`
		Name     string `json:"name"`
		Currency string `json:"currency"`
	} `json:"meta"`
	Statistics struct {
		ValuationsMetrics struct {
			MarketCapitalization *float64 `json:"market_capitalization"`
			TrailingPE           *float64 `json:"trailing_pe"`
			PriceToBookMRQ       *float64 `json:"price_to_book_mrq"`
		} `json:"valuations_metrics"`
		Financials struct {
			ReturnOnEquityTTM *float64 `json:"return_on_equity_ttm"`
		} `json:"financials"`
		DividendsAndSplits struct {
			ForwardAnnualDividendYield *float64 `json:"forward_annual_dividend_yield"`
		} `json:"dividends_and_splits"`
	} `json:"statistics"`
}

type quoteResponse struct {
	apiStatus
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Currency string `json:"currency"`
	Close    string `json:"close"`
}

func (c *Client) FetchFundamentals(ctx context.Context, symbol string, market domain.Market) (*marketdata.Fundamentals, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	if market == domain.MarketJP {
		params.Set("exchange", tokyoExchange)
	}

	var quote quoteResponse
	if err := c.get(ctx, quotePath, params, symbol, &quote); err != nil {
		return nil, err
	}
	if err := quote.apiStatus.check(symbol); err != nil {
		return nil, err
	}

	price, err := marketdata.NormalizeString(quote.Close, 1)
	if err != nil {
		return nil, marketdata.Malformed(symbol, fmt.Errorf("failed to parse price: %w", err))
	}
	if price == nil {
		return nil, marketdata.Malformed(symbol, fmt.Errorf("quote request returned no price data for symbol: %s", symbol))
	}

	var stats statisticsResponse
	if err := c.get(ctx, statisticsPath, params, symbol, &stats); err != nil {
		return nil, err
	}
	if err := stats.apiStatus.check(symbol); err != nil {
		return nil, err
	}

	name := stats.Meta.Name
	if name == "" {
		name = quote.Name
	}
	currency := stats.Meta.Currency
	if currency == "" {
		currency = quote.Currency
	}

	vm := stats.Statistics.ValuationsMetrics
	return &marketdata.Fundamentals{
		Symbol:        symbol,
		Name:          name,
		Currency:      currency,
		Price:         price,
		MarketCap:     marketdata.NormalizeFloat(vm.MarketCapitalization, 1),
		PERatio:       marketdata.NormalizeFloat(vm.TrailingPE, 1),
		PBRatio:       marketdata.NormalizeFloat(vm.PriceToBookMRQ, 1),
		ROE:           marketdata.NormalizeFloat(stats.Statistics.Financials.ReturnOnEquityTTM, 100),
		DividendYield: marketdata.NormalizeFloat(stats.Statistics.DividendsAndSplits.ForwardAnnualDividendYield, 100),
	}, nil
}

func (s apiStatus) check(symbol string) error {
	if s.Status != "error" {
		return nil
	}
	return marketdata.ClassifyStatus(symbol, s.Code, s.Message)
}

func (c *Client) get(ctx context.Context, path string, params url.Values, symbol string, out any) error {
	q := url.Values{}
	for k, v := range params {
		q[k] = v
	}
	q.Set("apikey", c.apiKey)
	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, q.Encode())

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
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return marketdata.Malformed(symbol, fmt.Errorf("failed to decode response: %w", err))
	}
	return nil
}

var _ marketdata.FundamentalsProvider = (*Client)(nil)
