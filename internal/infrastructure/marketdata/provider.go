package marketdata

import (
	"context"
	"strings"

	"github.com/jmanzanog/stock-screener/internal/domain"
	"github.com/shopspring/decimal"
)

// normalizedPlaces is the scale provider floats are rounded to before they
// become domain decimals.
const normalizedPlaces = 4

// Fundamentals is a provider snapshot for one symbol. Absent metrics are nil.
type Fundamentals struct {
	Symbol        string
	Name          string
	Sector        string
	Currency      string
	MarketCap     *domain.Decimal
	Price         *domain.Decimal
	PERatio       *domain.Decimal
	PBRatio       *domain.Decimal
	ROE           *domain.Decimal
	DividendYield *domain.Decimal
}

// FundamentalsProvider fetches one symbol per call. Implementations do not
// retry; failures are returned as *FetchError.
type FundamentalsProvider interface {
	FetchFundamentals(ctx context.Context, symbol string, market domain.Market) (*Fundamentals, error)
}

// ProviderSymbol converts a stored symbol to the ticker external providers
// expect. Tokyo listings carry the ".T" suffix.
func ProviderSymbol(symbol string, market domain.Market) string {
	if market == domain.MarketJP && !strings.Contains(symbol, ".") {
		return symbol + ".T"
	}
	return symbol
}

// NormalizeFloat rounds a provider float and converts it to a domain
// decimal, multiplied by scale. A nil input stays nil.
func NormalizeFloat(v *float64, scale int64) *domain.Decimal {
	if v == nil {
		return nil
	}
	d := decimal.NewFromFloat(*v)
	if scale != 1 {
		d = d.Mul(decimal.NewFromInt(scale))
	}
	out, err := domain.NewDecimalFromString(d.Round(normalizedPlaces).String())
	if err != nil {
		return nil
	}
	return &out
}

// NormalizeString parses a decimal string as returned by providers that
// quote numbers. Empty strings are treated as absent.
func NormalizeString(v string, scale int64) (*domain.Decimal, error) {
	if v == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return nil, err
	}
	if scale != 1 {
		d = d.Mul(decimal.NewFromInt(scale))
	}
	out, err := domain.NewDecimalFromString(d.Round(normalizedPlaces).String())
	if err != nil {
		return nil, err
	}
	return &out, nil
}
