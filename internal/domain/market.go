package domain

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidMarket = errors.New("invalid market")

// Market is the closed set of exchanges an instrument can belong to.
type Market string

const (
	MarketJP Market = "JP"
	MarketUS Market = "US"
)

// Markets returns every supported market in display order.
func Markets() []Market {
	return []Market{MarketJP, MarketUS}
}

func ParseMarket(raw string) (Market, error) {
	m := Market(strings.ToUpper(strings.TrimSpace(raw)))
	if !m.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidMarket, raw)
	}
	return m, nil
}

func (m Market) Valid() bool {
	return m == MarketJP || m == MarketUS
}

// Currency returns the trading currency of the market.
func (m Market) Currency() string {
	switch m {
	case MarketJP:
		return "JPY"
	case MarketUS:
		return "USD"
	default:
		return ""
	}
}

func (m Market) String() string {
	return string(m)
}
