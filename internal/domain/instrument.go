package domain

import "time"

// Instrument is the persisted fundamentals snapshot of a single symbol.
// Symbol is the merge key for every refresh write.
type Instrument struct {
	Symbol        string    `json:"symbol"`
	DisplayName   string    `json:"displayName"`
	Market        Market    `json:"market"`
	Sector        *string   `json:"sector"`
	MarketCap     *Decimal  `json:"marketCap"`
	Price         *Decimal  `json:"price"`
	PERatio       *Decimal  `json:"per"`
	PBRatio       *Decimal  `json:"pbr"`
	ROE           *Decimal  `json:"roe"`
	DividendYield *Decimal  `json:"dividendYield"`
	Currency      string    `json:"currency"`
	LastUpdated   time.Time `json:"lastUpdated"`
}

func (i Instrument) IsValid() bool {
	return i.Symbol != "" && i.Market.Valid()
}

// NumericValue returns the value of a numeric field, nil when absent.
func (i Instrument) NumericValue(f Field) *Decimal {
	switch f {
	case FieldMarketCap:
		return i.MarketCap
	case FieldPrice:
		return i.Price
	case FieldPERatio:
		return i.PERatio
	case FieldPBRatio:
		return i.PBRatio
	case FieldROE:
		return i.ROE
	case FieldDividendYield:
		return i.DividendYield
	default:
		return nil
	}
}

// TextValue returns the value of a text field. ok is false when the field
// is absent or not a text field.
func (i Instrument) TextValue(f Field) (value string, ok bool) {
	switch f {
	case FieldSymbol:
		return i.Symbol, true
	case FieldDisplayName:
		return i.DisplayName, true
	case FieldMarket:
		return string(i.Market), true
	case FieldSector:
		if i.Sector == nil {
			return "", false
		}
		return *i.Sector, true
	default:
		return "", false
	}
}

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
