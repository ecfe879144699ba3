package domain

// Field names a filterable or sortable instrument attribute. Values match
// the storage column names.
type Field string

const (
	FieldSymbol        Field = "symbol"
	FieldDisplayName   Field = "name"
	FieldMarket        Field = "market"
	FieldSector        Field = "sector"
	FieldMarketCap     Field = "market_cap"
	FieldPrice         Field = "price"
	FieldPERatio       Field = "per"
	FieldPBRatio       Field = "pbr"
	FieldROE           Field = "roe"
	FieldDividendYield Field = "dividend_yield"
	FieldLastUpdated   Field = "last_updated"
)

// Numeric reports whether the field holds a decimal quantity.
func (f Field) Numeric() bool {
	switch f {
	case FieldMarketCap, FieldPrice, FieldPERatio, FieldPBRatio, FieldROE, FieldDividendYield:
		return true
	}
	return false
}

// Sortable reports whether results can be ordered by the field.
func (f Field) Sortable() bool {
	switch f {
	case FieldSymbol, FieldDisplayName, FieldSector, FieldLastUpdated:
		return true
	}
	return f.Numeric()
}
