package domain

import "math"

const (
	DefaultPage     = 1
	DefaultPageSize = 50
	MaxPageSize     = 100
)

type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// Sort orders results by a single field. Stores break ties by symbol
// ascending so pagination is stable.
type Sort struct {
	Field     Field
	Direction SortDirection
}

// DefaultSort orders by symbol ascending.
func DefaultSort() Sort {
	return Sort{Field: FieldSymbol, Direction: SortAsc}
}

// Range is an inclusive interval whose bounds are independently optional.
type Range struct {
	Min *Decimal
	Max *Decimal
}

func (r Range) IsZero() bool {
	return r.Min == nil && r.Max == nil
}

// Inverted reports whether both bounds are present and Min exceeds Max.
func (r Range) Inverted() bool {
	return r.Min != nil && r.Max != nil && r.Min.Cmp(*r.Max) > 0
}

// Dimension ties a named range filter to the field it constrains.
type Dimension struct {
	Name  string
	Field Field
	Range Range
}

// FilterSpec is a validated screening request.
type FilterSpec struct {
	Market        Market
	MarketCap     Range
	PER           Range
	PBR           Range
	ROE           Range
	DividendYield Range
	Price         Range
	Sectors       []string
	Sort          Sort
	Page          int
	PageSize      int
}

// Dimensions lists the six range filters in their canonical order.
func (s FilterSpec) Dimensions() []Dimension {
	return []Dimension{
		{Name: "MarketCap", Field: FieldMarketCap, Range: s.MarketCap},
		{Name: "PER", Field: FieldPERatio, Range: s.PER},
		{Name: "PBR", Field: FieldPBRatio, Range: s.PBR},
		{Name: "ROE", Field: FieldROE, Range: s.ROE},
		{Name: "DividendYield", Field: FieldDividendYield, Range: s.DividendYield},
		{Name: "Price", Field: FieldPrice, Range: s.Price},
	}
}

// Offset is the number of matching records skipped before the page. It
// saturates at math.MaxInt so very large pages stay beyond every result set.
func (s FilterSpec) Offset() int {
	if s.Page <= 1 || s.PageSize <= 0 {
		return 0
	}
	if s.Page-1 > math.MaxInt/s.PageSize {
		return math.MaxInt
	}
	return (s.Page - 1) * s.PageSize
}
