package sqldb

import (
	"fmt"
	"strings"

	"github.com/jmanzanog/stock-screener/internal/domain"
)

// columns whitelists the fields that may appear in rendered SQL.
var columns = map[domain.Field]string{
	domain.FieldSymbol:        "symbol",
	domain.FieldDisplayName:   "name",
	domain.FieldMarket:        "market",
	domain.FieldSector:        "sector",
	domain.FieldMarketCap:     "market_cap",
	domain.FieldPrice:         "price",
	domain.FieldPERatio:       "per",
	domain.FieldPBRatio:       "pbr",
	domain.FieldROE:           "roe",
	domain.FieldDividendYield: "dividend_yield",
	domain.FieldLastUpdated:   "last_updated",
}

func column(f domain.Field) (string, error) {
	col, ok := columns[f]
	if !ok {
		return "", fmt.Errorf("unknown field: %q", f)
	}
	return col, nil
}

// renderWhere renders a predicate as a WHERE clause with bind arguments
// numbered from 1. The empty predicate renders as "".
func renderWhere(d Dialect, p domain.Predicate) (string, []any, error) {
	if len(p.Clauses) == 0 {
		return "", nil, nil
	}

	parts := make([]string, 0, len(p.Clauses))
	var args []any
	bind := func(v any) string {
		args = append(args, v)
		return d.Placeholder(len(args))
	}

	for _, c := range p.Clauses {
		col, err := column(c.Field)
		if err != nil {
			return "", nil, err
		}

		switch c.Op {
		case domain.OpGTE:
			parts = append(parts, fmt.Sprintf("%s >= %s", col, bind(c.Number)))
		case domain.OpLTE:
			parts = append(parts, fmt.Sprintf("%s <= %s", col, bind(c.Number)))
		case domain.OpEqual:
			if len(c.Values) != 1 {
				return "", nil, fmt.Errorf("equality on %s needs exactly one value", col)
			}
			parts = append(parts, fmt.Sprintf("%s = %s", col, bind(c.Values[0])))
		case domain.OpIn:
			if len(c.Values) == 0 {
				return "", nil, fmt.Errorf("membership on %s needs at least one value", col)
			}
			marks := make([]string, len(c.Values))
			for i, v := range c.Values {
				marks[i] = bind(v)
			}
			parts = append(parts, fmt.Sprintf("%s IN (%s)", col, strings.Join(marks, ", ")))
		default:
			return "", nil, fmt.Errorf("unsupported operator %q on %s", c.Op, col)
		}
	}

	return " WHERE " + strings.Join(parts, " AND "), args, nil
}

// renderOrder sorts by the requested field with NULLs last in either
// direction, then by symbol so pages never overlap.
func renderOrder(s domain.Sort) (string, error) {
	if s.Field == "" {
		s = domain.DefaultSort()
	}
	if !s.Field.Sortable() {
		return "", fmt.Errorf("field %q is not sortable", s.Field)
	}
	col, err := column(s.Field)
	if err != nil {
		return "", err
	}

	dir := "ASC"
	if s.Direction == domain.SortDesc {
		dir = "DESC"
	}

	if s.Field == domain.FieldSymbol {
		return " ORDER BY symbol " + dir, nil
	}
	return fmt.Sprintf(" ORDER BY %s %s NULLS LAST, symbol ASC", col, dir), nil
}
