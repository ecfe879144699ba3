package sqldb

import (
	"context"
	"database/sql"

	"github.com/jmanzanog/stock-screener/internal/domain"
)

// Execer is satisfied by *sql.DB, *sql.Tx and *DB.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type Dialect interface {
	Name() string
	Migrate(ctx context.Context, db *sql.DB) error
	// Placeholder returns the bind marker for the n-th argument, 1-based.
	Placeholder(n int) string
	// Paginate returns the clause appended after ORDER BY.
	Paginate(offset, limit int) string
	UpsertInstrument(ctx context.Context, exec Execer, i *domain.Instrument) error
}

// instrumentColumns is the column order shared by SELECT and upsert.
const instrumentColumns = "symbol, name, market, sector, market_cap, price, per, pbr, roe, dividend_yield, currency, last_updated"

func instrumentArgs(i *domain.Instrument) []any {
	return []any{
		i.Symbol,
		i.DisplayName,
		string(i.Market),
		stringArg(i.Sector),
		decimalArg(i.MarketCap),
		decimalArg(i.Price),
		decimalArg(i.PERatio),
		decimalArg(i.PBRatio),
		decimalArg(i.ROE),
		decimalArg(i.DividendYield),
		i.Currency,
		i.LastUpdated,
	}
}

func decimalArg(d *domain.Decimal) any {
	if d == nil {
		return nil
	}
	return *d
}

func stringArg(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
