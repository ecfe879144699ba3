package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jmanzanog/stock-screener/internal/domain"
)

type Repository struct {
	db *DB
}

func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Count(ctx context.Context, p domain.Predicate) (int, error) {
	where, args, err := renderWhere(r.db.Dialect, p)
	if err != nil {
		return 0, fmt.Errorf("rendering predicate: %w", err)
	}

	var count int
	query := "SELECT COUNT(*) FROM instruments" + where
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		slog.ErrorContext(ctx, "Failed to count instruments", "error", err)
		return 0, fmt.Errorf("counting instruments: %w", err)
	}
	return count, nil
}

func (r *Repository) Find(ctx context.Context, q domain.Query) ([]domain.Instrument, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	where, args, err := renderWhere(r.db.Dialect, q.Predicate)
	if err != nil {
		return nil, fmt.Errorf("rendering predicate: %w", err)
	}
	order, err := renderOrder(q.Sort)
	if err != nil {
		return nil, fmt.Errorf("rendering order: %w", err)
	}

	query := "SELECT " + instrumentColumns + " FROM instruments" + where + order
	if q.Limit > 0 {
		query += r.db.Dialect.Paginate(q.Offset, q.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to query instruments", "error", err)
		return nil, fmt.Errorf("querying instruments: %w", err)
	}
	defer func(rows *sql.Rows) {
		err := rows.Close()
		if err != nil {
			slog.Error("Failed to close rows", "error", err)
		}
	}(rows)

	instruments := []domain.Instrument{}
	for rows.Next() {
		inst, err := scanInstrument(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		instruments = append(instruments, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return instruments, nil
}

func (r *Repository) FindBySymbol(ctx context.Context, symbol string) (domain.Instrument, bool, error) {
	query := r.rebind("SELECT " + instrumentColumns + " FROM instruments WHERE symbol = $1")

	inst, err := scanInstrument(r.db.QueryRowContext(ctx, query, symbol))
	if errors.Is(err, sql.ErrNoRows) {
		slog.DebugContext(ctx, "Instrument not found", "symbol", symbol)
		return domain.Instrument{}, false, nil
	}
	if err != nil {
		return domain.Instrument{}, false, fmt.Errorf("querying instrument %s: %w", symbol, err)
	}
	return inst, true, nil
}

func (r *Repository) Upsert(ctx context.Context, inst *domain.Instrument) error {
	if err := r.db.Dialect.UpsertInstrument(ctx, r.db, inst); err != nil {
		slog.ErrorContext(ctx, "Failed to save instrument", "symbol", inst.Symbol, "error", err)
		return fmt.Errorf("upsert instrument: %w", err)
	}
	return nil
}

func (r *Repository) Sectors(ctx context.Context, market domain.Market) ([]string, error) {
	query := r.rebind("SELECT DISTINCT sector FROM instruments WHERE market = $1 AND sector IS NOT NULL ORDER BY sector ASC")

	rows, err := r.db.QueryContext(ctx, query, string(market))
	if err != nil {
		return nil, fmt.Errorf("querying sectors: %w", err)
	}
	defer func(rows *sql.Rows) {
		err := rows.Close()
		if err != nil {
			slog.Error("Failed to close rows", "error", err)
		}
	}(rows)

	sectors := []string{}
	for rows.Next() {
		var sector string
		if err := rows.Scan(&sector); err != nil {
			return nil, fmt.Errorf("scanning sector: %w", err)
		}
		sectors = append(sectors, sector)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sectors, nil
}

func (r *Repository) LastUpdated(ctx context.Context, market *domain.Market) (*time.Time, error) {
	query := "SELECT MAX(last_updated) FROM instruments"
	var args []any
	if market != nil {
		query = r.rebind(query + " WHERE market = $1")
		args = append(args, string(*market))
	}

	var last sql.NullTime
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&last); err != nil {
		return nil, fmt.Errorf("querying last update: %w", err)
	}
	if !last.Valid {
		return nil, nil
	}
	t := last.Time
	return &t, nil
}

func (r *Repository) CountByMarket(ctx context.Context) (map[domain.Market]int, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT market, COUNT(*) FROM instruments GROUP BY market")
	if err != nil {
		return nil, fmt.Errorf("counting by market: %w", err)
	}
	defer func(rows *sql.Rows) {
		err := rows.Close()
		if err != nil {
			slog.Error("Failed to close rows", "error", err)
		}
	}(rows)

	counts := make(map[domain.Market]int)
	for rows.Next() {
		var market string
		var count int
		if err := rows.Scan(&market, &count); err != nil {
			return nil, fmt.Errorf("scanning market count: %w", err)
		}
		counts[domain.Market(market)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return counts, nil
}

// rebind rewrites $n markers for the active dialect. Higher numbers are
// replaced first so $1 never clobbers $10.
func (r *Repository) rebind(query string) string {
	if r.db.Dialect.Name() == DriverPostgres {
		return query
	}
	for i := 12; i >= 1; i-- {
		query = strings.ReplaceAll(query, fmt.Sprintf("$%d", i), r.db.Dialect.Placeholder(i))
	}
	return query
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInstrument(row rowScanner) (domain.Instrument, error) {
	var (
		inst                                    domain.Instrument
		market                                  string
		sector                                  sql.NullString
		marketCap, price, per, pbr, roe, divYld nullDecimal
	)

	err := row.Scan(
		&inst.Symbol, &inst.DisplayName, &market, &sector,
		&marketCap, &price, &per, &pbr, &roe, &divYld,
		&inst.Currency, &inst.LastUpdated,
	)
	if err != nil {
		return domain.Instrument{}, err
	}

	inst.Market = domain.Market(market)
	if sector.Valid {
		inst.Sector = &sector.String
	}
	inst.MarketCap = marketCap.Decimal
	inst.Price = price.Decimal
	inst.PERatio = per.Decimal
	inst.PBRatio = pbr.Decimal
	inst.ROE = roe.Decimal
	inst.DividendYield = divYld.Decimal
	return inst, nil
}

// nullDecimal scans a nullable numeric column.
type nullDecimal struct {
	Decimal *domain.Decimal
}

func (n *nullDecimal) Scan(value any) error {
	if value == nil {
		n.Decimal = nil
		return nil
	}
	var d domain.Decimal
	if err := d.Scan(value); err != nil {
		return err
	}
	n.Decimal = &d
	return nil
}

var _ domain.InstrumentRepository = (*Repository)(nil)
