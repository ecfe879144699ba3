package sqldb

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmanzanog/stock-screener/internal/domain"
	"github.com/jmanzanog/stock-screener/internal/infrastructure/persistence/sqldb/migrations"
	"github.com/pressly/goose/v3"
)

type PostgresDialect struct{}

func (d *PostgresDialect) Name() string { return DriverPostgres }

func (d *PostgresDialect) Migrate(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.PostgresFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("setting dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, migrations.PostgresDir); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	return nil
}

func (d *PostgresDialect) Placeholder(n int) string {
	return fmt.Sprintf("$%d", n)
}

func (d *PostgresDialect) Paginate(offset, limit int) string {
	return fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset)
}

// UpsertInstrument merges on symbol. Absent fundamentals keep the stored
// value; market is fixed at insert.
func (d *PostgresDialect) UpsertInstrument(ctx context.Context, exec Execer, i *domain.Instrument) error {
	query := `
		INSERT INTO instruments (` + instrumentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (symbol) DO UPDATE SET
			name = EXCLUDED.name,
			sector = COALESCE(EXCLUDED.sector, instruments.sector),
			market_cap = COALESCE(EXCLUDED.market_cap, instruments.market_cap),
			price = COALESCE(EXCLUDED.price, instruments.price),
			per = COALESCE(EXCLUDED.per, instruments.per),
			pbr = COALESCE(EXCLUDED.pbr, instruments.pbr),
			roe = COALESCE(EXCLUDED.roe, instruments.roe),
			dividend_yield = COALESCE(EXCLUDED.dividend_yield, instruments.dividend_yield),
			currency = EXCLUDED.currency,
			last_updated = EXCLUDED.last_updated
	`
	_, err := exec.ExecContext(ctx, query, instrumentArgs(i)...)
	return err
}
