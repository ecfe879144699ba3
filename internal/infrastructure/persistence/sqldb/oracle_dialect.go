package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmanzanog/stock-screener/internal/domain"
	"github.com/jmanzanog/stock-screener/internal/infrastructure/persistence/sqldb/migrations"
)

type OracleDialect struct{}

func (d *OracleDialect) Name() string { return DriverOracle }

// Migrate runs every script under oracle/ in name order. Statements are
// separated by '/' lines; objects that already exist are skipped.
func (d *OracleDialect) Migrate(ctx context.Context, db *sql.DB) error {
	scripts, err := migrations.OracleScripts()
	if err != nil {
		return err
	}

	for _, script := range scripts {
		for _, stmt := range splitOracleScript(script.Content) {
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				// ORA-00955: name is already used by an existing object
				// ORA-01408: such column list already indexed
				if !strings.Contains(err.Error(), "ORA-00955") && !strings.Contains(err.Error(), "ORA-01408") {
					return fmt.Errorf("migrating %s: %s: %w", script.Name, stmt, err)
				}
			}
		}
	}
	return nil
}

func splitOracleScript(content string) []string {
	var statements []string
	for _, stmt := range strings.Split(content, "\n/") {
		stmt = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(stmt), "/"))
		if stmt == "" {
			continue
		}
		statements = append(statements, stmt)
	}
	return statements
}

func (d *OracleDialect) Placeholder(n int) string {
	return fmt.Sprintf(":%d", n)
}

func (d *OracleDialect) Paginate(offset, limit int) string {
	return fmt.Sprintf(" OFFSET %d ROWS FETCH NEXT %d ROWS ONLY", offset, limit)
}

func (d *OracleDialect) UpsertInstrument(ctx context.Context, exec Execer, i *domain.Instrument) error {
	query := `MERGE INTO instruments t
             USING (SELECT :1 AS symbol, :2 AS name, :3 AS market, :4 AS sector,
                           :5 AS market_cap, :6 AS price, :7 AS per, :8 AS pbr,
                           :9 AS roe, :10 AS dividend_yield, :11 AS currency, :12 AS last_updated
                    FROM dual) s
             ON (t.symbol = s.symbol)
             WHEN MATCHED THEN
               UPDATE SET
                 t.name = s.name,
                 t.sector = COALESCE(s.sector, t.sector),
                 t.market_cap = COALESCE(s.market_cap, t.market_cap),
                 t.price = COALESCE(s.price, t.price),
                 t.per = COALESCE(s.per, t.per),
                 t.pbr = COALESCE(s.pbr, t.pbr),
                 t.roe = COALESCE(s.roe, t.roe),
                 t.dividend_yield = COALESCE(s.dividend_yield, t.dividend_yield),
                 t.currency = s.currency,
                 t.last_updated = s.last_updated
             WHEN NOT MATCHED THEN
               INSERT (` + instrumentColumns + `)
               VALUES (s.symbol, s.name, s.market, s.sector, s.market_cap, s.price,
                       s.per, s.pbr, s.roe, s.dividend_yield, s.currency, s.last_updated)`

	_, err := exec.ExecContext(ctx, query, instrumentArgs(i)...)
	return err
}
