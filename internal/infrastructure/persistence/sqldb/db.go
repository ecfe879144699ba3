package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/sijms/go-ora/v2"
)

const (
	DriverPostgres = "postgres"
	DriverOracle   = "oracle"
)

type DB struct {
	*sql.DB
	Dialect Dialect
}

func New(db *sql.DB, dialect Dialect) *DB {
	return &DB{
		DB:      db,
		Dialect: dialect,
	}
}

// DialectFor returns the dialect and database/sql driver name registered
// for a configured driver.
func DialectFor(driver string) (Dialect, string, error) {
	switch driver {
	case DriverPostgres:
		return &PostgresDialect{}, "pgx", nil
	case DriverOracle:
		return &OracleDialect{}, "oracle", nil
	default:
		return nil, "", fmt.Errorf("unsupported database driver: %s", driver)
	}
}

// Open connects, verifies the connection and applies pending migrations.
// The caller owns the returned handle and must Close it.
func Open(ctx context.Context, driver, dsn string) (*DB, error) {
	dialect, driverName, err := DialectFor(driver)
	if err != nil {
		return nil, err
	}

	raw, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}
	raw.SetConnMaxIdleTime(5 * time.Minute)

	db := New(raw, dialect)
	if err := db.PingContext(ctx); err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := db.Migrate(ctx); err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return db, nil
}

func (db *DB) Migrate(ctx context.Context) error {
	return db.Dialect.Migrate(ctx, db.DB)
}
