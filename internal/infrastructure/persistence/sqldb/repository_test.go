package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmanzanog/stock-screener/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

var rowColumns = []string{"symbol", "name", "market", "sector", "market_cap", "price", "per", "pbr", "roe", "dividend_yield", "currency", "last_updated"}

func newMockRepository(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})
	return NewRepository(New(db, &PostgresDialect{})), mock
}

func TestRepository_Find_RendersQuery(t *testing.T) {
	repo, mock := newMockRepository(t)
	now := time.Now().UTC()

	q := domain.Query{
		Predicate: domain.NewPredicateBuilder().
			Equal(domain.FieldMarket, "JP").
			Range(domain.FieldPrice, domain.Range{Min: dec("100")}).
			Build(),
		Sort:   domain.Sort{Field: domain.FieldPrice, Direction: domain.SortDesc},
		Offset: 50,
		Limit:  50,
	}

	expected := regexp.QuoteMeta("SELECT " + instrumentColumns + " FROM instruments WHERE market = $1 AND price >= $2 ORDER BY price DESC NULLS LAST, symbol ASC LIMIT 50 OFFSET 50")
	mock.ExpectQuery(expected).
		WithArgs("JP", "100").
		WillReturnRows(sqlmock.NewRows(rowColumns).
			AddRow("7203", "Toyota Motor Corp", "JP", "Automotive", nil, "2850.5", "9.8", nil, nil, "2.85", "JPY", now).
			AddRow("6758", "Sony Group Corp", "JP", nil, nil, "130.0", nil, nil, nil, nil, "JPY", now))

	got, err := repo.Find(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "7203", got[0].Symbol)
	assert.Equal(t, "Automotive", *got[0].Sector)
	assert.Nil(t, got[0].MarketCap)
	assert.Equal(t, "2850.5", got[0].Price.String())
	assert.Equal(t, "2.85", got[0].DividendYield.String())
	assert.Nil(t, got[1].Sector)
	assert.Nil(t, got[1].PERatio)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_Find_RejectsNegativeOffset(t *testing.T) {
	repo, mock := newMockRepository(t)

	_, err := repo.Find(context.Background(), domain.Query{Offset: -100, Limit: 50})

	assert.ErrorIs(t, err, domain.ErrInvalidQuery)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_Count(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM instruments WHERE market = $1 AND sector IN ($2, $3)")).
		WithArgs("JP", "Automotive", "Banking").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))

	p := domain.NewPredicateBuilder().
		Equal(domain.FieldMarket, "JP").
		In(domain.FieldSector, []string{"Automotive", "Banking"}).
		Build()

	count, err := repo.Count(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, 12, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_Count_Error(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectQuery("SELECT COUNT").WillReturnError(sql.ErrConnDone)

	_, err := repo.Count(context.Background(), domain.Predicate{})
	assert.ErrorIs(t, err, sql.ErrConnDone)
}

func TestRepository_FindBySymbol_NotFound(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectQuery("SELECT .* FROM instruments WHERE symbol = \\$1").
		WithArgs("XXXX").
		WillReturnRows(sqlmock.NewRows(rowColumns))

	_, found, err := repo.FindBySymbol(context.Background(), "XXXX")
	assert.NoError(t, err)
	assert.False(t, found)
}

func TestRepository_LastUpdated_Empty(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT MAX(last_updated) FROM instruments WHERE market = $1")).
		WithArgs("US").
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(nil))

	market := domain.MarketUS
	last, err := repo.LastUpdated(context.Background(), &market)
	assert.NoError(t, err)
	assert.Nil(t, last)
}

func TestRepository_CountByMarket(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectQuery("SELECT market, COUNT\\(\\*\\) FROM instruments GROUP BY market").
		WillReturnRows(sqlmock.NewRows([]string{"market", "count"}).AddRow("JP", 3).AddRow("US", 5))

	counts, err := repo.CountByMarket(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[domain.Market]int{domain.MarketJP: 3, domain.MarketUS: 5}, counts)
}

// --- Integration tests (testcontainers) ---

func setupTestDB(t *testing.T) *DB {
	if testing.Short() {
		t.Skip("skipping database integration test in short mode")
	}
	dbType := os.Getenv("TEST_DB")
	if dbType == "oracle" {
		return setupOracle(t)
	}
	return setupPostgres(t)
}

func setupPostgres(t *testing.T) *DB {
	ctx := context.Background()
	pgContainer, err := postgres.Run(ctx,
		"postgres:17-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %s", err)
	}
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %s", err)
	}

	db, err := Open(ctx, DriverPostgres, connStr)
	if err != nil {
		t.Fatalf("failed to open db: %s", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}

func setupOracle(t *testing.T) *DB {
	ctx := context.Background()
	req := testcontainers.ContainerRequest{
		Image:        "gvenzl/oracle-free:23.3-slim-faststart",
		ExposedPorts: []string{"1521/tcp"},
		Env:          map[string]string{"ORACLE_PASSWORD": "password"},
		WaitingFor:   wait.ForLog("DATABASE IS READY TO USE").WithStartupTimeout(120 * time.Second),
	}

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("failed to start oracle container: %s", err)
	}
	t.Cleanup(func() {
		_ = c.Terminate(ctx)
	})

	port, err := c.MappedPort(ctx, "1521")
	if err != nil {
		t.Fatalf("failed to get port: %v", err)
	}
	host, err := c.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get host: %v", err)
	}

	dsn := fmt.Sprintf("oracle://system:password@%s:%s/FREE", host, port.Port())
	db, err := Open(ctx, DriverOracle, dsn)
	if err != nil {
		t.Fatalf("failed to open db: %s", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}

func seedInstrument(symbol string, market domain.Market, sector string, price string) *domain.Instrument {
	inst := &domain.Instrument{
		Symbol:      symbol,
		DisplayName: symbol + " Corp",
		Market:      market,
		Sector:      domain.StringPtr(sector),
		Currency:    market.Currency(),
		LastUpdated: time.Now().UTC().Truncate(time.Second),
	}
	if price != "" {
		inst.Price = dec(price)
	}
	return inst
}

func TestRepository_Upsert_Idempotent(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	first := seedInstrument("7203", domain.MarketJP, "Automotive", "2850.5")
	second := seedInstrument("7203", domain.MarketJP, "Automotive", "2850.5")
	second.LastUpdated = first.LastUpdated.Add(24 * time.Hour)
	require.NoError(t, repo.Upsert(ctx, first))
	require.NoError(t, repo.Upsert(ctx, second))

	count, err := repo.Count(ctx, domain.Predicate{})
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	found, ok, err := repo.FindBySymbol(ctx, "7203")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, found.Price.Equal(*dec("2850.5")))
	assert.True(t, found.LastUpdated.Equal(second.LastUpdated),
		"expected lastUpdated %v, got %v", second.LastUpdated, found.LastUpdated)
}

func TestRepository_Upsert_KeepsAbsentFundamentals(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	first := seedInstrument("7267", domain.MarketJP, "Automotive", "1450")
	first.PERatio = dec("8.1")
	require.NoError(t, repo.Upsert(ctx, first))

	second := seedInstrument("7267", domain.MarketUS, "", "1500")
	require.NoError(t, repo.Upsert(ctx, second))

	found, ok, err := repo.FindBySymbol(ctx, "7267")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.MarketJP, found.Market)
	assert.True(t, found.Price.Equal(*dec("1500")))
	require.NotNil(t, found.PERatio)
	assert.True(t, found.PERatio.Equal(*dec("8.1")))
	require.NotNil(t, found.Sector)
	assert.Equal(t, "Automotive", *found.Sector)
}

func TestRepository_Screen_AutomotivePriceWindow(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, seedInstrument("A1", domain.MarketJP, "Automotive", "100")))
	require.NoError(t, repo.Upsert(ctx, seedInstrument("A2", domain.MarketJP, "Automotive", "300")))
	require.NoError(t, repo.Upsert(ctx, seedInstrument("A3", domain.MarketJP, "Automotive", "200")))
	require.NoError(t, repo.Upsert(ctx, seedInstrument("B1", domain.MarketJP, "Banking", "150")))
	require.NoError(t, repo.Upsert(ctx, seedInstrument("U1", domain.MarketUS, "Automotive", "150")))

	p := domain.NewPredicateBuilder().
		Equal(domain.FieldMarket, "JP").
		Range(domain.FieldPrice, domain.Range{Min: dec("150"), Max: dec("250")}).
		In(domain.FieldSector, []string{"Automotive"}).
		Build()

	count, err := repo.Count(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	got, err := repo.Find(ctx, domain.Query{Predicate: p, Sort: domain.DefaultSort(), Limit: 50})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "A3", got[0].Symbol)
}

func TestRepository_Find_NullsLastWithTieBreak(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, seedInstrument("C", domain.MarketUS, "Tech", "10")))
	require.NoError(t, repo.Upsert(ctx, seedInstrument("A", domain.MarketUS, "Tech", "")))
	require.NoError(t, repo.Upsert(ctx, seedInstrument("B", domain.MarketUS, "Tech", "10")))
	require.NoError(t, repo.Upsert(ctx, seedInstrument("D", domain.MarketUS, "Tech", "20")))

	for _, dir := range []domain.SortDirection{domain.SortAsc, domain.SortDesc} {
		got, err := repo.Find(ctx, domain.Query{Sort: domain.Sort{Field: domain.FieldPrice, Direction: dir}, Limit: 10})
		require.NoError(t, err)

		symbols := make([]string, len(got))
		for i, inst := range got {
			symbols[i] = inst.Symbol
		}
		if dir == domain.SortAsc {
			assert.Equal(t, []string{"B", "C", "D", "A"}, symbols)
		} else {
			assert.Equal(t, []string{"D", "B", "C", "A"}, symbols)
		}
	}
}

func TestRepository_SectorsAndFreshness(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, seedInstrument("8306", domain.MarketJP, "Banking", "1200")))
	require.NoError(t, repo.Upsert(ctx, seedInstrument("7203", domain.MarketJP, "Automotive", "2850")))
	require.NoError(t, repo.Upsert(ctx, seedInstrument("9999", domain.MarketJP, "", "10")))

	sectors, err := repo.Sectors(ctx, domain.MarketJP)
	require.NoError(t, err)
	assert.Equal(t, []string{"Automotive", "Banking"}, sectors)

	counts, err := repo.CountByMarket(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, counts[domain.MarketJP])

	market := domain.MarketJP
	last, err := repo.LastUpdated(ctx, &market)
	require.NoError(t, err)
	assert.NotNil(t, last)

	market = domain.MarketUS
	last, err = repo.LastUpdated(ctx, &market)
	require.NoError(t, err)
	assert.Nil(t, last)
}
