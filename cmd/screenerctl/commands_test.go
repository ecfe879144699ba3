package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/subcommands"
	"github.com/jmanzanog/stock-screener/internal/bootstrap"
	"github.com/jmanzanog/stock-screener/internal/domain"
	"github.com/jmanzanog/stock-screener/internal/infrastructure/config"
	"github.com/jmanzanog/stock-screener/internal/infrastructure/marketdata"
	"github.com/jmanzanog/stock-screener/internal/infrastructure/persistence/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testUniverse = `markets:
  JP:
    - {symbol: "7203", name: "Toyota Motor Corp", sector: "Automotive"}
    - {symbol: "6758", name: "Sony Group Corp", sector: "Technology"}
  US:
    - {symbol: "AAPL", name: "Apple Inc", sector: "Technology"}
`

type stubProvider struct {
	fail map[string]bool
}

func (p *stubProvider) FetchFundamentals(ctx context.Context, symbol string, market domain.Market) (*marketdata.Fundamentals, error) {
	if p.fail[symbol] {
		return nil, marketdata.NotFound(symbol, errors.New("no such ticker"))
	}
	price := domain.NewDecimalFromInt(1000)
	per := domain.NewDecimalFromInt(12)
	return &marketdata.Fundamentals{Symbol: symbol, Price: &price, PERatio: &per}, nil
}

type testEnv struct {
	*env
	stdout *bytes.Buffer
	stderr *bytes.Buffer
	repo   *memory.InstrumentRepository
}

func newTestEnv(t *testing.T, provider marketdata.FundamentalsProvider) *testEnv {
	t.Helper()
	path := filepath.Join(t.TempDir(), "universe.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testUniverse), 0o600))

	cfg := &config.Config{
		DBDriver:           config.DBDriverMemory,
		MarketDataProvider: config.MarketDataProviderYFinance,
		StatusStore:        config.StatusStoreMemory,
		Markets:            domain.Markets(),
		UniverseFile:       path,
		FetchTimeout:       time.Second,
		FetchRetryBackoff:  time.Millisecond,
	}

	te := &testEnv{
		stdout: &bytes.Buffer{},
		stderr: &bytes.Buffer{},
		repo:   memory.NewInstrumentRepository(),
	}
	te.env = &env{
		open: func(ctx context.Context) (*bootstrap.Services, error) {
			return bootstrap.Build(ctx, cfg, bootstrap.Options{Provider: provider, Repository: te.repo})
		},
		out: te.stdout,
		err: te.stderr,
	}
	return te
}

func execute(t *testing.T, c subcommands.Command, args ...string) subcommands.ExitStatus {
	t.Helper()
	f := flag.NewFlagSet(c.Name(), flag.ContinueOnError)
	c.SetFlags(f)
	require.NoError(t, f.Parse(args))
	return c.Execute(context.Background(), f)
}

func TestRefreshCmd(t *testing.T) {
	te := newTestEnv(t, &stubProvider{})

	status := execute(t, &refreshCmd{env: te.env}, "-market", "JP")

	assert.Equal(t, subcommands.ExitSuccess, status, te.stderr.String())
	out := te.stdout.String()
	assert.Contains(t, out, "JP: success (2/2 succeeded, 0 failed)")
	assert.Contains(t, out, "JP: 2 stocks stored")
	assert.Contains(t, out, "US: 0 stocks stored")

	counts, err := te.repo.CountByMarket(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, counts[domain.MarketJP])
	assert.Zero(t, counts[domain.MarketUS])
}

func TestRefreshCmd_AllMarketsPartial(t *testing.T) {
	te := newTestEnv(t, &stubProvider{fail: map[string]bool{"6758": true}})

	status := execute(t, &refreshCmd{env: te.env})

	assert.Equal(t, subcommands.ExitSuccess, status)
	out := te.stdout.String()
	assert.Contains(t, out, "JP: partial_success (1/2 succeeded, 1 failed)")
	assert.Contains(t, out, "  6758 [not_found]")
	assert.Contains(t, out, "US: success (1/1 succeeded, 0 failed)")
}

func TestRefreshCmd_FailureExitsNonZero(t *testing.T) {
	te := newTestEnv(t, &stubProvider{fail: map[string]bool{"AAPL": true}})

	status := execute(t, &refreshCmd{env: te.env}, "-market", "us")

	assert.Equal(t, subcommands.ExitFailure, status)
	assert.Contains(t, te.stdout.String(), "US: failure (0/1 succeeded, 1 failed)")
	assert.Contains(t, te.stderr.String(), errRefreshFailed.Error())
}

func TestRefreshCmd_InvalidMarket(t *testing.T) {
	te := newTestEnv(t, &stubProvider{})

	status := execute(t, &refreshCmd{env: te.env}, "-market", "EU")

	assert.Equal(t, subcommands.ExitUsageError, status)
	assert.Contains(t, te.stderr.String(), "market:")
}

func TestRefreshCmd_OpenFails(t *testing.T) {
	te := newTestEnv(t, &stubProvider{})
	te.open = func(ctx context.Context) (*bootstrap.Services, error) {
		return nil, errors.New("database unreachable")
	}

	status := execute(t, &refreshCmd{env: te.env})

	assert.Equal(t, subcommands.ExitFailure, status)
	assert.Contains(t, te.stderr.String(), "database unreachable")
}

func TestSeedCmd(t *testing.T) {
	te := newTestEnv(t, &stubProvider{})

	require.Equal(t, subcommands.ExitSuccess, execute(t, &seedCmd{env: te.env}))
	assert.Equal(t, "seeded 3 symbols\n", te.stdout.String())

	te.stdout.Reset()
	require.Equal(t, subcommands.ExitSuccess, execute(t, &seedCmd{env: te.env}, "-market", "JP"))
	assert.Equal(t, "seeded 0 symbols\n", te.stdout.String())
}

func TestStatusCmd(t *testing.T) {
	te := newTestEnv(t, &stubProvider{})
	require.Equal(t, subcommands.ExitSuccess, execute(t, &refreshCmd{env: te.env}, "-market", "JP"))
	te.stdout.Reset()

	status := execute(t, &statusCmd{env: te.env})

	assert.Equal(t, subcommands.ExitSuccess, status, te.stderr.String())
	out := te.stdout.String()
	assert.Contains(t, out, "MARKET")
	assert.Regexp(t, `JP\s+2\s+\d{4}-`, out)
	assert.Regexp(t, `US\s+0\s+never`, out)
	assert.Regexp(t, `TOTAL\s+2`, out)
}

func TestStatusCmd_JSON(t *testing.T) {
	te := newTestEnv(t, &stubProvider{})

	require.Equal(t, subcommands.ExitSuccess, execute(t, &statusCmd{env: te.env}, "-json"))

	var report struct {
		Freshness struct {
			Total int `json:"total"`
		} `json:"freshness"`
	}
	require.NoError(t, json.Unmarshal(te.stdout.Bytes(), &report))
	assert.Equal(t, 0, report.Freshness.Total)
}

func TestScreenCmd(t *testing.T) {
	te := newTestEnv(t, &stubProvider{})
	require.Equal(t, subcommands.ExitSuccess, execute(t, &refreshCmd{env: te.env}))
	te.stdout.Reset()

	status := execute(t, &screenCmd{env: te.env}, "market=JP&sortBy=symbol&sortOrder=asc")

	require.Equal(t, subcommands.ExitSuccess, status, te.stderr.String())
	var result struct {
		Stocks []struct {
			Symbol string `json:"symbol"`
		} `json:"stocks"`
		TotalCount int `json:"totalCount"`
	}
	require.NoError(t, json.Unmarshal(te.stdout.Bytes(), &result))
	assert.Equal(t, 2, result.TotalCount)
	require.Len(t, result.Stocks, 2)
	assert.Equal(t, "6758", result.Stocks[0].Symbol)
	assert.Equal(t, "7203", result.Stocks[1].Symbol)
}

func TestScreenCmd_Usage(t *testing.T) {
	te := newTestEnv(t, &stubProvider{})

	assert.Equal(t, subcommands.ExitUsageError, execute(t, &screenCmd{env: te.env}))
	assert.Contains(t, te.stderr.String(), "screenerctl screen <query>")
}

func TestScreenCmd_ValidationError(t *testing.T) {
	te := newTestEnv(t, &stubProvider{})

	status := execute(t, &screenCmd{env: te.env}, "market=JP&pageSize=500")

	assert.Equal(t, subcommands.ExitUsageError, status)
	assert.Contains(t, te.stderr.String(), "pageSize:")
}
