package bootstrap

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/jmanzanog/stock-screener/internal/domain"
	"github.com/jmanzanog/stock-screener/internal/infrastructure/config"
	"github.com/jmanzanog/stock-screener/internal/infrastructure/marketdata/finnhub"
	"github.com/jmanzanog/stock-screener/internal/infrastructure/marketdata/twelvedata"
	"github.com/jmanzanog/stock-screener/internal/infrastructure/marketdata/yfinance"
	"github.com/jmanzanog/stock-screener/internal/infrastructure/persistence/memory"
	"github.com/jmanzanog/stock-screener/internal/infrastructure/persistence/redisstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memoryConfig() *config.Config {
	return &config.Config{
		DBDriver:           config.DBDriverMemory,
		MarketDataProvider: config.MarketDataProviderYFinance,
		StatusStore:        config.StatusStoreMemory,
		Markets:            domain.Markets(),
		FetchMaxRetries:    2,
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input       string
		expected    slog.Level
		expectError bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"warn", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			level, err := ParseLevel(tt.input)
			if tt.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, level)
		})
	}
}

func TestSetupLogger_WritesToFile(t *testing.T) {
	original := slog.Default()
	defer slog.SetDefault(original)

	path := filepath.Join(t.TempDir(), "screener.log")
	logger, closer, err := SetupLogger("debug", path)
	require.NoError(t, err)
	assert.Same(t, logger, slog.Default())

	logger.Debug("refresh started", "market", "JP")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "refresh started")
	assert.Contains(t, string(data), "market=JP")
}

func TestSetupLogger_InvalidLevel(t *testing.T) {
	_, _, err := SetupLogger("loud", "")
	assert.Error(t, err)
}

func TestNewProvider(t *testing.T) {
	cfg := memoryConfig()
	assert.IsType(t, &yfinance.Client{}, NewProvider(cfg))

	cfg.YFinanceBaseURL = "http://market-data:8000"
	assert.IsType(t, &yfinance.Client{}, NewProvider(cfg))

	cfg.MarketDataProvider = config.MarketDataProviderFinnhub
	assert.IsType(t, &finnhub.Client{}, NewProvider(cfg))

	cfg.MarketDataProvider = config.MarketDataProviderTwelveData
	assert.IsType(t, &twelvedata.Client{}, NewProvider(cfg))
}

func TestOpenRepository_Memory(t *testing.T) {
	repo, closeRepo, err := OpenRepository(context.Background(), memoryConfig())

	require.NoError(t, err)
	assert.IsType(t, &memory.InstrumentRepository{}, repo)
	assert.NoError(t, closeRepo())
}

func TestOpenRepository_UnsupportedDriver(t *testing.T) {
	cfg := memoryConfig()
	cfg.DBDriver = "mysql"
	cfg.DBDSN = "some-connection-string"

	repo, _, err := OpenRepository(context.Background(), cfg)

	assert.Error(t, err)
	assert.Nil(t, repo)
}

func TestNewStatusStore_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := memoryConfig()
	cfg.StatusStore = config.StatusStoreRedis
	cfg.RedisAddr = mr.Addr()

	store, closeStore, err := NewStatusStore(context.Background(), cfg)

	require.NoError(t, err)
	assert.IsType(t, &redisstore.StatusStore{}, store)
	assert.NoError(t, closeStore())
}

func TestNewStatusStore_RedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := memoryConfig()
	cfg.StatusStore = config.StatusStoreRedis
	cfg.RedisAddr = addr

	_, _, err := NewStatusStore(context.Background(), cfg)
	assert.Error(t, err)
}

func TestLoadUniverse(t *testing.T) {
	u, err := LoadUniverse(memoryConfig())
	require.NoError(t, err)
	assert.NotEmpty(t, u[domain.MarketJP])

	cfg := memoryConfig()
	cfg.UniverseFile = filepath.Join(t.TempDir(), "missing.yaml")
	_, err = LoadUniverse(cfg)
	assert.Error(t, err)
}

func TestBuild_Memory(t *testing.T) {
	services, err := Build(context.Background(), memoryConfig(), Options{})
	require.NoError(t, err)
	defer func() { assert.NoError(t, services.Close()) }()

	assert.NotNil(t, services.Screening)
	assert.NotNil(t, services.Orchestrator)
	assert.NotNil(t, services.Status)
	assert.Equal(t, domain.Markets(), services.Orchestrator.Markets())

	report, err := services.Status.Report(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Freshness.Total)
}
