package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jmanzanog/stock-screener/internal/domain"
)

const (
	MarketDataProviderYFinance   = "yfinance"
	MarketDataProviderFinnhub    = "finnhub"
	MarketDataProviderTwelveData = "twelvedata"

	DBDriverPostgres = "postgres"
	DBDriverOracle   = "oracle"
	DBDriverMemory   = "memory"

	StatusStoreMemory = "memory"
	StatusStoreRedis  = "redis"
)

var (
	ErrMissingVariable = errors.New("required environment variable is not set")
	ErrInvalidVariable = errors.New("invalid environment variable")
)

type Config struct {
	ServerHost string
	ServerPort string

	LogLevel string
	LogFile  string

	DBDriver string
	DBDSN    string

	MarketDataProvider string
	FinnhubAPIKey      string
	TwelveDataAPIKey   string
	YFinanceBaseURL    string

	Markets                []domain.Market
	UniverseFile           string
	RefreshInterval        time.Duration
	RefreshDelay           time.Duration
	FetchTimeout           time.Duration
	FetchMaxRetries        int
	FetchRetryBackoff      time.Duration
	RefreshParallelMarkets bool

	StatusStore   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Requests per minute per client IP.
	ScreenRateLimit  int
	RefreshRateLimit int
}

func Load() (*Config, error) {
	cfg := &Config{
		ServerHost:         getEnvOrDefault("SERVER_HOST", "localhost"),
		ServerPort:         getEnvOrDefault("SERVER_PORT", "8080"),
		LogLevel:           getEnvOrDefault("LOG_LEVEL", "info"),
		LogFile:            os.Getenv("LOG_FILE"),
		DBDriver:           getEnvOrDefault("DB_DRIVER", DBDriverPostgres),
		DBDSN:              os.Getenv("DB_DSN"),
		MarketDataProvider: getEnvOrDefault("MARKET_DATA_PROVIDER", MarketDataProviderYFinance),
		FinnhubAPIKey:      os.Getenv("FINNHUB_API_KEY"),
		TwelveDataAPIKey:   os.Getenv("TWELVE_DATA_API_KEY"),
		YFinanceBaseURL:    os.Getenv("YFINANCE_BASE_URL"),
		UniverseFile:       os.Getenv("UNIVERSE_FILE"),
		StatusStore:        getEnvOrDefault("STATUS_STORE", StatusStoreMemory),
		RedisAddr:          getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
	}

	switch cfg.DBDriver {
	case DBDriverPostgres, DBDriverOracle:
		if cfg.DBDSN == "" {
			return nil, fmt.Errorf("%w: DB_DSN environment variable is required for the %s driver", ErrMissingVariable, cfg.DBDriver)
		}
	case DBDriverMemory:
	default:
		return nil, fmt.Errorf("%w: unsupported DB_DRIVER %q", ErrInvalidVariable, cfg.DBDriver)
	}

	switch cfg.MarketDataProvider {
	case MarketDataProviderYFinance:
	case MarketDataProviderFinnhub:
		if cfg.FinnhubAPIKey == "" {
			return nil, fmt.Errorf("%w: FINNHUB_API_KEY environment variable is required for finnhub provider", ErrMissingVariable)
		}
	case MarketDataProviderTwelveData:
		if cfg.TwelveDataAPIKey == "" {
			return nil, fmt.Errorf("%w: TWELVE_DATA_API_KEY environment variable is required for twelvedata provider", ErrMissingVariable)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported MARKET_DATA_PROVIDER %q", ErrInvalidVariable, cfg.MarketDataProvider)
	}

	switch cfg.StatusStore {
	case StatusStoreMemory, StatusStoreRedis:
	default:
		return nil, fmt.Errorf("%w: unsupported STATUS_STORE %q", ErrInvalidVariable, cfg.StatusStore)
	}

	var err error
	if cfg.Markets, err = parseMarkets("MARKETS", getEnvOrDefault("MARKETS", "JP,US")); err != nil {
		return nil, err
	}
	if cfg.RefreshInterval, err = parseDuration("REFRESH_INTERVAL", "24h"); err != nil {
		return nil, err
	}
	if cfg.RefreshDelay, err = parseDuration("REFRESH_DELAY", "1500ms"); err != nil {
		return nil, err
	}
	if cfg.FetchTimeout, err = parseDuration("FETCH_TIMEOUT", "10s"); err != nil {
		return nil, err
	}
	if cfg.FetchRetryBackoff, err = parseDuration("FETCH_RETRY_BACKOFF", "2s"); err != nil {
		return nil, err
	}
	if cfg.FetchMaxRetries, err = parseInt("FETCH_MAX_RETRIES", "2", 0); err != nil {
		return nil, err
	}
	if cfg.RedisDB, err = parseInt("REDIS_DB", "0", 0); err != nil {
		return nil, err
	}
	if cfg.ScreenRateLimit, err = parseInt("SCREEN_RATE_LIMIT", "60", 1); err != nil {
		return nil, err
	}
	if cfg.RefreshRateLimit, err = parseInt("REFRESH_RATE_LIMIT", "5", 1); err != nil {
		return nil, err
	}

	parallel := getEnvOrDefault("REFRESH_PARALLEL_MARKETS", "false")
	if cfg.RefreshParallelMarkets, err = strconv.ParseBool(parallel); err != nil {
		return nil, fmt.Errorf("%w: REFRESH_PARALLEL_MARKETS %q: %v", ErrInvalidVariable, parallel, err)
	}

	return cfg, nil
}

// Addr is the host:port the HTTP server listens on.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%s", c.ServerHost, c.ServerPort)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDuration(key, defaultValue string) (time.Duration, error) {
	raw := getEnvOrDefault(key, defaultValue)
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q: %v", ErrInvalidVariable, key, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%w: %s must not be negative", ErrInvalidVariable, key)
	}
	return d, nil
}

func parseInt(key, defaultValue string, floor int) (int, error) {
	raw := getEnvOrDefault(key, defaultValue)
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q: %v", ErrInvalidVariable, key, raw, err)
	}
	if n < floor {
		return 0, fmt.Errorf("%w: %s must be at least %d", ErrInvalidVariable, key, floor)
	}
	return n, nil
}

func parseMarkets(key, raw string) ([]domain.Market, error) {
	var markets []domain.Market
	for _, part := range strings.Split(raw, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		m, err := domain.ParseMarket(part)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidVariable, key, err)
		}
		if !containsMarket(markets, m) {
			markets = append(markets, m)
		}
	}
	if len(markets) == 0 {
		return nil, fmt.Errorf("%w: %s must name at least one market", ErrInvalidVariable, key)
	}
	return markets, nil
}

func containsMarket(markets []domain.Market, m domain.Market) bool {
	for _, existing := range markets {
		if existing == m {
			return true
		}
	}
	return false
}
