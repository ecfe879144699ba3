// Package bootstrap wires configuration into the services shared by the API
// server and the CLI.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/jmanzanog/stock-screener/internal/application"
	"github.com/jmanzanog/stock-screener/internal/domain"
	"github.com/jmanzanog/stock-screener/internal/infrastructure/config"
	"github.com/jmanzanog/stock-screener/internal/infrastructure/marketdata"
	"github.com/jmanzanog/stock-screener/internal/infrastructure/marketdata/finnhub"
	"github.com/jmanzanog/stock-screener/internal/infrastructure/marketdata/twelvedata"
	"github.com/jmanzanog/stock-screener/internal/infrastructure/marketdata/yfinance"
	"github.com/jmanzanog/stock-screener/internal/infrastructure/metrics"
	"github.com/jmanzanog/stock-screener/internal/infrastructure/persistence/memory"
	"github.com/jmanzanog/stock-screener/internal/infrastructure/persistence/redisstore"
	"github.com/jmanzanog/stock-screener/internal/infrastructure/persistence/sqldb"
	"github.com/jmanzanog/stock-screener/internal/infrastructure/universe"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ParseLevel maps a LOG_LEVEL value to a slog level.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
}

// SetupLogger installs a text logger with source information as the slog
// default. When file is set, output is also written to a rotating log file;
// the returned closer releases it.
func SetupLogger(level, file string) (*slog.Logger, io.Closer, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, nil, err
	}

	var out io.Writer = os.Stdout
	var closer io.Closer = nopCloser{}
	if file != "" {
		rotating := &lumberjack.Logger{
			Filename:   file,
			MaxSize:    100, // MB
			MaxAge:     14,  // days
			MaxBackups: 10,
			Compress:   true,
		}
		out = io.MultiWriter(os.Stdout, rotating)
		closer = rotating
	}

	opts := &slog.HandlerOptions{
		AddSource: true,
		Level:     lvl,
	}
	logger := slog.New(slog.NewTextHandler(out, opts))
	slog.SetDefault(logger)
	return logger, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// NewProvider creates the market data client selected by configuration.
func NewProvider(cfg *config.Config) marketdata.FundamentalsProvider {
	switch cfg.MarketDataProvider {
	case config.MarketDataProviderFinnhub:
		return finnhub.NewClient(cfg.FinnhubAPIKey)
	case config.MarketDataProviderTwelveData:
		return twelvedata.NewClient(cfg.TwelveDataAPIKey)
	default:
		if cfg.YFinanceBaseURL != "" {
			return yfinance.NewClientWithBaseURL(cfg.YFinanceBaseURL)
		}
		return yfinance.NewClient()
	}
}

// OpenRepository connects, pings and migrates the configured store.
func OpenRepository(ctx context.Context, cfg *config.Config) (domain.InstrumentRepository, func() error, error) {
	if cfg.DBDriver == config.DBDriverMemory {
		return memory.NewInstrumentRepository(), func() error { return nil }, nil
	}

	db, err := sqldb.Open(ctx, cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("database initialization failed: %w", err)
	}
	return sqldb.NewRepository(db), db.Close, nil
}

// NewStatusStore returns the refresh status backend. The Redis store is
// pinged before use.
func NewStatusStore(ctx context.Context, cfg *config.Config) (application.StatusStore, func() error, error) {
	if cfg.StatusStore != config.StatusStoreRedis {
		return memory.NewStatusStore(), func() error { return nil }, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	store := redisstore.NewStatusStore(client)
	if err := store.Ping(ctx); err != nil {
		_ = store.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
	}
	return store, store.Close, nil
}

// LoadUniverse reads UNIVERSE_FILE, falling back to the embedded list.
func LoadUniverse(cfg *config.Config) (domain.Universe, error) {
	if cfg.UniverseFile == "" {
		return universe.Default()
	}
	return universe.Load(cfg.UniverseFile)
}

func RefreshConfig(cfg *config.Config) application.RefreshConfig {
	return application.RefreshConfig{
		Markets:         cfg.Markets,
		MinDelay:        cfg.RefreshDelay,
		FetchTimeout:    cfg.FetchTimeout,
		MaxRetries:      cfg.FetchMaxRetries,
		RetryBackoff:    cfg.FetchRetryBackoff,
		ParallelMarkets: cfg.RefreshParallelMarkets,
	}
}

// Services is the assembled application graph.
type Services struct {
	Config       *config.Config
	Repository   domain.InstrumentRepository
	Screening    *application.ScreeningService
	Orchestrator *application.RefreshOrchestrator
	Tracker      *application.RefreshTracker
	Status       *application.StatusService
	Metrics      *metrics.Metrics
	Registry     *prometheus.Registry

	closers []func() error
}

// Options overrides parts of the graph, mainly for tests.
type Options struct {
	Provider   marketdata.FundamentalsProvider
	Repository domain.InstrumentRepository
	Registry   *prometheus.Registry
}

func Build(ctx context.Context, cfg *config.Config, opts Options) (*Services, error) {
	s := &Services{Config: cfg}

	repo := opts.Repository
	if repo == nil {
		var closeRepo func() error
		var err error
		repo, closeRepo, err = OpenRepository(ctx, cfg)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, closeRepo)
	}
	s.Repository = repo

	store, closeStore, err := NewStatusStore(ctx, cfg)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	s.closers = append(s.closers, closeStore)

	u, err := LoadUniverse(cfg)
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to load universe: %w", err)
	}

	provider := opts.Provider
	if provider == nil {
		provider = NewProvider(cfg)
	}

	s.Registry = opts.Registry
	if s.Registry == nil {
		s.Registry = metrics.NewRegistry()
	}
	s.Metrics = metrics.New(s.Registry)

	s.Tracker = application.NewRefreshTracker(store)
	s.Screening = application.NewScreeningService(repo, cfg.Markets)
	s.Status = application.NewStatusService(s.Tracker, s.Screening)
	s.Orchestrator = application.NewRefreshOrchestrator(provider, repo, universe.NewSource(u), s.Tracker,
		RefreshConfig(cfg), application.WithObserver(s.Metrics))

	slog.InfoContext(ctx, "Services initialized",
		"db_driver", cfg.DBDriver,
		"provider", cfg.MarketDataProvider,
		"status_store", cfg.StatusStore,
		"markets", cfg.Markets,
	)
	return s, nil
}

// Close releases stores in reverse order of acquisition.
func (s *Services) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
