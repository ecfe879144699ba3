package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jmanzanog/stock-screener/internal/domain"
	"github.com/jmanzanog/stock-screener/internal/infrastructure/marketdata"
	"github.com/sourcegraph/conc"
)

var ErrRefreshInProgress = errors.New("refresh already in progress for market")

// kindStore labels symbols whose fetch succeeded but whose write failed.
const kindStore = "store"

// UniverseSource lists the symbols to refresh for a market.
type UniverseSource interface {
	Entries(ctx context.Context, market domain.Market) ([]domain.UniverseEntry, error)
}

// RefreshObserver receives per-symbol results and finished batches.
type RefreshObserver interface {
	ObserveSymbol(market domain.Market, result string)
	ObserveBatch(outcome *domain.BatchOutcome)
}

type RefreshConfig struct {
	Markets         []domain.Market
	MinDelay        time.Duration
	FetchTimeout    time.Duration
	MaxRetries      int
	RetryBackoff    time.Duration
	ParallelMarkets bool
}

func DefaultRefreshConfig() RefreshConfig {
	return RefreshConfig{
		Markets:      domain.Markets(),
		MinDelay:     1500 * time.Millisecond,
		FetchTimeout: 10 * time.Second,
		MaxRetries:   2,
		RetryBackoff: 2 * time.Second,
	}
}

type OrchestratorOption func(*RefreshOrchestrator)

func WithClock(c Clock) OrchestratorOption {
	return func(o *RefreshOrchestrator) {
		o.clock = c
	}
}

func WithObserver(obs RefreshObserver) OrchestratorOption {
	return func(o *RefreshOrchestrator) {
		o.observer = obs
	}
}

// RefreshOrchestrator pulls fundamentals for every universe symbol of a
// market and upserts them one at a time.
type RefreshOrchestrator struct {
	provider marketdata.FundamentalsProvider
	repo     domain.InstrumentRepository
	universe UniverseSource
	tracker  *RefreshTracker
	observer RefreshObserver
	clock    Clock
	cfg      RefreshConfig

	pacers map[domain.Market]*Pacer
	guards map[domain.Market]*sync.Mutex
}

func NewRefreshOrchestrator(
	provider marketdata.FundamentalsProvider,
	repo domain.InstrumentRepository,
	universe UniverseSource,
	tracker *RefreshTracker,
	cfg RefreshConfig,
	opts ...OrchestratorOption,
) *RefreshOrchestrator {
	if len(cfg.Markets) == 0 {
		cfg.Markets = domain.Markets()
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultRefreshConfig().FetchTimeout
	}

	o := &RefreshOrchestrator{
		provider: provider,
		repo:     repo,
		universe: universe,
		tracker:  tracker,
		clock:    SystemClock(),
		cfg:      cfg,
		pacers:   make(map[domain.Market]*Pacer),
		guards:   make(map[domain.Market]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(o)
	}
	for _, m := range domain.Markets() {
		o.pacers[m] = NewPacer(cfg.MinDelay, o.clock)
		o.guards[m] = &sync.Mutex{}
	}
	return o
}

// Markets returns the markets RefreshAll covers.
func (o *RefreshOrchestrator) Markets() []domain.Market {
	return append([]domain.Market(nil), o.cfg.Markets...)
}

// RefreshMarket runs one batch over the market's universe. On cancellation
// it returns the partial outcome with ctx.Err(); rows already written stay.
func (o *RefreshOrchestrator) RefreshMarket(ctx context.Context, market domain.Market) (*domain.BatchOutcome, error) {
	guard, ok := o.guards[market]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidMarket, market)
	}
	if !guard.TryLock() {
		return nil, fmt.Errorf("%w: %s", ErrRefreshInProgress, market)
	}
	defer guard.Unlock()

	entries, err := o.universe.Entries(ctx, market)
	if err != nil {
		return nil, fmt.Errorf("failed to load universe for %s: %w", market, err)
	}

	outcome := domain.NewBatchOutcome(market, len(entries), o.clock.Now())
	o.tracker.begin(ctx, market)
	slog.InfoContext(ctx, "Refresh started", "market", market, "symbols", len(entries), "run_id", outcome.RunID)

	for _, entry := range entries {
		if ctx.Err() != nil {
			break
		}
		o.refreshSymbol(ctx, market, entry, outcome)
	}

	outcome.Finalize(o.clock.Now())
	o.tracker.finish(context.WithoutCancel(ctx), outcome)
	if o.observer != nil {
		o.observer.ObserveBatch(outcome)
	}

	slog.InfoContext(ctx, "Refresh finished",
		"market", market,
		"run_id", outcome.RunID,
		"status", outcome.Status,
		"success", outcome.SuccessCount,
		"failed", outcome.FailureCount,
		"total", outcome.TotalRequested,
		"duration", outcome.FinishedAt.Sub(outcome.StartedAt),
	)
	return outcome, ctx.Err()
}

func (o *RefreshOrchestrator) refreshSymbol(ctx context.Context, market domain.Market, entry domain.UniverseEntry, outcome *domain.BatchOutcome) {
	f, err := o.fetchWithRetry(ctx, market, entry.Symbol)
	if err != nil {
		if ctx.Err() != nil {
			// Cancelled mid-symbol: the symbol is not counted.
			return
		}
		kind := string(marketdata.KindOf(err))
		o.recordFailure(ctx, market, entry.Symbol, kind, err, outcome)
		return
	}

	inst := buildInstrument(market, entry, f, o.clock.Now())
	if err := o.repo.Upsert(ctx, inst); err != nil {
		o.recordFailure(ctx, market, entry.Symbol, kindStore, err, outcome)
		return
	}

	outcome.RecordSuccess()
	if o.observer != nil {
		o.observer.ObserveSymbol(market, "success")
	}
	slog.DebugContext(ctx, "Refreshed symbol", "market", market, "symbol", entry.Symbol)
}

func (o *RefreshOrchestrator) recordFailure(ctx context.Context, market domain.Market, symbol, kind string, err error, outcome *domain.BatchOutcome) {
	outcome.RecordFailure(symbol, kind, err)
	if o.observer != nil {
		o.observer.ObserveSymbol(market, kind)
	}
	slog.WarnContext(ctx, "Failed to refresh symbol", "market", market, "symbol", symbol, "kind", kind, "error", err)
}

// clockBackOff computes delays with the wrapped policy but leaves the
// waiting to the operation, which sleeps on the injected clock. Retry
// itself only ever sees a zero delay.
type clockBackOff struct {
	backoff.BackOff
	pending time.Duration
}

func (b *clockBackOff) NextBackOff() time.Duration {
	next := b.BackOff.NextBackOff()
	if next == backoff.Stop {
		return backoff.Stop
	}
	b.pending = next
	return 0
}

func (b *clockBackOff) Reset() {
	b.BackOff.Reset()
	b.pending = 0
}

// take returns the delay owed before the next attempt and clears it.
func (b *clockBackOff) take() time.Duration {
	d := b.pending
	b.pending = 0
	return d
}

// fetchWithRetry paces every attempt and retries transient failures with
// exponential backoff. Both waits go through the orchestrator's clock.
func (o *RefreshOrchestrator) fetchWithRetry(ctx context.Context, market domain.Market, symbol string) (*marketdata.Fundamentals, error) {
	pacer := o.pacers[market]

	exp := backoff.NewExponentialBackOff()
	if o.cfg.RetryBackoff > 0 {
		exp.InitialInterval = o.cfg.RetryBackoff
		exp.MaxInterval = max(exp.MaxInterval, o.cfg.RetryBackoff)
	}
	b := &clockBackOff{BackOff: exp}

	op := func() (*marketdata.Fundamentals, error) {
		if d := b.take(); d > 0 {
			if err := o.clock.Sleep(ctx, d); err != nil {
				return nil, backoff.Permanent(err)
			}
		}
		if err := pacer.Wait(ctx); err != nil {
			return nil, backoff.Permanent(err)
		}

		callCtx, cancel := context.WithTimeout(ctx, o.cfg.FetchTimeout)
		defer cancel()

		f, err := o.provider.FetchFundamentals(callCtx, symbol, market)
		if err == nil {
			return f, nil
		}
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			var fe *marketdata.FetchError
			if !errors.As(err, &fe) {
				err = marketdata.Transient(symbol, fmt.Errorf("timed out after %s: %w", o.cfg.FetchTimeout, err))
			}
		}
		if !marketdata.IsRetryable(err) {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(o.cfg.MaxRetries+1)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, _ time.Duration) {
			slog.DebugContext(ctx, "Retrying fetch", "market", market, "symbol", symbol, "error", err, "backoff", b.pending)
		}),
	)
}

// RefreshAll refreshes every configured market. Errors from individual
// markets are joined; outcomes of markets that ran are always returned.
func (o *RefreshOrchestrator) RefreshAll(ctx context.Context) ([]*domain.BatchOutcome, error) {
	markets := o.cfg.Markets
	outcomes := make([]*domain.BatchOutcome, len(markets))
	errs := make([]error, len(markets))

	if o.cfg.ParallelMarkets {
		var wg conc.WaitGroup
		for i, m := range markets {
			wg.Go(func() {
				outcomes[i], errs[i] = o.RefreshMarket(ctx, m)
			})
		}
		wg.Wait()
	} else {
		for i, m := range markets {
			if ctx.Err() != nil {
				errs[i] = ctx.Err()
				break
			}
			outcomes[i], errs[i] = o.RefreshMarket(ctx, m)
		}
	}

	ran := make([]*domain.BatchOutcome, 0, len(outcomes))
	for _, out := range outcomes {
		if out != nil {
			ran = append(ran, out)
		}
	}
	return ran, errors.Join(errs...)
}

// Seed inserts a bare record for every universe symbol that is not stored
// yet. Existing rows are left untouched. It returns the number inserted.
func (o *RefreshOrchestrator) Seed(ctx context.Context, markets ...domain.Market) (int, error) {
	if len(markets) == 0 {
		markets = o.cfg.Markets
	}

	inserted := 0
	for _, market := range markets {
		entries, err := o.universe.Entries(ctx, market)
		if err != nil {
			return inserted, fmt.Errorf("failed to load universe for %s: %w", market, err)
		}
		for _, entry := range entries {
			_, found, err := o.repo.FindBySymbol(ctx, entry.Symbol)
			if err != nil {
				return inserted, fmt.Errorf("failed to look up %s: %w", entry.Symbol, err)
			}
			if found {
				continue
			}
			inst := buildInstrument(market, entry, &marketdata.Fundamentals{}, o.clock.Now())
			if err := o.repo.Upsert(ctx, inst); err != nil {
				return inserted, fmt.Errorf("failed to seed %s: %w", entry.Symbol, err)
			}
			inserted++
		}
	}
	return inserted, nil
}

func buildInstrument(market domain.Market, entry domain.UniverseEntry, f *marketdata.Fundamentals, now time.Time) *domain.Instrument {
	name := f.Name
	if name == "" {
		name = entry.Name
	}
	if name == "" {
		name = entry.Symbol
	}

	sector := f.Sector
	if sector == "" {
		sector = entry.Sector
	}

	return &domain.Instrument{
		Symbol:        entry.Symbol,
		DisplayName:   name,
		Market:        market,
		Sector:        domain.StringPtr(sector),
		MarketCap:     f.MarketCap,
		Price:         f.Price,
		PERatio:       f.PERatio,
		PBRatio:       f.PBRatio,
		ROE:           f.ROE,
		DividendYield: f.DividendYield,
		Currency:      market.Currency(),
		LastUpdated:   now,
	}
}
