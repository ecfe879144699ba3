package application

import (
	"context"
	"sync"
	"time"

	"github.com/jmanzanog/stock-screener/internal/domain"
	"github.com/jmanzanog/stock-screener/internal/infrastructure/marketdata"
	"github.com/jmanzanog/stock-screener/internal/infrastructure/persistence/memory"
)

// spyRepository records read calls and lets tests override writes.
type spyRepository struct {
	*memory.InstrumentRepository

	mu         sync.Mutex
	countCalls int
	findCalls  int
	upsertFunc func(ctx context.Context, inst *domain.Instrument) error
}

func newSpyRepository(seed ...domain.Instrument) *spyRepository {
	repo := &spyRepository{InstrumentRepository: memory.NewInstrumentRepository()}
	for i := range seed {
		if err := repo.InstrumentRepository.Upsert(context.Background(), &seed[i]); err != nil {
			panic(err)
		}
	}
	return repo
}

func (r *spyRepository) Count(ctx context.Context, p domain.Predicate) (int, error) {
	r.mu.Lock()
	r.countCalls++
	r.mu.Unlock()
	return r.InstrumentRepository.Count(ctx, p)
}

func (r *spyRepository) Find(ctx context.Context, q domain.Query) ([]domain.Instrument, error) {
	r.mu.Lock()
	r.findCalls++
	r.mu.Unlock()
	return r.InstrumentRepository.Find(ctx, q)
}

func (r *spyRepository) Upsert(ctx context.Context, inst *domain.Instrument) error {
	if r.upsertFunc != nil {
		if err := r.upsertFunc(ctx, inst); err != nil {
			return err
		}
	}
	return r.InstrumentRepository.Upsert(ctx, inst)
}

func (r *spyRepository) reads() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.countCalls + r.findCalls
}

type mockProvider struct {
	mu        sync.Mutex
	fetchFunc func(ctx context.Context, symbol string, market domain.Market) (*marketdata.Fundamentals, error)
	calls     []string
}

func (m *mockProvider) FetchFundamentals(ctx context.Context, symbol string, market domain.Market) (*marketdata.Fundamentals, error) {
	m.mu.Lock()
	m.calls = append(m.calls, symbol)
	m.mu.Unlock()
	if m.fetchFunc != nil {
		return m.fetchFunc(ctx, symbol, market)
	}
	price := domain.NewDecimalFromInt(100)
	return &marketdata.Fundamentals{Symbol: symbol, Price: &price}, nil
}

func (m *mockProvider) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// fakeClock advances only when slept on.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	c.sleeps = append(c.sleeps, d)
	return nil
}

type staticUniverse map[domain.Market][]domain.UniverseEntry

func (u staticUniverse) Entries(ctx context.Context, market domain.Market) ([]domain.UniverseEntry, error) {
	return u[market], nil
}

func entries(symbols ...string) []domain.UniverseEntry {
	out := make([]domain.UniverseEntry, len(symbols))
	for i, s := range symbols {
		out[i] = domain.UniverseEntry{Symbol: s, Name: "Company " + s}
	}
	return out
}

type recordingObserver struct {
	mu      sync.Mutex
	symbols map[string]int
	batches []domain.BatchOutcome
}

func (o *recordingObserver) ObserveSymbol(market domain.Market, result string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.symbols == nil {
		o.symbols = make(map[string]int)
	}
	o.symbols[result]++
}

func (o *recordingObserver) ObserveBatch(outcome *domain.BatchOutcome) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.batches = append(o.batches, *outcome)
}

func instrument(symbol string, market domain.Market, sector string, price int64) domain.Instrument {
	p := domain.NewDecimalFromInt(price)
	return domain.Instrument{
		Symbol:      symbol,
		DisplayName: "Company " + symbol,
		Market:      market,
		Sector:      domain.StringPtr(sector),
		Price:       &p,
		Currency:    market.Currency(),
		LastUpdated: time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC),
	}
}
