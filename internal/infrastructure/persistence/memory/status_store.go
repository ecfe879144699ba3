package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/jmanzanog/stock-screener/internal/domain"
)

// StatusStore holds refresh bookkeeping for a single process.
type StatusStore struct {
	mu       sync.RWMutex
	latest   *domain.BatchOutcome
	byMarket map[domain.Market]domain.BatchOutcome
	running  map[domain.Market]struct{}
}

func NewStatusStore() *StatusStore {
	return &StatusStore{
		byMarket: make(map[domain.Market]domain.BatchOutcome),
		running:  make(map[domain.Market]struct{}),
	}
}

func (s *StatusStore) MarkRunning(ctx context.Context, market domain.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.running[market] = struct{}{}
	return nil
}

// SaveOutcome stores a finished run and clears the market's running flag.
func (s *StatusStore) SaveOutcome(ctx context.Context, outcome domain.BatchOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.running, outcome.Market)
	outcome.Failures = slices.Clone(outcome.Failures)
	s.byMarket[outcome.Market] = outcome
	if s.latest == nil || !outcome.FinishedAt.Before(s.latest.FinishedAt) {
		latest := outcome
		s.latest = &latest
	}
	return nil
}

func (s *StatusStore) Load(ctx context.Context) (domain.RefreshStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := domain.RefreshStatus{
		ByMarket: make(map[domain.Market]domain.BatchOutcome, len(s.byMarket)),
		Running:  []domain.Market{},
	}
	for m, o := range s.byMarket {
		status.ByMarket[m] = o
	}
	for m := range s.running {
		status.Running = append(status.Running, m)
	}
	slices.Sort(status.Running)

	if s.latest != nil {
		latest := *s.latest
		finished := latest.FinishedAt
		status.Latest = &latest
		status.LastRefreshAt = &finished
	}
	return status, nil
}
