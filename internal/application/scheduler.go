package application

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jmanzanog/stock-screener/internal/domain"
)

var ErrRefreshQueued = errors.New("a refresh is already queued")

type MarketRefresher interface {
	RefreshMarket(ctx context.Context, market domain.Market) (*domain.BatchOutcome, error)
	RefreshAll(ctx context.Context) ([]*domain.BatchOutcome, error)
}

// RefreshScheduler runs refreshes on a ticker and on demand. All runs
// execute on the Start goroutine, one at a time.
type RefreshScheduler struct {
	refresher MarketRefresher
	interval  time.Duration
	triggers  chan []domain.Market
	stopChan  chan struct{}
	done      chan struct{}
	started   chan struct{}
	stopOnce  sync.Once
	startOnce sync.Once
}

func NewRefreshScheduler(refresher MarketRefresher, interval time.Duration) *RefreshScheduler {
	return &RefreshScheduler{
		refresher: refresher,
		interval:  interval,
		triggers:  make(chan []domain.Market, 1),
		stopChan:  make(chan struct{}),
		done:      make(chan struct{}),
		started:   make(chan struct{}),
	}
}

// Start blocks until Stop is called or ctx is done. An interval of zero
// disables the ticker; triggered runs still execute.
func (s *RefreshScheduler) Start(ctx context.Context) {
	s.startOnce.Do(func() { close(s.started) })
	defer close(s.done)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.stopChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	var tick <-chan time.Time
	if s.interval > 0 {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	slog.Info("Refresh scheduler started", "interval", s.interval)

	for {
		select {
		case <-tick:
			s.run(ctx, nil)
		case markets := <-s.triggers:
			s.run(ctx, markets)
		case <-s.stopChan:
			slog.Info("Refresh scheduler stopped")
			return
		case <-ctx.Done():
			slog.Info("Refresh scheduler stopped due to context cancellation")
			return
		}
	}
}

// Trigger queues a run for the given markets, or for every configured
// market when none are given. It never blocks.
func (s *RefreshScheduler) Trigger(markets ...domain.Market) error {
	queued := append([]domain.Market(nil), markets...)
	select {
	case s.triggers <- queued:
		return nil
	default:
		return ErrRefreshQueued
	}
}

// Stop ends the loop, cancelling a run in flight, and waits for Start to
// return. It is safe to call more than once.
func (s *RefreshScheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
	select {
	case <-s.started:
		<-s.done
	default:
	}
}

func (s *RefreshScheduler) run(ctx context.Context, markets []domain.Market) {
	if len(markets) == 0 {
		outcomes, err := s.refresher.RefreshAll(ctx)
		logRun(ctx, outcomes, err)
		return
	}

	for _, m := range markets {
		if ctx.Err() != nil {
			return
		}
		outcome, err := s.refresher.RefreshMarket(ctx, m)
		var outcomes []*domain.BatchOutcome
		if outcome != nil {
			outcomes = append(outcomes, outcome)
		}
		logRun(ctx, outcomes, err)
	}
}

func logRun(ctx context.Context, outcomes []*domain.BatchOutcome, err error) {
	if err != nil {
		if errors.Is(err, ErrRefreshInProgress) {
			slog.WarnContext(ctx, "Skipped refresh", "error", err)
		} else {
			slog.ErrorContext(ctx, "Error refreshing fundamentals", "error", err)
		}
	}
	for _, o := range outcomes {
		slog.InfoContext(ctx, "Fundamentals refreshed", "market", o.Market, "status", o.Status, "success", o.SuccessCount, "total", o.TotalRequested)
	}
}
