package application

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmanzanog/stock-screener/internal/domain"
)

// StatusStore persists refresh bookkeeping.
type StatusStore interface {
	MarkRunning(ctx context.Context, market domain.Market) error
	SaveOutcome(ctx context.Context, outcome domain.BatchOutcome) error
	Load(ctx context.Context) (domain.RefreshStatus, error)
}

// RefreshTracker is the only writer of refresh status. Writes come from
// the orchestrator; everyone else reads through Status.
type RefreshTracker struct {
	store StatusStore
}

func NewRefreshTracker(store StatusStore) *RefreshTracker {
	return &RefreshTracker{store: store}
}

func (t *RefreshTracker) begin(ctx context.Context, market domain.Market) {
	if err := t.store.MarkRunning(ctx, market); err != nil {
		slog.WarnContext(ctx, "Failed to mark refresh running", "market", market, "error", err)
	}
}

func (t *RefreshTracker) finish(ctx context.Context, outcome *domain.BatchOutcome) {
	if err := t.store.SaveOutcome(ctx, *outcome); err != nil {
		slog.ErrorContext(ctx, "Failed to save refresh outcome", "market", outcome.Market, "run_id", outcome.RunID, "error", err)
	}
}

func (t *RefreshTracker) Status(ctx context.Context) (domain.RefreshStatus, error) {
	status, err := t.store.Load(ctx)
	if err != nil {
		return domain.RefreshStatus{}, fmt.Errorf("failed to load refresh status: %w", err)
	}
	return status, nil
}
