package application

import (
	"context"

	"github.com/jmanzanog/stock-screener/internal/domain"
)

// StatusReport is the combined refresh and storage view used by the CLI
// and the admin endpoints.
type StatusReport struct {
	Refresh   domain.RefreshStatus `json:"refresh"`
	Freshness *Freshness           `json:"freshness"`
}

type StatusService struct {
	tracker   *RefreshTracker
	screening *ScreeningService
}

func NewStatusService(tracker *RefreshTracker, screening *ScreeningService) *StatusService {
	return &StatusService{tracker: tracker, screening: screening}
}

func (s *StatusService) Refresh(ctx context.Context) (domain.RefreshStatus, error) {
	return s.tracker.Status(ctx)
}

func (s *StatusService) Report(ctx context.Context) (*StatusReport, error) {
	refresh, err := s.tracker.Status(ctx)
	if err != nil {
		return nil, err
	}
	freshness, err := s.screening.Freshness(ctx)
	if err != nil {
		return nil, err
	}
	return &StatusReport{Refresh: refresh, Freshness: freshness}, nil
}
