package application

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/jmanzanog/stock-screener/internal/domain"
)

// Freshness summarizes stored records per configured market.
type Freshness struct {
	Markets []domain.MarketFreshness `json:"markets"`
	Total   int                      `json:"total"`
}

// ByMarket returns the entry for market, zero-valued when absent.
func (f Freshness) ByMarket(market domain.Market) domain.MarketFreshness {
	for _, m := range f.Markets {
		if m.Market == market {
			return m
		}
	}
	return domain.MarketFreshness{Market: market}
}

type ScreeningService struct {
	repo    domain.InstrumentRepository
	markets []domain.Market
}

func NewScreeningService(repo domain.InstrumentRepository, markets []domain.Market) *ScreeningService {
	if len(markets) == 0 {
		markets = domain.Markets()
	}
	return &ScreeningService{repo: repo, markets: markets}
}

// BuildScreenQuery translates a validated request into a store query.
func BuildScreenQuery(spec domain.FilterSpec) domain.Query {
	b := domain.NewPredicateBuilder().
		Equal(domain.FieldMarket, string(spec.Market))
	for _, dim := range spec.Dimensions() {
		b.Range(dim.Field, dim.Range)
	}
	b.In(domain.FieldSector, spec.Sectors)

	return domain.Query{
		Predicate: b.Build(),
		Sort:      spec.Sort,
		Offset:    spec.Offset(),
		Limit:     spec.PageSize,
	}
}

func (s *ScreeningService) Screen(ctx context.Context, spec domain.FilterSpec) (*domain.ScreenResult, error) {
	q := BuildScreenQuery(spec)

	total, err := s.repo.Count(ctx, q.Predicate)
	if err != nil {
		return nil, fmt.Errorf("failed to count instruments: %w", err)
	}

	result := &domain.ScreenResult{
		Instruments: []domain.Instrument{},
		TotalCount:  total,
		Page:        spec.Page,
		PageSize:    spec.PageSize,
		TotalPages:  domain.TotalPages(total, spec.PageSize),
	}
	if q.Offset >= total {
		return result, nil
	}

	instruments, err := s.repo.Find(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to find instruments: %w", err)
	}
	if instruments != nil {
		result.Instruments = instruments
	}
	return result, nil
}

// ScreenQuery validates raw query values and screens. Storage is not
// touched when validation fails.
func (s *ScreeningService) ScreenQuery(ctx context.Context, values url.Values) (*domain.ScreenResult, error) {
	spec, err := ParseScreenRequest(values)
	if err != nil {
		return nil, err
	}
	return s.Screen(ctx, spec)
}

func (s *ScreeningService) Sectors(ctx context.Context, market domain.Market) ([]string, error) {
	sectors, err := s.repo.Sectors(ctx, market)
	if err != nil {
		return nil, fmt.Errorf("failed to list sectors: %w", err)
	}
	if sectors == nil {
		sectors = []string{}
	}
	return sectors, nil
}

func (s *ScreeningService) LastUpdated(ctx context.Context, market *domain.Market) (*time.Time, error) {
	ts, err := s.repo.LastUpdated(ctx, market)
	if err != nil {
		return nil, fmt.Errorf("failed to read last update: %w", err)
	}
	return ts, nil
}

func (s *ScreeningService) Freshness(ctx context.Context) (*Freshness, error) {
	counts, err := s.repo.CountByMarket(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count by market: %w", err)
	}

	f := &Freshness{Markets: make([]domain.MarketFreshness, 0, len(s.markets))}
	for _, m := range s.markets {
		ts, err := s.LastUpdated(ctx, &m)
		if err != nil {
			return nil, err
		}
		f.Markets = append(f.Markets, domain.MarketFreshness{Market: m, Count: counts[m], LastUpdated: ts})
		f.Total += counts[m]
	}
	return f, nil
}

// Instrument looks up a single record. found is false when the symbol is
// not stored.
func (s *ScreeningService) Instrument(ctx context.Context, symbol string) (inst domain.Instrument, found bool, err error) {
	inst, found, err = s.repo.FindBySymbol(ctx, symbol)
	if err != nil {
		return domain.Instrument{}, false, fmt.Errorf("failed to find instrument %s: %w", symbol, err)
	}
	return inst, found, nil
}
