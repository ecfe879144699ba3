package memory

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jmanzanog/stock-screener/internal/domain"
)

// InstrumentRepository keeps records in process. It follows the same merge
// and ordering rules as the SQL store.
type InstrumentRepository struct {
	mu          sync.RWMutex
	instruments map[string]domain.Instrument
}

func NewInstrumentRepository() *InstrumentRepository {
	return &InstrumentRepository{
		instruments: make(map[string]domain.Instrument),
	}
}

func (r *InstrumentRepository) Count(ctx context.Context, p domain.Predicate) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, inst := range r.instruments {
		if p.Matches(inst) {
			count++
		}
	}
	return count, nil
}

func (r *InstrumentRepository) Find(ctx context.Context, q domain.Query) ([]domain.Instrument, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	matches := make([]domain.Instrument, 0, len(r.instruments))
	for _, inst := range r.instruments {
		if q.Predicate.Matches(inst) {
			matches = append(matches, cloneInstrument(inst))
		}
	}
	r.mu.RUnlock()

	slices.SortFunc(matches, func(a, b domain.Instrument) int {
		return compareInstruments(a, b, q.Sort)
	})

	if q.Offset >= len(matches) {
		return []domain.Instrument{}, nil
	}
	matches = matches[q.Offset:]
	if q.Limit > 0 && q.Limit < len(matches) {
		matches = matches[:q.Limit]
	}
	return matches, nil
}

func (r *InstrumentRepository) FindBySymbol(ctx context.Context, symbol string) (domain.Instrument, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	inst, exists := r.instruments[symbol]
	if !exists {
		return domain.Instrument{}, false, nil
	}
	return cloneInstrument(inst), true, nil
}

// Upsert merges on symbol. Absent fundamentals and sector keep the stored
// value and the market never changes after insert.
func (r *InstrumentRepository) Upsert(ctx context.Context, inst *domain.Instrument) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := cloneInstrument(*inst)
	if prev, exists := r.instruments[inst.Symbol]; exists {
		next.Market = prev.Market
		next.Sector = coalesce(next.Sector, prev.Sector)
		next.MarketCap = coalesce(next.MarketCap, prev.MarketCap)
		next.Price = coalesce(next.Price, prev.Price)
		next.PERatio = coalesce(next.PERatio, prev.PERatio)
		next.PBRatio = coalesce(next.PBRatio, prev.PBRatio)
		next.ROE = coalesce(next.ROE, prev.ROE)
		next.DividendYield = coalesce(next.DividendYield, prev.DividendYield)
	}
	r.instruments[inst.Symbol] = next
	return nil
}

func (r *InstrumentRepository) Sectors(ctx context.Context, market domain.Market) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, inst := range r.instruments {
		if inst.Market == market && inst.Sector != nil {
			seen[*inst.Sector] = struct{}{}
		}
	}

	sectors := make([]string, 0, len(seen))
	for s := range seen {
		sectors = append(sectors, s)
	}
	sort.Strings(sectors)
	return sectors, nil
}

func (r *InstrumentRepository) LastUpdated(ctx context.Context, market *domain.Market) (*time.Time, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var last *time.Time
	for _, inst := range r.instruments {
		if market != nil && inst.Market != *market {
			continue
		}
		if last == nil || inst.LastUpdated.After(*last) {
			t := inst.LastUpdated
			last = &t
		}
	}
	return last, nil
}

func (r *InstrumentRepository) CountByMarket(ctx context.Context) (map[domain.Market]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[domain.Market]int)
	for _, inst := range r.instruments {
		counts[inst.Market]++
	}
	return counts, nil
}

// compareInstruments orders by the sort field with absent values last in
// both directions, then by symbol ascending.
func compareInstruments(a, b domain.Instrument, s domain.Sort) int {
	if s.Field == "" {
		s = domain.DefaultSort()
	}

	var c int
	switch {
	case s.Field.Numeric():
		av, bv := a.NumericValue(s.Field), b.NumericValue(s.Field)
		switch {
		case av == nil && bv == nil:
		case av == nil:
			return 1
		case bv == nil:
			return -1
		default:
			c = av.Cmp(*bv)
		}
	case s.Field == domain.FieldLastUpdated:
		c = a.LastUpdated.Compare(b.LastUpdated)
	default:
		av, aok := a.TextValue(s.Field)
		bv, bok := b.TextValue(s.Field)
		switch {
		case !aok && !bok:
		case !aok:
			return 1
		case !bok:
			return -1
		default:
			c = strings.Compare(av, bv)
		}
	}

	if s.Direction == domain.SortDesc {
		c = -c
	}
	if c != 0 {
		return c
	}
	return strings.Compare(a.Symbol, b.Symbol)
}

func coalesce[T any](next, prev *T) *T {
	if next != nil {
		return next
	}
	return prev
}

func cloneInstrument(inst domain.Instrument) domain.Instrument {
	out := inst
	out.Sector = clonePtr(inst.Sector)
	out.MarketCap = clonePtr(inst.MarketCap)
	out.Price = clonePtr(inst.Price)
	out.PERatio = clonePtr(inst.PERatio)
	out.PBRatio = clonePtr(inst.PBRatio)
	out.ROE = clonePtr(inst.ROE)
	out.DividendYield = clonePtr(inst.DividendYield)
	return out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

var _ domain.InstrumentRepository = (*InstrumentRepository)(nil)
