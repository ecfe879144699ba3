package domain

import (
	"context"
	"time"
)

// InstrumentRepository is the record store behind both the screening and
// the refresh paths. Implementations must order Find results by the
// requested sort, then by symbol ascending, with absent values last.
type InstrumentRepository interface {
	Count(ctx context.Context, p Predicate) (int, error)
	Find(ctx context.Context, q Query) ([]Instrument, error)
	FindBySymbol(ctx context.Context, symbol string) (Instrument, bool, error)
	Upsert(ctx context.Context, inst *Instrument) error
	Sectors(ctx context.Context, market Market) ([]string, error)
	// LastUpdated returns the most recent write time, across all markets
	// when market is nil. It returns nil when no record matches.
	LastUpdated(ctx context.Context, market *Market) (*time.Time, error)
	CountByMarket(ctx context.Context) (map[Market]int, error)
}
