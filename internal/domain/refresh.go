package domain

import (
	"time"

	"github.com/google/uuid"
)

type BatchStatus string

const (
	BatchSuccess        BatchStatus = "success"
	BatchPartialSuccess BatchStatus = "partial_success"
	BatchFailure        BatchStatus = "failure"
)

// SymbolFailure records why one symbol of a batch was not refreshed.
type SymbolFailure struct {
	Symbol string `json:"symbol"`
	Kind   string `json:"kind"`
	Error  string `json:"error"`
}

// BatchOutcome aggregates the result of one refresh run over a market.
type BatchOutcome struct {
	RunID          string          `json:"runId"`
	Market         Market          `json:"market"`
	Status         BatchStatus     `json:"status"`
	TotalRequested int             `json:"totalStocks"`
	SuccessCount   int             `json:"successCount"`
	FailureCount   int             `json:"failureCount"`
	StartedAt      time.Time       `json:"startedAt"`
	FinishedAt     time.Time       `json:"finishedAt"`
	Failures       []SymbolFailure `json:"failures,omitempty"`
}

func NewBatchOutcome(market Market, total int, startedAt time.Time) *BatchOutcome {
	return &BatchOutcome{
		RunID:          uuid.New().String(),
		Market:         market,
		TotalRequested: total,
		StartedAt:      startedAt,
	}
}

func (o *BatchOutcome) RecordSuccess() {
	o.SuccessCount++
}

func (o *BatchOutcome) RecordFailure(symbol, kind string, err error) {
	o.FailureCount++
	o.Failures = append(o.Failures, SymbolFailure{Symbol: symbol, Kind: kind, Error: err.Error()})
}

// Attempted is the number of symbols that reached a terminal result.
func (o *BatchOutcome) Attempted() int {
	return o.SuccessCount + o.FailureCount
}

// Finalize stamps the finish time and derives Status from the counters.
func (o *BatchOutcome) Finalize(finishedAt time.Time) {
	o.FinishedAt = finishedAt
	switch {
	case o.SuccessCount == o.TotalRequested:
		o.Status = BatchSuccess
	case o.SuccessCount == 0:
		o.Status = BatchFailure
	default:
		o.Status = BatchPartialSuccess
	}
}

// RefreshStatus is the read-only view of refresh activity.
type RefreshStatus struct {
	LastRefreshAt *time.Time              `json:"lastRefreshAt"`
	Latest        *BatchOutcome           `json:"latest"`
	ByMarket      map[Market]BatchOutcome `json:"byMarket"`
	Running       []Market                `json:"running"`
}

// UniverseEntry is a symbol the refresh pipeline keeps up to date. Name
// and Sector are fallbacks for providers that omit them.
type UniverseEntry struct {
	Symbol string `yaml:"symbol" json:"symbol"`
	Name   string `yaml:"name" json:"name"`
	Sector string `yaml:"sector" json:"sector"`
}

// Universe maps each market to the symbols refreshed for it.
type Universe map[Market][]UniverseEntry
