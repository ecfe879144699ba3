package redisstore

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/goccy/go-json"
	"github.com/jmanzanog/stock-screener/internal/domain"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix   = "screener:refresh:"
	outcomesKey = keyPrefix + "outcomes"
	latestKey   = keyPrefix + "latest"
	runningKey  = keyPrefix + "running"
)

// StatusStore shares refresh bookkeeping between API replicas. Outcomes
// are stored as JSON in a hash keyed by market.
type StatusStore struct {
	client *redis.Client
}

func NewStatusStore(client *redis.Client) *StatusStore {
	return &StatusStore{client: client}
}

func (s *StatusStore) MarkRunning(ctx context.Context, market domain.Market) error {
	if err := s.client.SAdd(ctx, runningKey, string(market)).Err(); err != nil {
		return fmt.Errorf("marking %s running: %w", market, err)
	}
	return nil
}

// SaveOutcome writes the outcome, moves the latest pointer when the run
// finished no earlier than the current one, and clears the running flag.
func (s *StatusStore) SaveOutcome(ctx context.Context, outcome domain.BatchOutcome) error {
	payload, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("encoding outcome: %w", err)
	}

	latest, err := s.latest(ctx)
	if err != nil {
		return err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, outcomesKey, string(outcome.Market), payload)
		if latest == nil || !outcome.FinishedAt.Before(latest.FinishedAt) {
			pipe.Set(ctx, latestKey, payload, 0)
		}
		pipe.SRem(ctx, runningKey, string(outcome.Market))
		return nil
	})
	if err != nil {
		return fmt.Errorf("saving outcome for %s: %w", outcome.Market, err)
	}
	return nil
}

func (s *StatusStore) Load(ctx context.Context) (domain.RefreshStatus, error) {
	status := domain.RefreshStatus{
		ByMarket: make(map[domain.Market]domain.BatchOutcome),
		Running:  []domain.Market{},
	}

	outcomes, err := s.client.HGetAll(ctx, outcomesKey).Result()
	if err != nil {
		return status, fmt.Errorf("loading outcomes: %w", err)
	}
	for market, payload := range outcomes {
		var o domain.BatchOutcome
		if err := json.Unmarshal([]byte(payload), &o); err != nil {
			return status, fmt.Errorf("decoding outcome for %s: %w", market, err)
		}
		status.ByMarket[domain.Market(market)] = o
	}

	running, err := s.client.SMembers(ctx, runningKey).Result()
	if err != nil {
		return status, fmt.Errorf("loading running markets: %w", err)
	}
	for _, m := range running {
		status.Running = append(status.Running, domain.Market(m))
	}
	slices.Sort(status.Running)

	latest, err := s.latest(ctx)
	if err != nil {
		return status, err
	}
	if latest != nil {
		finished := latest.FinishedAt
		status.Latest = latest
		status.LastRefreshAt = &finished
	}
	return status, nil
}

func (s *StatusStore) latest(ctx context.Context) (*domain.BatchOutcome, error) {
	payload, err := s.client.Get(ctx, latestKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading latest outcome: %w", err)
	}

	var o domain.BatchOutcome
	if err := json.Unmarshal(payload, &o); err != nil {
		return nil, fmt.Errorf("decoding latest outcome: %w", err)
	}
	return &o, nil
}

func (s *StatusStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *StatusStore) Close() error {
	return s.client.Close()
}
