// Package universe loads the set of symbols the refresh pipeline tracks.
package universe

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/jmanzanog/stock-screener/internal/domain"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultUniverse []byte

type document struct {
	Markets map[string][]domain.UniverseEntry `yaml:"markets"`
}

// Default returns the embedded universe.
func Default() (domain.Universe, error) {
	return Parse(defaultUniverse)
}

// Load reads a universe file, or the embedded default when path is empty.
func Load(path string) (domain.Universe, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading universe file: %w", err)
	}
	u, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return u, nil
}

// Parse decodes a universe document. Market keys must be known, symbols
// non-empty and unique across the whole universe.
func Parse(data []byte) (domain.Universe, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding universe: %w", err)
	}

	u := make(domain.Universe, len(doc.Markets))
	seen := make(map[string]domain.Market)
	for key, entries := range doc.Markets {
		market, err := domain.ParseMarket(key)
		if err != nil {
			return nil, err
		}
		for i, e := range entries {
			e.Symbol = strings.TrimSpace(e.Symbol)
			if e.Symbol == "" {
				return nil, fmt.Errorf("market %s entry %d: empty symbol", market, i)
			}
			if prev, dup := seen[e.Symbol]; dup {
				return nil, fmt.Errorf("symbol %s listed under %s and %s", e.Symbol, prev, market)
			}
			seen[e.Symbol] = market
			u[market] = append(u[market], e)
		}
	}
	return u, nil
}

// Source serves a fixed universe to the refresh pipeline.
type Source struct {
	universe domain.Universe
}

func NewSource(u domain.Universe) *Source {
	return &Source{universe: u}
}

// Entries returns a copy of the market's entries in file order.
func (s *Source) Entries(ctx context.Context, market domain.Market) ([]domain.UniverseEntry, error) {
	entries := s.universe[market]
	out := make([]domain.UniverseEntry, len(entries))
	copy(out, entries)
	return out, nil
}
