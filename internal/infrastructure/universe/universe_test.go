package universe

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/jmanzanog/stock-screener/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	u, err := Default()
	require.NoError(t, err)

	require.Len(t, u[domain.MarketJP], 15)
	assert.Equal(t, "7203", u[domain.MarketJP][0].Symbol)
	assert.Equal(t, "Automotive", u[domain.MarketJP][0].Sector)
	assert.NotEmpty(t, u[domain.MarketUS])
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"unknown market", "markets:\n  EU:\n    - {symbol: SAP}\n"},
		{"empty symbol", "markets:\n  US:\n    - {symbol: \" \"}\n"},
		{"duplicate symbol", "markets:\n  US:\n    - {symbol: AAPL}\n    - {symbol: AAPL}\n"},
		{"invalid yaml", "markets: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestParse_LowercaseMarket(t *testing.T) {
	u, err := Parse([]byte("markets:\n  us:\n    - {symbol: AAPL, name: Apple Inc}\n"))
	require.NoError(t, err)
	assert.Equal(t, "Apple Inc", u[domain.MarketUS][0].Name)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "universe.yaml")
	require.NoError(t, os.WriteFile(path, []byte("markets:\n  JP:\n    - {symbol: \"7203\"}\n"), 0o600))

	u, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, u[domain.MarketJP], 1)
	assert.Empty(t, u[domain.MarketUS])

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestSource_EntriesAreCopies(t *testing.T) {
	src := NewSource(domain.Universe{domain.MarketUS: {{Symbol: "AAPL"}}})

	entries, err := src.Entries(context.Background(), domain.MarketUS)
	require.NoError(t, err)
	entries[0].Symbol = "MSFT"

	again, _ := src.Entries(context.Background(), domain.MarketUS)
	assert.Equal(t, "AAPL", again[0].Symbol)

	none, _ := src.Entries(context.Background(), domain.MarketJP)
	assert.Empty(t, none)
}
