package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/valuation-cli/internal/config"
	"github.com/sells-group/valuation-cli/internal/model"
)

func TestParseWeekFlagExplicit(t *testing.T) {
	benchmarkWeek = "2025-11-03"
	t.Cleanup(func() { benchmarkWeek = "" })

	week, err := parseWeekFlag()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 11, 3, 0, 0, 0, 0, time.UTC), week)
}

func TestParseWeekFlagDefaultIsMonday(t *testing.T) {
	benchmarkWeek = ""
	week, err := parseWeekFlag()
	require.NoError(t, err)
	assert.Equal(t, time.Monday, week.Weekday())
	assert.Equal(t, time.UTC, week.Location())
}

func TestParseWeekFlagInvalid(t *testing.T) {
	benchmarkWeek = "next tuesday"
	t.Cleanup(func() { benchmarkWeek = "" })

	_, err := parseWeekFlag()
	require.Error(t, err)
}

func TestFormatUSD(t *testing.T) {
	assert.Equal(t, "$1,234.50", formatUSD(1234.5))
	assert.Equal(t, "$0.00", formatUSD(0))
	assert.Equal(t, "$85.00", formatUSD(85))
}

func TestDecisionWasRight(t *testing.T) {
	assert.True(t, decisionWasRight(model.DecisionBuy, 100, 120))
	assert.False(t, decisionWasRight(model.DecisionBuy, 100, 80))
	assert.True(t, decisionWasRight(model.DecisionSell, 100, 80))
	assert.False(t, decisionWasRight(model.DecisionSell, 100, 100))
}

func TestCredentialsUsesLowestRateCap(t *testing.T) {
	cfg = &config.Config{}
	cfg.Anthropic.RequestsPerSecond = 5
	cfg.Perplexity.RequestsPerSecond = 2
	t.Cleanup(func() { cfg = nil })

	creds := credentials()
	assert.Equal(t, 2.0, creds.RequestsPerSecond)
}

func TestInitStoreSQLite(t *testing.T) {
	cfg = &config.Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Store.SQLitePath = filepath.Join(t.TempDir(), "cmd.db")
	t.Cleanup(func() { cfg = nil })

	st, err := initStore(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	require.NoError(t, st.Migrate(context.Background()))
	assert.Equal(t, "sqlite", storeLabel(st))
}

func TestInitStoreUnknownDriver(t *testing.T) {
	cfg = &config.Config{}
	cfg.Store.Driver = "chisel"
	t.Cleanup(func() { cfg = nil })

	_, err := initStore(context.Background())
	require.Error(t, err)
}
