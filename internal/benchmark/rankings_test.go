package benchmark

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/valuation-cli/internal/model"
)

func TestBuildRankingFirstWeekHasNilDeltas(t *testing.T) {
	cards := []model.WeeklyScorecard{
		{ProviderID: "a", CompositeScore: 80},
		{ProviderID: "b", CompositeScore: 90},
	}
	r := BuildRanking(model.RankingOverall, testWeekStart, cards, nil)
	require.Len(t, r.Entries, 2)
	assert.Equal(t, "b", r.Entries[0].ProviderID)
	assert.Equal(t, 1, r.Entries[0].Rank)
	assert.Nil(t, r.Entries[0].Delta)
	assert.Nil(t, r.Entries[1].Delta)
}

func TestBuildRankingDeltasAgainstPriorWeek(t *testing.T) {
	prior := &model.CompetitiveRanking{
		Metric:    model.RankingOverall,
		WeekStart: testWeekStart.AddDate(0, 0, -7),
		Entries: []model.RankingEntry{
			{ProviderID: "a", Rank: 1},
			{ProviderID: "b", Rank: 2},
		},
	}
	cards := []model.WeeklyScorecard{
		{ProviderID: "a", CompositeScore: 70},
		{ProviderID: "b", CompositeScore: 90},
		{ProviderID: "c", CompositeScore: 80}, // first appearance
	}

	r := BuildRanking(model.RankingOverall, testWeekStart, cards, prior)
	require.Len(t, r.Entries, 3)

	assert.Equal(t, "b", r.Entries[0].ProviderID)
	require.NotNil(t, r.Entries[0].Delta)
	assert.Equal(t, 1, *r.Entries[0].Delta) // moved up from 2nd to 1st

	assert.Equal(t, "c", r.Entries[1].ProviderID)
	assert.Nil(t, r.Entries[1].Delta)

	assert.Equal(t, "a", r.Entries[2].ProviderID)
	require.NotNil(t, r.Entries[2].Delta)
	assert.Equal(t, -2, *r.Entries[2].Delta)
}

func TestBuildRankingTieBreaksByProviderID(t *testing.T) {
	cards := []model.WeeklyScorecard{
		{ProviderID: "zeta", CompositeScore: 80},
		{ProviderID: "alpha", CompositeScore: 80},
	}
	r := BuildRanking(model.RankingOverall, testWeekStart, cards, nil)
	assert.Equal(t, "alpha", r.Entries[0].ProviderID)
	assert.Equal(t, "zeta", r.Entries[1].ProviderID)
}

func TestBuildRankingMetricSelection(t *testing.T) {
	cards := []model.WeeklyScorecard{
		{ProviderID: "accurate-slow", MAPE: 5, LatencyP50Ms: 20000, CompositeScore: 60},
		{ProviderID: "sloppy-fast", MAPE: 80, LatencyP50Ms: 900, CompositeScore: 55},
	}

	price := BuildRanking(model.RankingPriceAccuracy, testWeekStart, cards, nil)
	assert.Equal(t, "accurate-slow", price.Entries[0].ProviderID)

	speed := BuildRanking(model.RankingSpeed, testWeekStart, cards, nil)
	assert.Equal(t, "sloppy-fast", speed.Entries[0].ProviderID)
	assert.Equal(t, 100.0, speed.Entries[0].Score)
}
