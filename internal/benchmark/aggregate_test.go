package benchmark

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/valuation-cli/internal/model"
	"github.com/sells-group/valuation-cli/internal/store"
)

var (
	testWeekStart = time.Date(2025, 11, 3, 0, 0, 0, 0, time.UTC)
	testWeekEnd   = testWeekStart.AddDate(0, 0, 7)
)

func resolvedRecord(id string, truth float64, votes ...model.ModelVote) model.AnalysisRecord {
	return model.AnalysisRecord{
		ID:               id,
		Prompt:           "p",
		GroundTruthPrice: &truth,
		CreatedAt:        testWeekStart.Add(24 * time.Hour),
		Votes:            votes,
	}
}

func gradedVote(providerID string, estimate float64, decision model.Decision, latencyMs int64, category string) model.ModelVote {
	return model.ModelVote{
		ProviderID:     providerID,
		EstimatedValue: estimate,
		Decision:       decision,
		LatencyMs:      latencyMs,
		Category:       category,
	}
}

func TestComputeScorecardsMetrics(t *testing.T) {
	records := []model.AnalysisRecord{
		// truth 100: estimate 90 BUY (correct, accurate), latency 1000
		resolvedRecord("a1", 100, gradedVote("p1", 90, model.DecisionBuy, 1000, "watches")),
		// truth 100: estimate 150 BUY (wrong, over), latency 3000
		resolvedRecord("a2", 100, gradedVote("p1", 150, model.DecisionBuy, 3000, "watches")),
		// truth 200: estimate 100 SELL (wrong: resolved below? truth 200 >= 100 so selling was wrong), under, latency 2000
		resolvedRecord("a3", 200, gradedVote("p1", 100, model.DecisionSell, 2000, "art")),
	}

	cards := ComputeScorecards(records, testWeekStart, testWeekEnd)
	require.Len(t, cards, 1)
	card := cards[0]

	assert.Equal(t, "p1", card.ProviderID)
	assert.Equal(t, 3, card.TotalVotes)
	assert.Equal(t, 3, card.SuccessfulVotes)
	// MAE = (10 + 50 + 100) / 3
	assert.InDelta(t, 53.333, card.MeanAbsoluteErr, 0.01)
	// MAPE = (10 + 50 + 50) / 3
	assert.InDelta(t, 36.666, card.MAPE, 0.01)
	// only the first vote called it right
	assert.InDelta(t, 1.0/3.0, card.DecisionAccuracy, 1e-9)
	assert.Equal(t, int64(2000), card.LatencyP50Ms)
	assert.Equal(t, int64(3000), card.LatencyP95Ms)
	assert.Equal(t, 1, card.AccurateCount)
	assert.Equal(t, 1, card.OverCount)
	assert.Equal(t, 1, card.UnderCount)

	require.Contains(t, card.Categories, "watches")
	require.Contains(t, card.Categories, "art")
	watches := card.Categories["watches"]
	assert.Equal(t, 2, watches.Votes)
	assert.InDelta(t, 30.0, watches.MAPE, 0.01)
	assert.InDelta(t, 0.5, watches.DecisionAccuracy, 1e-9)
}

func TestComputeScorecardsDeterministicOrder(t *testing.T) {
	records := []model.AnalysisRecord{
		resolvedRecord("a1", 100,
			gradedVote("zeta", 100, model.DecisionBuy, 1000, ""),
			gradedVote("alpha", 100, model.DecisionBuy, 1000, ""),
			gradedVote("mid", 100, model.DecisionBuy, 1000, ""),
		),
	}
	cards := ComputeScorecards(records, testWeekStart, testWeekEnd)
	require.Len(t, cards, 3)
	assert.Equal(t, "alpha", cards[0].ProviderID)
	assert.Equal(t, "mid", cards[1].ProviderID)
	assert.Equal(t, "zeta", cards[2].ProviderID)
}

func TestComputeScorecardsSkipsUnresolved(t *testing.T) {
	records := []model.AnalysisRecord{
		{ID: "a1", Votes: []model.ModelVote{gradedVote("p1", 100, model.DecisionBuy, 1000, "")}},
	}
	cards := ComputeScorecards(records, testWeekStart, testWeekEnd)
	assert.Empty(t, cards)
}

func TestCompositeScorePerfectProvider(t *testing.T) {
	card := model.WeeklyScorecard{
		TotalVotes:       10,
		SuccessfulVotes:  10,
		MAPE:             0,
		DecisionAccuracy: 1,
		LatencyP50Ms:     800,
	}
	assert.InDelta(t, 100.0, compositeScore(card), 1e-9)
}

func TestCompositeScoreBounds(t *testing.T) {
	card := model.WeeklyScorecard{
		TotalVotes:       10,
		SuccessfulVotes:  0,
		MAPE:             400,
		DecisionAccuracy: 0,
		LatencyP50Ms:     60000,
	}
	score := compositeScore(card)
	assert.GreaterOrEqual(t, score, 0.0)
	assert.LessOrEqual(t, score, 100.0)
}

func TestSpeedScore(t *testing.T) {
	assert.Equal(t, 100.0, speedScoreFromP50(500))
	assert.Equal(t, 100.0, speedScoreFromP50(1000))
	assert.Equal(t, 0.0, speedScoreFromP50(30000))
	assert.Equal(t, 0.0, speedScoreFromP50(90000))
	mid := speedScoreFromP50(15500) // halfway between anchors
	assert.InDelta(t, 50.0, mid, 0.01)
}

func TestPercentile(t *testing.T) {
	assert.Equal(t, int64(0), percentile(nil, 0.5))
	assert.Equal(t, int64(7), percentile([]int64{7}, 0.95))

	lats := []int64{100, 200, 300, 400, 500, 600, 700, 800, 900, 1000}
	assert.Equal(t, int64(500), percentile(lats, 0.50))
	assert.Equal(t, int64(1000), percentile(lats, 0.95))
}

func TestDecisionCorrect(t *testing.T) {
	assert.True(t, decisionCorrect(model.DecisionBuy, 100, 120))
	assert.True(t, decisionCorrect(model.DecisionBuy, 100, 100))
	assert.False(t, decisionCorrect(model.DecisionBuy, 100, 80))
	assert.True(t, decisionCorrect(model.DecisionSell, 100, 80))
	assert.False(t, decisionCorrect(model.DecisionSell, 100, 120))
}

func newBenchStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "bench.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func seedResolvedAnalysis(t *testing.T, s store.Store, id string, truth float64, votes ...model.ModelVote) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.CreateAnalysis(ctx, id, "p", testWeekStart.Add(24*time.Hour)))
	for _, v := range votes {
		require.NoError(t, s.UpsertVote(ctx, id, v))
	}
	require.NoError(t, s.AttachGroundTruth(ctx, id, truth, testWeekEnd))
}

func TestRunWeekPersistsScorecardsAndRankings(t *testing.T) {
	s := newBenchStore(t)
	ctx := context.Background()

	seedResolvedAnalysis(t, s, "a1", 100,
		gradedVote("sharp", 95, model.DecisionBuy, 900, ""),
		gradedVote("wild", 300, model.DecisionBuy, 9000, ""),
	)
	seedResolvedAnalysis(t, s, "a2", 50,
		gradedVote("sharp", 52, model.DecisionSell, 1100, ""),
		gradedVote("wild", 10, model.DecisionSell, 8000, ""),
	)

	agg := NewAggregator(s)
	cards, err := agg.RunWeek(ctx, testWeekStart)
	require.NoError(t, err)
	require.Len(t, cards, 2)
	assert.Equal(t, "sharp", cards[0].ProviderID)
	assert.Greater(t, cards[0].CompositeScore, cards[1].CompositeScore)

	ranking, err := s.GetRanking(ctx, model.RankingOverall, testWeekStart)
	require.NoError(t, err)
	require.NotNil(t, ranking)
	require.Len(t, ranking.Entries, 2)
	assert.Equal(t, "sharp", ranking.Entries[0].ProviderID)
	assert.Equal(t, 1, ranking.Entries[0].Rank)
	// first graded week: no prior ranking, so no deltas
	assert.Nil(t, ranking.Entries[0].Delta)
	assert.Nil(t, ranking.Entries[1].Delta)

	for _, metric := range []model.RankingMetric{model.RankingPriceAccuracy, model.RankingSpeed} {
		r, err := s.GetRanking(ctx, metric, testWeekStart)
		require.NoError(t, err)
		require.NotNil(t, r, metric)
	}
}

func TestRunWeekIsIdempotent(t *testing.T) {
	s := newBenchStore(t)
	ctx := context.Background()

	seedResolvedAnalysis(t, s, "a1", 100, gradedVote("p1", 95, model.DecisionBuy, 900, "watches"))

	agg := NewAggregator(s)
	first, err := agg.RunWeek(ctx, testWeekStart)
	require.NoError(t, err)
	second, err := agg.RunWeek(ctx, testWeekStart)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	cards, err := s.ListScorecardsSince(ctx, testWeekStart)
	require.NoError(t, err)
	assert.Len(t, cards, 1)
}
