package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/valuation-cli/internal/model"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "valuation.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func testVote(providerID string, value float64) model.ModelVote {
	return model.ModelVote{
		ProviderID:     providerID,
		ProviderName:   providerID,
		Stage:          model.CapabilityVision,
		ItemName:       "Vintage Omega Seamaster",
		EstimatedValue: value,
		Decision:       model.DecisionBuy,
		Confidence:     0.8,
		LatencyMs:      1200,
		Weight:         1.0,
		Category:       "watches",
	}
}

func TestSQLiteAnalysisRoundTrip(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	created := time.Date(2025, 11, 3, 10, 0, 0, 0, time.UTC)

	require.NoError(t, s.CreateAnalysis(ctx, "a1", "what is this watch worth", created))
	require.NoError(t, s.UpsertVote(ctx, "a1", testVote("claude-vision", 450)))
	require.NoError(t, s.UpsertVote(ctx, "a1", testVote("gpt4-vision", 500)))

	consensus := model.ConsensusResult{
		ItemName:       "Vintage Omega Seamaster",
		EstimatedValue: 472.5,
		Decision:       model.DecisionBuy,
		Confidence:     71,
		VoteCount:      2,
		Quality:        model.QualityDegraded,
	}
	require.NoError(t, s.InsertConsensus(ctx, "a1", consensus))

	rec, err := s.GetAnalysis(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "a1", rec.ID)
	assert.Equal(t, "what is this watch worth", rec.Prompt)
	assert.Equal(t, consensus, rec.Consensus)
	assert.Nil(t, rec.GroundTruthPrice)
	assert.Nil(t, rec.ResolvedAt)
	require.Len(t, rec.Votes, 2)
	assert.Equal(t, "claude-vision", rec.Votes[0].ProviderID)
	assert.Equal(t, 450.0, rec.Votes[0].EstimatedValue)
}

func TestSQLiteUpsertVoteReplaces(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	require.NoError(t, s.CreateAnalysis(ctx, "a1", "p", time.Now()))

	require.NoError(t, s.UpsertVote(ctx, "a1", testVote("claude-vision", 450)))
	require.NoError(t, s.UpsertVote(ctx, "a1", testVote("claude-vision", 480)))

	rec, err := s.GetAnalysis(ctx, "a1")
	require.NoError(t, err)
	require.Len(t, rec.Votes, 1)
	assert.Equal(t, 480.0, rec.Votes[0].EstimatedValue)
}

func TestSQLiteGetAnalysisNotFound(t *testing.T) {
	s := newTestSQLite(t)
	_, err := s.GetAnalysis(context.Background(), "missing")
	require.Error(t, err)
}

func TestSQLiteAttachGroundTruth(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	require.NoError(t, s.CreateAnalysis(ctx, "a1", "p", time.Now()))

	resolved := time.Date(2025, 11, 10, 9, 0, 0, 0, time.UTC)
	require.NoError(t, s.AttachGroundTruth(ctx, "a1", 425.0, resolved))

	rec, err := s.GetAnalysis(ctx, "a1")
	require.NoError(t, err)
	require.NotNil(t, rec.GroundTruthPrice)
	assert.Equal(t, 425.0, *rec.GroundTruthPrice)
	require.NotNil(t, rec.ResolvedAt)
	assert.True(t, rec.ResolvedAt.Equal(resolved))

	err = s.AttachGroundTruth(ctx, "missing", 100, resolved)
	require.Error(t, err)
}

func TestSQLiteListResolvedAnalyses(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	weekStart := time.Date(2025, 11, 3, 0, 0, 0, 0, time.UTC)
	weekEnd := weekStart.AddDate(0, 0, 7)

	require.NoError(t, s.CreateAnalysis(ctx, "in-week", "p", weekStart.Add(24*time.Hour)))
	require.NoError(t, s.AttachGroundTruth(ctx, "in-week", 100, weekEnd))
	require.NoError(t, s.UpsertVote(ctx, "in-week", testVote("claude-vision", 110)))

	// resolved but created outside the window
	require.NoError(t, s.CreateAnalysis(ctx, "out-of-week", "p", weekStart.Add(-24*time.Hour)))
	require.NoError(t, s.AttachGroundTruth(ctx, "out-of-week", 50, weekEnd))

	// in-window but unresolved
	require.NoError(t, s.CreateAnalysis(ctx, "unresolved", "p", weekStart.Add(48*time.Hour)))

	records, err := s.ListResolvedAnalyses(ctx, weekStart, weekEnd)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "in-week", records[0].ID)
	require.Len(t, records[0].Votes, 1)
}

func TestSQLiteScorecardUpsert(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	week := time.Date(2025, 11, 3, 0, 0, 0, 0, time.UTC)

	card := model.WeeklyScorecard{
		ProviderID:       "claude-vision",
		WeekStart:        week,
		WeekEnd:          week.AddDate(0, 0, 7),
		TotalVotes:       12,
		MAPE:             14.5,
		DecisionAccuracy: 0.75,
		CompositeScore:   68.2,
	}
	require.NoError(t, s.SaveScorecard(ctx, card))

	card.CompositeScore = 70.1
	require.NoError(t, s.SaveScorecard(ctx, card))

	cards, err := s.ListScorecardsSince(ctx, week.AddDate(0, 0, -7))
	require.NoError(t, err)
	require.Len(t, cards, 1)
	assert.Equal(t, 70.1, cards[0].CompositeScore)

	cards, err = s.ListScorecardsSince(ctx, week.AddDate(0, 0, 7))
	require.NoError(t, err)
	assert.Empty(t, cards)
}

func TestSQLiteRankingRoundTrip(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	week := time.Date(2025, 11, 3, 0, 0, 0, 0, time.UTC)

	missing, err := s.GetRanking(ctx, model.RankingOverall, week)
	require.NoError(t, err)
	assert.Nil(t, missing)

	delta := -1
	ranking := model.CompetitiveRanking{
		Metric:    model.RankingOverall,
		WeekStart: week,
		Entries: []model.RankingEntry{
			{ProviderID: "claude-vision", Rank: 1, Score: 82.3},
			{ProviderID: "gpt4-vision", Rank: 2, Score: 74.1, Delta: &delta},
		},
	}
	require.NoError(t, s.SaveRanking(ctx, ranking))

	got, err := s.GetRanking(ctx, model.RankingOverall, week)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Len(t, got.Entries, 2)
	assert.Nil(t, got.Entries[0].Delta)
	require.NotNil(t, got.Entries[1].Delta)
	assert.Equal(t, -1, *got.Entries[1].Delta)
}
