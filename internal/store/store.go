// Package store persists analyses, votes, consensus results, scorecards and
// rankings. Two backends are provided: sqlite for local use and postgres for
// shared deployments.
package store

import (
	"context"
	"time"

	"github.com/sells-group/valuation-cli/internal/model"
)

// Store defines the persistence interface for the consensus pipeline and the
// offline benchmark job. The live request path only ever writes.
type Store interface {
	// Analyses
	CreateAnalysis(ctx context.Context, id, prompt string, createdAt time.Time) error
	UpsertVote(ctx context.Context, analysisID string, vote model.ModelVote) error
	InsertConsensus(ctx context.Context, analysisID string, c model.ConsensusResult) error
	AttachGroundTruth(ctx context.Context, analysisID string, price float64, resolvedAt time.Time) error
	GetAnalysis(ctx context.Context, analysisID string) (*model.AnalysisRecord, error)

	// Benchmark reads: analyses with a resolved ground truth in the window.
	ListResolvedAnalyses(ctx context.Context, weekStart, weekEnd time.Time) ([]model.AnalysisRecord, error)

	// Scorecards and rankings
	SaveScorecard(ctx context.Context, card model.WeeklyScorecard) error
	ListScorecardsSince(ctx context.Context, since time.Time) ([]model.WeeklyScorecard, error)
	SaveRanking(ctx context.Context, r model.CompetitiveRanking) error
	GetRanking(ctx context.Context, metric model.RankingMetric, weekStart time.Time) (*model.CompetitiveRanking, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
