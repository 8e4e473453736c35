package model

import "time"

// CategoryMetrics is the per-category slice of a provider's weekly metrics.
type CategoryMetrics struct {
	Votes            int     `json:"votes"`
	MAPE             float64 `json:"mape"`
	DecisionAccuracy float64 `json:"decision_accuracy"`
}

// WeeklyScorecard grades one provider against ground truth for one week.
// Recomputed fresh each calibration cycle, never incrementally patched.
type WeeklyScorecard struct {
	ProviderID       string                     `json:"provider_id"`
	WeekStart        time.Time                  `json:"week_start"`
	WeekEnd          time.Time                  `json:"week_end"`
	TotalVotes       int                        `json:"total_votes"`
	SuccessfulVotes  int                        `json:"successful_votes"`
	MeanAbsoluteErr  float64                    `json:"mean_absolute_error"`
	MAPE             float64                    `json:"mape"`
	DecisionAccuracy float64                    `json:"decision_accuracy"`
	LatencyP50Ms     int64                      `json:"latency_p50_ms"`
	LatencyP95Ms     int64                      `json:"latency_p95_ms"`
	OverCount        int                        `json:"over_count"`
	UnderCount       int                        `json:"under_count"`
	AccurateCount    int                        `json:"accurate_count"` // within 10% of ground truth
	Categories       map[string]CategoryMetrics `json:"categories,omitempty"`
	CompositeScore   float64                    `json:"composite_score"` // 0-100
}

// RankingMetric selects which dimension a competitive ranking is sorted by.
type RankingMetric string

const (
	RankingOverall       RankingMetric = "overall"
	RankingPriceAccuracy RankingMetric = "price_accuracy"
	RankingSpeed         RankingMetric = "speed"
)

// RankingEntry is one provider's position in a competitive ranking. Delta is
// the week-over-week rank change; nil when no prior week exists.
type RankingEntry struct {
	ProviderID string  `json:"provider_id"`
	Rank       int     `json:"rank"`
	Score      float64 `json:"score"`
	Delta      *int    `json:"delta,omitempty"`
}

// CompetitiveRanking orders providers for one metric in one week.
type CompetitiveRanking struct {
	Metric    RankingMetric  `json:"metric"`
	WeekStart time.Time      `json:"week_start"`
	Entries   []RankingEntry `json:"entries"`
}

// DynamicWeightSet maps provider id to a trust multiplier. Consumed once per
// analysis request; never mutated mid-request.
type DynamicWeightSet map[string]float64

// Multiplier returns the multiplier for a provider, defaulting to 1.0 for
// providers with no calibration history.
func (s DynamicWeightSet) Multiplier(providerID string) float64 {
	if s == nil {
		return 1.0
	}
	if m, ok := s[providerID]; ok {
		return m
	}
	return 1.0
}
