package benchmark

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/valuation-cli/internal/model"
)

func (a *Aggregator) rebuildRankings(ctx context.Context, cards []model.WeeklyScorecard, weekStart time.Time) error {
	priorWeek := weekStart.AddDate(0, 0, -7)
	for _, metric := range []model.RankingMetric{model.RankingOverall, model.RankingPriceAccuracy, model.RankingSpeed} {
		prior, err := a.store.GetRanking(ctx, metric, priorWeek)
		if err != nil {
			return eris.Wrapf(err, "benchmark: load prior ranking %s", metric)
		}
		ranking := BuildRanking(metric, weekStart, cards, prior)
		if err := a.store.SaveRanking(ctx, ranking); err != nil {
			return eris.Wrapf(err, "benchmark: save ranking %s", metric)
		}
	}
	return nil
}

// BuildRanking orders providers by one metric. Deltas are week-over-week rank
// movement against the prior ranking; a provider with no prior position (or
// no prior week at all) gets a nil delta.
func BuildRanking(metric model.RankingMetric, weekStart time.Time, cards []model.WeeklyScorecard, prior *model.CompetitiveRanking) model.CompetitiveRanking {
	entries := make([]model.RankingEntry, 0, len(cards))
	for _, card := range cards {
		entries = append(entries, model.RankingEntry{
			ProviderID: card.ProviderID,
			Score:      metricScore(metric, card),
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].ProviderID < entries[j].ProviderID
	})

	priorRanks := make(map[string]int)
	if prior != nil {
		for _, e := range prior.Entries {
			priorRanks[e.ProviderID] = e.Rank
		}
	}

	for i := range entries {
		entries[i].Rank = i + 1
		if prev, ok := priorRanks[entries[i].ProviderID]; ok {
			// Positive delta means the provider moved up.
			d := prev - entries[i].Rank
			entries[i].Delta = &d
		}
	}

	return model.CompetitiveRanking{
		Metric:    metric,
		WeekStart: weekStart.UTC(),
		Entries:   entries,
	}
}

func metricScore(metric model.RankingMetric, card model.WeeklyScorecard) float64 {
	switch metric {
	case model.RankingPriceAccuracy:
		return math.Max(0, 100-card.MAPE)
	case model.RankingSpeed:
		return speedScoreFromP50(card.LatencyP50Ms)
	default:
		return card.CompositeScore
	}
}
