package benchmark

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/valuation-cli/internal/model"
	"github.com/sells-group/valuation-cli/internal/store"
)

// accurateBand is the relative error inside which an estimate counts as
// accurate rather than over or under.
const accurateBand = 0.10

// Composite score component weights.
const (
	priceWeight    = 0.4
	decisionWeight = 0.2
	speedWeight    = 0.2
	coverageWeight = 0.2
)

// Speed scoring anchors: full marks at or under fastP50, zero at slowP50.
const (
	fastP50Ms = 1000
	slowP50Ms = 30000
)

// Aggregator recomputes weekly provider scorecards and competitive rankings
// from resolved analyses. Each run is a full recomputation of the week, so
// re-running after late ground-truth arrivals simply overwrites.
type Aggregator struct {
	store store.Store
}

func NewAggregator(st store.Store) *Aggregator {
	return &Aggregator{store: st}
}

// RunWeek grades every provider that voted on an analysis resolved with
// ground truth in the week starting at weekStart, persists the scorecards,
// and rebuilds the competitive rankings with week-over-week deltas.
func (a *Aggregator) RunWeek(ctx context.Context, weekStart time.Time) ([]model.WeeklyScorecard, error) {
	weekStart = weekStart.UTC()
	weekEnd := weekStart.AddDate(0, 0, 7)

	records, err := a.store.ListResolvedAnalyses(ctx, weekStart, weekEnd)
	if err != nil {
		return nil, eris.Wrap(err, "benchmark: load resolved analyses")
	}

	cards := ComputeScorecards(records, weekStart, weekEnd)
	for _, card := range cards {
		if err := a.store.SaveScorecard(ctx, card); err != nil {
			return nil, eris.Wrapf(err, "benchmark: save scorecard %s", card.ProviderID)
		}
	}

	if err := a.rebuildRankings(ctx, cards, weekStart); err != nil {
		return nil, err
	}

	zap.L().Info("benchmark week aggregated",
		zap.Time("week_start", weekStart),
		zap.Int("analyses", len(records)),
		zap.Int("providers", len(cards)))
	return cards, nil
}

// sample is one provider vote joined with its analysis ground truth.
type sample struct {
	estimate  float64
	truth     float64
	decision  model.Decision
	latencyMs int64
	category  string
}

// ComputeScorecards grades providers from resolved analyses. Pure; output is
// ordered by provider id so repeated runs over the same input are identical.
func ComputeScorecards(records []model.AnalysisRecord, weekStart, weekEnd time.Time) []model.WeeklyScorecard {
	samples := make(map[string][]sample)
	for _, rec := range records {
		if rec.GroundTruthPrice == nil {
			continue
		}
		truth := *rec.GroundTruthPrice
		for _, v := range rec.Votes {
			samples[v.ProviderID] = append(samples[v.ProviderID], sample{
				estimate:  v.EstimatedValue,
				truth:     truth,
				decision:  v.Decision,
				latencyMs: v.LatencyMs,
				category:  v.Category,
			})
		}
	}

	ids := make([]string, 0, len(samples))
	for id := range samples {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	totalAnalyses := 0
	for _, rec := range records {
		if rec.GroundTruthPrice != nil {
			totalAnalyses++
		}
	}

	cards := make([]model.WeeklyScorecard, 0, len(ids))
	for _, id := range ids {
		cards = append(cards, gradeProvider(id, samples[id], totalAnalyses, weekStart, weekEnd))
	}
	return cards
}

func gradeProvider(id string, samples []sample, totalAnalyses int, weekStart, weekEnd time.Time) model.WeeklyScorecard {
	card := model.WeeklyScorecard{
		ProviderID:      id,
		WeekStart:       weekStart,
		WeekEnd:         weekEnd,
		TotalVotes:      totalAnalyses,
		SuccessfulVotes: len(samples),
	}

	var (
		absErrSum  float64
		pctErrSum  float64
		pctErrN    int
		correct    int
		latencies  []int64
		categories = make(map[string]*categoryAccum)
	)
	for _, s := range samples {
		absErr := math.Abs(s.estimate - s.truth)
		absErrSum += absErr
		if s.truth > 0 {
			pctErrSum += absErr / s.truth * 100
			pctErrN++
		}
		if decisionCorrect(s.decision, s.estimate, s.truth) {
			correct++
		}
		latencies = append(latencies, s.latencyMs)

		switch classifyEstimate(s.estimate, s.truth) {
		case estimateAccurate:
			card.AccurateCount++
		case estimateOver:
			card.OverCount++
		case estimateUnder:
			card.UnderCount++
		}

		if s.category != "" {
			acc := categories[s.category]
			if acc == nil {
				acc = &categoryAccum{}
				categories[s.category] = acc
			}
			acc.add(s)
		}
	}

	n := float64(len(samples))
	if n > 0 {
		card.MeanAbsoluteErr = absErrSum / n
		card.DecisionAccuracy = float64(correct) / n
	}
	if pctErrN > 0 {
		card.MAPE = pctErrSum / float64(pctErrN)
	}
	card.LatencyP50Ms = percentile(latencies, 0.50)
	card.LatencyP95Ms = percentile(latencies, 0.95)

	if len(categories) > 0 {
		card.Categories = make(map[string]model.CategoryMetrics, len(categories))
		for name, acc := range categories {
			card.Categories[name] = acc.metrics()
		}
	}

	card.CompositeScore = compositeScore(card)
	return card
}

type estimateClass int

const (
	estimateAccurate estimateClass = iota
	estimateOver
	estimateUnder
)

func classifyEstimate(estimate, truth float64) estimateClass {
	if truth == 0 {
		if estimate == 0 {
			return estimateAccurate
		}
		return estimateOver
	}
	rel := (estimate - truth) / truth
	switch {
	case math.Abs(rel) <= accurateBand:
		return estimateAccurate
	case rel > 0:
		return estimateOver
	default:
		return estimateUnder
	}
}

// decisionCorrect checks a buy/sell call against the resale price: buying was
// right when the item resolved at or above the estimate, selling when below.
func decisionCorrect(d model.Decision, estimate, truth float64) bool {
	if d == model.DecisionBuy {
		return truth >= estimate
	}
	return truth < estimate
}

type categoryAccum struct {
	votes     int
	pctErrSum float64
	pctErrN   int
	correct   int
}

func (c *categoryAccum) add(s sample) {
	c.votes++
	if s.truth > 0 {
		c.pctErrSum += math.Abs(s.estimate-s.truth) / s.truth * 100
		c.pctErrN++
	}
	if decisionCorrect(s.decision, s.estimate, s.truth) {
		c.correct++
	}
}

func (c *categoryAccum) metrics() model.CategoryMetrics {
	m := model.CategoryMetrics{Votes: c.votes}
	if c.pctErrN > 0 {
		m.MAPE = c.pctErrSum / float64(c.pctErrN)
	}
	if c.votes > 0 {
		m.DecisionAccuracy = float64(c.correct) / float64(c.votes)
	}
	return m
}

// percentile returns the nearest-rank percentile of latencies in ms.
func percentile(latencies []int64, p float64) int64 {
	if len(latencies) == 0 {
		return 0
	}
	sorted := make([]int64, len(latencies))
	copy(sorted, latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	rank := int(math.Ceil(p * float64(len(sorted))))
	if rank < 1 {
		rank = 1
	}
	return sorted[rank-1]
}

// compositeScore blends price accuracy, decision accuracy, speed, and
// coverage into a single 0-100 grade.
func compositeScore(card model.WeeklyScorecard) float64 {
	priceScore := math.Max(0, 100-card.MAPE)
	decisionScore := card.DecisionAccuracy * 100
	speedScore := speedScoreFromP50(card.LatencyP50Ms)

	coverageScore := 0.0
	if card.TotalVotes > 0 {
		coverageScore = math.Min(1, float64(card.SuccessfulVotes)/float64(card.TotalVotes)) * 100
	}

	score := priceWeight*priceScore +
		decisionWeight*decisionScore +
		speedWeight*speedScore +
		coverageWeight*coverageScore
	return math.Max(0, math.Min(100, score))
}

func speedScoreFromP50(p50Ms int64) float64 {
	switch {
	case p50Ms <= fastP50Ms:
		return 100
	case p50Ms >= slowP50Ms:
		return 0
	default:
		return 100 * float64(slowP50Ms-p50Ms) / float64(slowP50Ms-fastP50Ms)
	}
}
