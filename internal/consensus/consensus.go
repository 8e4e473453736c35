// Package consensus merges provider votes into a single price, decision,
// confidence score and quality tier. Everything here is a pure function of
// the vote set: recomputing from identical votes yields identical output.
package consensus

import (
	"math"

	"github.com/sells-group/valuation-cli/internal/model"
)

// FallbackItemName is the item name reported when no provider produced a vote.
const FallbackItemName = "Unknown Item"

const diversitySaturation = 7 // independent votes at which the participation bonus maxes out

// Fallback returns the consensus used when the vote set is empty.
func Fallback() model.ConsensusResult {
	return model.ConsensusResult{
		ItemName:       FallbackItemName,
		EstimatedValue: 0,
		Decision:       model.DecisionSell,
		Confidence:     0,
		VoteCount:      0,
		Quality:        model.QualityFallback,
	}
}

// Compute derives the consensus from a vote set. requestedProviders is the
// number of providers the request fanned out to; it only feeds the
// participation-rate metric and may be zero when unknown.
func Compute(votes []model.ModelVote, requestedProviders int) model.ConsensusResult {
	if len(votes) == 0 {
		return Fallback()
	}

	var (
		totalWeight float64
		weightedSum float64
		buyWeight   float64
		sellWeight  float64
		confSum     float64
		minValue    = votes[0].EstimatedValue
		maxValue    = votes[0].EstimatedValue
	)
	for _, v := range votes {
		totalWeight += v.Weight
		weightedSum += v.EstimatedValue * v.Weight
		confSum += v.Confidence
		if v.Decision == model.DecisionBuy {
			buyWeight += v.Weight
		} else {
			sellWeight += v.Weight
		}
		if v.EstimatedValue < minValue {
			minValue = v.EstimatedValue
		}
		if v.EstimatedValue > maxValue {
			maxValue = v.EstimatedValue
		}
	}

	// Weight-normalized average; falls back to the unweighted mean when every
	// vote carries zero weight so the value still lands inside [min, max].
	var value float64
	if totalWeight > 0 {
		value = weightedSum / totalWeight
	} else {
		var sum float64
		for _, v := range votes {
			sum += v.EstimatedValue
		}
		value = sum / float64(len(votes))
	}

	// Decision ties resolve to SELL, the conservative default.
	decision := model.DecisionSell
	if buyWeight > sellWeight {
		decision = model.DecisionBuy
	}

	avgConfidence := confSum / float64(len(votes))

	// agreement: 0 = perfect buy/sell split, 1 = unanimous by weight.
	var agreement float64
	if totalWeight > 0 {
		buyShare := buyWeight / totalWeight
		agreement = math.Abs(buyShare-0.5) * 2
	}

	diversity := math.Min(1, float64(len(votes))/float64(diversitySaturation))

	confidence := int(math.Round(100 * (0.6*avgConfidence + 0.3*agreement + 0.1*diversity)))
	if confidence < 0 {
		confidence = 0
	} else if confidence > 100 {
		confidence = 100
	}

	participation := diversity
	if requestedProviders > 0 {
		participation = math.Min(1, float64(len(votes))/float64(requestedProviders))
	}

	return model.ConsensusResult{
		ItemName:       consensusName(votes),
		EstimatedValue: value,
		Decision:       decision,
		Confidence:     confidence,
		VoteCount:      len(votes),
		Quality:        qualityTier(votes),
		Metrics: model.ConsensusMetrics{
			AvgConfidence:     avgConfidence,
			DecisionAgreement: agreement,
			ValueAgreement:    valueAgreement(votes, minValue, maxValue),
			ParticipationRate: participation,
		},
	}
}

// consensusName groups votes by normalized item name, scores each group by
// the sum of weight*confidence, and picks the highest-scoring group. Ties
// resolve to the group encountered first.
func consensusName(votes []model.ModelVote) string {
	type nameGroup struct {
		display string
		score   float64
	}
	var groups []nameGroup
	index := make(map[string]int)

	for _, v := range votes {
		norm := model.NormalizeItemName(v.ItemName)
		if norm == "" {
			continue
		}
		i, ok := index[norm]
		if !ok {
			i = len(groups)
			index[norm] = i
			groups = append(groups, nameGroup{display: v.ItemName})
		}
		groups[i].score += v.Weight * v.Confidence
	}

	if len(groups) == 0 {
		return FallbackItemName
	}
	best := 0
	for i, g := range groups {
		if g.score > groups[best].score {
			best = i
		}
	}
	return groups[best].display
}

// qualityTier applies the ordered OPTIMAL -> DEGRADED -> FALLBACK checks.
func qualityTier(votes []model.ModelVote) model.QualityTier {
	var vision, text bool
	for _, v := range votes {
		switch v.Stage {
		case model.CapabilityVision:
			vision = true
		case model.CapabilityText:
			text = true
		}
	}
	switch {
	case len(votes) >= 6 && vision && text:
		return model.QualityOptimal
	case len(votes) >= 3 && vision:
		return model.QualityDegraded
	default:
		return model.QualityFallback
	}
}

// valueAgreement measures how tightly the estimates cluster: 1 when all
// votes agree on the value, trending to 0 as the spread approaches the mean.
func valueAgreement(votes []model.ModelVote, minValue, maxValue float64) float64 {
	if len(votes) <= 1 || minValue == maxValue {
		return 1
	}
	var sum float64
	for _, v := range votes {
		sum += v.EstimatedValue
	}
	mean := sum / float64(len(votes))
	if mean <= 0 {
		return 0
	}
	return math.Max(0, 1-(maxValue-minValue)/mean)
}
