package benchmark

import (
	"context"
	"math"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/valuation-cli/internal/model"
	"github.com/sells-group/valuation-cli/internal/store"
)

// Multiplier clamp bounds: calibration can at most halve or 1.5x a
// provider's configured base weight.
const (
	minMultiplier = 0.5
	maxMultiplier = 1.5
)

// ResolverConfig tunes how scorecard history turns into trust multipliers.
type ResolverConfig struct {
	LookbackWeeks int `yaml:"lookback_weeks" mapstructure:"lookback_weeks"`
	MinSamples    int `yaml:"min_samples" mapstructure:"min_samples"`
}

func (c ResolverConfig) withDefaults() ResolverConfig {
	if c.LookbackWeeks <= 0 {
		c.LookbackWeeks = 4
	}
	if c.MinSamples <= 0 {
		c.MinSamples = 5
	}
	return c
}

// Resolver derives per-provider trust multipliers from recent scorecards.
// Providers without enough graded votes keep an implicit 1.0 multiplier, so
// a fresh deployment behaves exactly like the static configuration.
type Resolver struct {
	store store.Store
	cfg   ResolverConfig
}

func NewResolver(st store.Store, cfg ResolverConfig) *Resolver {
	return &Resolver{store: st, cfg: cfg.withDefaults()}
}

// Resolve returns the dynamic weight set as of now.
func (r *Resolver) Resolve(ctx context.Context, now time.Time) (model.DynamicWeightSet, error) {
	since := now.UTC().AddDate(0, 0, -7*r.cfg.LookbackWeeks)
	cards, err := r.store.ListScorecardsSince(ctx, since)
	if err != nil {
		return nil, eris.Wrap(err, "benchmark: load scorecards")
	}
	return resolveWeights(cards, r.cfg), nil
}

func resolveWeights(cards []model.WeeklyScorecard, cfg ResolverConfig) model.DynamicWeightSet {
	byProvider := make(map[string][]model.WeeklyScorecard)
	for _, card := range cards {
		byProvider[card.ProviderID] = append(byProvider[card.ProviderID], card)
	}

	weights := make(model.DynamicWeightSet)
	for id, history := range byProvider {
		samples := 0
		for _, card := range history {
			samples += card.SuccessfulVotes
		}
		if samples < cfg.MinSamples {
			zap.L().Debug("provider below calibration sample floor",
				zap.String("provider", id), zap.Int("samples", samples))
			continue
		}

		sum := 0.0
		for _, card := range history {
			sum += cardMultiplier(card)
		}
		weights[id] = sum / float64(len(history))
	}
	return weights
}

// cardMultiplier grades one scorecard into a trust multiplier. Decision
// accuracy above a coin flip earns trust, price error burns it.
func cardMultiplier(card model.WeeklyScorecard) float64 {
	m := 1.0 +
		0.5*(card.DecisionAccuracy-0.5) -
		0.25*math.Min(1, card.MAPE/50)
	return math.Max(minMultiplier, math.Min(maxMultiplier, m))
}
