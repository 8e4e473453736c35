package engine

import "github.com/sells-group/valuation-cli/internal/model"

const (
	specialtyMultiplier = 1.3
	searchMultiplier    = 1.2 // live-data premium
)

// computeWeight derives a vote's trust weight:
//
//	weight = baseWeight × dynamicMultiplier × confidence
//
// then ×1.3 when the provider's specialty matches the stage's role and ×1.2
// for search-stage votes. The multipliers compose. A confidence of 0 yields
// weight 0, which downstream treats as a valid non-influential vote.
func computeWeight(cfg model.ProviderConfig, confidence float64, stage model.Capability, dyn model.DynamicWeightSet) float64 {
	base := cfg.BaseWeight
	if dyn != nil {
		base *= dyn.Multiplier(cfg.ID)
	}

	w := base * confidence
	if specialtyMatches(cfg.Specialty, stage) {
		w *= specialtyMultiplier
	}
	if stage == model.CapabilitySearch {
		w *= searchMultiplier
	}
	if w < 0 {
		w = 0
	}
	return w
}

// specialtyMatches reports whether a provider specialty lines up with the
// role a stage plays: pricing specialists match the market-research stage,
// any other specialty matches the stage of the same name.
func specialtyMatches(specialty string, stage model.Capability) bool {
	switch specialty {
	case "":
		return false
	case "pricing":
		return stage == model.CapabilitySearch
	default:
		return specialty == string(stage)
	}
}
