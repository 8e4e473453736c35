package model

import (
	"encoding/json"
	"strings"
	"time"
)

// Capability partitions providers by what kind of input they can work with.
type Capability string

const (
	CapabilityVision Capability = "vision" // accepts images
	CapabilityText   Capability = "text"   // text-only reasoning
	CapabilitySearch Capability = "search" // live market/web data
)

// Decision is a provider's (or the consensus) buy/sell call for an item.
type Decision string

const (
	DecisionBuy  Decision = "BUY"
	DecisionSell Decision = "SELL"
)

// QualityTier classifies how much independent evidence backed a consensus.
type QualityTier string

const (
	QualityOptimal  QualityTier = "OPTIMAL"
	QualityDegraded QualityTier = "DEGRADED"
	QualityFallback QualityTier = "FALLBACK"
)

// ProviderConfig describes one AI provider in the roster. Loaded once per
// engine lifetime and immutable during a request.
type ProviderConfig struct {
	ID         string     `json:"id" yaml:"id" mapstructure:"id"`
	Name       string     `json:"name" yaml:"name" mapstructure:"name"`
	Vendor     string     `json:"vendor" yaml:"vendor" mapstructure:"vendor"` // anthropic, openai, gemini, perplexity
	Model      string     `json:"model" yaml:"model" mapstructure:"model"`
	BaseWeight float64    `json:"base_weight" yaml:"base_weight" mapstructure:"base_weight"`
	Capability Capability `json:"capability" yaml:"capability" mapstructure:"capability"`
	Specialty  string     `json:"specialty,omitempty" yaml:"specialty,omitempty" mapstructure:"specialty"`
	Active     bool       `json:"active" yaml:"active" mapstructure:"active"`
}

// ParsedAnalysis is a provider's own structured guess about an item.
type ParsedAnalysis struct {
	ItemName       string   `json:"item_name"`
	EstimatedValue float64  `json:"estimated_value"`
	Decision       Decision `json:"decision"`
	Confidence     float64  `json:"confidence"`
	Reasoning      string   `json:"reasoning"`
	Category       string   `json:"category,omitempty"`
}

// ModelVote is one provider's normalized vote in a single analysis. Votes
// from failed or timed-out providers never exist.
type ModelVote struct {
	ProviderID     string          `json:"provider_id"`
	ProviderName   string          `json:"provider_name"`
	Stage          Capability      `json:"stage"`
	ItemName       string          `json:"item_name"`
	EstimatedValue float64         `json:"estimated_value"`
	Decision       Decision        `json:"decision"`
	Confidence     float64         `json:"confidence"`
	LatencyMs      int64           `json:"latency_ms"`
	Weight         float64         `json:"weight"`
	Category       string          `json:"category,omitempty"`
	RawResponse    json.RawMessage `json:"raw_response,omitempty"` // opaque to the core
}

// ConsensusMetrics reports how the votes related to each other.
type ConsensusMetrics struct {
	AvgConfidence     float64 `json:"avg_confidence"`
	DecisionAgreement float64 `json:"decision_agreement"`
	ValueAgreement    float64 `json:"value_agreement"`
	ParticipationRate float64 `json:"participation_rate"`
}

// ConsensusResult is the single merged outcome of an analysis. Derived from
// the vote set, never mutated after creation.
type ConsensusResult struct {
	ItemName       string           `json:"item_name"`
	EstimatedValue float64          `json:"estimated_value"`
	Decision       Decision         `json:"decision"`
	Confidence     int              `json:"confidence"` // 0-100
	VoteCount      int              `json:"vote_count"`
	Quality        QualityTier      `json:"quality"`
	Metrics        ConsensusMetrics `json:"metrics"`
}

// AnalysisRecord is the persisted record of one analysis request. Read-only
// after creation; the ground-truth price is attached out-of-band later.
type AnalysisRecord struct {
	ID               string          `json:"id"`
	Prompt           string          `json:"prompt"`
	Votes            []ModelVote     `json:"votes"`
	Consensus        ConsensusResult `json:"consensus"`
	GroundTruthPrice *float64        `json:"ground_truth_price,omitempty"`
	ResolvedAt       *time.Time      `json:"resolved_at,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

// NormalizeItemName canonicalizes an item name for grouping votes that refer
// to the same item under slightly different spellings.
func NormalizeItemName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(name))), " ")
}
