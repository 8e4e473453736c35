// Package engine runs the staged multi-provider analysis pipeline: a vision
// wave over the images, a text wave seeded with the best visual description,
// and an optional live-market search wave, merged into a weighted consensus.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/valuation-cli/internal/consensus"
	"github.com/sells-group/valuation-cli/internal/ledger"
	"github.com/sells-group/valuation-cli/internal/model"
	"github.com/sells-group/valuation-cli/internal/provider"
)

const enhancedPromptFormat = "%s\n\nbased on expert visual analysis, this item has been identified as: %s"

const searchPromptFormat = "Research recent sold listings and current market prices for: %s. " +
	"Surface comparable items sold within the last 90 days and base your estimated resale value on that evidence."

// Request is one analysis request. DynamicWeights may be nil when no
// calibration history exists; the pipeline runs identically without it.
type Request struct {
	Images         [][]byte
	Prompt         string
	DynamicWeights model.DynamicWeightSet
}

// Result is the full outcome of a request: the consensus plus every vote for
// transparency. A caller always receives a Result, regardless of how many
// providers failed.
type Result struct {
	AnalysisID string                `json:"analysis_id"`
	Consensus  model.ConsensusResult `json:"consensus"`
	Votes      []model.ModelVote     `json:"votes"`
	CreatedAt  time.Time             `json:"created_at"`
}

// Engine holds the immutable per-lifetime state: the adapter registry and the
// ledger. Nothing here mutates during a request.
type Engine struct {
	registry    *provider.Registry
	ledger      *ledger.Ledger
	callTimeout time.Duration
}

// New creates an Engine. ledger may be nil to disable persistence (tests).
func New(registry *provider.Registry, l *ledger.Ledger, callTimeout time.Duration) *Engine {
	if callTimeout <= 0 {
		callTimeout = 45 * time.Second
	}
	return &Engine{registry: registry, ledger: l, callTimeout: callTimeout}
}

// settled is one provider's completed contribution to a stage, recorded in
// completion order.
type settled struct {
	vote   model.ModelVote
	parsed *model.ParsedAnalysis
}

// Run executes the three-stage pipeline and returns the consensus. It never
// fails on provider errors: a request with zero surviving votes yields the
// documented fallback consensus.
func (e *Engine) Run(ctx context.Context, req Request) *Result {
	analysisID := uuid.New().String()
	createdAt := time.Now().UTC()

	if e.ledger != nil {
		e.ledger.RecordAnalysis(analysisID, req.Prompt, createdAt)
	}

	visionAdapters := e.registry.ByCapability(model.CapabilityVision)
	textAdapters := e.registry.ByCapability(model.CapabilityText)
	searchAdapters := e.registry.ByCapability(model.CapabilitySearch)

	// Stage 1: vision wave over the original images and prompt. The text
	// stage must not start until every vision call has settled.
	visionResults := e.runStage(ctx, visionAdapters, req.Images, req.Prompt, model.CapabilityVision, req.DynamicWeights)

	// The best description is the first settled success with both an item
	// name and reasoning text. First-by-completion-order is the documented
	// tie-break, not a quality judgment.
	var bestDescription string
	for _, s := range visionResults {
		if s.parsed.ItemName != "" && s.parsed.Reasoning != "" {
			bestDescription = s.parsed.ItemName + ". " + s.parsed.Reasoning
			break
		}
	}

	// Stage 2: text wave, no images, prompt enhanced with the description
	// when one exists.
	textPrompt := req.Prompt
	if bestDescription != "" {
		textPrompt = fmt.Sprintf(enhancedPromptFormat, req.Prompt, bestDescription)
	}
	textResults := e.runStage(ctx, textAdapters, nil, textPrompt, model.CapabilityText, req.DynamicWeights)

	// Stage 3: live-market search, only when an item name was resolved from
	// either prior stage.
	itemName := resolveItemName(visionResults, textResults)
	var searchResults []settled
	requested := len(visionAdapters) + len(textAdapters)
	if itemName != "" && len(searchAdapters) > 0 {
		requested += len(searchAdapters)
		searchResults = e.runStage(ctx, searchAdapters, nil, fmt.Sprintf(searchPromptFormat, itemName), model.CapabilitySearch, req.DynamicWeights)
	}

	votes := make([]model.ModelVote, 0, len(visionResults)+len(textResults)+len(searchResults))
	for _, group := range [][]settled{visionResults, textResults, searchResults} {
		for _, s := range group {
			votes = append(votes, s.vote)
		}
	}

	result := consensus.Compute(votes, requested)

	if e.ledger != nil {
		for _, v := range votes {
			e.ledger.RecordVote(analysisID, v)
		}
		e.ledger.RecordConsensus(analysisID, result)
	}

	zap.L().Info("analysis complete",
		zap.String("analysis_id", analysisID),
		zap.String("item", result.ItemName),
		zap.Float64("value", result.EstimatedValue),
		zap.String("decision", string(result.Decision)),
		zap.Int("votes", len(votes)),
		zap.String("quality", string(result.Quality)),
	)

	return &Result{
		AnalysisID: analysisID,
		Consensus:  result,
		Votes:      votes,
		CreatedAt:  createdAt,
	}
}

// runStage fans out to every adapter concurrently and waits for all of them
// to settle. A provider that fails or times out contributes nothing; it never
// cancels or delays the others. Results are appended in completion order.
func (e *Engine) runStage(ctx context.Context, adapters []provider.Adapter, images [][]byte, prompt string, stage model.Capability, dyn model.DynamicWeightSet) []settled {
	if len(adapters) == 0 {
		return nil
	}

	var (
		g       errgroup.Group
		mu      sync.Mutex
		results []settled
	)

	for _, a := range adapters {
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
			defer cancel()

			res := a.Analyze(callCtx, images, prompt)
			if res.Response == nil {
				// Adapter already logged the failure; drop the vote.
				return nil
			}

			cfg := a.Config()
			vote := model.ModelVote{
				ProviderID:     cfg.ID,
				ProviderName:   cfg.Name,
				Stage:          stage,
				ItemName:       res.Response.ItemName,
				EstimatedValue: res.Response.EstimatedValue,
				Decision:       res.Response.Decision,
				Confidence:     res.Confidence,
				LatencyMs:      res.LatencyMs,
				Weight:         computeWeight(cfg, res.Confidence, stage, dyn),
				Category:       res.Response.Category,
				RawResponse:    res.Raw,
			}

			mu.Lock()
			results = append(results, settled{vote: vote, parsed: res.Response})
			mu.Unlock()
			return nil
		})
	}

	_ = g.Wait() // goroutines always return nil; failures are per-provider
	return results
}

// resolveItemName picks the item name the search stage should research:
// the first vision vote with a name, falling back to the first text vote.
func resolveItemName(visionResults, textResults []settled) string {
	for _, group := range [][]settled{visionResults, textResults} {
		for _, s := range group {
			if s.parsed.ItemName != "" {
				return s.parsed.ItemName
			}
		}
	}
	return ""
}
