// Package provider wraps each AI vendor behind a uniform capability adapter.
// Adapters never return errors for ordinary failures (timeouts, bad payloads,
// malformed JSON); those yield a nil Response so the caller simply records no
// vote. Only construction may fail, on missing credentials.
package provider

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/valuation-cli/internal/model"
	"github.com/sells-group/valuation-cli/internal/resilience"
)

// Result is the outcome of one adapter call. Response is nil when the
// provider failed or produced an unusable payload.
type Result struct {
	Response   *model.ParsedAnalysis
	Raw        json.RawMessage
	Confidence float64 // 0-1, provider self-reported
	LatencyMs  int64
}

// Adapter is the uniform capability wrapper around one AI vendor.
type Adapter interface {
	Config() model.ProviderConfig
	Analyze(ctx context.Context, images [][]byte, prompt string) Result
}

// callFunc performs the raw vendor call and returns the model's text output.
type callFunc func(ctx context.Context, images [][]byte, prompt string) (string, error)

// adapter implements the shared timing/parsing/failure handling; vendors
// supply only the call.
type adapter struct {
	cfg   model.ProviderConfig
	call  callFunc
	retry resilience.RetryConfig
}

func newAdapter(cfg model.ProviderConfig, call callFunc) *adapter {
	return &adapter{cfg: cfg, call: call, retry: resilience.DefaultRetryConfig()}
}

func (a *adapter) Config() model.ProviderConfig {
	return a.cfg
}

func (a *adapter) Analyze(ctx context.Context, images [][]byte, prompt string) Result {
	start := time.Now()
	text, err := resilience.DoVal(ctx, a.retry, func(ctx context.Context) (string, error) {
		return a.call(ctx, images, prompt)
	})
	latency := time.Since(start).Milliseconds()

	if err != nil {
		zap.L().Warn("provider call failed",
			zap.String("provider", a.cfg.ID),
			zap.Int64("latency_ms", latency),
			zap.Error(err),
		)
		return Result{LatencyMs: latency}
	}

	parsed, raw, err := ParseAnalysis(text)
	if err != nil {
		zap.L().Warn("provider returned unparseable analysis",
			zap.String("provider", a.cfg.ID),
			zap.Error(err),
		)
		return Result{LatencyMs: latency}
	}

	conf := parsed.Confidence
	if conf < 0 {
		conf = 0
	} else if conf > 1 {
		conf = 1
	}

	return Result{
		Response:   parsed,
		Raw:        raw,
		Confidence: conf,
		LatencyMs:  latency,
	}
}
