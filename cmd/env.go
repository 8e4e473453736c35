package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/valuation-cli/internal/benchmark"
	"github.com/sells-group/valuation-cli/internal/config"
	"github.com/sells-group/valuation-cli/internal/engine"
	"github.com/sells-group/valuation-cli/internal/ledger"
	"github.com/sells-group/valuation-cli/internal/provider"
	"github.com/sells-group/valuation-cli/internal/store"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.SQLitePath
		if dsn == "" {
			dsn = "valuation.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		if cfg.Store.DatabaseURL == "" {
			return nil, eris.New("store.database_url is required for the postgres driver")
		}
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func credentials() provider.Credentials {
	// Per-vendor rate caps could differ; the lowest configured cap wins for
	// vendors that leave theirs unset.
	rps := cfg.Anthropic.RequestsPerSecond
	for _, v := range []float64{cfg.OpenAI.RequestsPerSecond, cfg.Gemini.RequestsPerSecond, cfg.Perplexity.RequestsPerSecond} {
		if v > 0 && (rps == 0 || v < rps) {
			rps = v
		}
	}
	return provider.Credentials{
		AnthropicKey:      cfg.Anthropic.Key,
		OpenAIKey:         cfg.OpenAI.Key,
		OpenAIBaseURL:     cfg.OpenAI.BaseURL,
		GeminiKey:         cfg.Gemini.Key,
		GeminiBaseURL:     cfg.Gemini.BaseURL,
		PerplexityKey:     cfg.Perplexity.Key,
		PerplexityBaseURL: cfg.Perplexity.BaseURL,
		RequestsPerSecond: rps,
	}
}

// analysisEnv bundles everything a command needs to run analyses.
type analysisEnv struct {
	Store    store.Store
	Ledger   *ledger.Ledger
	Engine   *engine.Engine
	Resolver *benchmark.Resolver
}

func (e *analysisEnv) Close() {
	if e.Ledger != nil {
		e.Ledger.Close()
	}
	if e.Store != nil {
		e.Store.Close()
	}
}

func initAnalysisEnv(ctx context.Context) (*analysisEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	providers, err := config.LoadProviders(cfg.Engine.ProvidersFile)
	if err != nil {
		st.Close()
		return nil, err
	}
	registry, err := provider.BuildRegistry(providers, credentials())
	if err != nil {
		st.Close()
		return nil, err
	}

	led := ledger.New(st, cfg.Engine.LedgerQueueSize)
	eng := engine.New(registry, led, time.Duration(cfg.Engine.CallTimeoutSecs)*time.Second)
	resolver := benchmark.NewResolver(st, benchmark.ResolverConfig{
		LookbackWeeks: cfg.Benchmark.LookbackWeeks,
		MinSamples:    cfg.Benchmark.MinSamples,
	})

	return &analysisEnv{Store: st, Ledger: led, Engine: eng, Resolver: resolver}, nil
}
