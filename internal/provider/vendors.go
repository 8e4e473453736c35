package provider

import (
	"context"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/valuation-cli/internal/model"
	"github.com/sells-group/valuation-cli/pkg/anthropic"
	"github.com/sells-group/valuation-cli/pkg/gemini"
	"github.com/sells-group/valuation-cli/pkg/openai"
	"github.com/sells-group/valuation-cli/pkg/perplexity"
)

const analysisSystemPrompt = `You are an expert appraiser of collectible and resale items. Respond with a single valid JSON object and nothing else: {"item_name": "<specific item name>", "estimated_value": <resale value in USD>, "decision": "BUY" or "SELL", "confidence": <0.0-1.0>, "reasoning": "<one paragraph>", "category": "<item category>"}`

const maxResponseTokens = 1024

// Credentials holds the vendor API settings adapters are constructed from.
// Missing keys fail loudly at construction, before any request is processed.
type Credentials struct {
	AnthropicKey      string
	OpenAIKey         string
	OpenAIBaseURL     string
	GeminiKey         string
	GeminiBaseURL     string
	PerplexityKey     string
	PerplexityBaseURL string

	// RequestsPerSecond caps each vendor client; zero means no limit.
	RequestsPerSecond float64
}

func (c Credentials) limiter() *rate.Limiter {
	if c.RequestsPerSecond <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(c.RequestsPerSecond), 1)
}

// NewAdapter constructs the adapter for one provider config. This is the
// only place in the pipeline allowed to fail on bad configuration.
func NewAdapter(cfg model.ProviderConfig, creds Credentials) (Adapter, error) {
	switch cfg.Vendor {
	case "anthropic":
		if creds.AnthropicKey == "" {
			return nil, eris.Errorf("provider %s: anthropic api key not configured", cfg.ID)
		}
		client := anthropic.NewClient(creds.AnthropicKey)
		return newAdapter(cfg, anthropicCall(client, cfg.Model)), nil

	case "openai":
		if creds.OpenAIKey == "" {
			return nil, eris.Errorf("provider %s: openai api key not configured", cfg.ID)
		}
		opts := []openai.Option{openai.WithModel(cfg.Model)}
		if creds.OpenAIBaseURL != "" {
			opts = append(opts, openai.WithBaseURL(creds.OpenAIBaseURL))
		}
		if l := creds.limiter(); l != nil {
			opts = append(opts, openai.WithRateLimiter(l))
		}
		return newAdapter(cfg, openaiCall(openai.NewClient(creds.OpenAIKey, opts...))), nil

	case "gemini":
		if creds.GeminiKey == "" {
			return nil, eris.Errorf("provider %s: gemini api key not configured", cfg.ID)
		}
		opts := []gemini.Option{gemini.WithModel(cfg.Model)}
		if creds.GeminiBaseURL != "" {
			opts = append(opts, gemini.WithBaseURL(creds.GeminiBaseURL))
		}
		if l := creds.limiter(); l != nil {
			opts = append(opts, gemini.WithRateLimiter(l))
		}
		return newAdapter(cfg, geminiCall(gemini.NewClient(creds.GeminiKey, opts...))), nil

	case "perplexity":
		if creds.PerplexityKey == "" {
			return nil, eris.Errorf("provider %s: perplexity api key not configured", cfg.ID)
		}
		opts := []perplexity.Option{perplexity.WithModel(cfg.Model)}
		if creds.PerplexityBaseURL != "" {
			opts = append(opts, perplexity.WithBaseURL(creds.PerplexityBaseURL))
		}
		if l := creds.limiter(); l != nil {
			opts = append(opts, perplexity.WithRateLimiter(l))
		}
		return newAdapter(cfg, perplexityCall(perplexity.NewClient(creds.PerplexityKey, opts...))), nil

	default:
		return nil, eris.Errorf("provider %s: unknown vendor %q", cfg.ID, cfg.Vendor)
	}
}

func anthropicCall(client anthropic.Client, modelID string) callFunc {
	return func(ctx context.Context, images [][]byte, prompt string) (string, error) {
		resp, err := client.CreateMessage(ctx, anthropic.MessageRequest{
			Model:     modelID,
			MaxTokens: maxResponseTokens,
			System:    analysisSystemPrompt,
			Messages:  []anthropic.Message{{Role: "user", Text: prompt, Images: images}},
		})
		if err != nil {
			return "", err
		}
		return resp.Text, nil
	}
}

func openaiCall(client openai.Client) callFunc {
	return func(ctx context.Context, images [][]byte, prompt string) (string, error) {
		msgs := []openai.Message{openai.TextMessage("system", analysisSystemPrompt)}
		if len(images) > 0 {
			msgs = append(msgs, openai.VisionMessage(prompt, images))
		} else {
			msgs = append(msgs, openai.TextMessage("user", prompt))
		}
		maxTokens := maxResponseTokens
		resp, err := client.ChatCompletion(ctx, openai.ChatCompletionRequest{
			Messages:  msgs,
			MaxTokens: &maxTokens,
		})
		if err != nil {
			return "", err
		}
		if len(resp.Choices) == 0 {
			return "", eris.New("openai: empty choices")
		}
		return resp.Choices[0].Message.Content, nil
	}
}

func geminiCall(client gemini.Client) callFunc {
	return func(ctx context.Context, images [][]byte, prompt string) (string, error) {
		resp, err := client.GenerateContent(ctx, gemini.GenerateRequest{
			Prompt: analysisSystemPrompt + "\n\n" + prompt,
			Images: images,
		})
		if err != nil {
			return "", err
		}
		return resp.Text(), nil
	}
}

func perplexityCall(client perplexity.Client) callFunc {
	return func(ctx context.Context, _ [][]byte, prompt string) (string, error) {
		maxTokens := maxResponseTokens
		resp, err := client.ChatCompletion(ctx, perplexity.ChatCompletionRequest{
			Messages: []perplexity.Message{
				{Role: "system", Content: analysisSystemPrompt},
				{Role: "user", Content: prompt},
			},
			MaxTokens: &maxTokens,
		})
		if err != nil {
			return "", err
		}
		if len(resp.Choices) == 0 {
			return "", eris.New("perplexity: empty choices")
		}
		return resp.Choices[0].Message.Content, nil
	}
}
