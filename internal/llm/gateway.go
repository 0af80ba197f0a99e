package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/nikhilbhutani/studywise/internal/config"
	"github.com/nikhilbhutani/studywise/internal/logger"
	"github.com/nikhilbhutani/studywise/internal/metrics"
)

type GatewayOptions struct {
	DefaultProvider  string
	FallbackProvider string
	FallbackModel    string
	MaxRetries       int
	Backoff          func(attempt int) time.Duration
}

type gateway struct {
	log       *logger.Logger
	providers map[string]Provider
	opts      GatewayOptions
}

// NewGateway builds a gateway with every provider that has credentials in cfg.
func NewGateway(cfg config.LLMConfig, log *logger.Logger) Gateway {
	var providers []Provider
	if cfg.OpenAIKey != "" {
		providers = append(providers, NewOpenAIProvider("openai", cfg.OpenAIKey, cfg.OpenAIBaseURL))
	}
	if cfg.GroqKey != "" {
		providers = append(providers, NewOpenAIProvider("groq", cfg.GroqKey, cfg.GroqBaseURL))
	}
	if cfg.AnthropicKey != "" {
		providers = append(providers, NewAnthropicProvider(cfg.AnthropicKey))
	}
	if cfg.GeminiKey != "" {
		gemini, err := NewGeminiProvider(context.Background(), cfg.GeminiBaseURL, cfg.GeminiKey)
		if err != nil {
			log.Warn("gemini provider disabled", "error", err)
		} else {
			providers = append(providers, gemini)
		}
	}
	if cfg.OllamaURL != "" {
		providers = append(providers, NewOllamaProvider(cfg.OllamaURL))
	}

	return NewGatewayWithProviders(log, GatewayOptions{
		DefaultProvider:  cfg.DefaultProvider,
		FallbackProvider: cfg.FallbackProvider,
		FallbackModel:    cfg.FallbackModel,
		MaxRetries:       cfg.MaxRetries,
	}, providers...)
}

func NewGatewayWithProviders(log *logger.Logger, opts GatewayOptions, providers ...Provider) Gateway {
	if opts.Backoff == nil {
		opts.Backoff = func(attempt int) time.Duration {
			return time.Duration(attempt*attempt) * 500 * time.Millisecond
		}
	}
	g := &gateway{
		log:       log.With("component", "llm_gateway"),
		providers: make(map[string]Provider, len(providers)),
		opts:      opts,
	}
	for _, p := range providers {
		g.providers[p.Name()] = p
	}
	return g
}

func (g *gateway) Provider(name string) (Provider, error) {
	p, ok := g.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrProviderNotConfigured, name)
	}
	return p, nil
}

func (g *gateway) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	providerName := req.Provider
	if providerName == "" {
		providerName = g.opts.DefaultProvider
	}

	resp, err := g.chatWithRetry(ctx, providerName, req)
	if err != nil && ctx.Err() == nil && g.opts.FallbackProvider != "" && g.opts.FallbackProvider != providerName {
		g.log.Warn("primary provider failed, trying fallback",
			"primary", providerName,
			"fallback", g.opts.FallbackProvider,
			"error", err,
		)
		fallbackReq := req
		if g.opts.FallbackModel != "" {
			fallbackReq.Model = g.opts.FallbackModel
		}
		return g.chatWithRetry(ctx, g.opts.FallbackProvider, fallbackReq)
	}
	return resp, err
}

func (g *gateway) chatWithRetry(ctx context.Context, providerName string, req ChatRequest) (*ChatResponse, error) {
	p, err := g.Provider(providerName)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt <= g.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(g.opts.Backoff(attempt)):
			}
			g.log.Debug("retrying LLM call", "provider", providerName, "attempt", attempt)
		}

		resp, err := p.ChatCompletion(ctx, req)
		if err == nil {
			recordChat(resp)
			return resp, nil
		}
		metrics.LLMRequestsTotal.WithLabelValues(providerName, req.Model, "error").Inc()
		lastErr = err
	}
	if g.opts.MaxRetries == 0 {
		return nil, lastErr
	}
	return nil, fmt.Errorf("all retries exhausted for %s: %w", providerName, lastErr)
}

// Embed never falls back to another provider, since vectors from different
// models are not comparable.
func (g *gateway) Embed(ctx context.Context, req EmbeddingRequest) (*EmbeddingResponse, error) {
	providerName := req.Provider
	if providerName == "" {
		providerName = g.opts.DefaultProvider
	}

	p, err := g.Provider(providerName)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt <= g.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(g.opts.Backoff(attempt)):
			}
		}
		resp, err := p.GenerateEmbedding(ctx, req)
		if err == nil {
			if resp.CostUSD > 0 {
				metrics.LLMCostUSDTotal.WithLabelValues(resp.Provider, resp.Model).Add(resp.CostUSD)
			}
			return resp, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func recordChat(resp *ChatResponse) {
	metrics.LLMRequestsTotal.WithLabelValues(resp.Provider, resp.Model, "ok").Inc()
	metrics.LLMTokensTotal.WithLabelValues(resp.Provider, resp.Model, "input").Add(float64(resp.InputTokens))
	metrics.LLMTokensTotal.WithLabelValues(resp.Provider, resp.Model, "output").Add(float64(resp.OutputTokens))
	if resp.CostUSD > 0 {
		metrics.LLMCostUSDTotal.WithLabelValues(resp.Provider, resp.Model).Add(resp.CostUSD)
	}
}
