package llm

import (
	"context"
	"strings"
)

type CompleteOption func(*ChatRequest)

func WithTemperature(t float64) CompleteOption {
	return func(r *ChatRequest) { r.Temperature = Float(t) }
}

func WithMaxTokens(n int) CompleteOption {
	return func(r *ChatRequest) { r.MaxTokens = n }
}

// Completer sends single-prompt completions to a fixed provider and model.
type Completer struct {
	gateway  Gateway
	provider string
	model    string
}

func NewCompleter(gw Gateway, provider, model string) *Completer {
	return &Completer{gateway: gw, provider: provider, model: model}
}

// Complete sends prompt as one user message and returns the trimmed reply.
func (c *Completer) Complete(ctx context.Context, prompt string, opts ...CompleteOption) (string, error) {
	req := ChatRequest{
		Provider: c.provider,
		Model:    c.model,
		Messages: []Message{{Role: "user", Content: prompt}},
	}
	for _, opt := range opts {
		opt(&req)
	}

	resp, err := c.gateway.Chat(ctx, req)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Content), nil
}
