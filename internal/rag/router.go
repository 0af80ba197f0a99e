package rag

import (
	"context"
	"strings"

	"github.com/nikhilbhutani/studywise/internal/llm"
	"github.com/nikhilbhutani/studywise/internal/prompt"
)

type Intent string

const (
	IntentGreeting  Intent = "greeting"
	IntentSummary   Intent = "summary"
	IntentAmbiguous Intent = "ambiguous"
	IntentQuestion  Intent = "question"
)

// Router classifies a query so small talk skips retrieval.
type Router struct {
	llm     Completer
	prompts *prompt.Library
}

func NewRouter(c Completer, prompts *prompt.Library) *Router {
	return &Router{llm: c, prompts: prompts}
}

// Route falls back to IntentQuestion on any error or unexpected label.
func (r *Router) Route(ctx context.Context, query string) Intent {
	p, err := r.prompts.Render(prompt.Route, map[string]string{"question": query})
	if err != nil {
		return IntentQuestion
	}
	out, err := r.llm.Complete(ctx, p, llm.WithTemperature(0))
	if err != nil {
		return IntentQuestion
	}
	return parseIntent(out)
}

func parseIntent(s string) Intent {
	s = strings.ToLower(strings.Trim(strings.TrimSpace(s), " \t\r\n\"'`.,!?:;*"))
	switch Intent(s) {
	case IntentGreeting, IntentSummary, IntentAmbiguous, IntentQuestion:
		return Intent(s)
	}
	return IntentQuestion
}
