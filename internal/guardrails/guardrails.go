// Package guardrails screens chat questions before they reach the LLM.
package guardrails

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Result holds the outcome of a check.
type Result struct {
	Allowed bool     `json:"allowed"`
	Flags   []string `json:"flags,omitempty"`
	Reason  string   `json:"reason,omitempty"`
}

// Guardrail is a single check applied to user input.
type Guardrail interface {
	Check(ctx context.Context, text string) (*Result, error)
	Name() string
}

// Chain runs guardrails in order and merges their flags. The first block
// wins the reason.
type Chain []Guardrail

func (c Chain) Check(ctx context.Context, text string) (*Result, error) {
	combined := &Result{Allowed: true}
	for _, g := range c {
		res, err := g.Check(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("guardrail %s: %w", g.Name(), err)
		}
		if !res.Allowed && combined.Allowed {
			combined.Allowed = false
			combined.Reason = fmt.Sprintf("blocked by %s: %s", g.Name(), res.Reason)
		}
		combined.Flags = append(combined.Flags, res.Flags...)
	}
	return combined, nil
}

// Default chains the built-in input checks.
func Default(maxChars int) Chain {
	return Chain{NewLengthGuard(maxChars), NewInjectionGuard()}
}

// LengthGuard rejects questions longer than max runes.
type LengthGuard struct {
	max int
}

func NewLengthGuard(max int) *LengthGuard {
	return &LengthGuard{max: max}
}

func (g *LengthGuard) Name() string { return "input_length" }

func (g *LengthGuard) Check(_ context.Context, text string) (*Result, error) {
	if g.max > 0 && utf8.RuneCountInString(text) > g.max {
		return &Result{
			Allowed: false,
			Reason:  fmt.Sprintf("input exceeds %d characters", g.max),
			Flags:   []string{"input_too_long"},
		}, nil
	}
	return &Result{Allowed: true}, nil
}

type pattern struct {
	phrase string
	weight float64
	flag   string
}

var injectionPatterns = []pattern{
	{"ignore previous instructions", 0.9, "override_attempt"},
	{"ignore all previous", 0.9, "override_attempt"},
	{"disregard your instructions", 0.9, "override_attempt"},
	{"forget your instructions", 0.85, "override_attempt"},
	{"you are now", 0.5, "role_hijack"},
	{"pretend you are", 0.5, "role_hijack"},
	{"system prompt:", 0.8, "system_leak"},
	{"reveal your system", 0.8, "system_leak"},
	{"show me your prompt", 0.8, "system_leak"},
	{"jailbreak", 0.9, "jailbreak"},
	{"do anything now", 0.85, "jailbreak"},
	{"<system>", 0.8, "tag_injection"},
	{"</system>", 0.8, "tag_injection"},
	{"```system", 0.7, "format_injection"},
}

// InjectionGuard flags phrases that try to override the answer prompt.
// Matches scoring above the threshold block the question; weaker ones only
// flag it.
type InjectionGuard struct {
	threshold float64
}

func NewInjectionGuard() *InjectionGuard {
	return &InjectionGuard{threshold: 0.7}
}

func (g *InjectionGuard) Name() string { return "prompt_injection" }

func (g *InjectionGuard) Check(_ context.Context, text string) (*Result, error) {
	lower := strings.ToLower(text)
	var flags []string
	score := 0.0
	for _, p := range injectionPatterns {
		if strings.Contains(lower, p.phrase) {
			score = max(score, p.weight)
			flags = append(flags, p.flag)
		}
	}
	if score > g.threshold {
		return &Result{Allowed: false, Reason: "potential prompt injection", Flags: flags}, nil
	}
	return &Result{Allowed: true, Flags: flags}, nil
}
