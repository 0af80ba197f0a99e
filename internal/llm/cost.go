package llm

import "strings"

// Price is USD per million tokens.
type Price struct {
	Input  float64
	Output float64
}

var prices = map[string]Price{
	// OpenAI
	"gpt-4o":                 {5, 15},
	"gpt-4o-mini":            {0.15, 0.6},
	"text-embedding-3-small": {0.02, 0},
	"text-embedding-3-large": {0.13, 0},

	// Groq
	"llama-3.1-8b-instant":    {0.05, 0.08},
	"llama-3.3-70b-versatile": {0.59, 0.79},

	// Anthropic
	"claude-3-haiku-20240307":  {0.25, 1.25},
	"claude-sonnet-4-20250514": {3, 15},

	// Gemini
	"gemini-1.5-flash":   {0.075, 0.3},
	"gemini-2.0-flash":   {0.1, 0.4},
	"text-embedding-004": {0, 0},
}

// CalculateCost estimates the USD cost of a call. Unknown models cost 0.
func CalculateCost(model string, inputTokens, outputTokens int) float64 {
	p, ok := lookupPrice(model)
	if !ok {
		return 0
	}
	return (float64(inputTokens)*p.Input + float64(outputTokens)*p.Output) / 1e6
}

// lookupPrice accepts Gemini's "models/" prefix and dated snapshots such as
// "gpt-4o-mini-2024-07-18", which resolve to the longest priced base name.
func lookupPrice(model string) (Price, bool) {
	model = strings.TrimPrefix(model, "models/")
	if p, ok := prices[model]; ok {
		return p, true
	}
	best := ""
	for base := range prices {
		if strings.HasPrefix(model, base+"-") && len(base) > len(best) {
			best = base
		}
	}
	if best == "" {
		return Price{}, false
	}
	return prices[best], true
}
