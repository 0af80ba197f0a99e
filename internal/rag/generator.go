package rag

import (
	"context"
	"fmt"
	"strconv"

	"github.com/nikhilbhutani/studywise/internal/format"
	"github.com/nikhilbhutani/studywise/internal/models"
	"github.com/nikhilbhutani/studywise/internal/prompt"
	"github.com/nikhilbhutani/studywise/internal/vectorstore"
)

const snippetLen = 200

type Generator struct {
	llm     Completer
	prompts *prompt.Library
}

func NewGenerator(c Completer, prompts *prompt.Library) *Generator {
	return &Generator{llm: c, prompts: prompts}
}

// Generate answers question from the retrieved chunks and formats the reply
// for display.
func (g *Generator) Generate(ctx context.Context, question string, results []vectorstore.SearchResult) (string, error) {
	p, err := g.prompts.Render(prompt.Answer, map[string]string{
		"context":  buildContext(results),
		"question": question,
	})
	if err != nil {
		return "", err
	}

	out, err := g.llm.Complete(ctx, p)
	if err != nil {
		return "", fmt.Errorf("generate answer: %w", err)
	}
	return format.Markdown(out), nil
}

func citations(results []vectorstore.SearchResult) []models.Citation {
	out := make([]models.Citation, len(results))
	for i, r := range results {
		out[i] = models.Citation{
			DocumentID: payloadString(r.Payload, vectorstore.PayloadDocumentID),
			ChunkIndex: payloadInt(r.Payload, vectorstore.PayloadChunkIndex),
			Score:      r.Score,
			Snippet:    truncate(r.Text, snippetLen),
		}
	}
	return out
}

func payloadString(p map[string]any, key string) string {
	if s, ok := p[key].(string); ok {
		return s
	}
	return ""
}

// payloadInt accepts the int written locally and the float64 decoded from
// JSON responses.
func payloadInt(p map[string]any, key string) int {
	switch v := p[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		n, _ := strconv.Atoi(v)
		return n
	}
	return 0
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}
