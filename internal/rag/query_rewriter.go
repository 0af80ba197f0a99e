package rag

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/nikhilbhutani/studywise/internal/llm"
	"github.com/nikhilbhutani/studywise/internal/prompt"
)

// Completer is satisfied by *llm.Completer.
type Completer interface {
	Complete(ctx context.Context, prompt string, opts ...llm.CompleteOption) (string, error)
}

// Contextualizer rewrites a follow-up into a standalone question using the
// recent chat history.
type Contextualizer struct {
	llm     Completer
	prompts *prompt.Library
	turns   int
}

func NewContextualizer(c Completer, prompts *prompt.Library, turns int) *Contextualizer {
	if turns <= 0 {
		turns = 5
	}
	return &Contextualizer{llm: c, prompts: prompts, turns: turns}
}

// Rewrite returns query unchanged when there is no history or the model
// fails or answers with nothing.
func (c *Contextualizer) Rewrite(ctx context.Context, query string, history []Turn) string {
	if len(history) == 0 {
		return query
	}
	if len(history) > c.turns {
		history = history[len(history)-c.turns:]
	}

	lines := make([]string, len(history))
	for i, t := range history {
		lines[i] = string(t.Sender) + ": " + t.Text
	}
	p, err := c.prompts.Render(prompt.Contextualize, map[string]string{
		"history":  strings.Join(lines, "\n"),
		"question": query,
	})
	if err != nil {
		return query
	}

	out, err := c.llm.Complete(ctx, p, llm.WithTemperature(0.1))
	if err != nil || out == "" {
		return query
	}
	return out
}

// Expander generates alternative phrasings of a query for multi-query
// retrieval.
type Expander struct {
	llm     Completer
	prompts *prompt.Library
	count   int
}

func NewExpander(c Completer, prompts *prompt.Library, count int) *Expander {
	if count <= 0 {
		count = 4
	}
	return &Expander{llm: c, prompts: prompts, count: count}
}

// Expand returns query followed by up to count distinct rephrasings.
func (e *Expander) Expand(ctx context.Context, query string) ([]string, error) {
	p, err := e.prompts.Render(prompt.Expand, map[string]string{
		"count": strconv.Itoa(e.count),
		"query": query,
	})
	if err != nil {
		return nil, err
	}

	out, err := e.llm.Complete(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("expand query: %w", err)
	}

	queries := []string{query} // always include original
	seen := map[string]bool{strings.ToLower(query): true}
	for _, line := range strings.Split(out, "\n") {
		line = stripBullet(line)
		key := strings.ToLower(line)
		if line == "" || seen[key] {
			continue
		}
		seen[key] = true
		queries = append(queries, line)
		if len(queries) == e.count+1 {
			break
		}
	}
	return queries, nil
}

// stripBullet removes list markers such as "-", "*", "•" and "1." from
// the start of a line.
func stripBullet(line string) string {
	line = strings.TrimSpace(line)
	line = strings.TrimLeft(line, "-*•· \t")
	if i := strings.IndexAny(line, ".)"); i > 0 && i <= 3 {
		if _, err := strconv.Atoi(line[:i]); err == nil {
			line = line[i+1:]
		}
	}
	return strings.Trim(strings.TrimSpace(line), `"`)
}
