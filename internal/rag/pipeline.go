package rag

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/studywise/internal/config"
	"github.com/nikhilbhutani/studywise/internal/embedding"
	"github.com/nikhilbhutani/studywise/internal/logger"
	"github.com/nikhilbhutani/studywise/internal/metrics"
	"github.com/nikhilbhutani/studywise/internal/models"
	"github.com/nikhilbhutani/studywise/internal/prompt"
)

// Turn is one earlier chat message.
type Turn struct {
	Sender models.Sender
	Text   string
}

type Question struct {
	ChapterID uuid.UUID
	UserID    uuid.UUID
	Text      string
	// History is oldest first and excludes Text.
	History []Turn
}

type Answer struct {
	Text         string            `json:"text"`
	Intent       Intent            `json:"intent"`
	RefinedQuery string            `json:"refined_query,omitempty"`
	Citations    []models.Citation `json:"citations,omitempty"`
	// Refreshing is set when the chapter had nothing indexed and
	// re-ingestion was queued.
	Refreshing bool `json:"refreshing,omitempty"`
}

type Pipeline struct {
	log            *logger.Logger
	prompts        *prompt.Library
	contextualizer *Contextualizer
	router         *Router
	healer         *SelfHealer
	expander       *Expander
	retriever      *Retriever
	generator      *Generator
}

func NewPipeline(
	c Completer,
	embedder embedding.Embedder,
	store Searcher,
	docs DocumentSource,
	prompts *prompt.Library,
	cfg config.RAGConfig,
	log *logger.Logger,
) *Pipeline {
	log = log.With("component", "rag")
	return &Pipeline{
		log:            log,
		prompts:        prompts,
		contextualizer: NewContextualizer(c, prompts, cfg.HistoryTurns),
		router:         NewRouter(c, prompts),
		healer:         NewSelfHealer(store, docs, prompts, log),
		expander:       NewExpander(c, prompts, cfg.Expansions),
		retriever:      NewRetriever(store, embedder, cfg.PerQueryLimit, cfg.ContextLimit),
		generator:      NewGenerator(c, prompts),
	}
}

// Ask answers a question about one chapter of the user's documents.
func (p *Pipeline) Ask(ctx context.Context, q Question) (*Answer, error) {
	log := p.log.With("chapter_id", q.ChapterID, "user_id", q.UserID)

	start := time.Now()
	refined := p.contextualizer.Rewrite(ctx, q.Text, q.History)
	p.stage(log, "contextualize", start)

	start = time.Now()
	intent := p.router.Route(ctx, refined)
	p.stage(log, "route", start)
	metrics.RAGIntentsTotal.WithLabelValues(string(intent)).Inc()

	ans := &Answer{Intent: intent, RefinedQuery: refined}
	switch intent {
	case IntentGreeting:
		ans.Text = p.prompts.Reply(prompt.ReplyGreeting)
		return ans, nil
	case IntentSummary:
		ans.Text = p.prompts.Reply(prompt.ReplySummary)
		return ans, nil
	case IntentAmbiguous:
		ans.Text = p.prompts.Reply(prompt.ReplyAmbiguous)
		return ans, nil
	}

	start = time.Now()
	reply, refreshing, err := p.healer.Check(ctx, q.ChapterID, q.UserID)
	p.stage(log, "self_heal", start)
	if err != nil {
		return nil, err
	}
	if reply != "" {
		ans.Text = reply
		ans.Refreshing = refreshing
		return ans, nil
	}

	start = time.Now()
	queries, err := p.expander.Expand(ctx, refined)
	p.stage(log, "expand", start)
	if err != nil {
		return nil, err
	}

	start = time.Now()
	results, err := p.retriever.Retrieve(ctx, queries, q.ChapterID, q.UserID)
	p.stage(log, "retrieve", start)
	if err != nil {
		return nil, err
	}

	start = time.Now()
	text, err := p.generator.Generate(ctx, refined, results)
	p.stage(log, "generate", start)
	if err != nil {
		return nil, err
	}

	ans.Text = text
	ans.Citations = citations(results)
	log.Info("question answered", "queries", len(queries), "chunks", len(results))
	return ans, nil
}

func (p *Pipeline) stage(log *logger.Logger, name string, start time.Time) {
	d := metrics.ObserveStage(name, start)
	log.Debug("rag stage finished", "stage", name, "duration_ms", d.Milliseconds())
}
