// Package chat persists per-chapter conversations around the RAG pipeline.
package chat

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/studywise/internal/guardrails"
	"github.com/nikhilbhutani/studywise/internal/logger"
	"github.com/nikhilbhutani/studywise/internal/models"
	"github.com/nikhilbhutani/studywise/internal/prompt"
	"github.com/nikhilbhutani/studywise/internal/rag"
	"github.com/nikhilbhutani/studywise/pkg/tokenizer"
)

const defaultPageSize = 50

// Asker is satisfied by *rag.Pipeline.
type Asker interface {
	Ask(ctx context.Context, q rag.Question) (*rag.Answer, error)
}

// Guard screens questions before they reach the pipeline.
type Guard interface {
	Check(ctx context.Context, text string) (*guardrails.Result, error)
}

type Service struct {
	log          *logger.Logger
	guard        Guard
	repo         Repository
	asker        Asker
	tok          tokenizer.Tokenizer
	prompts      *prompt.Library
	historyTurns int
}

func NewService(repo Repository, asker Asker, tok tokenizer.Tokenizer, prompts *prompt.Library, historyTurns int, log *logger.Logger) *Service {
	if historyTurns <= 0 {
		historyTurns = 5
	}
	return &Service{
		log:          log.With("component", "chat"),
		repo:         repo,
		asker:        asker,
		tok:          tok,
		prompts:      prompts,
		historyTurns: historyTurns,
	}
}

// WithGuard makes Ask answer blocked questions with the blocked reply
// instead of running the pipeline.
func (s *Service) WithGuard(g Guard) *Service {
	s.guard = g
	return s
}

type AskRequest struct {
	UserID    uuid.UUID
	ChapterID uuid.UUID
	SubjectID *uuid.UUID
	Text      string
}

type Exchange struct {
	SessionID  uuid.UUID           `json:"session_id"`
	Question   *models.ChatMessage `json:"question"`
	Reply      *models.ChatMessage `json:"reply"`
	Intent     rag.Intent          `json:"intent,omitempty"`
	Refreshing bool                `json:"refreshing,omitempty"`
	Blocked    bool                `json:"blocked,omitempty"`
}

// Ask stores the user's message, runs the pipeline with the session history
// and stores the reply. A pipeline failure becomes an error-flagged reply,
// not an error.
func (s *Service) Ask(ctx context.Context, req AskRequest) (*Exchange, error) {
	session, err := s.repo.EnsureSession(ctx, req.UserID, req.ChapterID, req.SubjectID)
	if err != nil {
		return nil, err
	}

	recent, err := s.repo.RecentMessages(ctx, session.ID, s.historyTurns)
	if err != nil {
		return nil, err
	}
	history := make([]rag.Turn, 0, len(recent))
	for _, m := range recent {
		if m.Error != nil {
			continue
		}
		history = append(history, rag.Turn{Sender: m.Sender, Text: m.Text})
	}

	tokens := tokenizer.Count(s.tok, req.Text)
	question := &models.ChatMessage{
		SessionID:  session.ID,
		Sender:     models.SenderUser,
		Text:       req.Text,
		TokenCount: &tokens,
	}
	if err := s.repo.AddMessage(ctx, question); err != nil {
		return nil, err
	}

	ex := &Exchange{SessionID: session.ID, Question: question}
	reply := &models.ChatMessage{SessionID: session.ID, Sender: models.SenderAI}

	if s.blocked(ctx, session.ID, req.Text) {
		reply.Text = s.prompts.Reply(prompt.ReplyBlocked)
		ex.Blocked = true
		return s.storeReply(ctx, ex, reply)
	}

	ans, err := s.asker.Ask(ctx, rag.Question{
		ChapterID: req.ChapterID,
		UserID:    req.UserID,
		Text:      req.Text,
		History:   history,
	})
	if err != nil {
		s.log.Error("answer question", "session_id", session.ID, "error", err)
		detail := err.Error()
		reply.Text = s.prompts.Reply(prompt.ReplyFailure)
		reply.Error = &detail
	} else {
		reply.Text = ans.Text
		reply.Citations = ans.Citations
		ex.Intent = ans.Intent
		ex.Refreshing = ans.Refreshing
	}

	return s.storeReply(ctx, ex, reply)
}

// storeReply persists the reply even when the caller has gone away.
func (s *Service) storeReply(ctx context.Context, ex *Exchange, reply *models.ChatMessage) (*Exchange, error) {
	if err := s.repo.AddMessage(context.WithoutCancel(ctx), reply); err != nil {
		return nil, fmt.Errorf("store reply: %w", err)
	}
	ex.Reply = reply
	return ex, nil
}

// blocked reports whether the guard rejects text. Guard errors let the
// question through.
func (s *Service) blocked(ctx context.Context, sessionID uuid.UUID, text string) bool {
	if s.guard == nil {
		return false
	}
	res, err := s.guard.Check(ctx, text)
	if err != nil {
		s.log.Warn("guardrail check failed", "session_id", sessionID, "error", err)
		return false
	}
	if !res.Allowed {
		s.log.Warn("question blocked", "session_id", sessionID, "reason", res.Reason, "flags", res.Flags)
		return true
	}
	return false
}

// Messages returns the newest messages of the user's chapter session,
// oldest first.
func (s *Service) Messages(ctx context.Context, userID, chapterID uuid.UUID, limit int) ([]models.ChatMessage, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	session, err := s.repo.GetSession(ctx, userID, chapterID)
	if err != nil {
		return nil, err
	}
	return s.repo.RecentMessages(ctx, session.ID, limit)
}
