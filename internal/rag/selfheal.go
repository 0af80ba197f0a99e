package rag

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/studywise/internal/document"
	"github.com/nikhilbhutani/studywise/internal/logger"
	"github.com/nikhilbhutani/studywise/internal/metrics"
	"github.com/nikhilbhutani/studywise/internal/models"
	"github.com/nikhilbhutani/studywise/internal/prompt"
	"github.com/nikhilbhutani/studywise/internal/vectorstore"
)

// DocumentSource is satisfied by *document.Service. ReIngest returns
// document.ErrIngestionInFlight for documents whose task is still live.
type DocumentSource interface {
	ListByChapter(ctx context.Context, userID, chapterID uuid.UUID) ([]models.Document, error)
	ReIngest(ctx context.Context, userID, documentID uuid.UUID) (*models.Document, error)
}

// SelfHealer checks that a chapter has indexed chunks before searching and
// queues re-ingestion when it does not.
type SelfHealer struct {
	log     *logger.Logger
	store   Searcher
	docs    DocumentSource
	prompts *prompt.Library
}

func NewSelfHealer(store Searcher, docs DocumentSource, prompts *prompt.Library, log *logger.Logger) *SelfHealer {
	return &SelfHealer{log: log, store: store, docs: docs, prompts: prompts}
}

// Check returns a reply for the user when the chapter cannot be searched,
// or "" when search may proceed. refreshing reports that re-ingestion was
// attempted.
func (h *SelfHealer) Check(ctx context.Context, chapterID, userID uuid.UUID) (reply string, refreshing bool, err error) {
	n, err := h.store.Count(ctx, vectorstore.ChapterUserFilter(chapterID, userID))
	missing := errors.Is(err, vectorstore.ErrCollectionNotFound)
	switch {
	case err != nil && !missing:
		return "", false, fmt.Errorf("count chapter chunks: %w", err)
	case err == nil && n > 0:
		return "", false, nil
	}

	reason := "empty"
	if missing {
		reason = "missing_collection"
	}

	docs, err := h.docs.ListByChapter(ctx, userID, chapterID)
	if err != nil && !errors.Is(err, document.ErrNotFound) {
		return "", false, fmt.Errorf("list chapter documents: %w", err)
	}
	if len(docs) == 0 {
		metrics.SelfHealTotal.WithLabelValues("no_documents").Inc()
		h.log.Warn("no source documents for chapter", "chapter_id", chapterID, "user_id", userID)
		return h.prompts.Reply(prompt.ReplyReupload), false, nil
	}

	queued, inFlight := 0, 0
	for _, d := range docs {
		_, err := h.docs.ReIngest(ctx, userID, d.ID)
		switch {
		case errors.Is(err, document.ErrIngestionInFlight):
			inFlight++
		case err != nil:
			h.log.Warn("queue re-ingestion", "document_id", d.ID, "error", err)
		default:
			queued++
		}
	}
	metrics.SelfHealTotal.WithLabelValues(reason).Inc()
	h.log.Info("chapter has no indexed chunks, re-ingesting",
		"chapter_id", chapterID,
		"reason", reason,
		"documents", len(docs),
		"queued", queued,
		"in_flight", inFlight,
	)

	if missing {
		return h.prompts.Reply(prompt.ReplyInitializing), true, nil
	}
	return h.prompts.Reply(prompt.ReplyRefreshing), true, nil
}
