package notify

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/studywise/internal/models"
)

type EventType string

const (
	EventDocumentCompleted EventType = "document.completed"
	EventDocumentFailed    EventType = "document.failed"
)

// Event reports the outcome of one ingestion attempt to the document owner.
type Event struct {
	ID          uuid.UUID             `json:"id"`
	Type        EventType             `json:"type"`
	DocumentID  uuid.UUID             `json:"document_id"`
	UserID      uuid.UUID             `json:"user_id"`
	ChapterID   *uuid.UUID            `json:"chapter_id,omitempty"`
	FileName    string                `json:"file_name"`
	Status      models.DocumentStatus `json:"status"`
	Chunks      int                   `json:"chunks,omitempty"`
	Error       string                `json:"error,omitempty"`
	Attempt     int                   `json:"attempt"`
	MaxAttempts int                   `json:"max_attempts"`
	// Final is false while the task queue will retry a failed attempt.
	Final bool      `json:"final"`
	At    time.Time `json:"at"`
}

// NewEvent fills the id, type and timestamp from the document's status.
func NewEvent(doc *models.Document, chunks int, attempt, maxAttempts int, final bool) Event {
	ev := Event{
		ID:          uuid.New(),
		Type:        EventDocumentCompleted,
		DocumentID:  doc.ID,
		UserID:      doc.UserID,
		ChapterID:   doc.ChapterID,
		FileName:    doc.FileName,
		Status:      doc.Status,
		Chunks:      chunks,
		Attempt:     attempt,
		MaxAttempts: maxAttempts,
		Final:       final,
		At:          time.Now().UTC(),
	}
	if doc.Status == models.DocStatusFailed {
		ev.Type = EventDocumentFailed
		ev.Error = doc.ErrorMessage
	}
	return ev
}

// Notifier delivers an event to listeners of one user.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, ev Event) error
}

// Multi fans an event out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, userID uuid.UUID, ev Event) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, userID, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type Nop struct{}

func (Nop) Notify(context.Context, uuid.UUID, Event) error { return nil }
