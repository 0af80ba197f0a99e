package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type DocumentStatus string

const (
	DocStatusPending    DocumentStatus = "PENDING"
	DocStatusProcessing DocumentStatus = "PROCESSING"
	DocStatusCompleted  DocumentStatus = "COMPLETED"
	DocStatusFailed     DocumentStatus = "FAILED"
)

var ErrIllegalTransition = errors.New("illegal document status transition")

// transitions lists the legal source states for each target state.
// PROCESSING may follow PROCESSING when a task is redelivered after a worker died.
var transitions = map[DocumentStatus][]DocumentStatus{
	DocStatusProcessing: {DocStatusPending, DocStatusProcessing, DocStatusCompleted, DocStatusFailed},
	DocStatusCompleted:  {DocStatusProcessing},
	DocStatusFailed:     {DocStatusProcessing},
}

func (s DocumentStatus) Valid() bool {
	switch s {
	case DocStatusPending, DocStatusProcessing, DocStatusCompleted, DocStatusFailed:
		return true
	}
	return false
}

// Terminal reports whether no ingestion is in flight for the status.
func (s DocumentStatus) Terminal() bool {
	return s == DocStatusCompleted || s == DocStatusFailed
}

// SourcesFor returns the states from which to is reachable.
func SourcesFor(to DocumentStatus) []DocumentStatus {
	return transitions[to]
}

func CanTransition(from, to DocumentStatus) bool {
	for _, s := range transitions[to] {
		if s == from {
			return true
		}
	}
	return false
}

func Transition(from, to DocumentStatus) error {
	if !to.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrIllegalTransition, to)
	}
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
	}
	return nil
}

type Document struct {
	ID            uuid.UUID      `json:"id" db:"id"`
	UserID        uuid.UUID      `json:"user_id" db:"user_id"`
	ChapterID     *uuid.UUID     `json:"chapter_id,omitempty" db:"chapter_id"`
	SubjectID     *uuid.UUID     `json:"subject_id,omitempty" db:"subject_id"`
	FileName      string         `json:"file_name" db:"file_name"`
	FilePath      string         `json:"file_path,omitempty" db:"file_path"`
	FileType      string         `json:"file_type" db:"file_type"`
	FileSizeBytes int64          `json:"file_size_bytes" db:"file_size_bytes"`
	Status        DocumentStatus `json:"status" db:"status"`
	ExtractedText *string        `json:"-" db:"extracted_text"`
	ErrorMessage  string         `json:"error_message,omitempty" db:"error_message"`
	CreatedAt     time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at" db:"updated_at"`
}

// Stalled reports whether an in-flight document has gone staleAfter
// without a status change, meaning the worker that owned it is gone.
func (d *Document) Stalled(now time.Time, staleAfter time.Duration) bool {
	return !d.Status.Terminal() && now.Sub(d.UpdatedAt) >= staleAfter
}

// HasExtractedText reports whether a non-empty extraction is cached.
func (d *Document) HasExtractedText() bool {
	return d.ExtractedText != nil && *d.ExtractedText != ""
}
