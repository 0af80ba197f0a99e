package models

import (
	"time"

	"github.com/google/uuid"
)

type Sender string

const (
	SenderUser Sender = "user"
	SenderAI   Sender = "ai"
)

type ChatSession struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	UserID    uuid.UUID  `json:"user_id" db:"user_id"`
	SubjectID *uuid.UUID `json:"subject_id,omitempty" db:"subject_id"`
	ChapterID *uuid.UUID `json:"chapter_id,omitempty" db:"chapter_id"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}

type Citation struct {
	DocumentID string  `json:"document_id"`
	ChunkIndex int     `json:"chunk_index"`
	Score      float64 `json:"score"`
	Snippet    string  `json:"snippet"`
}

type ChatMessage struct {
	ID         uuid.UUID  `json:"id" db:"id"`
	SessionID  uuid.UUID  `json:"session_id" db:"session_id"`
	Sender     Sender     `json:"sender" db:"sender"`
	Text       string     `json:"text" db:"text"`
	TokenCount *int       `json:"token_count,omitempty" db:"token_count"`
	Citations  []Citation `json:"citations,omitempty" db:"citations"`
	Error      *string    `json:"error,omitempty" db:"error"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
}
