package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nikhilbhutani/studywise/internal/models"
)

var ErrSessionNotFound = errors.New("chat session not found")

type Repository interface {
	// EnsureSession returns the user's session for the chapter, creating it
	// on first use.
	EnsureSession(ctx context.Context, userID, chapterID uuid.UUID, subjectID *uuid.UUID) (*models.ChatSession, error)
	GetSession(ctx context.Context, userID, chapterID uuid.UUID) (*models.ChatSession, error)
	AddMessage(ctx context.Context, msg *models.ChatMessage) error
	// RecentMessages returns up to limit of the newest messages, oldest first.
	RecentMessages(ctx context.Context, sessionID uuid.UUID, limit int) ([]models.ChatMessage, error)
}

type PgRepository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *PgRepository {
	return &PgRepository{db: db}
}

func (r *PgRepository) EnsureSession(ctx context.Context, userID, chapterID uuid.UUID, subjectID *uuid.UUID) (*models.ChatSession, error) {
	var s models.ChatSession
	err := r.db.QueryRow(ctx,
		`INSERT INTO chat_sessions (user_id, chapter_id, subject_id)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (user_id, chapter_id)
		 DO UPDATE SET subject_id = COALESCE(chat_sessions.subject_id, EXCLUDED.subject_id)
		 RETURNING id, user_id, subject_id, chapter_id, created_at`,
		userID, chapterID, subjectID,
	).Scan(&s.ID, &s.UserID, &s.SubjectID, &s.ChapterID, &s.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("ensure chat session: %w", err)
	}
	return &s, nil
}

func (r *PgRepository) GetSession(ctx context.Context, userID, chapterID uuid.UUID) (*models.ChatSession, error) {
	var s models.ChatSession
	err := r.db.QueryRow(ctx,
		`SELECT id, user_id, subject_id, chapter_id, created_at
		 FROM chat_sessions WHERE user_id = $1 AND chapter_id = $2`,
		userID, chapterID,
	).Scan(&s.ID, &s.UserID, &s.SubjectID, &s.ChapterID, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get chat session: %w", err)
	}
	return &s, nil
}

func (r *PgRepository) AddMessage(ctx context.Context, msg *models.ChatMessage) error {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	citations := msg.Citations
	if citations == nil {
		citations = []models.Citation{}
	}
	err := r.db.QueryRow(ctx,
		`INSERT INTO chat_messages (id, session_id, sender, text, token_count, citations, error)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING created_at`,
		msg.ID, msg.SessionID, string(msg.Sender), msg.Text, msg.TokenCount, citations, msg.Error,
	).Scan(&msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert chat message: %w", err)
	}
	return nil
}

func (r *PgRepository) RecentMessages(ctx context.Context, sessionID uuid.UUID, limit int) ([]models.ChatMessage, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, session_id, sender, text, token_count, citations, error, created_at
		 FROM (
		     SELECT * FROM chat_messages WHERE session_id = $1
		     ORDER BY created_at DESC, id DESC LIMIT $2
		 ) recent
		 ORDER BY created_at, id`,
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query chat messages: %w", err)
	}
	defer rows.Close()

	var msgs []models.ChatMessage
	for rows.Next() {
		var (
			m      models.ChatMessage
			sender string
		)
		if err := rows.Scan(&m.ID, &m.SessionID, &sender, &m.Text, &m.TokenCount, &m.Citations, &m.Error, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chat message: %w", err)
		}
		m.Sender = models.Sender(sender)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
