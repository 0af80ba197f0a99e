package document

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nikhilbhutani/studywise/internal/models"
)

type Repository interface {
	Create(ctx context.Context, doc *models.Document) error
	Get(ctx context.Context, id uuid.UUID) (*models.Document, error)
	GetForUser(ctx context.Context, id, userID uuid.UUID) (*models.Document, error)
	ListByChapter(ctx context.Context, userID, chapterID uuid.UUID) ([]models.Document, error)
	// Transition moves the document to status only from a legal source
	// state and returns the updated row.
	Transition(ctx context.Context, id uuid.UUID, to models.DocumentStatus, errorMessage string) (*models.Document, error)
	SaveExtractedText(ctx context.Context, id uuid.UUID, text string) error
	Delete(ctx context.Context, id uuid.UUID) error
}

const documentColumns = `id, user_id, chapter_id, subject_id, file_name, file_path, file_type,
	file_size_bytes, status, extracted_text, error_message, created_at, updated_at`

type PgRepository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *PgRepository {
	return &PgRepository{db: db}
}

func scanDocument(row pgx.Row) (*models.Document, error) {
	var (
		d      models.Document
		status string
	)
	err := row.Scan(&d.ID, &d.UserID, &d.ChapterID, &d.SubjectID, &d.FileName, &d.FilePath, &d.FileType,
		&d.FileSizeBytes, &status, &d.ExtractedText, &d.ErrorMessage, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	d.Status = models.DocumentStatus(status)
	if !d.Status.Valid() {
		return nil, fmt.Errorf("document %s: unknown status %q", d.ID, status)
	}
	return &d, nil
}

func (r *PgRepository) Create(ctx context.Context, doc *models.Document) error {
	err := r.db.QueryRow(ctx,
		`INSERT INTO documents (id, user_id, chapter_id, subject_id, file_name, file_path, file_type, file_size_bytes, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING created_at, updated_at`,
		doc.ID, doc.UserID, doc.ChapterID, doc.SubjectID, doc.FileName, doc.FilePath, doc.FileType,
		doc.FileSizeBytes, string(doc.Status),
	).Scan(&doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (r *PgRepository) Get(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	doc, err := scanDocument(r.db.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("get document %s: %w", id, err)
	}
	return doc, nil
}

func (r *PgRepository) GetForUser(ctx context.Context, id, userID uuid.UUID) (*models.Document, error) {
	doc, err := scanDocument(r.db.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1 AND user_id = $2`, id, userID))
	if err != nil {
		return nil, fmt.Errorf("get document %s: %w", id, err)
	}
	return doc, nil
}

func (r *PgRepository) ListByChapter(ctx context.Context, userID, chapterID uuid.UUID) ([]models.Document, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+documentColumns+` FROM documents
		 WHERE user_id = $1 AND chapter_id = $2
		 ORDER BY created_at`,
		userID, chapterID,
	)
	if err != nil {
		return nil, fmt.Errorf("list chapter documents: %w", err)
	}
	defer rows.Close()

	var docs []models.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, *d)
	}
	return docs, rows.Err()
}

func (r *PgRepository) Transition(ctx context.Context, id uuid.UUID, to models.DocumentStatus, errorMessage string) (*models.Document, error) {
	sources := models.SourcesFor(to)
	from := make([]string, len(sources))
	for i, s := range sources {
		from[i] = string(s)
	}

	doc, err := scanDocument(r.db.QueryRow(ctx,
		`UPDATE documents SET status = $2, error_message = $3, updated_at = now()
		 WHERE id = $1 AND status = ANY($4)
		 RETURNING `+documentColumns,
		id, string(to), errorMessage, from,
	))
	if err == nil {
		return doc, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("transition document %s: %w", id, err)
	}

	// Nothing updated: either the row is gone or its status forbids the move.
	current, getErr := r.Get(ctx, id)
	if getErr != nil {
		return nil, getErr
	}
	if err := models.Transition(current.Status, to); err != nil {
		return nil, fmt.Errorf("transition document %s: %w", id, err)
	}
	return nil, fmt.Errorf("transition document %s: status changed concurrently", id)
}

func (r *PgRepository) SaveExtractedText(ctx context.Context, id uuid.UUID, text string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE documents SET extracted_text = $2, updated_at = now() WHERE id = $1`, id, text)
	if err != nil {
		return fmt.Errorf("save extracted text: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("save extracted text %s: %w", id, ErrNotFound)
	}
	return nil
}

func (r *PgRepository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Exec(ctx, "DELETE FROM documents WHERE id = $1", id)
	return err
}
