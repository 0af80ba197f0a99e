// Package doctest provides an in-memory document repository for tests.
package doctest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/studywise/internal/document"
	"github.com/nikhilbhutani/studywise/internal/models"
)

type MemoryRepository struct {
	mu   sync.Mutex
	docs map[uuid.UUID]models.Document
	// History records every status a document has been moved to.
	History map[uuid.UUID][]models.DocumentStatus
}

var _ document.Repository = (*MemoryRepository)(nil)

func NewMemoryRepository(docs ...models.Document) *MemoryRepository {
	r := &MemoryRepository{
		docs:    make(map[uuid.UUID]models.Document),
		History: make(map[uuid.UUID][]models.DocumentStatus),
	}
	for _, d := range docs {
		r.docs[d.ID] = d
	}
	return r
}

func (r *MemoryRepository) Create(_ context.Context, doc *models.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	doc.CreatedAt, doc.UpdatedAt = now, now
	r.docs[doc.ID] = *doc
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, id uuid.UUID) (*models.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.docs[id]
	if !ok {
		return nil, fmt.Errorf("get document %s: %w", id, document.ErrNotFound)
	}
	return &d, nil
}

func (r *MemoryRepository) GetForUser(ctx context.Context, id, userID uuid.UUID) (*models.Document, error) {
	d, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.UserID != userID {
		return nil, fmt.Errorf("get document %s: %w", id, document.ErrNotFound)
	}
	return d, nil
}

func (r *MemoryRepository) ListByChapter(_ context.Context, userID, chapterID uuid.UUID) ([]models.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Document
	for _, d := range r.docs {
		if d.UserID == userID && d.ChapterID != nil && *d.ChapterID == chapterID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FileName < out[j].FileName })
	return out, nil
}

func (r *MemoryRepository) Transition(_ context.Context, id uuid.UUID, to models.DocumentStatus, errorMessage string) (*models.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.docs[id]
	if !ok {
		return nil, fmt.Errorf("transition document %s: %w", id, document.ErrNotFound)
	}
	if err := models.Transition(d.Status, to); err != nil {
		return nil, fmt.Errorf("transition document %s: %w", id, err)
	}
	d.Status = to
	d.ErrorMessage = errorMessage
	d.UpdatedAt = time.Now()
	r.docs[id] = d
	r.History[id] = append(r.History[id], to)
	return &d, nil
}

func (r *MemoryRepository) SaveExtractedText(_ context.Context, id uuid.UUID, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.docs[id]
	if !ok {
		return fmt.Errorf("save extracted text %s: %w", id, document.ErrNotFound)
	}
	d.ExtractedText = &text
	r.docs[id] = d
	return nil
}

func (r *MemoryRepository) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.docs, id)
	return nil
}

// Set overwrites a stored document.
func (r *MemoryRepository) Set(d models.Document) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs[d.ID] = d
}
