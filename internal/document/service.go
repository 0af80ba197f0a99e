package document

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/studywise/internal/logger"
	"github.com/nikhilbhutani/studywise/internal/models"
	"github.com/nikhilbhutani/studywise/internal/storage"
	"github.com/nikhilbhutani/studywise/internal/vectorstore"
	"github.com/nikhilbhutani/studywise/pkg/textextract"
)

// Enqueuer schedules background ingestion of a document.
type Enqueuer interface {
	EnqueueIngestion(ctx context.Context, documentID uuid.UUID) error
}

// DefaultStaleAfter matches the ingestion task timeout.
const DefaultStaleAfter = 10 * time.Minute

// VectorPruner removes a document's indexed chunks.
type VectorPruner interface {
	PruneDocument(ctx context.Context, documentID uuid.UUID, keep int) error
}

type Service struct {
	log     *logger.Logger
	repo    Repository
	storage storage.Storage
	bucket  string
	queue   Enqueuer
	vectors VectorPruner

	staleAfter time.Duration
}

func NewService(repo Repository, store storage.Storage, bucket string, queue Enqueuer, vectors VectorPruner, log *logger.Logger) *Service {
	return &Service{
		log:     log.With("component", "documents"),
		repo:    repo,
		storage: store,
		bucket:  bucket,
		queue:   queue,
		vectors: vectors,

		staleAfter: DefaultStaleAfter,
	}
}

// WithStaleAfter sets how long a PENDING or PROCESSING document may go
// without a status change before ReIngest treats its task as lost.
func (s *Service) WithStaleAfter(d time.Duration) *Service {
	if d > 0 {
		s.staleAfter = d
	}
	return s
}

type SubmitRequest struct {
	UserID    uuid.UUID
	ChapterID *uuid.UUID
	SubjectID *uuid.UUID
	FileName  string
	// FileType may be an extension or MIME type. The file name's extension
	// is used when it is empty.
	FileType string
	Size     int64
	Data     io.Reader
}

// Submit stores the file, records a PENDING document and queues ingestion.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*models.Document, error) {
	fileType := req.FileType
	if fileType == "" {
		fileType = req.FileName
	}
	format, err := textextract.DetectFormat(fileType)
	if err != nil {
		return nil, err
	}

	doc := &models.Document{
		ID:            uuid.New(),
		UserID:        req.UserID,
		ChapterID:     req.ChapterID,
		SubjectID:     req.SubjectID,
		FileName:      req.FileName,
		FileType:      string(format),
		FileSizeBytes: req.Size,
		Status:        models.DocStatusPending,
	}
	doc.FilePath = path.Join(req.UserID.String(), doc.ID.String(), sanitizeFileName(req.FileName, format))

	if err := s.storage.Upload(ctx, s.bucket, doc.FilePath, req.Data, contentType(format)); err != nil {
		return nil, fmt.Errorf("upload to storage: %w", err)
	}
	if err := s.repo.Create(ctx, doc); err != nil {
		return nil, err
	}
	if err := s.queue.EnqueueIngestion(ctx, doc.ID); err != nil {
		return nil, fmt.Errorf("enqueue ingestion: %w", err)
	}

	s.log.Info("document submitted",
		"document_id", doc.ID,
		"user_id", doc.UserID,
		"file_type", doc.FileType,
		"bytes", doc.FileSizeBytes,
	)
	return doc, nil
}

// ReIngest queues the document for ingestion again. The ingestion task
// moves it back to PROCESSING. A document whose task is still live is
// rejected with ErrIngestionInFlight; a stalled one is queued again.
func (s *Service) ReIngest(ctx context.Context, userID, documentID uuid.UUID) (*models.Document, error) {
	doc, err := s.repo.GetForUser(ctx, documentID, userID)
	if err != nil {
		return nil, err
	}
	if !doc.Status.Terminal() && !doc.Stalled(time.Now(), s.staleAfter) {
		return nil, ErrIngestionInFlight
	}
	if err := s.queue.EnqueueIngestion(ctx, doc.ID); err != nil {
		return nil, fmt.Errorf("enqueue ingestion: %w", err)
	}
	s.log.Info("re-ingestion queued", "document_id", doc.ID, "previous_status", doc.Status)
	return doc, nil
}

func (s *Service) Get(ctx context.Context, userID, documentID uuid.UUID) (*models.Document, error) {
	return s.repo.GetForUser(ctx, documentID, userID)
}

func (s *Service) ListByChapter(ctx context.Context, userID, chapterID uuid.UUID) ([]models.Document, error) {
	return s.repo.ListByChapter(ctx, userID, chapterID)
}

// Delete removes the document row, its stored file and its indexed chunks.
func (s *Service) Delete(ctx context.Context, userID, documentID uuid.UUID) error {
	doc, err := s.repo.GetForUser(ctx, documentID, userID)
	if err != nil {
		return err
	}
	if doc.Status == models.DocStatusProcessing && !doc.Stalled(time.Now(), s.staleAfter) {
		return ErrIngestionInFlight
	}

	if s.vectors != nil {
		if err := s.vectors.PruneDocument(ctx, doc.ID, 0); err != nil && !errors.Is(err, vectorstore.ErrCollectionNotFound) {
			return fmt.Errorf("delete document vectors: %w", err)
		}
	}
	if doc.FilePath != "" {
		if err := s.storage.Delete(ctx, s.bucket, doc.FilePath); err != nil {
			s.log.Warn("delete stored file", "document_id", doc.ID, "error", err)
		}
	}
	return s.repo.Delete(ctx, doc.ID)
}

func sanitizeFileName(name string, format textextract.Format) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	if base == "." || base == "/" || base == "" {
		base = "upload"
	}
	if !strings.HasSuffix(strings.ToLower(base), "."+string(format)) {
		base += "." + string(format)
	}
	return base
}

func contentType(format textextract.Format) string {
	switch format {
	case textextract.FormatPDF:
		return "application/pdf"
	case textextract.FormatDOCX:
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case textextract.FormatPPTX:
		return "application/vnd.openxmlformats-officedocument.presentationml.presentation"
	default:
		return "text/plain; charset=utf-8"
	}
}
