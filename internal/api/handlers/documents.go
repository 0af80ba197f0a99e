package handlers

import (
	"context"
	"net/http"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/studywise/internal/document"
	"github.com/nikhilbhutani/studywise/internal/models"
)

const maxUploadBytes = 32 << 20

// DocumentService is satisfied by *document.Service.
type DocumentService interface {
	Submit(ctx context.Context, req document.SubmitRequest) (*models.Document, error)
	ReIngest(ctx context.Context, userID, documentID uuid.UUID) (*models.Document, error)
	Get(ctx context.Context, userID, documentID uuid.UUID) (*models.Document, error)
	ListByChapter(ctx context.Context, userID, chapterID uuid.UUID) ([]models.Document, error)
	Delete(ctx context.Context, userID, documentID uuid.UUID) error
}

type DocumentHandler struct {
	svc DocumentService
}

func NewDocumentHandler(svc DocumentService) *DocumentHandler {
	return &DocumentHandler{svc: svc}
}

// documentView leaves out the cached extracted text.
type documentView struct {
	ID            uuid.UUID             `json:"id"`
	ChapterID     *uuid.UUID            `json:"chapter_id,omitempty"`
	SubjectID     *uuid.UUID            `json:"subject_id,omitempty"`
	FileName      string                `json:"file_name"`
	FileType      string                `json:"file_type"`
	FileSizeBytes int64                 `json:"file_size_bytes"`
	Status        models.DocumentStatus `json:"status"`
	ErrorMessage  string                `json:"error_message,omitempty"`
	CreatedAt     time.Time             `json:"created_at"`
	UpdatedAt     time.Time             `json:"updated_at"`
}

func viewOf(d *models.Document) documentView {
	return documentView{
		ID:            d.ID,
		ChapterID:     d.ChapterID,
		SubjectID:     d.SubjectID,
		FileName:      d.FileName,
		FileType:      d.FileType,
		FileSizeBytes: d.FileSizeBytes,
		Status:        d.Status,
		ErrorMessage:  d.ErrorMessage,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
}

func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	user, ok := userID(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file required")
		return
	}
	defer file.Close()

	chapterID, err := optionalUUID(r.FormValue("chapter_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid chapter_id")
		return
	}
	subjectID, err := optionalUUID(r.FormValue("subject_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid subject_id")
		return
	}

	// The extension is more reliable than the browser's content type.
	fileType := ""
	if filepath.Ext(header.Filename) == "" {
		fileType = header.Header.Get("Content-Type")
	}

	doc, err := h.svc.Submit(r.Context(), document.SubmitRequest{
		UserID:    user,
		ChapterID: chapterID,
		SubjectID: subjectID,
		FileName:  header.Filename,
		FileType:  fileType,
		Size:      header.Size,
		Data:      file,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, viewOf(doc))
}

func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, ok := userID(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	doc, err := h.svc.Get(r.Context(), user, id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(doc))
}

func (h *DocumentHandler) ListByChapter(w http.ResponseWriter, r *http.Request) {
	user, ok := userID(w, r)
	if !ok {
		return
	}
	chapterID, ok := pathUUID(w, r, "chapterID")
	if !ok {
		return
	}

	docs, err := h.svc.ListByChapter(r.Context(), user, chapterID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	views := make([]documentView, len(docs))
	for i := range docs {
		views[i] = viewOf(&docs[i])
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": views, "count": len(views)})
}

func (h *DocumentHandler) ReIngest(w http.ResponseWriter, r *http.Request) {
	user, ok := userID(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	doc, err := h.svc.ReIngest(r.Context(), user, id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"id": doc.ID.String(), "status": "queued"})
}

func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user, ok := userID(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	if err := h.svc.Delete(r.Context(), user, id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func optionalUUID(s string) (*uuid.UUID, error) {
	if s == "" {
		return nil, nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return nil, err
	}
	return &id, nil
}
