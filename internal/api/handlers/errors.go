package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nikhilbhutani/studywise/internal/auth"
	"github.com/nikhilbhutani/studywise/internal/chat"
	"github.com/nikhilbhutani/studywise/internal/document"
	"github.com/nikhilbhutani/studywise/internal/logger"
	"github.com/nikhilbhutani/studywise/pkg/textextract"
)

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeServiceError maps domain errors to status codes. Unexpected errors
// are logged and reported without detail.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, document.ErrNotFound):
		writeError(w, http.StatusNotFound, "document not found")
	case errors.Is(err, chat.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "chat session not found")
	case errors.Is(err, document.ErrIngestionInFlight):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, textextract.ErrUnsupportedType):
		writeError(w, http.StatusUnsupportedMediaType,
			"unsupported file type, expected one of "+strings.Join(textextract.SupportedTypes(), ", "))
	default:
		logger.FromContext(r.Context()).Error("request failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// userID writes a 401 when the request carries no authenticated user.
func userID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
	}
	return id, ok
}

func pathUUID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid "+param)
		return uuid.Nil, false
	}
	return id, true
}
