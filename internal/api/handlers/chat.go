package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/studywise/internal/chat"
	"github.com/nikhilbhutani/studywise/internal/models"
)

// ChatService is satisfied by *chat.Service.
type ChatService interface {
	Ask(ctx context.Context, req chat.AskRequest) (*chat.Exchange, error)
	Messages(ctx context.Context, userID, chapterID uuid.UUID, limit int) ([]models.ChatMessage, error)
}

type ChatHandler struct {
	svc ChatService
}

func NewChatHandler(svc ChatService) *ChatHandler {
	return &ChatHandler{svc: svc}
}

type askRequest struct {
	Message   string     `json:"message"`
	SubjectID *uuid.UUID `json:"subject_id,omitempty"`
}

func (h *ChatHandler) Ask(w http.ResponseWriter, r *http.Request) {
	user, ok := userID(w, r)
	if !ok {
		return
	}
	chapterID, ok := pathUUID(w, r, "chapterID")
	if !ok {
		return
	}

	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	ex, err := h.svc.Ask(r.Context(), chat.AskRequest{
		UserID:    user,
		ChapterID: chapterID,
		SubjectID: req.SubjectID,
		Text:      req.Message,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ex)
}

func (h *ChatHandler) Messages(w http.ResponseWriter, r *http.Request) {
	user, ok := userID(w, r)
	if !ok {
		return
	}
	chapterID, ok := pathUUID(w, r, "chapterID")
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit > 200 {
		limit = 200
	}

	msgs, err := h.svc.Messages(r.Context(), user, chapterID, limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs, "count": len(msgs)})
}
