package handlers

import (
	"net/http"
	"strconv"

	"github.com/dom/faq-chat-web/internal/api/middleware"
	"github.com/dom/faq-chat-web/internal/domain"
	"github.com/dom/faq-chat-web/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type ChatHandler struct {
	chatService *service.ChatService
}

func NewChatHandler(chatService *service.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

type CreateChatRequest struct {
	Title string `json:"title"`
}

type AppendMessageRequest struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type UpdateTitleRequest struct {
	Title string `json:"title"`
}

type Pagination struct {
	HasMore    bool       `json:"hasMore"`
	NextCursor *uuid.UUID `json:"nextCursor"`
	Count      int        `json:"count"`
}

type MessagesResponse struct {
	Messages   []*domain.ChatMessage `json:"messages"`
	Pagination Pagination            `json:"pagination"`
}

func (h *ChatHandler) List(w http.ResponseWriter, r *http.Request) {
	caller, _ := middleware.GetCaller(r.Context())

	chats, err := h.chatService.ListSessions(r.Context(), caller.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chats)
}

func (h *ChatHandler) Create(w http.ResponseWriter, r *http.Request) {
	caller, _ := middleware.GetCaller(r.Context())

	// The body is optional.
	var req CreateChatRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
	}

	chat, err := h.chatService.CreateSession(r.Context(), caller.UserID, req.Title)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, chat)
}

func (h *ChatHandler) Messages(w http.ResponseWriter, r *http.Request) {
	caller, _ := middleware.GetCaller(r.Context())

	chatID, ok := chatIDParam(w, r)
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Limit must be a positive integer"})
			return
		}
		limit = n
	}

	var cursor *uuid.UUID
	if raw := r.URL.Query().Get("cursor"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid cursor"})
			return
		}
		cursor = &id
	}

	page, err := h.chatService.FetchMessages(r.Context(), caller.UserID, chatID, limit, cursor)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, MessagesResponse{
		Messages: page.Messages,
		Pagination: Pagination{
			HasMore:    page.HasMore,
			NextCursor: page.NextCursor,
			Count:      len(page.Messages),
		},
	})
}

func (h *ChatHandler) AppendMessage(w http.ResponseWriter, r *http.Request) {
	caller, _ := middleware.GetCaller(r.Context())

	chatID, ok := chatIDParam(w, r)
	if !ok {
		return
	}

	var req AppendMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	message, err := h.chatService.AppendMessage(r.Context(), caller.UserID, chatID, domain.MessageRole(req.Role), req.Content)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, message)
}

func (h *ChatHandler) UpdateTitle(w http.ResponseWriter, r *http.Request) {
	caller, _ := middleware.GetCaller(r.Context())

	chatID, ok := chatIDParam(w, r)
	if !ok {
		return
	}

	var req UpdateTitleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	chat, err := h.chatService.UpdateTitle(r.Context(), caller.UserID, chatID, req.Title)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chat)
}

// chatIDParam parses the {id} URL parameter. A malformed id cannot name
// any chat, so it is reported as not found.
func chatIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "Chat not found"})
		return uuid.Nil, false
	}
	return id, true
}
