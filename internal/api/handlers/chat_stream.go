package handlers

import (
	"net/http"

	"github.com/dom/faq-chat-web/internal/api/middleware"
	"github.com/dom/faq-chat-web/internal/relay"
	"github.com/dom/faq-chat-web/internal/service"
	"go.uber.org/zap"
)

type ChatStreamHandler struct {
	conversation *service.ConversationService
	log          *zap.Logger
}

func NewChatStreamHandler(conversation *service.ConversationService, log *zap.Logger) *ChatStreamHandler {
	return &ChatStreamHandler{conversation: conversation, log: log.Named("chat_stream")}
}

// Stream relays one turn as server-sent events. Until the first event is
// written, failures are answered as JSON errors.
func (h *ChatStreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	caller, _ := middleware.GetCaller(r.Context())

	var req service.TurnRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	emitter, err := relay.NewSSEEmitter(w)
	if err != nil {
		h.log.Error("response writer cannot stream", zap.Error(err))
		writeError(w, err)
		return
	}

	result, err := h.conversation.Turn(r.Context(), *caller, req, emitter)
	if err != nil {
		if emitter.Started() {
			return
		}
		writeError(w, err)
		return
	}

	if result.Err != nil {
		h.log.Info("stream finished early",
			zap.String("user_id", caller.UserID.String()),
			zap.Int("deltas", result.Deltas),
			zap.Error(result.Err))
	}
}
