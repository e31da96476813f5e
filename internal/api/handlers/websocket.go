package handlers

import (
	"errors"
	"net/http"

	"github.com/dom/faq-chat-web/internal/api/middleware"
	"github.com/dom/faq-chat-web/internal/domain"
	"github.com/dom/faq-chat-web/internal/ratelimit"
	"github.com/dom/faq-chat-web/internal/websocket"
	ws "github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type WebSocketHandler struct {
	hub      *websocket.Hub
	runner   websocket.TurnRunner
	limiter  ratelimit.Limiter
	verifier middleware.TokenVerifier
	upgrader ws.Upgrader
	log      *zap.Logger
}

func NewWebSocketHandler(hub *websocket.Hub, runner websocket.TurnRunner, limiter ratelimit.Limiter, verifier middleware.TokenVerifier, allowedOrigins []string, log *zap.Logger) *WebSocketHandler {
	allowAny := len(allowedOrigins) == 1 && allowedOrigins[0] == "*"
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}

	return &WebSocketHandler{
		hub:      hub,
		runner:   runner,
		limiter:  limiter,
		verifier: verifier,
		upgrader: ws.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowAny || allowed[origin]
			},
		},
		log: log.Named("ws_handler"),
	}
}

// Handle authenticates with ?token= (browsers cannot set headers on a
// WebSocket handshake), falling back to the cookie or bearer header.
func (h *WebSocketHandler) Handle(w http.ResponseWriter, r *http.Request) {
	var caller *domain.Caller
	if token := r.URL.Query().Get("token"); token != "" {
		identity, err := h.verifier.Verify(token)
		if err != nil {
			writeError(w, err)
			return
		}
		caller = &domain.Caller{Identity: *identity, Token: token}
	} else {
		c, err := middleware.ResolveCaller(r, h.verifier)
		if err != nil {
			if !errors.Is(err, domain.ErrConfiguration) {
				err = domain.ErrUnauthorized
			}
			writeError(w, err)
			return
		}
		caller = c
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := websocket.NewClient(h.hub, conn, *caller, h.runner, h.limiter, h.log)
	h.hub.Register(client)
	client.Start()
}
