package api

import (
	"net/http"

	"github.com/dom/faq-chat-web/internal/api/handlers"
	"github.com/dom/faq-chat-web/internal/api/middleware"
	"github.com/dom/faq-chat-web/internal/config"
	"github.com/dom/faq-chat-web/internal/ratelimit"
	"github.com/dom/faq-chat-web/internal/service"
	"github.com/dom/faq-chat-web/internal/websocket"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

func NewRouter(services *service.Services, hub *websocket.Hub, limiter ratelimit.Limiter, cfg *config.Config, log *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middleware.RequestLogger(log))
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(services.Auth, log)
	chatHandler := handlers.NewChatHandler(services.Chat)
	streamHandler := handlers.NewChatStreamHandler(services.Conversation, log)
	wsHandler := handlers.NewWebSocketHandler(hub, services.Conversation, limiter, services.Tokens, cfg.AllowedOrigins, log)

	byIP := func(scope string) func(http.Handler) http.Handler {
		return middleware.RateLimit(limiter, scope, middleware.ByIP, log)
	}
	byCaller := func(scope string) func(http.Handler) http.Handler {
		return middleware.RateLimit(limiter, scope, middleware.ByCaller, log)
	}

	r.Route("/api", func(r chi.Router) {
		// Public auth routes
		r.Route("/auth", func(r chi.Router) {
			r.With(byIP("auth_anonymous")).Post("/anonymous", authHandler.Anonymous)
			r.With(byIP("auth_register")).Post("/register", authHandler.Register)
			r.With(byIP("auth_login")).Post("/login", authHandler.Login)
			r.Post("/logout", authHandler.Logout)
			r.Get("/token", authHandler.Token)

			r.With(middleware.Auth(services.Tokens, log)).Get("/me", authHandler.Me)
		})

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(services.Tokens, log))

			r.Route("/chats", func(r chi.Router) {
				r.Get("/", chatHandler.List)
				r.Post("/", chatHandler.Create)
				r.Get("/{id}/messages", chatHandler.Messages)
				r.Post("/{id}/messages", chatHandler.AppendMessage)
				r.Patch("/{id}/title", chatHandler.UpdateTitle)
			})

			r.With(byCaller("chat")).Post("/chat", streamHandler.Stream)
		})

		// WebSocket endpoint authenticates itself from the query string
		r.With(byIP("chat_ws")).Get("/chat/ws", wsHandler.Handle)
	})

	return r
}
