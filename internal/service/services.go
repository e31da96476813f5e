package service

import (
	"github.com/dom/faq-chat-web/internal/config"
	"github.com/dom/faq-chat-web/internal/relay"
	"github.com/dom/faq-chat-web/internal/repository"
	"go.uber.org/zap"
)

type Services struct {
	Tokens       *TokenIssuer
	Auth         *AuthService
	Chat         *ChatService
	Conversation *ConversationService
}

func NewServices(repos *repository.Repositories, upstream Upstream, cfg *config.Config, log *zap.Logger) *Services {
	tokens := NewTokenIssuer(cfg.AuthSecret)
	chat := NewChatService(repos.ChatSession, repos.ChatMessage, cfg.DefaultMessageLimit, cfg.MaxMessageLimit)

	return &Services{
		Tokens:       tokens,
		Auth:         NewAuthService(repos.User, tokens, log),
		Chat:         chat,
		Conversation: NewConversationService(chat, upstream, relay.New(cfg.UpstreamIdleTimeout, log), cfg.HistoryTurns, log),
	}
}
