package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/dom/faq-chat-web/internal/domain"
	"github.com/dom/faq-chat-web/internal/inference"
	"github.com/dom/faq-chat-web/internal/relay"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const persistTimeout = 10 * time.Second

// Upstream is the part of the inference backend a conversation needs.
type Upstream interface {
	OpenChatStream(ctx context.Context, token string, req inference.ChatRequest) (io.ReadCloser, error)
	GenerateTitle(ctx context.Context, token, message string) (string, error)
}

type MessagePart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// TurnMessage accepts both the plain {role, content} shape and the
// {role, parts} shape sent by UI message clients.
type TurnMessage struct {
	Role    string        `json:"role"`
	Content string        `json:"content,omitempty"`
	Parts   []MessagePart `json:"parts,omitempty"`
}

func (m TurnMessage) Text() string {
	if m.Content != "" {
		return m.Content
	}
	var b strings.Builder
	for _, p := range m.Parts {
		if p.Type == "text" {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

type TurnRequest struct {
	ChatID   *uuid.UUID    `json:"chatId,omitempty"`
	Messages []TurnMessage `json:"messages"`
}

type ConversationService struct {
	chats        *ChatService
	upstream     Upstream
	relay        *relay.Relay
	historyTurns int
	log          *zap.Logger

	background sync.WaitGroup
}

func NewConversationService(chats *ChatService, upstream Upstream, rl *relay.Relay, historyTurns int, log *zap.Logger) *ConversationService {
	return &ConversationService{
		chats:        chats,
		upstream:     upstream,
		relay:        rl,
		historyTurns: historyTurns,
		log:          log.Named("conversation"),
	}
}

// Turn runs one user turn end to end. Errors returned before anything was
// emitted (validation, ownership, upstream open) leave the client
// transport untouched so the caller can answer with a status code.
func (s *ConversationService) Turn(ctx context.Context, caller domain.Caller, req TurnRequest, emit relay.Emitter) (*relay.Result, error) {
	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("%w: messages are required", domain.ErrValidation)
	}
	last := req.Messages[len(req.Messages)-1]
	if last.Role != string(domain.RoleUser) {
		return nil, fmt.Errorf("%w: last message must be from the user", domain.ErrValidation)
	}
	userText := last.Text()
	if strings.TrimSpace(userText) == "" {
		return nil, fmt.Errorf("%w: message text is required", domain.ErrValidation)
	}

	var (
		history   []inference.Turn
		firstTurn bool
	)
	if req.ChatID != nil {
		count, err := s.chats.CountMessages(ctx, caller.UserID, *req.ChatID)
		if err != nil {
			return nil, err
		}
		firstTurn = count == 0

		prior, err := s.chats.RecentTurns(ctx, caller.UserID, *req.ChatID, s.historyTurns)
		if err != nil {
			return nil, err
		}
		for _, m := range prior {
			history = append(history, inference.Turn{Role: string(m.Role), Content: m.Content})
		}

		if _, err := s.chats.AppendMessage(ctx, caller.UserID, *req.ChatID, domain.RoleUser, userText); err != nil {
			return nil, err
		}
	} else {
		history = trailingHistory(req.Messages[:len(req.Messages)-1], s.historyTurns)
	}

	open := func(ctx context.Context) (io.ReadCloser, error) {
		return s.upstream.OpenChatStream(ctx, caller.Token, inference.ChatRequest{
			Message: userText,
			History: history,
		})
	}
	result, err := s.relay.Run(ctx, open, emit)
	if err != nil {
		s.log.Warn("upstream open failed", zap.String("user_id", caller.UserID.String()), zap.Error(err))
		return nil, err
	}

	if req.ChatID == nil {
		return result, nil
	}

	// The client may already be gone; the reply is still stored.
	if strings.TrimSpace(result.Text) != "" {
		persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
		_, perr := s.chats.AppendMessage(persistCtx, caller.UserID, *req.ChatID, domain.RoleAssistant, result.Text)
		cancel()
		if perr != nil {
			s.log.Error("failed to persist assistant message",
				zap.String("chat_id", req.ChatID.String()),
				zap.Error(perr))
		}
	}

	if firstTurn {
		s.generateTitle(caller, *req.ChatID, userText)
	}
	return result, nil
}

func (s *ConversationService) generateTitle(caller domain.Caller, chatID uuid.UUID, firstMessage string) {
	s.background.Add(1)
	go func() {
		defer s.background.Done()

		ctx := context.Background()
		title, err := s.upstream.GenerateTitle(ctx, caller.Token, firstMessage)
		if err != nil {
			s.log.Warn("title generation failed", zap.String("chat_id", chatID.String()), zap.Error(err))
			return
		}
		if strings.TrimSpace(title) == "" || title == domain.DefaultChatTitle {
			return
		}

		persistCtx, cancel := context.WithTimeout(ctx, persistTimeout)
		defer cancel()
		if _, err := s.chats.UpdateTitle(persistCtx, caller.UserID, chatID, title); err != nil {
			s.log.Warn("failed to store generated title", zap.String("chat_id", chatID.String()), zap.Error(err))
		}
	}()
}

// Wait blocks until background title generation has finished.
func (s *ConversationService) Wait() {
	s.background.Wait()
}

func trailingHistory(prior []TurnMessage, n int) []inference.Turn {
	if n <= 0 {
		return nil
	}
	if len(prior) > n {
		prior = prior[len(prior)-n:]
	}
	history := make([]inference.Turn, 0, len(prior))
	for _, m := range prior {
		text := m.Text()
		if text == "" {
			continue
		}
		history = append(history, inference.Turn{Role: m.Role, Content: text})
	}
	return history
}
