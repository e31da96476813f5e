package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dom/faq-chat-web/internal/domain"
	"github.com/dom/faq-chat-web/internal/repository"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ChatService struct {
	sessionRepo  repository.ChatSessionRepository
	messageRepo  repository.ChatMessageRepository
	defaultLimit int
	maxLimit     int
}

func NewChatService(sessionRepo repository.ChatSessionRepository, messageRepo repository.ChatMessageRepository, defaultLimit, maxLimit int) *ChatService {
	return &ChatService{
		sessionRepo:  sessionRepo,
		messageRepo:  messageRepo,
		defaultLimit: defaultLimit,
		maxLimit:     maxLimit,
	}
}

func (s *ChatService) CreateSession(ctx context.Context, ownerID uuid.UUID, title string) (*domain.ChatSession, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = domain.DefaultChatTitle
	}

	now := time.Now()
	session := &domain.ChatSession{
		ID:        uuid.New(),
		UserID:    ownerID,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *ChatService) ListSessions(ctx context.Context, ownerID uuid.UUID) ([]*domain.ChatSessionSummary, error) {
	summaries, err := s.sessionRepo.ListSummaries(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if summaries == nil {
		summaries = []*domain.ChatSessionSummary{}
	}
	return summaries, nil
}

// GetSession returns the session only if ownerID owns it. Missing and
// foreign sessions are indistinguishable to the caller.
func (s *ChatService) GetSession(ctx context.Context, ownerID, sessionID uuid.UUID) (*domain.ChatSession, error) {
	session, err := s.sessionRepo.GetForOwner(ctx, sessionID, ownerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("chat %w", domain.ErrNotFound)
		}
		return nil, err
	}
	return session, nil
}

func (s *ChatService) AppendMessage(ctx context.Context, ownerID, sessionID uuid.UUID, role domain.MessageRole, content string) (*domain.ChatMessage, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("%w: role must be %q or %q", domain.ErrValidation, domain.RoleUser, domain.RoleAssistant)
	}
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("%w: content is required", domain.ErrValidation)
	}
	if _, err := s.GetSession(ctx, ownerID, sessionID); err != nil {
		return nil, err
	}

	message := &domain.ChatMessage{
		ID:            uuid.New(),
		ChatSessionID: sessionID,
		Role:          role,
		Content:       content,
		CreatedAt:     time.Now(),
	}
	if err := s.messageRepo.Append(ctx, message); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("chat %w", domain.ErrNotFound)
		}
		return nil, err
	}
	return message, nil
}

// ResolveLimit turns a requested page size into an effective one. Zero
// means the default; values above the maximum are clamped.
func (s *ChatService) ResolveLimit(requested int) (int, error) {
	switch {
	case requested == 0:
		return s.defaultLimit, nil
	case requested < 0:
		return 0, fmt.Errorf("%w: limit must be positive", domain.ErrValidation)
	case requested > s.maxLimit:
		return s.maxLimit, nil
	default:
		return requested, nil
	}
}

// FetchMessages pages backwards through a session's history. It reads
// limit+1 rows newest-first after the cursor; the extra row only signals
// that more history exists. NextCursor names the oldest row handed back,
// so the following page starts right after it.
func (s *ChatService) FetchMessages(ctx context.Context, ownerID, sessionID uuid.UUID, limit int, cursor *uuid.UUID) (*domain.MessagePage, error) {
	limit, err := s.ResolveLimit(limit)
	if err != nil {
		return nil, err
	}
	if _, err := s.GetSession(ctx, ownerID, sessionID); err != nil {
		return nil, err
	}

	var cursorRow *domain.ChatMessage
	if cursor != nil {
		cursorRow, err = s.messageRepo.GetInSession(ctx, sessionID, *cursor)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, fmt.Errorf("%w: unknown cursor", domain.ErrValidation)
			}
			return nil, err
		}
	}

	rows, err := s.messageRepo.ListBefore(ctx, sessionID, cursorRow, limit+1)
	if err != nil {
		return nil, err
	}

	page := &domain.MessagePage{}
	if len(rows) > limit {
		page.HasMore = true
		rows = rows[:limit]
		next := rows[len(rows)-1].ID
		page.NextCursor = &next
	}

	page.Messages = make([]*domain.ChatMessage, len(rows))
	for i, row := range rows {
		page.Messages[len(rows)-1-i] = row
	}
	return page, nil
}

// RecentTurns returns at most n of the latest messages, oldest first.
func (s *ChatService) RecentTurns(ctx context.Context, ownerID, sessionID uuid.UUID, n int) ([]*domain.ChatMessage, error) {
	if _, err := s.GetSession(ctx, ownerID, sessionID); err != nil {
		return nil, err
	}
	if n <= 0 {
		return []*domain.ChatMessage{}, nil
	}

	rows, err := s.messageRepo.ListBefore(ctx, sessionID, nil, n)
	if err != nil {
		return nil, err
	}
	turns := make([]*domain.ChatMessage, len(rows))
	for i, row := range rows {
		turns[len(rows)-1-i] = row
	}
	return turns, nil
}

func (s *ChatService) CountMessages(ctx context.Context, ownerID, sessionID uuid.UUID) (int64, error) {
	if _, err := s.GetSession(ctx, ownerID, sessionID); err != nil {
		return 0, err
	}
	return s.messageRepo.CountBySession(ctx, sessionID)
}

func (s *ChatService) UpdateTitle(ctx context.Context, ownerID, sessionID uuid.UUID, title string) (*domain.ChatSession, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", domain.ErrValidation)
	}

	session, err := s.GetSession(ctx, ownerID, sessionID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if err := s.sessionRepo.UpdateTitle(ctx, session.ID, title, now); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("chat %w", domain.ErrNotFound)
		}
		return nil, err
	}
	session.Title = title
	session.UpdatedAt = now
	return session, nil
}
