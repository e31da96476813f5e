package repository

import (
	"context"
	"time"

	"github.com/dom/faq-chat-web/internal/domain"
	"github.com/google/uuid"
)

type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
}

type ChatSessionRepository interface {
	Create(ctx context.Context, session *domain.ChatSession) error
	// GetForOwner returns gorm.ErrRecordNotFound when the session is missing
	// or belongs to another user.
	GetForOwner(ctx context.Context, id, ownerID uuid.UUID) (*domain.ChatSession, error)
	ListSummaries(ctx context.Context, ownerID uuid.UUID) ([]*domain.ChatSessionSummary, error)
	UpdateTitle(ctx context.Context, id uuid.UUID, title string, at time.Time) error
}

type ChatMessageRepository interface {
	// Append inserts the message and bumps the owning session's updated_at
	// in one transaction.
	Append(ctx context.Context, message *domain.ChatMessage) error
	GetInSession(ctx context.Context, sessionID, id uuid.UUID) (*domain.ChatMessage, error)
	// ListBefore returns up to limit messages newest-first. With a non-nil
	// cursor only rows strictly older than the cursor row are returned.
	ListBefore(ctx context.Context, sessionID uuid.UUID, cursor *domain.ChatMessage, limit int) ([]*domain.ChatMessage, error)
	CountBySession(ctx context.Context, sessionID uuid.UUID) (int64, error)
}

type Repositories struct {
	User        UserRepository
	ChatSession ChatSessionRepository
	ChatMessage ChatMessageRepository
}
