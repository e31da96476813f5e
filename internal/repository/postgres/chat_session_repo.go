package postgres

import (
	"context"
	"time"

	"github.com/dom/faq-chat-web/internal/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type chatSessionRepository struct {
	db *gorm.DB
}

func NewChatSessionRepository(db *gorm.DB) *chatSessionRepository {
	return &chatSessionRepository{db: db}
}

func (r *chatSessionRepository) Create(ctx context.Context, session *domain.ChatSession) error {
	return r.db.WithContext(ctx).Create(session).Error
}

func (r *chatSessionRepository) GetForOwner(ctx context.Context, id, ownerID uuid.UUID) (*domain.ChatSession, error) {
	var session domain.ChatSession
	err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, ownerID).
		First(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *chatSessionRepository) ListSummaries(ctx context.Context, ownerID uuid.UUID) ([]*domain.ChatSessionSummary, error) {
	var summaries []*domain.ChatSessionSummary
	err := r.db.WithContext(ctx).
		Model(&domain.ChatSession{}).
		Select("chat_sessions.id, chat_sessions.title, chat_sessions.created_at, chat_sessions.updated_at, COUNT(chat_messages.id) AS message_count").
		Joins("LEFT JOIN chat_messages ON chat_messages.chat_session_id = chat_sessions.id").
		Where("chat_sessions.user_id = ?", ownerID).
		Group("chat_sessions.id").
		Order("chat_sessions.updated_at DESC").
		Scan(&summaries).Error
	return summaries, err
}

func (r *chatSessionRepository) UpdateTitle(ctx context.Context, id uuid.UUID, title string, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&domain.ChatSession{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"title": title, "updated_at": at})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
