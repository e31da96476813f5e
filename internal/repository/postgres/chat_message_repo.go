package postgres

import (
	"context"

	"github.com/dom/faq-chat-web/internal/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type chatMessageRepository struct {
	db *gorm.DB
}

func NewChatMessageRepository(db *gorm.DB) *chatMessageRepository {
	return &chatMessageRepository{db: db}
}

func (r *chatMessageRepository) Append(ctx context.Context, message *domain.ChatMessage) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(message).Error; err != nil {
			return err
		}
		result := tx.Model(&domain.ChatSession{}).
			Where("id = ?", message.ChatSessionID).
			Update("updated_at", message.CreatedAt)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

func (r *chatMessageRepository) GetInSession(ctx context.Context, sessionID, id uuid.UUID) (*domain.ChatMessage, error) {
	var message domain.ChatMessage
	err := r.db.WithContext(ctx).
		Where("id = ? AND chat_session_id = ?", id, sessionID).
		First(&message).Error
	if err != nil {
		return nil, err
	}
	return &message, nil
}

func (r *chatMessageRepository) ListBefore(ctx context.Context, sessionID uuid.UUID, cursor *domain.ChatMessage, limit int) ([]*domain.ChatMessage, error) {
	query := r.db.WithContext(ctx).Where("chat_session_id = ?", sessionID)
	if cursor != nil {
		// Row-value comparison keeps the (created_at, id) order total, so a
		// message sharing the cursor's timestamp is neither skipped nor repeated.
		query = query.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
	}

	var messages []*domain.ChatMessage
	err := query.
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&messages).Error
	return messages, err
}

func (r *chatMessageRepository) CountBySession(ctx context.Context, sessionID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.ChatMessage{}).
		Where("chat_session_id = ?", sessionID).
		Count(&count).Error
	return count, err
}
