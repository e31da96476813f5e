package domain

import (
	"time"

	"github.com/google/uuid"
)

const DefaultChatTitle = "New Chat"

type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

func (r MessageRole) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

type ChatSession struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	UserID    uuid.UUID `json:"userId" gorm:"type:uuid;not null;index"`
	User      *User     `json:"-" gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	Title     string    `json:"title" gorm:"not null;default:'New Chat'"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" gorm:"index"`
}

type ChatMessage struct {
	ID            uuid.UUID    `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	ChatSessionID uuid.UUID    `json:"chatSessionId" gorm:"type:uuid;not null;index:idx_chat_messages_session_created,priority:1"`
	ChatSession   *ChatSession `json:"-" gorm:"foreignKey:ChatSessionID;constraint:OnDelete:CASCADE"`
	Role          MessageRole  `json:"role" gorm:"type:varchar(16);not null"`
	Content       string       `json:"content" gorm:"type:text;not null"`
	CreatedAt     time.Time    `json:"createdAt" gorm:"index:idx_chat_messages_session_created,priority:2"`
}

// ChatSessionSummary is a session row plus its message count, as listed in the sidebar.
type ChatSessionSummary struct {
	ID           uuid.UUID `json:"id"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
	MessageCount int64     `json:"messageCount"`
}

// MessagePage is one page of history in chronological order.
type MessagePage struct {
	Messages   []*ChatMessage
	HasMore    bool
	NextCursor *uuid.UUID
}
