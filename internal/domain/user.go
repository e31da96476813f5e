package domain

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID           uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	Email        string    `json:"email" gorm:"uniqueIndex;not null"`
	Name         string    `json:"name" gorm:"not null"`
	LastName     *string   `json:"lastName"`
	PasswordHash *string   `json:"-"`
	IsAnonymous  bool      `json:"isAnonymous" gorm:"not null;default:false"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Identity is the caller as carried by a bearer token or session cookie.
type Identity struct {
	UserID      uuid.UUID
	Email       string
	Name        string
	LastName    string
	IsAnonymous bool
}

func (u *User) Identity() Identity {
	id := Identity{
		UserID:      u.ID,
		Email:       u.Email,
		Name:        u.Name,
		IsAnonymous: u.IsAnonymous,
	}
	if u.LastName != nil {
		id.LastName = *u.LastName
	}
	return id
}

// Caller is the authenticated principal of a request plus the raw token it
// presented. The token is forwarded to the inference backend.
type Caller struct {
	Identity
	Token string
}
