package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/dom/faq-chat-web/internal/domain"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// UserBuilder creates test users with a builder pattern
type UserBuilder struct {
	email     string
	name      string
	lastName  string
	password  string
	anonymous bool
}

// NewUserBuilder creates a new UserBuilder with default values
func NewUserBuilder() *UserBuilder {
	return &UserBuilder{
		email:    fmt.Sprintf("user_%s@example.com", uuid.New().String()[:8]),
		name:     "Test",
		lastName: "User",
		password: "testpassword123",
	}
}

// WithEmail sets the email
func (b *UserBuilder) WithEmail(email string) *UserBuilder {
	b.email = email
	return b
}

// WithPassword sets the password
func (b *UserBuilder) WithPassword(password string) *UserBuilder {
	b.password = password
	return b
}

// Anonymous makes the user a passwordless guest
func (b *UserBuilder) Anonymous() *UserBuilder {
	b.anonymous = true
	return b
}

// Build creates the user in the database and returns the user with the raw password
func (b *UserBuilder) Build(t *testing.T, db *gorm.DB) (*domain.User, string) {
	t.Helper()

	lastName := b.lastName
	user := &domain.User{
		ID:          uuid.New(),
		Email:       b.email,
		Name:        b.name,
		LastName:    &lastName,
		IsAnonymous: b.anonymous,
		CreatedAt:   time.Now(),
	}

	if !b.anonymous {
		hashedPassword, err := bcrypt.GenerateFromPassword([]byte(b.password), bcrypt.MinCost)
		if err != nil {
			t.Fatalf("failed to hash password: %v", err)
		}
		hash := string(hashedPassword)
		user.PasswordHash = &hash
	}

	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed to create user: %v", err)
	}

	if b.anonymous {
		return user, ""
	}
	return user, b.password
}

// AuthResponse matches the API token response
type AuthResponse struct {
	Token string `json:"token"`
	User  struct {
		ID          string  `json:"id"`
		Email       string  `json:"email"`
		Name        string  `json:"name"`
		LastName    *string `json:"lastName"`
		IsAnonymous bool    `json:"isAnonymous"`
	} `json:"user"`
}

// BuildAndAuthenticate registers and logs the user in via the API and
// returns the user and bearer token
func (b *UserBuilder) BuildAndAuthenticate(t *testing.T, ts *TestServer) (*domain.User, string) {
	t.Helper()

	if b.anonymous {
		return AuthenticateAnonymous(t, ts)
	}

	register, _ := json.Marshal(map[string]string{
		"firstName": b.name,
		"lastName":  b.lastName,
		"email":     b.email,
		"password":  b.password,
	})
	resp, err := http.Post(ts.APIURL("/auth/register"), "application/json", bytes.NewBuffer(register))
	if err != nil {
		t.Fatalf("failed to register user: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("unexpected register status code: %d", resp.StatusCode)
	}

	login, _ := json.Marshal(map[string]string{
		"email":    b.email,
		"password": b.password,
	})
	resp, err = http.Post(ts.APIURL("/auth/login"), "application/json", bytes.NewBuffer(login))
	if err != nil {
		t.Fatalf("failed to log in: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected login status code: %d", resp.StatusCode)
	}

	return decodeAuthResponse(t, resp)
}

// AuthenticateAnonymous creates a guest via the API
func AuthenticateAnonymous(t *testing.T, ts *TestServer) (*domain.User, string) {
	t.Helper()

	resp, err := http.Post(ts.APIURL("/auth/anonymous"), "application/json", nil)
	if err != nil {
		t.Fatalf("failed to create anonymous user: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected anonymous status code: %d", resp.StatusCode)
	}

	return decodeAuthResponse(t, resp)
}

func decodeAuthResponse(t *testing.T, resp *http.Response) (*domain.User, string) {
	t.Helper()

	var authResp AuthResponse
	if err := json.NewDecoder(resp.Body).Decode(&authResp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	userID, _ := uuid.Parse(authResp.User.ID)
	user := &domain.User{
		ID:          userID,
		Email:       authResp.User.Email,
		Name:        authResp.User.Name,
		LastName:    authResp.User.LastName,
		IsAnonymous: authResp.User.IsAnonymous,
	}
	return user, authResp.Token
}

// ChatSessionBuilder creates chat sessions with a builder pattern
type ChatSessionBuilder struct {
	owner     *domain.User
	title     string
	updatedAt time.Time
}

// NewChatSessionBuilder creates a new ChatSessionBuilder with default values
func NewChatSessionBuilder() *ChatSessionBuilder {
	return &ChatSessionBuilder{
		title:     domain.DefaultChatTitle,
		updatedAt: time.Now(),
	}
}

// WithOwner sets the owning user
func (b *ChatSessionBuilder) WithOwner(user *domain.User) *ChatSessionBuilder {
	b.owner = user
	return b
}

// WithTitle sets the title
func (b *ChatSessionBuilder) WithTitle(title string) *ChatSessionBuilder {
	b.title = title
	return b
}

// WithUpdatedAt sets the last activity time
func (b *ChatSessionBuilder) WithUpdatedAt(at time.Time) *ChatSessionBuilder {
	b.updatedAt = at
	return b
}

// Build creates the session in the database
func (b *ChatSessionBuilder) Build(t *testing.T, db *gorm.DB) *domain.ChatSession {
	t.Helper()

	if b.owner == nil {
		t.Fatalf("chat session builder requires an owner")
	}

	session := &domain.ChatSession{
		ID:        uuid.New(),
		UserID:    b.owner.ID,
		Title:     b.title,
		CreatedAt: b.updatedAt,
		UpdatedAt: b.updatedAt,
	}
	if err := db.Create(session).Error; err != nil {
		t.Fatalf("failed to create chat session: %v", err)
	}
	return session
}

// SeedMessages inserts count alternating user/assistant messages one
// second apart, oldest first, with contents "message 1".."message N".
func SeedMessages(t *testing.T, db *gorm.DB, session *domain.ChatSession, count int) []*domain.ChatMessage {
	t.Helper()

	base := time.Now().Add(-time.Duration(count) * time.Second)
	messages := make([]*domain.ChatMessage, 0, count)
	for i := 0; i < count; i++ {
		role := domain.RoleUser
		if i%2 == 1 {
			role = domain.RoleAssistant
		}
		msg := &domain.ChatMessage{
			ID:            uuid.New(),
			ChatSessionID: session.ID,
			Role:          role,
			Content:       fmt.Sprintf("message %d", i+1),
			CreatedAt:     base.Add(time.Duration(i) * time.Second),
		}
		if err := db.Create(msg).Error; err != nil {
			t.Fatalf("failed to create message: %v", err)
		}
		messages = append(messages, msg)
	}
	return messages
}

// CreateAuthenticatedRequest creates an HTTP request with auth token
func CreateAuthenticatedRequest(t *testing.T, method, url string, body interface{}, token string) *http.Request {
	t.Helper()

	var bodyReader *bytes.Buffer
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		bodyReader = bytes.NewBuffer(jsonBody)
	} else {
		bodyReader = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequestWithContext(context.Background(), method, url, bodyReader)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return req
}
