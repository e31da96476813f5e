package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/dom/faq-chat-web/internal/domain"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

// UserResponse is the public view of a user.
type UserResponse struct {
	ID          string  `json:"id"`
	Email       string  `json:"email"`
	Name        string  `json:"name"`
	LastName    *string `json:"lastName,omitempty"`
	IsAnonymous bool    `json:"isAnonymous"`
	CreatedAt   string  `json:"createdAt,omitempty"`
}

func newUserResponse(u *domain.User) UserResponse {
	return UserResponse{
		ID:          u.ID.String(),
		Email:       u.Email,
		Name:        u.Name,
		LastName:    u.LastName,
		IsAnonymous: u.IsAnonymous,
		CreatedAt:   u.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	}
}

func identityResponse(id domain.Identity) UserResponse {
	resp := UserResponse{
		ID:          id.UserID.String(),
		Email:       id.Email,
		Name:        id.Name,
		IsAnonymous: id.IsAnonymous,
	}
	if id.LastName != "" {
		lastName := id.LastName
		resp.LastName = &lastName
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// statusFor maps a service error onto an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized),
		errors.Is(err, domain.ErrInvalidToken),
		errors.Is(err, domain.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrUpstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError answers with the mapped status. Messages of client errors
// are passed through; everything else is reported generically.
func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := err.Error()
	switch status {
	case http.StatusInternalServerError:
		msg = "Internal server error"
		if errors.Is(err, domain.ErrConfiguration) {
			msg = "Server configuration error"
		}
	case http.StatusBadGateway:
		msg = "Failed to get response from backend"
	case http.StatusUnauthorized:
		msg = "Unauthorized"
		if errors.Is(err, domain.ErrInvalidCredentials) {
			msg = "Invalid credentials"
		}
	default:
		msg = capitalize(stripSentinel(msg))
	}
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// stripSentinel drops the "sentinel: " prefix added by %w wrapping so
// only the detail reaches the client.
func stripSentinel(msg string) string {
	if _, detail, ok := strings.Cut(msg, ": "); ok && detail != "" {
		return detail
	}
	return msg
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func decodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request body", domain.ErrValidation)
	}
	return nil
}
