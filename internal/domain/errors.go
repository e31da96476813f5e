package domain

import "errors"

// Auth errors
var (
	ErrConfiguration      = errors.New("server is not configured for token signing")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidToken       = errors.New("invalid token")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Request and store errors
var (
	ErrValidation  = errors.New("validation failed")
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrUpstream    = errors.New("inference backend unavailable")
	ErrRateLimited = errors.New("too many requests")
)
