package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/dom/faq-chat-web/internal/domain"
	"go.uber.org/zap"
)

type contextKey string

const (
	CallerKey contextKey = "caller"

	SessionCookieName       = "session-token"
	SecureSessionCookieName = "__Secure-session-token"
)

type TokenVerifier interface {
	Verify(token string) (*domain.Identity, error)
}

// ResolveCaller finds the request's identity. The session cookie wins;
// a bearer header is used when there is no cookie or the cookie does not
// verify. It returns ErrUnauthorized when neither yields an identity and
// ErrConfiguration when tokens cannot be verified at all.
func ResolveCaller(r *http.Request, verifier TokenVerifier) (*domain.Caller, error) {
	var lastErr error = domain.ErrUnauthorized

	if token := SessionToken(r); token != "" {
		identity, err := verifier.Verify(token)
		if err == nil {
			return &domain.Caller{Identity: *identity, Token: token}, nil
		}
		if errors.Is(err, domain.ErrConfiguration) {
			return nil, err
		}
		lastErr = err
	}

	if token, ok := bearerToken(r); ok {
		identity, err := verifier.Verify(token)
		if err == nil {
			return &domain.Caller{Identity: *identity, Token: token}, nil
		}
		return nil, err
	}

	return nil, lastErr
}

// SessionToken returns the session cookie value, preferring the secure
// cookie name.
func SessionToken(r *http.Request) string {
	for _, name := range []string{SecureSessionCookieName, SessionCookieName} {
		if c, err := r.Cookie(name); err == nil && c.Value != "" {
			return c.Value
		}
	}
	return ""
}

// SessionCookieNameFor picks the cookie name for the connection the
// request came in on.
func SessionCookieNameFor(r *http.Request) string {
	if r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		return SecureSessionCookieName
	}
	return SessionCookieName
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// Auth rejects requests without a verifiable identity and stores the
// caller in the request context.
func Auth(verifier TokenVerifier, log *zap.Logger) func(http.Handler) http.Handler {
	log = log.Named("auth")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller, err := ResolveCaller(r, verifier)
			if err != nil {
				if errors.Is(err, domain.ErrConfiguration) {
					log.Error("token verification unavailable", zap.Error(err))
					respondError(w, http.StatusInternalServerError, "Server configuration error")
					return
				}
				log.Debug("unauthenticated request", zap.String("path", r.URL.Path), zap.Error(err))
				respondError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
		})
	}
}

func WithCaller(ctx context.Context, caller *domain.Caller) context.Context {
	return context.WithValue(ctx, CallerKey, caller)
}

func GetCaller(ctx context.Context) (*domain.Caller, bool) {
	caller, ok := ctx.Value(CallerKey).(*domain.Caller)
	return caller, ok
}

func respondError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
