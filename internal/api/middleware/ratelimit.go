package middleware

import (
	"net"
	"net/http"

	"github.com/dom/faq-chat-web/internal/ratelimit"
	"go.uber.org/zap"
)

type KeyFunc func(r *http.Request) string

// ByIP keys on the client address. Run after chi's RealIP so proxies are
// accounted for.
func ByIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

// ByCaller keys on the authenticated user, falling back to the address.
func ByCaller(r *http.Request) string {
	if caller, ok := GetCaller(r.Context()); ok {
		return "user:" + caller.UserID.String()
	}
	return ByIP(r)
}

// RateLimit answers 429 once key exceeds the limiter's window. Limiter
// errors let the request through.
func RateLimit(limiter ratelimit.Limiter, scope string, key KeyFunc, log *zap.Logger) func(http.Handler) http.Handler {
	log = log.Named("ratelimit")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed, err := limiter.Allow(r.Context(), scope+":"+key(r))
			if err != nil {
				log.Warn("rate limiter unavailable", zap.String("scope", scope), zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				respondError(w, http.StatusTooManyRequests, "Too many requests, please try again later")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
