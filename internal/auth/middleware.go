package auth

import (
	"log/slog"
	"net/http"
	"strings"
)

// Middleware authenticates the caller via a bearer session JWT and stores the
// resulting Identity in the request context. Anonymous endpoints (login,
// health checks) must not be mounted behind this middleware.
func Middleware(sessionMgr *SessionManager, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") && !strings.HasPrefix(authHeader, "bearer ") {
				respondErr(w, http.StatusUnauthorized, "auth_missing", "missing bearer token")
				return
			}

			rawToken := strings.TrimSpace(authHeader[len("Bearer "):])

			claims, err := sessionMgr.ValidateToken(rawToken)
			if err != nil {
				logger.Warn("session token validation failed", "error", err)
				respondErr(w, http.StatusUnauthorized, "auth_missing", "invalid or expired token")
				return
			}

			identity := &Identity{
				Subject: claims.Subject,
				Role:    claims.Role,
				Method:  MethodBearer,
			}

			ctx := NewContext(r.Context(), identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
