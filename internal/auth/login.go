package auth

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// LoginRequest is the JSON body for the admin and viewer login endpoints.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is the JSON response for a successful login.
type LoginResponse struct {
	Token     string    `json:"token"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Credentials holds the static, env-configured username/bcrypt-hash pair for
// one role. The spec carries no user store — admin and viewer are the only
// two identities the service knows about.
type Credentials struct {
	Username     string
	PasswordHash string
}

// LoginHandler authenticates against the two static credential pairs and
// issues session JWTs.
type LoginHandler struct {
	sessionMgr *SessionManager
	limiter    *RateLimiter
	admin      Credentials
	viewer     Credentials
	maxAge     time.Duration
	logger     *slog.Logger
}

// NewLoginHandler creates a login handler for the two static roles.
func NewLoginHandler(sm *SessionManager, limiter *RateLimiter, admin, viewer Credentials, maxAge time.Duration, logger *slog.Logger) *LoginHandler {
	return &LoginHandler{
		sessionMgr: sm,
		limiter:    limiter,
		admin:      admin,
		viewer:     viewer,
		maxAge:     maxAge,
		logger:     logger,
	}
}

// HandleAdminLogin authenticates the admin credential pair.
func (h *LoginHandler) HandleAdminLogin(w http.ResponseWriter, r *http.Request) {
	h.handleLogin(w, r, h.admin, RoleAdmin)
}

// HandleViewerLogin authenticates the viewer credential pair.
func (h *LoginHandler) HandleViewerLogin(w http.ResponseWriter, r *http.Request) {
	h.handleLogin(w, r, h.viewer, RoleViewer)
}

func (h *LoginHandler) handleLogin(w http.ResponseWriter, r *http.Request, creds Credentials, role string) {
	ip := clientIP(r)

	if h.limiter != nil {
		result, err := h.limiter.Check(r.Context(), ip)
		if err != nil {
			h.logger.Error("login rate limit check failed", "error", err)
		} else if !result.Allowed {
			w.Header().Set("Retry-After", time.Until(result.RetryAt).Truncate(time.Second).String())
			respondErr(w, http.StatusTooManyRequests, "rate_limited", "too many login attempts")
			return
		}
	}

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondErr(w, http.StatusUnprocessableEntity, "validation", "invalid JSON body")
		return
	}

	// Constant-time comparison against the configured username avoids leaking
	// which of username/password was wrong via a timing side channel.
	usernameOK := constantTimeEqual(req.Username, creds.Username)
	passwordOK := req.Password != "" && creds.PasswordHash != "" &&
		bcrypt.CompareHashAndPassword([]byte(creds.PasswordHash), []byte(req.Password)) == nil

	if !usernameOK || !passwordOK {
		if h.limiter != nil {
			if err := h.limiter.Record(r.Context(), ip); err != nil {
				h.logger.Error("recording failed login attempt", "error", err)
			}
		}
		respondErr(w, http.StatusUnauthorized, "auth_missing", "invalid username or password")
		return
	}

	if h.limiter != nil {
		if err := h.limiter.Reset(r.Context(), ip); err != nil {
			h.logger.Error("resetting login rate limit", "error", err)
		}
	}

	token, err := h.sessionMgr.IssueToken(SessionClaims{Subject: req.Username, Role: role})
	if err != nil {
		h.logger.Error("issuing session token", "error", err)
		respondErr(w, http.StatusInternalServerError, "internal", "failed to issue token")
		return
	}

	respondJSON(w, http.StatusOK, LoginResponse{
		Token:     token,
		Role:      role,
		ExpiresAt: time.Now().Add(h.maxAge),
	})
}

// HandleMe returns the current identity derived from the bearer token.
func (h *LoginHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	id := FromContext(r.Context())
	if id == nil {
		respondErr(w, http.StatusUnauthorized, "auth_missing", "no token provided")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"subject": id.Subject,
		"role":    id.Role,
	})
}

func constantTimeEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	var diff byte
	for i := 0; i < len(a); i++ {
		diff |= a[i] ^ b[i]
	}
	return diff == 0
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		for i := 0; i < len(xff); i++ {
			if xff[i] == ',' {
				return xff[:i]
			}
		}
		return xff
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}
