// Package auth implements the admin session model (C10): bearer-token
// issuance/validation and role gating for the two static roles the spec
// defines, admin and viewer.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
)

// Roles supported by the RBAC system. There are exactly two — this is not
// a general RBAC system like the teacher's four-tier one, since the spec
// defines only admin and viewer (end-user authentication is a non-goal).
const (
	RoleAdmin  = "admin"
	RoleViewer = "viewer"
)

// Method describes how the caller was authenticated.
const (
	MethodBearer = "bearer"
)

// Identity represents the authenticated caller for the current request.
type Identity struct {
	Subject string // username
	Role    string // RoleAdmin or RoleViewer
	Method  string
}

// HasRole reports whether the identity holds exactly the given role.
func (id *Identity) HasRole(role string) bool {
	return id != nil && id.Role == role
}

// IsAdmin reports whether the identity holds the admin role.
func (id *Identity) IsAdmin() bool {
	return id.HasRole(RoleAdmin)
}

type ctxKey string

const identityKey ctxKey = "auth_identity"

// NewContext stores the identity in the context.
func NewContext(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// FromContext extracts the identity from the context. Returns nil if unset.
func FromContext(ctx context.Context) *Identity {
	v, _ := ctx.Value(identityKey).(*Identity)
	return v
}

// GenerateDevSecret produces a random session signing secret for
// unconfigured development environments. Every restart invalidates prior
// sessions, which is acceptable for local use but must never be relied on
// in production — operators are expected to set an explicit secret there.
func GenerateDevSecret() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic("auth: reading random session secret: " + err.Error())
	}
	return hex.EncodeToString(buf)
}
