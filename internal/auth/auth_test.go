package auth

import (
	"context"
	"testing"
)

func TestIdentityContext(t *testing.T) {
	ctx := context.Background()

	if id := FromContext(ctx); id != nil {
		t.Fatalf("expected nil, got %+v", id)
	}

	identity := &Identity{
		Subject: "admin",
		Role:    RoleAdmin,
		Method:  MethodBearer,
	}
	ctx = NewContext(ctx, identity)

	got := FromContext(ctx)
	if got == nil {
		t.Fatal("expected identity, got nil")
	}
	if got.Subject != "admin" {
		t.Errorf("Subject = %q, want %q", got.Subject, "admin")
	}
	if got.Role != RoleAdmin {
		t.Errorf("Role = %q, want %q", got.Role, RoleAdmin)
	}
}

func TestIdentityHasRole(t *testing.T) {
	var nilID *Identity
	if nilID.HasRole(RoleAdmin) {
		t.Error("nil identity must not have any role")
	}

	admin := &Identity{Subject: "a", Role: RoleAdmin}
	if !admin.IsAdmin() {
		t.Error("expected admin identity to report IsAdmin() true")
	}

	viewer := &Identity{Subject: "v", Role: RoleViewer}
	if viewer.IsAdmin() {
		t.Error("viewer identity must not report IsAdmin() true")
	}
	if !viewer.HasRole(RoleViewer) {
		t.Error("expected viewer identity to have RoleViewer")
	}
}
