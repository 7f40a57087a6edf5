package auth

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestIdentityContext(t *testing.T) {
	ctx := context.Background()

	if id := FromContext(ctx); id != nil {
		t.Fatalf("expected nil, got %+v", id)
	}

	identity := &Identity{
		UserID: uuid.New(),
		Email:  "admin@example.com",
		Role:   RoleAdmin,
	}
	ctx = NewContext(ctx, identity)

	got := FromContext(ctx)
	if got == nil {
		t.Fatal("expected identity, got nil")
	}
	if got.Email != "admin@example.com" || got.Role != RoleAdmin {
		t.Errorf("identity = %+v", got)
	}
}

func TestProjectContext(t *testing.T) {
	ctx := context.Background()

	if pc := ProjectFromContext(ctx); pc != nil {
		t.Fatalf("expected nil, got %+v", pc)
	}

	pc := &ProjectContext{
		ProjectID: uuid.New(),
		KeyID:     uuid.New(),
		KeyType:   "secret",
	}
	ctx = NewProjectContext(ctx, pc)

	got := ProjectFromContext(ctx)
	if got == nil {
		t.Fatal("expected project context, got nil")
	}
	if got.ProjectID != pc.ProjectID || got.KeyType != "secret" {
		t.Errorf("project context = %+v", got)
	}
}

func TestSessionTokenRoundTrip(t *testing.T) {
	sm, err := NewSessionManager("0123456789abcdef0123456789abcdef", time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	userID := uuid.New()
	token, err := sm.IssueToken(SessionClaims{
		Email:  "admin@example.com",
		Role:   RoleAdmin,
		UserID: userID.String(),
	})
	if err != nil {
		t.Fatal(err)
	}

	claims, err := sm.ValidateToken(token)
	if err != nil {
		t.Fatal(err)
	}
	if claims.Email != "admin@example.com" || claims.Role != RoleAdmin || claims.UserID != userID.String() {
		t.Errorf("claims = %+v", claims)
	}
}

func TestSessionTokenTampering(t *testing.T) {
	sm, _ := NewSessionManager("0123456789abcdef0123456789abcdef", time.Hour)
	other, _ := NewSessionManager("fedcba9876543210fedcba9876543210", time.Hour)

	token, err := sm.IssueToken(SessionClaims{Email: "a@b.c", Role: RoleAdmin, UserID: uuid.NewString()})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := other.ValidateToken(token); err == nil {
		t.Error("token validated under a different signing key")
	}
	if _, err := sm.ValidateToken(token + "x"); err == nil {
		t.Error("mangled token validated")
	}
}

func TestNewSessionManagerShortSecret(t *testing.T) {
	if _, err := NewSessionManager("short", time.Hour); err == nil {
		t.Error("short secret accepted")
	}
}

func TestIsValidRole(t *testing.T) {
	tests := []struct {
		role  string
		valid bool
	}{
		{RoleAdmin, true},
		{RoleReadonly, true},
		{"superadmin", false},
		{"", false},
		{"Admin", false}, // case-sensitive
	}
	for _, tt := range tests {
		if got := IsValidRole(tt.role); got != tt.valid {
			t.Errorf("IsValidRole(%q) = %v, want %v", tt.role, got, tt.valid)
		}
	}
}
