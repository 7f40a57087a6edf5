// Package auth carries the two authentication surfaces of the platform:
// session-cookie admin identities and API-key project contexts.
package auth

import (
	"context"

	"github.com/google/uuid"
)

// Admin roles.
const (
	RoleAdmin    = "admin"
	RoleReadonly = "readonly"
)

// IsValidRole reports whether role is a recognized admin role.
func IsValidRole(role string) bool {
	return role == RoleAdmin || role == RoleReadonly
}

// Identity is an authenticated platform administrator.
type Identity struct {
	UserID uuid.UUID
	Email  string
	Role   string
}

// ProjectContext is the result of resolving an API key: the project the
// caller may act on and the tier of the presented key.
type ProjectContext struct {
	ProjectID uuid.UUID
	KeyID     uuid.UUID
	KeyType   string // "publishable" or "secret"
}

type identityKey struct{}
type projectKey struct{}

// NewContext stores an admin identity in the context.
func NewContext(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext returns the admin identity, or nil.
func FromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey{}).(*Identity)
	return id
}

// NewProjectContext stores a resolved project context in the context.
func NewProjectContext(ctx context.Context, pc *ProjectContext) context.Context {
	return context.WithValue(ctx, projectKey{}, pc)
}

// ProjectFromContext returns the resolved project context, or nil.
func ProjectFromContext(ctx context.Context) *ProjectContext {
	pc, _ := ctx.Value(projectKey{}).(*ProjectContext)
	return pc
}
