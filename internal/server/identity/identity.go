// Package identity carries the verified caller (student, faculty or admin)
// through request contexts.
package identity

import (
	"context"

	"github.com/dmitrijs2005/rollkeeper/internal/common"
)

// Identity is a verified caller.
type Identity struct {
	UserID string
	Role   string
}

// IsFaculty reports whether the caller may run sessions.
func (i Identity) IsFaculty() bool {
	return i.Role == common.RoleFaculty || i.Role == common.RoleAdmin
}

// IsAdmin reports whether the caller has unrestricted access.
func (i Identity) IsAdmin() bool {
	return i.Role == common.RoleAdmin
}

type ctxKey struct{}

// NewContext returns a copy of ctx carrying id.
func NewContext(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the identity stored in ctx, if any.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok && id.UserID != ""
}
