package auth

import (
	"context"
	"net/http"

	"github.com/platinummonkey/warden/pkg/contextkeys"
)

// Context describes the authenticated caller of a request.
type Context struct {
	UserID int64
	Email  string
	// OrganizationID is nil when the user is not a member of any organization.
	OrganizationID *int64
	MemberID       int64
	RoleID         int64
	// TemporaryPassword is set while the user still has to rotate an
	// issued password.
	TemporaryPassword bool
}

// InOrganization reports whether the caller belongs to an organization.
func (c *Context) InOrganization() bool {
	return c != nil && c.OrganizationID != nil
}

// OrgID returns the caller's organization id, or 0.
func (c *Context) OrgID() int64 {
	if c == nil || c.OrganizationID == nil {
		return 0
	}
	return *c.OrganizationID
}

// WithContext stores the auth context on ctx.
func WithContext(ctx context.Context, ac *Context) context.Context {
	return contextkeys.WithAuth(ctx, ac)
}

// FromContext retrieves the auth context.
func FromContext(ctx context.Context) (*Context, bool) {
	ac, ok := ctx.Value(contextkeys.AuthKey).(*Context)
	return ac, ok && ac != nil
}

// FromRequest retrieves the auth context from the request.
func FromRequest(r *http.Request) (*Context, bool) {
	return FromContext(r.Context())
}
