package rbac

import (
	"time"

	"github.com/platinummonkey/warden/pkg/permission"
)

// OwnerRoleName is the system role created for every organization.
const OwnerRoleName = "Owner"

// Role is a named permission bundle.
type Role struct {
	ID             int64
	OrganizationID *int64
	Name           string
	Permissions    permission.Set
	IsSystem       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Codes returns the role's permission codes in catalog order.
func (r *Role) Codes() []string {
	return permission.ToCodes(r.Permissions)
}

// IsGlobal reports whether the role is shared by all organizations.
func (r *Role) IsGlobal() bool {
	return r.OrganizationID == nil
}

// VisibleTo reports whether members of orgID may use the role.
func (r *Role) VisibleTo(orgID int64) bool {
	return r.OrganizationID == nil || *r.OrganizationID == orgID
}

// RoleUpdate is a partial update. Nil fields are left unchanged.
type RoleUpdate struct {
	Name        *string
	Permissions []string
}

func (u RoleUpdate) empty() bool {
	return u.Name == nil && u.Permissions == nil
}

// GlobalRole is a role seeded at startup.
type GlobalRole struct {
	Name        string
	Permissions permission.Set
}

// DefaultGlobalRoles returns the roles shared by every organization.
func DefaultGlobalRoles() []GlobalRole {
	orgDelete, _ := permission.Lookup(permission.OrganizationDelete)
	return []GlobalRole{
		{Name: "Admin", Permissions: permission.All().Without(orgDelete)},
		{Name: "Member", Permissions: permission.FromCodes([]string{
			permission.OrganizationView,
			permission.MemberView,
			permission.RoleView,
			permission.InvitationView,
			permission.UserView,
			permission.DeploymentView,
			permission.EnvironmentView,
			permission.MobileAppRead,
			permission.BuildView,
		})},
	}
}
