package permission

// Permission codes. Values are persisted inside role bitmasks through the bit
// index in catalog, so entries are append-only: never reorder, renumber or
// reuse a bit.
const (
	OrganizationUpdate = "organization.update"
	OrganizationDelete = "organization.delete"
	OrganizationView   = "organization.view"

	MemberView   = "member.view"
	MemberAdd    = "member.add"
	MemberUpdate = "member.update"
	MemberRemove = "member.remove"

	RoleView   = "role.view"
	RoleCreate = "role.create"
	RoleUpdate = "role.update"
	RoleDelete = "role.delete"

	InvitationView   = "invitation.view"
	InvitationCreate = "invitation.create"
	InvitationResend = "invitation.resend"
	InvitationDelete = "invitation.delete"

	UserView   = "user.view"
	UserUpdate = "user.update"

	AuditLogView = "audit_log.view"

	DeploymentView   = "deployment.view"
	DeploymentCreate = "deployment.create"
	DeploymentUpdate = "deployment.update"
	DeploymentDelete = "deployment.delete"

	EnvironmentView   = "environment.view"
	EnvironmentManage = "environment.manage"

	MobileAppRead   = "mobile_app.read"
	MobileAppCreate = "mobile_app.create"
	MobileAppUpdate = "mobile_app.update"
	MobileAppDelete = "mobile_app.delete"

	BuildView   = "build.view"
	BuildUpload = "build.upload"
	BuildDelete = "build.delete"
)

// Category groups permissions for display.
type Category string

const (
	CategoryOrganization Category = "organization"
	CategoryMembers      Category = "members"
	CategoryRoles        Category = "roles"
	CategoryInvitations  Category = "invitations"
	CategoryUsers        Category = "users"
	CategoryAudit        Category = "audit"
	CategoryDeployments  Category = "deployments"
	CategoryEnvironments Category = "environments"
	CategoryMobileApps   Category = "mobile_apps"
	CategoryBuilds       Category = "builds"
)

var catalog = []Permission{
	{Code: OrganizationUpdate, Label: "Update organization", Category: CategoryOrganization, Bit: 0},
	{Code: OrganizationDelete, Label: "Delete organization", Category: CategoryOrganization, Bit: 1},
	{Code: OrganizationView, Label: "View organization", Category: CategoryOrganization, Bit: 2},
	{Code: MemberView, Label: "View members", Category: CategoryMembers, Bit: 3},
	{Code: MemberAdd, Label: "Add members", Category: CategoryMembers, Bit: 4},
	{Code: MemberUpdate, Label: "Change member roles", Category: CategoryMembers, Bit: 5},
	{Code: MemberRemove, Label: "Remove members", Category: CategoryMembers, Bit: 6},
	{Code: RoleView, Label: "View roles", Category: CategoryRoles, Bit: 7},
	{Code: RoleCreate, Label: "Create roles", Category: CategoryRoles, Bit: 8},
	{Code: RoleUpdate, Label: "Update roles", Category: CategoryRoles, Bit: 9},
	{Code: RoleDelete, Label: "Delete roles", Category: CategoryRoles, Bit: 10},
	{Code: InvitationView, Label: "View invitations", Category: CategoryInvitations, Bit: 11},
	{Code: InvitationCreate, Label: "Invite users", Category: CategoryInvitations, Bit: 12},
	{Code: InvitationResend, Label: "Resend invitations", Category: CategoryInvitations, Bit: 13},
	{Code: InvitationDelete, Label: "Delete invitations", Category: CategoryInvitations, Bit: 14},
	{Code: UserView, Label: "View users", Category: CategoryUsers, Bit: 15},
	{Code: UserUpdate, Label: "Update users", Category: CategoryUsers, Bit: 16},
	{Code: AuditLogView, Label: "View audit log", Category: CategoryAudit, Bit: 17},
	{Code: DeploymentView, Label: "View deployments", Category: CategoryDeployments, Bit: 18},
	{Code: DeploymentCreate, Label: "Create deployments", Category: CategoryDeployments, Bit: 19},
	{Code: DeploymentUpdate, Label: "Update deployments", Category: CategoryDeployments, Bit: 20},
	{Code: DeploymentDelete, Label: "Delete deployments", Category: CategoryDeployments, Bit: 21},
	{Code: EnvironmentView, Label: "View environments", Category: CategoryEnvironments, Bit: 22},
	{Code: EnvironmentManage, Label: "Manage environments", Category: CategoryEnvironments, Bit: 23},
	{Code: MobileAppRead, Label: "View mobile apps", Category: CategoryMobileApps, Bit: 24},
	{Code: MobileAppCreate, Label: "Create mobile apps", Category: CategoryMobileApps, Bit: 25},
	{Code: MobileAppUpdate, Label: "Update mobile apps", Category: CategoryMobileApps, Bit: 26},
	{Code: MobileAppDelete, Label: "Delete mobile apps", Category: CategoryMobileApps, Bit: 27},
	{Code: BuildView, Label: "View builds", Category: CategoryBuilds, Bit: 28},
	{Code: BuildUpload, Label: "Upload builds", Category: CategoryBuilds, Bit: 29},
	{Code: BuildDelete, Label: "Delete builds", Category: CategoryBuilds, Bit: 30},
}
