// Package rbac implements roles and permission enforcement for organizations.
//
// # Overview
//
// Every organization member holds exactly one role. A role is a named bundle
// of permissions stored as a 64-bit mask (see package permission). Roles are
// either scoped to one organization or global (organization_id IS NULL) and
// shared by all organizations. Roles flagged is_system cannot be updated or
// deleted through the API.
//
// # Roles
//
// Each organization gets a system "Owner" role holding every permission when
// it is created. Global roles seeded at startup:
//
//	Admin  - every permission except organization.delete
//	Member - read-only access (the *.view and *.read permissions)
//
// Organizations may create their own roles:
//
//	role, err := svc.CreateRole(ctx, orgID, actorID, "Release Manager",
//		[]string{"build.view", "build.upload", "deployment.create"})
//
// Unknown permission codes in a request are rejected with a BadRequest error.
// Stored masks are decoded leniently so roles stay readable if the catalog
// ever shrinks.
//
// # Enforcement
//
// The Guard answers "may this user perform this permission in this
// organization?":
//
//  1. No organization: Forbidden ("not a member of any organization").
//  2. The user owns the organization: allowed without consulting any mask.
//  3. No membership row for the user in that organization: Forbidden.
//  4. The member's role cannot be loaded: Forbidden.
//  5. The role mask lacks the permission bit: Forbidden naming the permission.
//
// The check runs synchronously before the handler and stops at the first
// failing step. Role masks are cached in an expiring LRU; role updates and
// deletes through the Service invalidate the cached entry.
//
// HTTP routes declare their permission with RequirePermission:
//
//	r.Handle("/roles", guard.RequirePermission(permission.RoleCreate)(createHandler)).
//		Methods(http.MethodPost)
//
// # Role lifecycle
//
// UpdateRole applies partial changes (name and/or permissions). A zero-row
// update, which happens when the role became a system role concurrently, is
// reported as BadRequest. DeleteRole refuses roles that still have members
// with a Conflict error. Roles of other organizations are reported as not
// found.
package rbac
