// Package orgs manages organizations and their members.
//
// # Organizations
//
// Creating an organization is one transaction: the organization row, its
// system "Owner" role holding every permission, and the creator's
// membership under that role all commit together or not at all. The creator
// is recorded as owner_id and bypasses permission checks in package rbac.
//
// A user belongs to at most one organization. Creating a second
// organization, or being added to another one, fails with a Conflict error.
//
// # Members
//
// MemberManager attaches users to organizations. It is used directly by the
// members API and, through AddTx, by invitation creation so the membership
// joins the invitation's transaction:
//
//	err := database.WithTx(ctx, db, func(tx *sql.Tx) error {
//		_, err := members.AddTx(ctx, tx, orgID, userID, roleID)
//		return err
//	})
//
// A role may be assigned only if it belongs to the same organization or is
// a global role. The owner's membership cannot be removed.
package orgs
