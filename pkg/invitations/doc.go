// Package invitations manages offers of organization membership.
//
// Creating an invitation provisions the invitee up front: an account in the
// invited state holding a generated temporary password, a membership under
// the chosen role, and a pending invitation carrying an opaque token that
// expires after seven days. All three rows commit together. The invitee
// answers through the token:
//
//	inv, err := manager.Create(ctx, invitations.CreateInput{
//		OrganizationID: orgID,
//		Email:          "new.hire@example.com",
//		RoleID:         roleID,
//		InvitedBy:      actorID,
//	})
//
//	_, err = manager.Accept(ctx, inv.Token) // pending -> accepted, user activated
//
// Accepting after expires_at records the expired state before failing, so a
// retry sees a stable answer. Resend rotates the temporary password and the
// token in one transaction, reviving expired invitations. A Sweeper moves
// overdue pending invitations to expired on a cron schedule.
package invitations
