// Package users manages accounts: self-registration, password login,
// password rotation and the provisional accounts created for invitations.
//
// A user is in one of three states. Registered users start active. Invited
// users start in the invited state with a system-generated temporary password
// and become active when their invitation is accepted. Disabled users cannot
// log in.
//
// Store methods accept a database.DBTX so they can join a caller's
// transaction:
//
//	err := database.WithTx(ctx, db, func(tx *sql.Tx) error {
//		return users.NewStore(tx).Create(ctx, u)
//	})
package users
