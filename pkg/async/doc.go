// Package async runs detached background tasks with panic recovery and a
// deadline.
//
// SafeGo is used for side effects that happen after a request has committed
// its work, such as invitation email delivery:
//
//	async.SafeGo(ctx, log, 30*time.Second, "invitation email", func(ctx context.Context) error {
//		return mailer.SendInvitation(ctx, msg)
//	})
//
// The task context is detached from the caller's cancellation so that a
// finished HTTP request does not abort delivery.
package async
