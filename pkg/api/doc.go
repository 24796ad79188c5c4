// Package api exposes warden over HTTP.
//
// Every route lives under /api/v1. Organization-scoped routes act on the
// caller's own organization, which is resolved from the bearer token, and are
// guarded by one permission code each:
//
//	router := api.NewServer(api.Deps{
//		Users:         userService,
//		Tokens:        tokens,
//		Orgs:          orgService,
//		Members:       members,
//		Roles:         roles,
//		Guard:         guard,
//		Invitations:   invitationManager,
//		Builds:        builds,
//		PublicLimiter: limiter,
//	})
//	http.ListenAndServe(":8080", router.Handler())
//
// The invitation accept and reject links are public and rate limited per
// client address.
package api
