// Package auth issues and validates the bearer tokens used by the Warden API.
//
// Tokens are HS256 JWTs signed with a shared secret. The subject carries the
// user id and the email travels as a private claim. Handlers never parse
// tokens themselves: the middleware validates the bearer token, resolves the
// caller's organization membership and stores a *Context on the request.
//
//	tm, err := auth.NewTokenManager(auth.TokenConfig{
//		Secret: []byte(cfg.JWTSecret),
//		Issuer: "warden",
//		TTL:    time.Hour,
//	})
//	token, expiresAt, err := tm.Issue(user.ID, user.Email)
//
// Handlers read the caller back with FromContext:
//
//	actor, ok := auth.FromContext(r.Context())
//	if !ok || actor.OrganizationID == nil {
//		// not part of any organization
//	}
package auth
