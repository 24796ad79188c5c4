// Package middleware provides HTTP middleware for authentication, rate
// limiting and security headers.
//
// # Authentication
//
// Authenticator validates the bearer access token, rejects disabled
// accounts, loads the caller's organization membership and stores an
// auth.Context on the request:
//
//	authn := middleware.NewAuthenticator(tokens, userService, memberManager, log)
//	api.Use(authn.Handler)
//
// Missing or invalid tokens are answered with 401 and the standard JSON
// error body.
//
// # Rate Limiting
//
// RateLimit wraps a Limiter. RedisLimiter keeps fixed-window counters in
// Redis so every instance shares the budget; MemoryLimiter is a per-process
// token bucket for single-instance deployments. Limiter errors fail open.
//
//	limiter := middleware.NewRedisLimiter(redisClient, middleware.RateLimitConfig{Requests: 20, Window: time.Minute}, "invitations")
//	public.Use(middleware.RateLimit(limiter, middleware.KeyByIP, metrics, log))
//
// # Security Headers
//
// SecureHeaders sets frame, sniffing, referrer, CSP and HSTS headers through
// unrolled/secure.
package middleware
