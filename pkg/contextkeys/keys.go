// Package contextkeys provides centralized context key definitions.
//
// All context keys used across the application are defined here so the
// package that sets a value and the packages that read it agree on the key.
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// AuthKey contains *auth.Context
	// Set by: middleware.Authenticator (pkg/middleware/auth.go)
	// Required by: protected API endpoints, rbac.RequirePermission
	AuthKey Key = "auth_context"

	// RequestIDKey contains the request ID string (ULID)
	// Set by: httputil.RequestIDMiddleware
	// Used by: request logging, audit metadata
	RequestIDKey Key = "request_id"

	// LoggerKey contains *observability.Logger scoped to the request
	// Set by: httputil.LoggingMiddleware
	LoggerKey Key = "logger"
)

// WithAuth adds authentication context to the context
func WithAuth(ctx context.Context, authCtx interface{}) context.Context {
	return context.WithValue(ctx, AuthKey, authCtx)
}

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithLogger adds logger to the context
func WithLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}
