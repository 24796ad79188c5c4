// Package httputil provides HTTP helpers shared by the API handlers: JSON
// responses, mapping of classified errors to status codes, validated request
// decoding and the request-scoped middleware (request IDs, logging, panic
// recovery, body limits).
//
// # Errors
//
// Handlers return classified errors from package apperr and let
// WriteAppError choose the status:
//
//	NotFound     -> 404
//	Conflict     -> 409
//	Forbidden    -> 403
//	Unauthorized -> 401
//	BadRequest   -> 400
//	anything else -> 500 with a generic message
//
// Every error body has the same shape:
//
//	{"error": "invitation has expired", "code": "bad_request"}
//
// # Requests
//
//	var req createRoleRequest
//	if err := httputil.DecodeJSON(r, &req); err != nil {
//		httputil.WriteAppError(w, r, err)
//		return
//	}
//
// DecodeJSON rejects unknown fields and runs the struct's `validate` tags.
//
// # Middleware
//
//	handler := httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware(logger),
//		httputil.RecoveryMiddleware(logger),
//		httputil.MaxBytesMiddleware(1<<20),
//	)(router)
package httputil
