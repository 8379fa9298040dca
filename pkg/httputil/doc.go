// Package httputil provides shared helpers for the HTTP API: JSON
// response writers, request parsing, and baseline middleware.
//
// # Response Helpers
//
//	httputil.WriteSuccess(w, plan)
//	httputil.WriteCreated(w, intent)
//	httputil.WriteSuccessMessage(w, "subscription cancelled", sub)
//	httputil.WriteNoContent(w)
//
// Error responses carry a single {"error": "..."} body:
//
//	httputil.WriteValidationError(w, "amount must be positive")
//	httputil.WriteConflict(w, "intent already verified")
//
// WriteDomainError maps errdefs kinds to status codes, so handlers can
// forward service errors without a switch of their own:
//
//	if err := h.plans.Retire(ctx, id); err != nil {
//		httputil.WriteDomainError(w, err)
//		return
//	}
//
// # Request Parsing
//
//	var req createPlanRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return // 400 already written
//	}
//	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
//	limit, err := httputil.ParseQueryInt(r, "limit", 50)
//
// # Middleware
//
// RecoveryMiddleware and RequestIDMiddleware are installed on the root
// router in pkg/api. Authentication and rate limiting live in
// pkg/middleware.
package httputil
