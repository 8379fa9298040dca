// Package middleware provides HTTP middleware for authentication, authorization, and rate limiting.
//
// # Overview
//
// This package implements request processing middleware including API key
// authentication, role checks, and rate limiting (per-subscriber and distributed).
//
// # Middleware Components
//
// AuthMiddleware: Bearer API key authentication
//
//	m := middleware.NewAuthMiddleware(keyring, auditTrail, false)
//	router.Use(m.Handler)
//	// Extracts Bearer key, resolves it against the keyring, adds
//	// the caller Identity to the request context
//
// RequireOperator: admits only operator keys
//
//	router.Handle("/solver/drain", middleware.RequireOperator(handler))
//
// RequireSelfOrOperator: admits the subscriber named in the route, or an operator
//
//	router.Handle("/subscribers/{subscriber}/subscription",
//		middleware.RequireSelfOrOperator("subscriber")(handler))
//
// RateLimitMiddleware: In-memory rate limiting
//
//	router.Use(middleware.NewRateLimitMiddleware().Handler)
//
// DistributedRateLimitMiddleware: Redis-backed rate limiting shared
// across instances
//
//	router.Use(middleware.NewDistributedRateLimitMiddleware(redisClient, log).Handler)
//
// # Rate Limiting
//
// Default (Anonymous): 100 req/min, 10 burst
// Per-Subscriber: 1000 req/min, 50 burst
// Operator: 5000 req/min, 100 burst
//
// # Related Packages
//
//   - pkg/auth: keyring, identities, audit trail
//   - pkg/contextkeys: context keys carrying the request identity
package middleware
