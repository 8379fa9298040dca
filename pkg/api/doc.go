// Package api exposes the billing engine over HTTP.
//
// All routes live under /api/v1 and require a bearer API key. Subscriber
// keys may only touch their own resources; operator keys can act for any
// subscriber and unlock the admin, webhook and solver control surfaces.
//
// Route groups:
//
//	/plans            plan catalog (writes are operator-only)
//	/intents          signed payment commitments and signing keys
//	/subscriptions    subscription lifecycle and revenue
//	/agents           deterministic agent wallet derivation
//	/solver           renewal queue, drain and execution history
//	/gas              gas price samples and trend
//	/webhooks         event endpoint management (operator-only)
//	/admin            runtime options, API keys, audit trail (operator-only)
//
// Handlers translate domain errors to HTTP statuses via httputil, so
// service code never deals with status codes directly.
package api
