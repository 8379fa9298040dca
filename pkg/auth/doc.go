// Package auth provides API key authentication for Lowtide.
//
// # Overview
//
// Callers authenticate with bearer API keys. A key is bound to a
// subject (the subscriber account it acts for) and a role. Subscribers
// can only manage their own intents and subscriptions; the single
// privileged operator role can additionally drive solver controls and
// runtime configuration.
//
// # API Keys
//
// Keys are minted by the Keyring and handed out exactly once:
//
//	keyring := auth.NewKeyring()
//	key, record, err := keyring.Issue("alice", auth.RoleSubscriber)
//	// key: lt_<base64url(32 random bytes)>, shown once
//	// record.Hash: SHA256(key), the only stored form
//
// Validation hashes the presented key and looks up the record:
//
//	identity, err := keyring.Resolve(key)
//	if identity.CanActFor("alice") { ... }
//
// The operator bootstrap key from the environment is registered with
// Adopt so deployments do not need an issue step before first use.
//
// # Roles
//
//	RoleSubscriber - manage own intents, subscriptions, and billing agent
//	RoleOperator   - full access, including force execution and config
//
// # Audit Trail
//
// AuditTrail keeps a bounded in-memory record of security events
// (key issuance, auth failures, forced executions, config updates)
// and mirrors every entry to the structured log.
//
// # Related Packages
//
//   - pkg/middleware: HTTP authentication and rate limiting middleware
//   - pkg/contextkeys: context keys carrying the request identity
package auth
