// Package intents implements the billing intent commitment store.
//
// # Overview
//
// Before any recurring charge may start, a subscriber records an intent: a
// time-bounded commitment to a specific plan, amount and interval, bound together
// by a content hash and confirmed with an ed25519 signature over that hash. The
// store enforces exactly one live intent per subscriber and global content-hash
// uniqueness, so a commitment can never be replayed across subscribers or plans.
//
// Expiry is lazy: expired intents stop validating immediately through IsValid,
// but are only marked revoked when visited by CleanupExpired.
//
// # Lifecycle
//
//	CreateIntent  -> unverified, 7-day validity window
//	VerifyIntent  -> signature checked against the subscriber's registered key
//	Revoke        -> irreversible, by subscriber or operator
//	IsValid       -> the single gate consulted before binding or billing
//
// # Related Packages
//
//   - pkg/subscriptions: consults IsValid before binding a subscription
//   - pkg/solver: re-checks IsValid immediately before execution
package intents
