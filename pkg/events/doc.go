// Package events delivers billing events to registered HTTP endpoints.
//
// # Overview
//
// Components publish events (payment succeeded, execution failed, subscription
// cancelled) through the Publisher interface; the Dispatcher fans each event
// out to every active endpoint subscribed to its type. Delivery is
// asynchronous and never blocks the billing path. Payloads are signed with
// HMAC-SHA256 when an endpoint carries a secret.
//
// Failed deliveries are retried with exponential backoff (5 attempts, 1s
// initial delay, 5m cap) by a background worker; each attempt chain is
// recorded in a bounded delivery store for inspection.
//
// # Related Packages
//
//   - pkg/solver: publishes execution outcomes
//   - pkg/api: exposes endpoint registration and delivery logs
package events
