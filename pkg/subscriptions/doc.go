// Package subscriptions implements the subscription registry.
//
// # Overview
//
// The registry tracks each subscriber's active plan, billing cursor and
// service-access flag, and is the sole owner of the authoritative billing
// cursor. A subscription can only start against a verified billing intent whose
// hash, plan, amount and agent all match; access is granted on the first
// successful charge and revoked on cancellation.
//
// The billing cursor advances by exactly one plan interval per successful
// payment, never backward and never from wall-clock time, so N payments land
// exactly N intervals after the subscription start.
//
// A subscription whose backing intent has been revoked or expired is NOT
// auto-cancelled; cancellation is always explicit. The execution queue refuses
// to bill such subscriptions at execution time instead.
//
// # Related Packages
//
//   - pkg/plans: capacity slots acquired on start, released on cancel
//   - pkg/intents: commitment gate consulted on start
//   - pkg/solver: re-validates live state before triggering renewal
package subscriptions
