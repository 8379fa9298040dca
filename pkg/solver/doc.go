// Package solver implements the execution queue for deferred renewals.
//
// # Overview
//
// A subscription that is almost due can be enqueued here instead of billed
// immediately. Each entry records a target execution time and a price ceiling;
// a drain pass executes every entry whose target time has arrived and whose
// observed network price satisfies both the ceiling and the configured optimal
// target. Entries past their maximum execution delay are executed regardless
// of price so the subscription never lapses waiting for favorable conditions.
//
// Entries hold a copy of scheduling intent only. The subscription registry
// and intent store are re-checked immediately before every billing call, so a
// subscriber who cancelled or revoked after enqueueing is never billed;
// invalidated entries are cancelled and compacted out.
//
// Billing failures (insufficient balance, transfer rejected) are not retried:
// the entry stays queued with failure bookkeeping, a failure event is
// published, and recovery is a later drain pass or operator force-execution.
//
// Executed renewals are archived per subscriber in a SQLite history off the
// billing path.
//
// # Related Packages
//
//   - pkg/gasprice: supplies the observed price and optimal target
//   - pkg/agent: performs the actual renewal
//   - pkg/events: receives execution outcome events
package solver
