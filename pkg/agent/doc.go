// Package agent implements the billing agent boundary.
//
// # Overview
//
// A BillingAgent is the per-subscriber collaborator that authorizes and
// executes a single recurring charge. The LedgerAgent implementation reads the
// charge parameters from the subscription registry, moves funds through an
// external Ledger, and records the payment against the billing cursor. Ledger
// failures such as insufficient balance come back as external errors; they are
// never retried here.
//
// The Factory provisions one deterministic agent address per subscriber and
// caches constructed agents behind an LRU.
//
// # Related Packages
//
//   - pkg/subscriptions: owns the billing cursor the agent advances
//   - pkg/solver: invokes Renew when a queued renewal becomes eligible
package agent
