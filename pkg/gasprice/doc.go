// Package gasprice implements the price condition monitor.
//
// # Overview
//
// The monitor keeps a bounded, insertion-ordered history of observed network
// cost samples (capacity 1000, FIFO eviction) and derives two read-side
// aggregates from it: the optimal price (mean of the last 100 samples) and a
// short-term trend. IsAcceptable is the gate the execution queue consults
// before triggering a deferred renewal.
//
// Samples are immutable after insertion; the ring requires no locking beyond
// the monitor's own mutex.
//
// # Redis feed
//
// Feed mirrors recorded samples into a capped Redis list so multiple replicas
// observe the same price stream and a restarted process can restore its
// history instead of starting cold.
//
// # Related Packages
//
//   - pkg/solver: gates entry execution on IsAcceptable
package gasprice
