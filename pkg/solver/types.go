package solver

import (
	"time"
)

// EntryStatus represents the state of a queue entry. An entry transitions out
// of StatusQueued exactly once, to StatusExecuted or StatusCancelled.
type EntryStatus string

const (
	StatusQueued    EntryStatus = "queued"
	StatusExecuted  EntryStatus = "executed"
	StatusCancelled EntryStatus = "cancelled"
)

// QueueEntry is a deferred renewal awaiting a favorable price and its due
// date. The entry holds scheduling intent only; the subscription registry's
// live state is re-checked immediately before billing.
type QueueEntry struct {
	ID            string      `json:"id"`
	Subscriber    string      `json:"subscriber"`
	Agent         string      `json:"agent"`
	PlanID        int64       `json:"plan_id"`
	EnqueuedAt    time.Time   `json:"enqueued_at"`
	TargetTime    time.Time   `json:"target_time"`
	Ceiling       int64       `json:"ceiling"`
	Status        EntryStatus `json:"status"`
	ExecutedAt    *time.Time  `json:"executed_at,omitempty"`
	ObservedPrice int64       `json:"observed_price,omitempty"`
	GasSaved      int64       `json:"gas_saved,omitempty"`
	Forced        bool        `json:"forced,omitempty"`
	Failures      int         `json:"failures,omitempty"`
	LastError     string      `json:"last_error,omitempty"`

	// claimed marks an entry handed to an in-flight execution attempt;
	// guarded by the queue mutex
	claimed bool
}

// Stats aggregates execution outcomes across the queue's lifetime
type Stats struct {
	Executions    int64      `json:"executions"`
	Failures      int64      `json:"failures"`
	Forced        int64      `json:"forced"`
	TotalGasSaved int64      `json:"total_gas_saved"`
	LastExecution *time.Time `json:"last_execution,omitempty"`
}

// DrainResult summarizes one drain pass
type DrainResult struct {
	Eligible  int `json:"eligible"`
	Executed  int `json:"executed"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
	Remaining int `json:"remaining"`
}

// ExecutionRecord is one archived execution, persisted per subscriber
type ExecutionRecord struct {
	ID            string    `json:"id"`
	Subscriber    string    `json:"subscriber"`
	PlanID        int64     `json:"plan_id"`
	ExecutedAt    time.Time `json:"executed_at"`
	ObservedPrice int64     `json:"observed_price"`
	Ceiling       int64     `json:"ceiling"`
	GasSaved      int64     `json:"gas_saved"`
	Forced        bool      `json:"forced"`
}
