package solver

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/lowtide/lowtide/pkg/agent"
	"github.com/lowtide/lowtide/pkg/async"
	"github.com/lowtide/lowtide/pkg/config"
	"github.com/lowtide/lowtide/pkg/errdefs"
	"github.com/lowtide/lowtide/pkg/events"
	"github.com/lowtide/lowtide/pkg/intents"
	"github.com/lowtide/lowtide/pkg/subscriptions"
)

// AgentProvider resolves a subscriber's billing agent
type AgentProvider interface {
	AgentFor(subscriber string) (agent.BillingAgent, error)
}

// Queue holds deferred renewals until both their target time and the price
// condition are satisfied. Entries carry a copy of scheduling intent only; the
// subscription registry and intent store are re-checked immediately before
// each billing call.
type Queue struct {
	mu      sync.Mutex
	entries []*QueueEntry
	live    map[string]*QueueEntry // subscriber -> queued entry
	stats   Stats

	subSvc    subscriptions.Service
	intentSvc intents.Service
	agents    AgentProvider
	opts      *config.Options
	history   *History
	publisher events.Publisher
	metrics   *Metrics
	log       *logrus.Logger
}

// NewQueue creates an execution queue. history and metrics may be nil.
func NewQueue(subSvc subscriptions.Service, intentSvc intents.Service, agents AgentProvider, opts *config.Options, history *History, publisher events.Publisher, metrics *Metrics, log *logrus.Logger) *Queue {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if log == nil {
		log = logrus.New()
	}
	return &Queue{
		live:      make(map[string]*QueueEntry),
		subSvc:    subSvc,
		intentSvc: intentSvc,
		agents:    agents,
		opts:      opts,
		history:   history,
		publisher: publisher,
		metrics:   metrics,
		log:       log,
	}
}

// Enqueue defers the subscriber's next renewal. The subscription must be
// active, hold current access and be within the execution buffer window of
// its next payment. A subscription that has never paid has no access yet; its
// first charge enqueues on active status alone.
func (q *Queue) Enqueue(ctx context.Context, subscriber string) (*QueueEntry, error) {
	sub, err := q.subSvc.Get(ctx, subscriber)
	if err != nil {
		return nil, err
	}
	if !sub.Active {
		return nil, errdefs.Conflict("subscription for %s is not active", subscriber)
	}
	if sub.LastPayment != nil && !sub.AccessGranted {
		return nil, errdefs.Conflict("subscription for %s has no current access", subscriber)
	}

	opts := q.opts.Snapshot()
	now := time.Now()
	timeUntilDue := sub.NextPayment.Sub(now)
	if timeUntilDue > opts.ExecutionBuffer {
		return nil, errdefs.Conflict("subscription for %s is not due within the execution buffer (%s remaining)", subscriber, timeUntilDue.Round(time.Second))
	}

	entry := &QueueEntry{
		ID:         uuid.New().String(),
		Subscriber: subscriber,
		Agent:      sub.Agent,
		PlanID:     sub.PlanID,
		EnqueuedAt: now,
		TargetTime: now.Add(timeUntilDue - opts.ExecutionBuffer),
		Ceiling:    opts.MaxGasPrice,
		Status:     StatusQueued,
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if existing, ok := q.live[subscriber]; ok && existing.Status == StatusQueued {
		return nil, errdefs.Conflict("subscriber %s already has a queued renewal", subscriber)
	}
	q.entries = append(q.entries, entry)
	q.live[subscriber] = entry
	q.setDepthLocked()

	out := *entry
	return &out, nil
}

// Drain makes one pass over the queue: every queued entry whose target time
// has arrived and whose price condition holds against observed is executed.
// Entries past their maximum execution delay are executed regardless of price
// to keep the subscription from lapsing; those record zero gas saved.
// Executed and cancelled entries are compacted out afterwards, preserving the
// order of the rest.
func (q *Queue) Drain(ctx context.Context, observed int64) (*DrainResult, error) {
	if observed < 0 {
		return nil, errdefs.Validation("observed price must not be negative, got %d", observed)
	}

	opts := q.opts.Snapshot()
	now := time.Now()
	result := &DrainResult{}

	q.mu.Lock()
	var eligible []*QueueEntry
	var pastGate []bool // entry executes on overdue alone, not on price
	for _, e := range q.entries {
		if e.Status != StatusQueued || e.claimed {
			continue
		}
		if now.Before(e.TargetTime) {
			continue
		}
		priceOK := observed <= e.Ceiling && observed <= opts.OptimalGasPrice
		overdue := !now.Before(e.TargetTime.Add(opts.MaxExecutionDelay))
		if !priceOK && !overdue {
			continue
		}
		e.claimed = true
		eligible = append(eligible, e)
		pastGate = append(pastGate, !priceOK)
	}
	q.mu.Unlock()

	result.Eligible = len(eligible)
	for i, e := range eligible {
		switch q.execute(ctx, e, observed, false, pastGate[i]) {
		case outcomeExecuted:
			result.Executed++
		case outcomeFailed:
			result.Failed++
		case outcomeCancelled:
			result.Cancelled++
		}
	}

	q.mu.Lock()
	q.compactLocked()
	result.Remaining = len(q.entries)
	q.mu.Unlock()

	if q.metrics != nil {
		q.metrics.DrainsTotal.Inc()
	}
	return result, nil
}

// ForceExecute bypasses the price gate for one queued entry (operator only,
// enforced at the API layer). Gas saved is recorded as zero.
func (q *Queue) ForceExecute(ctx context.Context, entryID string, observed int64) error {
	q.mu.Lock()
	var target *QueueEntry
	for _, e := range q.entries {
		if e.ID == entryID {
			target = e
			break
		}
	}
	if target == nil {
		q.mu.Unlock()
		return errdefs.NotFound("queue entry %s not found", entryID)
	}
	if target.Status != StatusQueued || target.claimed {
		q.mu.Unlock()
		return errdefs.Conflict("queue entry %s is not queued", entryID)
	}
	target.claimed = true
	q.mu.Unlock()

	outcome := q.execute(ctx, target, observed, true, false)

	q.mu.Lock()
	q.compactLocked()
	q.mu.Unlock()

	switch outcome {
	case outcomeExecuted:
		return nil
	case outcomeCancelled:
		return errdefs.Conflict("queue entry %s no longer backs a billable subscription", entryID)
	default:
		q.mu.Lock()
		lastErr := target.LastError
		q.mu.Unlock()
		return errdefs.External(nil, "forced execution of entry %s failed: %s", entryID, lastErr)
	}
}

// Cancel removes the subscriber's queued renewal without executing it
func (q *Queue) Cancel(ctx context.Context, subscriber string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	entry, ok := q.live[subscriber]
	if !ok || entry.Status != StatusQueued {
		return errdefs.NotFound("no queued renewal for subscriber %s", subscriber)
	}
	if entry.claimed {
		return errdefs.Conflict("renewal for subscriber %s is executing", subscriber)
	}
	entry.Status = StatusCancelled
	q.compactLocked()
	return nil
}

// CancelAll marks every queued entry cancelled without executing (operator
// only, enforced at the API layer). Returns the number cancelled.
func (q *Queue) CancelAll(ctx context.Context) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	cancelled := 0
	for _, e := range q.entries {
		if e.Status == StatusQueued && !e.claimed {
			e.Status = StatusCancelled
			cancelled++
		}
	}
	q.compactLocked()
	return cancelled
}

// Entries returns a snapshot of the live queue in insertion order
func (q *Queue) Entries() []QueueEntry {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]QueueEntry, 0, len(q.entries))
	for _, e := range q.entries {
		out = append(out, *e)
	}
	return out
}

// EntryFor returns the subscriber's queued entry, if any
func (q *Queue) EntryFor(subscriber string) (QueueEntry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	entry, ok := q.live[subscriber]
	if !ok {
		return QueueEntry{}, false
	}
	return *entry, true
}

// Stats returns aggregate execution statistics
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stats
}

// History returns the execution archive, which may be nil
func (q *Queue) History() *History {
	return q.history
}

// Depth returns the number of live entries
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

type outcome int

const (
	outcomeExecuted outcome = iota
	outcomeFailed
	outcomeCancelled
)

// execute runs one claimed entry through re-validation and the billing agent.
// The entry must have been claimed under the queue lock by the caller.
// pastGate marks an execution that did not satisfy the price condition, which
// records zero gas saved like a forced one.
func (q *Queue) execute(ctx context.Context, entry *QueueEntry, observed int64, forced, pastGate bool) outcome {
	// Re-validate against live state; the entry's copy is not authoritative
	sub, err := q.subSvc.Get(ctx, entry.Subscriber)
	if err != nil || !sub.Active || sub.Agent != entry.Agent || sub.PlanID != entry.PlanID {
		return q.cancelInvalid(entry, "subscription no longer active")
	}
	if !q.intentSvc.IsValid(ctx, entry.Subscriber) {
		return q.cancelInvalid(entry, "backing intent no longer valid")
	}

	billingAgent, err := q.agents.AgentFor(entry.Subscriber)
	if err != nil {
		return q.cancelInvalid(entry, "no billing agent provisioned")
	}

	if err := billingAgent.Renew(ctx); err != nil {
		q.mu.Lock()
		entry.Failures++
		entry.LastError = err.Error()
		entry.claimed = false
		q.stats.Failures++
		q.mu.Unlock()

		if q.metrics != nil {
			q.metrics.FailuresTotal.WithLabelValues(failureReason(err)).Inc()
		}
		q.log.WithError(err).WithFields(logrus.Fields{
			"subscriber": entry.Subscriber,
			"entry":      entry.ID,
		}).Warn("Renewal execution failed")
		q.publisher.Publish(ctx, events.EventExecutionFailed, map[string]interface{}{
			"subscriber": entry.Subscriber,
			"entry_id":   entry.ID,
			"plan_id":    entry.PlanID,
			"error":      err.Error(),
		})
		return outcomeFailed
	}

	now := time.Now()
	saved := entry.Ceiling - observed
	if forced || pastGate || saved < 0 {
		saved = 0
	}

	q.mu.Lock()
	entry.Status = StatusExecuted
	entry.ExecutedAt = &now
	entry.ObservedPrice = observed
	entry.GasSaved = saved
	entry.Forced = forced
	q.stats.Executions++
	q.stats.TotalGasSaved += saved
	q.stats.LastExecution = &now
	if forced {
		q.stats.Forced++
	}
	record := ExecutionRecord{
		ID:            entry.ID,
		Subscriber:    entry.Subscriber,
		PlanID:        entry.PlanID,
		ExecutedAt:    now,
		ObservedPrice: observed,
		Ceiling:       entry.Ceiling,
		GasSaved:      saved,
		Forced:        forced,
	}
	q.mu.Unlock()

	if q.metrics != nil {
		q.metrics.ExecutionsTotal.WithLabelValues(boolLabel(forced)).Inc()
		q.metrics.GasSavedTotal.Add(float64(saved))
	}
	if q.history != nil {
		async.SafeGo(context.WithoutCancel(ctx), 10*time.Second, "execution history append", func(ctx context.Context) error {
			return q.history.Append(ctx, record)
		})
	}

	eventType := events.EventExecutionSucceeded
	if forced {
		eventType = events.EventExecutionForced
	}
	q.publisher.Publish(ctx, eventType, map[string]interface{}{
		"subscriber":     entry.Subscriber,
		"entry_id":       entry.ID,
		"plan_id":        entry.PlanID,
		"observed_price": observed,
		"gas_saved":      saved,
	})

	q.log.WithFields(logrus.Fields{
		"subscriber": entry.Subscriber,
		"entry":      entry.ID,
		"observed":   observed,
		"gas_saved":  saved,
		"forced":     forced,
	}).Info("Renewal executed")
	return outcomeExecuted
}

func (q *Queue) cancelInvalid(entry *QueueEntry, reason string) outcome {
	q.mu.Lock()
	entry.Status = StatusCancelled
	entry.LastError = reason
	q.mu.Unlock()

	q.log.WithFields(logrus.Fields{
		"subscriber": entry.Subscriber,
		"entry":      entry.ID,
		"reason":     reason,
	}).Info("Queued renewal invalidated")
	return outcomeCancelled
}

// compactLocked removes executed and cancelled entries, preserving the order
// of the remainder. Caller holds the lock.
func (q *Queue) compactLocked() {
	kept := q.entries[:0]
	for _, e := range q.entries {
		if e.Status == StatusQueued {
			kept = append(kept, e)
			continue
		}
		if live, ok := q.live[e.Subscriber]; ok && live == e {
			delete(q.live, e.Subscriber)
		}
	}
	for i := len(kept); i < len(q.entries); i++ {
		q.entries[i] = nil
	}
	q.entries = kept
	q.setDepthLocked()
}

func (q *Queue) setDepthLocked() {
	if q.metrics != nil {
		q.metrics.QueueDepth.Set(float64(len(q.entries)))
	}
}

func failureReason(err error) string {
	if kind := errdefs.KindOf(err); kind != "" {
		return string(kind)
	}
	return "unknown"
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
