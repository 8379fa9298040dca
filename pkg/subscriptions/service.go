package subscriptions

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lowtide/lowtide/pkg/errdefs"
	"github.com/lowtide/lowtide/pkg/intents"
	"github.com/lowtide/lowtide/pkg/plans"
)

// subEntry pairs a subscription with its own lock
type subEntry struct {
	mu  sync.Mutex
	sub Subscription
}

// MemoryService implements Service with in-memory state and per-subscriber locking
type MemoryService struct {
	mu           sync.RWMutex // guards the index, not subscription contents
	bySubscriber map[string]*subEntry

	revenueMu sync.Mutex
	revenue   map[string]int64 // asset -> accrued amount

	plans   plans.Service
	intents intents.Service
}

// NewMemoryService creates a new in-memory subscription registry
func NewMemoryService(planSvc plans.Service, intentSvc intents.Service) *MemoryService {
	return &MemoryService{
		bySubscriber: make(map[string]*subEntry),
		revenue:      make(map[string]int64),
		plans:        planSvc,
		intents:      intentSvc,
	}
}

// Start creates a subscription backed by a verified intent
func (s *MemoryService) Start(ctx context.Context, req *StartRequest) (*Subscription, error) {
	if req.Subscriber == "" || req.Agent == "" {
		return nil, errdefs.Validation("subscriber and agent must not be empty")
	}

	plan, err := s.plans.GetPlan(ctx, req.PlanID)
	if err != nil {
		return nil, err
	}

	if err := s.checkIntent(ctx, req, plan); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if existing, ok := s.bySubscriber[req.Subscriber]; ok {
		existing.mu.Lock()
		active := existing.sub.Active
		existing.mu.Unlock()
		if active {
			s.mu.Unlock()
			return nil, errdefs.Conflict("subscriber %s already has an active subscription", req.Subscriber)
		}
	}
	s.mu.Unlock()

	// AcquireSlot enforces plan active + capacity atomically
	if err := s.plans.AcquireSlot(ctx, req.PlanID); err != nil {
		return nil, err
	}

	now := time.Now()
	entry := &subEntry{sub: Subscription{
		Subscriber:  req.Subscriber,
		Agent:       req.Agent,
		PlanID:      req.PlanID,
		StartAt:     now,
		NextPayment: now.Add(plan.Interval),
		Active:      true,
		IntentHash:  req.IntentHash,
		CreatedAt:   now,
		UpdatedAt:   now,
	}}

	s.mu.Lock()
	// Re-check under the index lock: a concurrent Start for the same subscriber
	// may have won the race after our first check
	if existing, ok := s.bySubscriber[req.Subscriber]; ok {
		existing.mu.Lock()
		active := existing.sub.Active
		existing.mu.Unlock()
		if active {
			s.mu.Unlock()
			if relErr := s.plans.ReleaseSlot(ctx, req.PlanID); relErr != nil {
				return nil, fmt.Errorf("release slot after conflict: %w", relErr)
			}
			return nil, errdefs.Conflict("subscriber %s already has an active subscription", req.Subscriber)
		}
	}
	s.bySubscriber[req.Subscriber] = entry
	s.mu.Unlock()

	sub := entry.sub
	return &sub, nil
}

func (s *MemoryService) checkIntent(ctx context.Context, req *StartRequest, plan *plans.Plan) error {
	if !s.intents.IsValid(ctx, req.Subscriber) {
		return errdefs.Conflict("subscriber %s has no valid billing intent", req.Subscriber)
	}
	intent, err := s.intents.GetIntent(ctx, req.Subscriber)
	if err != nil {
		return err
	}
	if intent.ContentHash != req.IntentHash {
		return errdefs.Conflict("intent hash does not match the subscriber's live intent")
	}
	if intent.PlanID != plan.ID {
		return errdefs.Conflict("intent is bound to plan %d, not %d", intent.PlanID, plan.ID)
	}
	if intent.Amount != plan.Price {
		return errdefs.Conflict("intent amount %d does not match plan price %d", intent.Amount, plan.Price)
	}
	if intent.Agent != req.Agent {
		return errdefs.Conflict("intent is bound to a different billing agent")
	}
	return nil
}

// Get returns a copy of the subscriber's subscription
func (s *MemoryService) Get(ctx context.Context, subscriber string) (*Subscription, error) {
	entry, err := s.entry(subscriber)
	if err != nil {
		return nil, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	sub := entry.sub
	return &sub, nil
}

// ListActive returns copies of all active subscriptions
func (s *MemoryService) ListActive(ctx context.Context) ([]*Subscription, error) {
	s.mu.RLock()
	entries := make([]*subEntry, 0, len(s.bySubscriber))
	for _, e := range s.bySubscriber {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	var out []*Subscription
	for _, e := range entries {
		e.mu.Lock()
		if e.sub.Active {
			sub := e.sub
			out = append(out, &sub)
		}
		e.mu.Unlock()
	}
	return out, nil
}

// checkCharge verifies a charge against live subscription state. Validation
// and recording share it so both reject under the same taxonomy.
func checkCharge(sub *Subscription, plan *plans.Plan, callerAgent string, amount int64) error {
	if !sub.Active {
		return errdefs.Conflict("subscription for %s is not active", sub.Subscriber)
	}
	if callerAgent != sub.Agent {
		return errdefs.Authorization("caller %s is not the billing agent for %s", callerAgent, sub.Subscriber)
	}
	if amount != plan.Price {
		return errdefs.Validation("payment amount %d does not match plan price %d", amount, plan.Price)
	}
	if time.Now().Before(sub.NextPayment) {
		return errdefs.Conflict("payment for %s not due until %s", sub.Subscriber, sub.NextPayment.Format(time.RFC3339))
	}
	return nil
}

// ValidatePayment checks a charge without recording it
func (s *MemoryService) ValidatePayment(ctx context.Context, subscriber, callerAgent string, amount int64) error {
	entry, err := s.entry(subscriber)
	if err != nil {
		return err
	}
	plan, err := s.planFor(ctx, entry)
	if err != nil {
		return err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return checkCharge(&entry.sub, plan, callerAgent, amount)
}

// ProcessPayment records a successful charge and advances the billing cursor
func (s *MemoryService) ProcessPayment(ctx context.Context, subscriber, callerAgent string, amount int64) error {
	entry, err := s.entry(subscriber)
	if err != nil {
		return err
	}

	plan, err := s.planFor(ctx, entry)
	if err != nil {
		return err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	sub := &entry.sub
	if err := checkCharge(sub, plan, callerAgent, amount); err != nil {
		return err
	}

	// The cursor advances by exactly one interval from its previous value, never
	// from now, so N successful payments land exactly N intervals apart.
	now := time.Now()
	sub.LastPayment = &now
	sub.NextPayment = sub.NextPayment.Add(plan.Interval)
	sub.AccessGranted = true
	sub.UpdatedAt = now

	s.revenueMu.Lock()
	s.revenue[plan.Asset] += amount
	s.revenueMu.Unlock()
	return nil
}

// Cancel deactivates the subscription and releases its plan slot
func (s *MemoryService) Cancel(ctx context.Context, subscriber string) error {
	entry, err := s.entry(subscriber)
	if err != nil {
		return err
	}
	entry.mu.Lock()
	if !entry.sub.Active {
		entry.mu.Unlock()
		return errdefs.Conflict("subscription for %s is not active", subscriber)
	}
	planID := entry.sub.PlanID
	entry.sub.Active = false
	entry.sub.AccessGranted = false
	entry.sub.UpdatedAt = time.Now()
	entry.mu.Unlock()

	if err := s.plans.ReleaseSlot(ctx, planID); err != nil {
		return fmt.Errorf("release plan slot on cancel: %w", err)
	}
	return nil
}

// Revenue returns accrued revenue for an asset
func (s *MemoryService) Revenue(ctx context.Context, asset string) (int64, error) {
	s.revenueMu.Lock()
	defer s.revenueMu.Unlock()
	return s.revenue[asset], nil
}

// SponsorFees credits a subscriber's execution fee allowance
func (s *MemoryService) SponsorFees(ctx context.Context, subscriber string, amount int64) error {
	if amount <= 0 {
		return errdefs.Validation("sponsored amount must be positive, got %d", amount)
	}
	entry, err := s.entry(subscriber)
	if err != nil {
		return err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	entry.sub.FeeAllowance += amount
	entry.sub.UpdatedAt = time.Now()
	return nil
}

// DebitFees consumes sponsored allowance, best effort
func (s *MemoryService) DebitFees(ctx context.Context, subscriber string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, errdefs.Validation("debit amount must be positive, got %d", amount)
	}
	entry, err := s.entry(subscriber)
	if err != nil {
		return 0, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	debited := amount
	if entry.sub.FeeAllowance < debited {
		debited = entry.sub.FeeAllowance
	}
	entry.sub.FeeAllowance -= debited
	if debited > 0 {
		entry.sub.UpdatedAt = time.Now()
	}
	return debited, nil
}

func (s *MemoryService) planFor(ctx context.Context, entry *subEntry) (*plans.Plan, error) {
	entry.mu.Lock()
	planID := entry.sub.PlanID
	entry.mu.Unlock()
	return s.plans.GetPlan(ctx, planID)
}

func (s *MemoryService) entry(subscriber string) (*subEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.bySubscriber[subscriber]
	if !ok {
		return nil, errdefs.NotFound("no subscription for subscriber %s", subscriber)
	}
	return entry, nil
}
