package plans

import (
	"context"
	"sync"
	"time"

	"github.com/lowtide/lowtide/pkg/errdefs"
)

// DefaultSupportedAssets lists the payment assets accepted out of the box
var DefaultSupportedAssets = []string{"usdc", "usdt", "dai"}

// planEntry pairs a plan with its own lock so mutations on unrelated plans
// never block each other
type planEntry struct {
	mu   sync.Mutex
	plan Plan
}

// MemoryService implements Service with in-memory state and per-plan locking
type MemoryService struct {
	mu     sync.RWMutex // guards the id index, not plan contents
	byID   map[int64]*planEntry
	nextID int64
	assets map[string]bool
}

// NewMemoryService creates a new in-memory plan registry. If assets is empty,
// DefaultSupportedAssets is used.
func NewMemoryService(assets []string) *MemoryService {
	if len(assets) == 0 {
		assets = DefaultSupportedAssets
	}
	supported := make(map[string]bool, len(assets))
	for _, a := range assets {
		supported[a] = true
	}
	return &MemoryService{
		byID:   make(map[int64]*planEntry),
		assets: supported,
	}
}

// CreatePlan registers a new plan. Plan ids are assigned sequentially and never reused.
func (s *MemoryService) CreatePlan(ctx context.Context, req *CreatePlanRequest) (*Plan, error) {
	if req.Name == "" {
		return nil, errdefs.Validation("plan name must not be empty")
	}
	if !s.assets[req.Asset] {
		return nil, errdefs.Validation("unsupported payment asset %q", req.Asset)
	}
	if req.Price <= 0 {
		return nil, errdefs.Validation("plan price must be positive, got %d", req.Price)
	}
	if req.Interval <= 0 {
		return nil, errdefs.Validation("billing interval must be positive, got %v", req.Interval)
	}
	if req.MaxSubscribers <= 0 {
		return nil, errdefs.Validation("plan capacity must be positive, got %d", req.MaxSubscribers)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	now := time.Now()
	entry := &planEntry{plan: Plan{
		ID:             s.nextID,
		Name:           req.Name,
		Asset:          req.Asset,
		Price:          req.Price,
		Interval:       req.Interval,
		Active:         true,
		MaxSubscribers: req.MaxSubscribers,
		CreatedAt:      now,
		UpdatedAt:      now,
	}}
	s.byID[entry.plan.ID] = entry

	plan := entry.plan
	return &plan, nil
}

// GetPlan returns a copy of the plan with the given id
func (s *MemoryService) GetPlan(ctx context.Context, id int64) (*Plan, error) {
	entry, err := s.entry(id)
	if err != nil {
		return nil, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	plan := entry.plan
	return &plan, nil
}

// ListPlans returns copies of all registered plans ordered by id
func (s *MemoryService) ListPlans(ctx context.Context) ([]*Plan, error) {
	s.mu.RLock()
	entries := make([]*planEntry, 0, len(s.byID))
	var maxID int64
	for id := range s.byID {
		if id > maxID {
			maxID = id
		}
	}
	for id := int64(1); id <= maxID; id++ {
		if e, ok := s.byID[id]; ok {
			entries = append(entries, e)
		}
	}
	s.mu.RUnlock()

	out := make([]*Plan, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		plan := e.plan
		e.mu.Unlock()
		out = append(out, &plan)
	}
	return out, nil
}

// Pause deactivates a plan, blocking new subscriptions
func (s *MemoryService) Pause(ctx context.Context, id int64) error {
	return s.setActive(id, false)
}

// Resume reactivates a paused plan
func (s *MemoryService) Resume(ctx context.Context, id int64) error {
	return s.setActive(id, true)
}

// AcquireSlot claims a capacity slot on an active plan
func (s *MemoryService) AcquireSlot(ctx context.Context, id int64) error {
	entry, err := s.entry(id)
	if err != nil {
		return err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()

	if !entry.plan.Active {
		return errdefs.Conflict("plan %d is paused", id)
	}
	if !entry.plan.HasCapacity() {
		return errdefs.Conflict("plan %d is at capacity (%d/%d)",
			id, entry.plan.CurrentSubscribers, entry.plan.MaxSubscribers)
	}
	entry.plan.CurrentSubscribers++
	entry.plan.UpdatedAt = time.Now()
	return nil
}

// ReleaseSlot returns a previously acquired capacity slot
func (s *MemoryService) ReleaseSlot(ctx context.Context, id int64) error {
	entry, err := s.entry(id)
	if err != nil {
		return err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.plan.CurrentSubscribers <= 0 {
		return errdefs.Conflict("plan %d has no subscribers to release", id)
	}
	entry.plan.CurrentSubscribers--
	entry.plan.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryService) setActive(id int64, active bool) error {
	entry, err := s.entry(id)
	if err != nil {
		return err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	entry.plan.Active = active
	entry.plan.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryService) entry(id int64) (*planEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.byID[id]
	if !ok {
		return nil, errdefs.NotFound("plan %d not found", id)
	}
	return entry, nil
}
