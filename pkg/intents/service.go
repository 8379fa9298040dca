package intents

import (
	"context"
	"sync"
	"time"

	"github.com/lowtide/lowtide/pkg/errdefs"
)

// DefaultValidity is the default intent validity window
const DefaultValidity = 7 * 24 * time.Hour

// intentEntry pairs an intent with its own lock
type intentEntry struct {
	mu     sync.Mutex
	intent Intent
}

// MemoryService implements Service with in-memory state and per-subscriber locking.
// The content hash index is retained for revoked intents too, so a hash can never
// be rebound to a different subscriber.
type MemoryService struct {
	mu           sync.RWMutex // guards the indexes, not intent contents
	bySubscriber map[string]*intentEntry
	hashOwner    map[string]string // content hash -> subscriber, never unbound
	keys         Keyring
	validity     time.Duration
}

// NewMemoryService creates a new in-memory intent store. A zero validity selects
// DefaultValidity.
func NewMemoryService(keys Keyring, validity time.Duration) *MemoryService {
	if validity <= 0 {
		validity = DefaultValidity
	}
	return &MemoryService{
		bySubscriber: make(map[string]*intentEntry),
		hashOwner:    make(map[string]string),
		keys:         keys,
		validity:     validity,
	}
}

// CreateIntent records an unverified intent. A subscriber may hold at most one
// live intent; a content hash belongs to at most one subscriber, ever.
func (s *MemoryService) CreateIntent(ctx context.Context, req *CreateIntentRequest) (*Intent, error) {
	if req.Subscriber == "" || req.Agent == "" {
		return nil, errdefs.Validation("subscriber and agent must not be empty")
	}
	if req.Amount <= 0 {
		return nil, errdefs.Validation("intent amount must be positive, got %d", req.Amount)
	}
	if req.Interval <= 0 {
		return nil, errdefs.Validation("intent interval must be positive, got %v", req.Interval)
	}
	if req.ContentHash == "" {
		return nil, errdefs.Validation("content hash must not be empty")
	}

	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if owner, bound := s.hashOwner[req.ContentHash]; bound && owner != req.Subscriber {
		return nil, errdefs.Conflict("content hash already bound to another subscriber")
	}
	if existing, ok := s.bySubscriber[req.Subscriber]; ok {
		existing.mu.Lock()
		live := existing.intent.Live(now)
		existing.mu.Unlock()
		if live {
			return nil, errdefs.Conflict("subscriber %s already has a live intent", req.Subscriber)
		}
	}

	entry := &intentEntry{intent: Intent{
		Subscriber:  req.Subscriber,
		Agent:       req.Agent,
		PlanID:      req.PlanID,
		Amount:      req.Amount,
		Interval:    req.Interval,
		StartAt:     now,
		EndAt:       now.Add(s.validity),
		ContentHash: req.ContentHash,
		CreatedAt:   now,
		UpdatedAt:   now,
	}}
	s.bySubscriber[req.Subscriber] = entry
	s.hashOwner[req.ContentHash] = req.Subscriber

	intent := entry.intent
	return &intent, nil
}

// VerifyIntent recomputes the binding hash, checks the subscriber's signature over
// it and marks the intent verified. Re-verification of an already verified intent
// is rejected.
func (s *MemoryService) VerifyIntent(ctx context.Context, subscriber string, signature []byte) error {
	entry, err := s.entry(subscriber)
	if err != nil {
		return err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()

	intent := &entry.intent
	if intent.Revoked {
		return errdefs.Conflict("intent for %s is revoked", subscriber)
	}
	if time.Now().After(intent.EndAt) {
		return errdefs.Conflict("intent for %s is past its validity window", subscriber)
	}
	if intent.Verified {
		return errdefs.Conflict("intent for %s is already verified", subscriber)
	}

	recomputed := ContentHash(intent.Subscriber, intent.Agent, intent.PlanID, intent.Amount, intent.Interval)
	if recomputed != intent.ContentHash {
		return errdefs.Authorization("content hash does not bind the intent fields")
	}
	if err := verifySignature(s.keys, subscriber, intent.ContentHash, signature); err != nil {
		return errdefs.Authorization("intent signature verification failed: %v", err)
	}

	intent.Verified = true
	intent.UpdatedAt = time.Now()
	return nil
}

// Revoke permanently invalidates the subscriber's intent
func (s *MemoryService) Revoke(ctx context.Context, subscriber, reason string) error {
	entry, err := s.entry(subscriber)
	if err != nil {
		return err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.intent.Revoked {
		return errdefs.Conflict("intent for %s is already revoked", subscriber)
	}
	entry.intent.Revoked = true
	entry.intent.RevokeReason = reason
	entry.intent.UpdatedAt = time.Now()
	return nil
}

// IsValid reports whether the subscriber holds a verified, unrevoked, unexpired intent
func (s *MemoryService) IsValid(ctx context.Context, subscriber string) bool {
	entry, err := s.entry(subscriber)
	if err != nil {
		return false
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.intent.Verified && entry.intent.Live(time.Now())
}

// GetIntent returns a copy of the subscriber's intent
func (s *MemoryService) GetIntent(ctx context.Context, subscriber string) (*Intent, error) {
	entry, err := s.entry(subscriber)
	if err != nil {
		return nil, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	intent := entry.intent
	return &intent, nil
}

// CleanupExpired marks expired-but-unrevoked intents revoked. Expiry is lazy and
// batched; nothing is wall-clock-driven.
func (s *MemoryService) CleanupExpired(ctx context.Context, subscribers []string) (int, error) {
	now := time.Now()
	marked := 0
	for _, sub := range subscribers {
		entry, err := s.entry(sub)
		if err != nil {
			continue
		}
		entry.mu.Lock()
		if !entry.intent.Revoked && now.After(entry.intent.EndAt) {
			entry.intent.Revoked = true
			entry.intent.RevokeReason = "expired"
			entry.intent.UpdatedAt = now
			marked++
		}
		entry.mu.Unlock()
	}
	return marked, nil
}

func (s *MemoryService) entry(subscriber string) (*intentEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.bySubscriber[subscriber]
	if !ok {
		return nil, errdefs.NotFound("no intent for subscriber %s", subscriber)
	}
	return entry, nil
}
