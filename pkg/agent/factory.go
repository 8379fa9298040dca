package agent

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/lowtide/lowtide/pkg/errdefs"
	"github.com/lowtide/lowtide/pkg/plans"
	"github.com/lowtide/lowtide/pkg/subscriptions"
)

const agentCacheSize = 1024

// Factory provisions one billing agent address per subscriber. Addresses are
// derived deterministically from the subscriber identity and a caller-chosen
// salt, so re-running provisioning with the same inputs yields the same
// address. Constructed agents are kept in an LRU cache keyed by subscriber.
type Factory struct {
	mu          sync.RWMutex
	provisioned map[string]string // subscriber -> address

	treasury string
	ledger   Ledger
	subSvc   subscriptions.Service
	planSvc  plans.Service
	cache    *lru.Cache[string, *LedgerAgent]
}

// NewFactory creates an agent factory
func NewFactory(treasury string, ledger Ledger, subSvc subscriptions.Service, planSvc plans.Service) (*Factory, error) {
	cache, err := lru.New[string, *LedgerAgent](agentCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create agent cache: %w", err)
	}
	return &Factory{
		provisioned: make(map[string]string),
		treasury:    treasury,
		ledger:      ledger,
		subSvc:      subSvc,
		planSvc:     planSvc,
		cache:       cache,
	}, nil
}

// DeriveAddress computes the deterministic agent address for a subscriber/salt pair
func DeriveAddress(subscriber, salt string) string {
	sum := sha256.Sum256([]byte(subscriber + "|" + salt))
	return "agt_" + hex.EncodeToString(sum[:20])
}

// CreateAgent provisions a billing agent address for a subscriber. Fails with a
// state conflict if the subscriber already has one.
func (f *Factory) CreateAgent(ctx context.Context, subscriber, salt string) (string, error) {
	if subscriber == "" {
		return "", errdefs.Validation("subscriber is required")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if existing, ok := f.provisioned[subscriber]; ok {
		return "", errdefs.Conflict("subscriber %s already has agent %s", subscriber, existing)
	}

	address := DeriveAddress(subscriber, salt)
	f.provisioned[subscriber] = address
	return address, nil
}

// AgentAddressFor returns the provisioned address for a subscriber
func (f *Factory) AgentAddressFor(subscriber string) (string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	address, ok := f.provisioned[subscriber]
	if !ok {
		return "", errdefs.NotFound("no agent provisioned for subscriber %s", subscriber)
	}
	return address, nil
}

// AgentFor returns the subscriber's billing agent, constructing and caching it
// on first use.
func (f *Factory) AgentFor(subscriber string) (BillingAgent, error) {
	if agent, ok := f.cache.Get(subscriber); ok {
		return agent, nil
	}

	address, err := f.AgentAddressFor(subscriber)
	if err != nil {
		return nil, err
	}

	agent := NewLedgerAgent(subscriber, address, f.treasury, f.ledger, f.subSvc, f.planSvc)
	f.cache.Add(subscriber, agent)
	return agent, nil
}
