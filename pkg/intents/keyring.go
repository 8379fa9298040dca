package intents

import (
	"crypto/ed25519"
	"sync"

	"github.com/lowtide/lowtide/pkg/errdefs"
)

// MemoryKeyring is an in-memory Keyring populated at subscriber onboarding
type MemoryKeyring struct {
	mu   sync.RWMutex
	keys map[string]ed25519.PublicKey
}

// NewMemoryKeyring creates an empty keyring
func NewMemoryKeyring() *MemoryKeyring {
	return &MemoryKeyring{keys: make(map[string]ed25519.PublicKey)}
}

// RegisterKey binds a signing key to a subscriber. A subscriber's key is set once;
// rotating keys requires revoking the live intent first, so rebinding is rejected.
func (k *MemoryKeyring) RegisterKey(subscriber string, pub ed25519.PublicKey) error {
	if subscriber == "" {
		return errdefs.Validation("subscriber must not be empty")
	}
	if len(pub) != ed25519.PublicKeySize {
		return errdefs.Validation("invalid public key length %d", len(pub))
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	if _, ok := k.keys[subscriber]; ok {
		return errdefs.Conflict("subscriber %s already has a registered key", subscriber)
	}
	k.keys[subscriber] = pub
	return nil
}

// PublicKey returns the subscriber's registered key
func (k *MemoryKeyring) PublicKey(subscriber string) (ed25519.PublicKey, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	pub, ok := k.keys[subscriber]
	if !ok {
		return nil, errdefs.NotFound("no key registered for subscriber %s", subscriber)
	}
	return pub, nil
}
