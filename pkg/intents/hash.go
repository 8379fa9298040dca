package intents

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// ContentHash computes the binding hash over the intent's identity fields. The
// hash commits the subscriber, agent, plan, amount and interval together so a
// signature over it cannot be replayed for a different charge or subscriber.
// The validity window is server-assigned and enforced separately.
func ContentHash(subscriber, agent string, planID, amount int64, interval time.Duration) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%d|%d|%d", subscriber, agent, planID, amount, int64(interval))
	return hex.EncodeToString(h.Sum(nil))
}

// Keyring resolves a subscriber's registered signing key
type Keyring interface {
	PublicKey(subscriber string) (ed25519.PublicKey, error)
}

// verifySignature checks sig over the content hash digest with the subscriber's key
func verifySignature(keys Keyring, subscriber, contentHash string, sig []byte) error {
	pub, err := keys.PublicKey(subscriber)
	if err != nil {
		return fmt.Errorf("no signing key for subscriber %s: %w", subscriber, err)
	}
	digest, err := hex.DecodeString(contentHash)
	if err != nil {
		return fmt.Errorf("malformed content hash: %w", err)
	}
	if !ed25519.Verify(pub, digest, sig) {
		return fmt.Errorf("signature does not match subscriber %s", subscriber)
	}
	return nil
}
