package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lowtide/lowtide/pkg/errdefs"
)

const (
	// KeyPrefix identifies Lowtide API keys.
	KeyPrefix = "lt_"
	// KeyLength is the number of random bytes in a key (32 bytes = 256 bits).
	KeyLength = 32
)

// KeyGenerator generates and validates API keys.
type KeyGenerator struct{}

// NewKeyGenerator creates a new key generator.
func NewKeyGenerator() *KeyGenerator {
	return &KeyGenerator{}
}

// GenerateKey creates a new API key.
// Format: lt_<base64url(32 random bytes)>
func (kg *KeyGenerator) GenerateKey() (key string, keyHash string, keyPrefix string, err error) {
	randomBytes := make([]byte, KeyLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	encoded := base64.RawURLEncoding.EncodeToString(randomBytes)
	fullKey := KeyPrefix + encoded

	hash := sha256.Sum256([]byte(fullKey))
	hashStr := hex.EncodeToString(hash[:])

	// First 8 chars after "lt_" identify the key in listings.
	prefix := KeyPrefix
	if len(encoded) >= 8 {
		prefix = KeyPrefix + encoded[:8]
	}

	return fullKey, hashStr, prefix, nil
}

// HashKey computes the SHA256 hash of a key for lookup.
func (kg *KeyGenerator) HashKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}

// ValidateKeyFormat checks whether a key has the expected shape.
func (kg *KeyGenerator) ValidateKeyFormat(key string) error {
	if !strings.HasPrefix(key, KeyPrefix) {
		return fmt.Errorf("key must start with %q", KeyPrefix)
	}

	encoded := strings.TrimPrefix(key, KeyPrefix)
	if len(encoded) == 0 {
		return fmt.Errorf("key is too short")
	}

	if _, err := base64.RawURLEncoding.DecodeString(encoded); err != nil {
		return fmt.Errorf("invalid key encoding: %w", err)
	}

	return nil
}

// ExtractPrefix extracts the display prefix from a key.
func (kg *KeyGenerator) ExtractPrefix(key string) string {
	if !strings.HasPrefix(key, KeyPrefix) {
		return ""
	}

	encoded := strings.TrimPrefix(key, KeyPrefix)
	if len(encoded) >= 8 {
		return KeyPrefix + encoded[:8]
	}

	return key
}

// Keyring manages issued API keys. Keys are stored only as SHA256
// hashes; the plaintext is handed out once at issue time.
type Keyring struct {
	generator *KeyGenerator

	mu   sync.RWMutex
	keys map[string]*APIKey // keyed by hash
}

// NewKeyring creates an empty keyring.
func NewKeyring() *Keyring {
	return &Keyring{
		generator: NewKeyGenerator(),
		keys:      make(map[string]*APIKey),
	}
}

// Issue mints a new key bound to a subject and role. The returned
// plaintext key is not recoverable afterwards.
func (kr *Keyring) Issue(subject string, role Role) (string, *APIKey, error) {
	if subject == "" {
		return "", nil, errdefs.Validation("subject is required")
	}
	if role != RoleSubscriber && role != RoleOperator {
		return "", nil, errdefs.Validation("unknown role %q", role)
	}

	key, hash, prefix, err := kr.generator.GenerateKey()
	if err != nil {
		return "", nil, err
	}

	record := &APIKey{
		Hash:      hash,
		Prefix:    prefix,
		Subject:   subject,
		Role:      role,
		CreatedAt: time.Now().UTC(),
	}

	kr.mu.Lock()
	kr.keys[hash] = record
	kr.mu.Unlock()

	return key, record, nil
}

// Adopt registers an externally provided key, typically the operator
// bootstrap key from the environment. The key must already have the
// expected format.
func (kr *Keyring) Adopt(key, subject string, role Role) (*APIKey, error) {
	if err := kr.generator.ValidateKeyFormat(key); err != nil {
		return nil, errdefs.Validation("invalid key: %v", err)
	}
	if subject == "" {
		return nil, errdefs.Validation("subject is required")
	}

	record := &APIKey{
		Hash:      kr.generator.HashKey(key),
		Prefix:    kr.generator.ExtractPrefix(key),
		Subject:   subject,
		Role:      role,
		CreatedAt: time.Now().UTC(),
	}

	kr.mu.Lock()
	kr.keys[record.Hash] = record
	kr.mu.Unlock()

	return record, nil
}

// Resolve authenticates a plaintext key and returns the caller identity.
func (kr *Keyring) Resolve(key string) (*Identity, error) {
	if err := kr.generator.ValidateKeyFormat(key); err != nil {
		return nil, errdefs.Authorization("invalid key format")
	}

	hash := kr.generator.HashKey(key)

	kr.mu.RLock()
	record, ok := kr.keys[hash]
	kr.mu.RUnlock()

	if !ok {
		return nil, errdefs.Authorization("unknown key")
	}
	if record.Revoked() {
		return nil, errdefs.Authorization("key has been revoked")
	}

	return &Identity{
		Subject:   record.Subject,
		Role:      record.Role,
		KeyPrefix: record.Prefix,
		IssuedAt:  record.CreatedAt,
	}, nil
}

// Revoke disables the key with the given prefix belonging to subject.
func (kr *Keyring) Revoke(subject, prefix string) error {
	kr.mu.Lock()
	defer kr.mu.Unlock()

	for _, record := range kr.keys {
		if record.Subject == subject && record.Prefix == prefix {
			if record.Revoked() {
				return errdefs.Conflict("key %s is already revoked", prefix)
			}
			now := time.Now().UTC()
			record.RevokedAt = &now
			return nil
		}
	}

	return errdefs.NotFound("no key %s for subject %s", prefix, subject)
}

// ListFor returns all keys issued to a subject, newest first.
func (kr *Keyring) ListFor(subject string) []*APIKey {
	kr.mu.RLock()
	defer kr.mu.RUnlock()

	var out []*APIKey
	for _, record := range kr.keys {
		if record.Subject == subject {
			copied := *record
			out = append(out, &copied)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	return out
}
