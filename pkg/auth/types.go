package auth

import "time"

// Role determines what an authenticated caller may do.
type Role string

const (
	// RoleSubscriber may manage its own intents and subscriptions.
	RoleSubscriber Role = "subscriber"
	// RoleOperator may manage any resource, including solver controls
	// and runtime configuration.
	RoleOperator Role = "operator"
)

// Identity is the authenticated caller attached to a request context.
type Identity struct {
	Subject   string    `json:"subject"`
	Role      Role      `json:"role"`
	KeyPrefix string    `json:"key_prefix"`
	IssuedAt  time.Time `json:"issued_at"`
}

// IsOperator reports whether the identity carries the operator role.
func (id *Identity) IsOperator() bool {
	return id != nil && id.Role == RoleOperator
}

// CanActFor reports whether the identity may act on resources owned by
// the given subscriber. Operators may act for anyone.
func (id *Identity) CanActFor(subscriber string) bool {
	if id == nil {
		return false
	}
	if id.Role == RoleOperator {
		return true
	}
	return id.Subject == subscriber
}

// APIKey is the stored record of an issued key. The plaintext key is
// returned exactly once at issue time and never persisted.
type APIKey struct {
	Hash      string     `json:"-"`
	Prefix    string     `json:"prefix"`
	Subject   string     `json:"subject"`
	Role      Role       `json:"role"`
	CreatedAt time.Time  `json:"created_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
}

// Revoked reports whether the key has been revoked.
func (k *APIKey) Revoked() bool {
	return k.RevokedAt != nil
}
