package intents

import (
	"context"
	"time"
)

// Intent represents a subscriber's signed, time-bounded commitment to a specific
// recurring charge. The content hash binds all other fields together; replaying a
// hash across subscribers or plans is rejected.
type Intent struct {
	Subscriber   string        `json:"subscriber"`
	Agent        string        `json:"agent"`
	PlanID       int64         `json:"plan_id"`
	Amount       int64         `json:"amount"`
	Interval     time.Duration `json:"interval"`
	StartAt      time.Time     `json:"start_at"`
	EndAt        time.Time     `json:"end_at"`
	ContentHash  string        `json:"content_hash"`
	Verified     bool          `json:"verified"`
	Revoked      bool          `json:"revoked"`
	RevokeReason string        `json:"revoke_reason,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// Live reports whether the intent is neither revoked nor past its validity window
func (i *Intent) Live(now time.Time) bool {
	return !i.Revoked && !now.After(i.EndAt)
}

// CreateIntentRequest represents a request to record a billing intent
type CreateIntentRequest struct {
	Subscriber  string        `json:"subscriber"`
	Agent       string        `json:"agent"`
	PlanID      int64         `json:"plan_id"`
	Amount      int64         `json:"amount"`
	Interval    time.Duration `json:"interval"`
	ContentHash string        `json:"content_hash"`
}

// Service defines the interface for the intent store
type Service interface {
	// CreateIntent records an unverified intent with a validity window starting now.
	CreateIntent(ctx context.Context, req *CreateIntentRequest) (*Intent, error)

	// VerifyIntent recomputes the binding hash and checks the subscriber's signature
	// over it. Verification is required before an intent can back a subscription.
	VerifyIntent(ctx context.Context, subscriber string, signature []byte) error

	// Revoke permanently invalidates the subscriber's intent. Irreversible.
	Revoke(ctx context.Context, subscriber, reason string) error

	// IsValid is the single authorization gate consulted before billing:
	// intent exists, verified, not revoked, and not past its end time.
	IsValid(ctx context.Context, subscriber string) bool

	// GetIntent returns the subscriber's current intent
	GetIntent(ctx context.Context, subscriber string) (*Intent, error)

	// CleanupExpired lazily revokes expired-but-unrevoked intents for the given
	// subscribers and returns how many were marked.
	CleanupExpired(ctx context.Context, subscribers []string) (int, error)
}
