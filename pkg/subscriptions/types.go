package subscriptions

import (
	"context"
	"time"
)

// Subscription represents the live billing relationship between a subscriber and
// a plan. The registry exclusively owns the billing cursor (LastPayment /
// NextPayment); any copy held elsewhere, such as the execution queue, is
// scheduling intent only and must be re-validated here before billing.
type Subscription struct {
	Subscriber    string     `json:"subscriber"`
	Agent         string     `json:"agent"`
	PlanID        int64      `json:"plan_id"`
	StartAt       time.Time  `json:"start_at"`
	LastPayment   *time.Time `json:"last_payment,omitempty"`
	NextPayment   time.Time  `json:"next_payment"`
	Active        bool       `json:"active"`
	AccessGranted bool       `json:"access_granted"`
	IntentHash    string     `json:"intent_hash"`
	FeeAllowance  int64      `json:"fee_allowance"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// StartRequest represents a request to start a subscription
type StartRequest struct {
	Subscriber string `json:"subscriber"`
	PlanID     int64  `json:"plan_id"`
	Agent      string `json:"agent"`
	IntentHash string `json:"intent_hash"`
}

// Service defines the interface for the subscription registry
type Service interface {
	// Start creates a subscription backed by a verified intent, claiming a plan
	// capacity slot. Access is not granted until the first successful charge.
	Start(ctx context.Context, req *StartRequest) (*Subscription, error)

	// Get returns the subscriber's subscription
	Get(ctx context.Context, subscriber string) (*Subscription, error)

	// ListActive returns all currently active subscriptions
	ListActive(ctx context.Context) ([]*Subscription, error)

	// ValidatePayment checks whether a charge would be accepted without
	// recording anything: the subscription must be active, callerAgent must be
	// its billing agent, the amount must equal the plan price and the payment
	// must be due. Billing agents call this before moving funds so a charge
	// the registry would reject never debits the subscriber.
	ValidatePayment(ctx context.Context, subscriber, callerAgent string, amount int64) error

	// ProcessPayment records a successful charge. Only the subscriber's billing
	// agent may call it; the amount must equal the plan price and the payment
	// must be due. Advances the billing cursor by exactly one interval.
	ProcessPayment(ctx context.Context, subscriber, callerAgent string, amount int64) error

	// Cancel deactivates the subscription, revokes access and releases the plan
	// capacity slot. Cancellation is always explicit.
	Cancel(ctx context.Context, subscriber string) error

	// Revenue returns accrued revenue for a payment asset
	Revenue(ctx context.Context, asset string) (int64, error)

	// SponsorFees credits a subscriber's execution fee allowance (operator only,
	// enforced at the API layer).
	SponsorFees(ctx context.Context, subscriber string, amount int64) error

	// DebitFees consumes sponsored fee allowance, best effort. Returns the amount
	// actually debited, which may be less than requested.
	DebitFees(ctx context.Context, subscriber string, amount int64) (int64, error)
}
