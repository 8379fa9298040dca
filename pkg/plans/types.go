package plans

import (
	"context"
	"time"
)

// Plan represents a billing plan template. Identity fields (Asset, Price, Interval)
// are immutable after creation; only Active and the subscriber counter change.
type Plan struct {
	ID                 int64         `json:"id"`
	Name               string        `json:"name"`
	Asset              string        `json:"asset"`
	Price              int64         `json:"price"` // smallest asset unit
	Interval           time.Duration `json:"interval"`
	Active             bool          `json:"active"`
	MaxSubscribers     int           `json:"max_subscribers"`
	CurrentSubscribers int           `json:"current_subscribers"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
}

// HasCapacity reports whether the plan can accept another subscriber
func (p *Plan) HasCapacity() bool {
	return p.CurrentSubscribers < p.MaxSubscribers
}

// CreatePlanRequest represents a request to create a plan
type CreatePlanRequest struct {
	Name           string        `json:"name"`
	Asset          string        `json:"asset"`
	Price          int64         `json:"price"`
	Interval       time.Duration `json:"interval"`
	MaxSubscribers int           `json:"max_subscribers"`
}

// Service defines the interface for plan registry operations
type Service interface {
	CreatePlan(ctx context.Context, req *CreatePlanRequest) (*Plan, error)
	GetPlan(ctx context.Context, id int64) (*Plan, error)
	ListPlans(ctx context.Context) ([]*Plan, error)
	Pause(ctx context.Context, id int64) error
	Resume(ctx context.Context, id int64) error

	// Capacity slot management, called by the subscription registry.
	// AcquireSlot fails when the plan is inactive or at capacity.
	AcquireSlot(ctx context.Context, id int64) error
	ReleaseSlot(ctx context.Context, id int64) error
}
