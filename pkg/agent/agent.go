package agent

import (
	"context"
	"errors"
	"time"

	"github.com/lowtide/lowtide/pkg/errdefs"
	"github.com/lowtide/lowtide/pkg/plans"
	"github.com/lowtide/lowtide/pkg/subscriptions"
)

// DefaultRenewTimeout bounds a single renewal attempt end to end
const DefaultRenewTimeout = 30 * time.Second

// ErrInsufficientBalance is returned by a Ledger when the subscriber's account
// cannot cover the transfer.
var ErrInsufficientBalance = errors.New("insufficient balance")

// Ledger is the external token-transfer rail. A transfer either succeeds or
// returns an error; there is no partial outcome.
type Ledger interface {
	Transfer(ctx context.Context, from, to, asset string, amount int64) error
}

// BillingAgent authorizes and executes a single subscriber's recurring charge.
// Renew is synchronous: it reports success or failure before returning, and an
// in-flight attempt is never cancelled once the transfer has been issued.
type BillingAgent interface {
	// Address returns the agent's provisioned address
	Address() string

	// Renew collects one payment for the subscriber. External transfer
	// failures surface as errdefs External errors.
	Renew(ctx context.Context) error

	// TimeUntilNextBilling returns how long until the subscriber's next
	// payment is due. Negative when the payment is overdue.
	TimeUntilNextBilling(ctx context.Context) (time.Duration, error)
}

// LedgerAgent is a BillingAgent backed by an external ledger. It reads the
// charge parameters from the subscription registry, moves funds on the ledger
// and then records the payment against the billing cursor.
type LedgerAgent struct {
	subscriber string
	address    string
	treasury   string
	ledger     Ledger
	subSvc     subscriptions.Service
	planSvc    plans.Service
	timeout    time.Duration
}

// NewLedgerAgent creates a billing agent for one subscriber. treasury is the
// destination address for collected payments.
func NewLedgerAgent(subscriber, address, treasury string, ledger Ledger, subSvc subscriptions.Service, planSvc plans.Service) *LedgerAgent {
	return &LedgerAgent{
		subscriber: subscriber,
		address:    address,
		treasury:   treasury,
		ledger:     ledger,
		subSvc:     subSvc,
		planSvc:    planSvc,
		timeout:    DefaultRenewTimeout,
	}
}

// Address returns the agent's provisioned address
func (a *LedgerAgent) Address() string {
	return a.address
}

// Renew collects one payment. The registry validates the charge before any
// funds move, so a payment it would reject never debits the subscriber; only
// a successful transfer advances the billing cursor.
func (a *LedgerAgent) Renew(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	sub, err := a.subSvc.Get(ctx, a.subscriber)
	if err != nil {
		return err
	}
	if !sub.Active {
		return errdefs.Conflict("subscription for %s is not active", a.subscriber)
	}
	if sub.Agent != a.address {
		return errdefs.Authorization("agent %s is not bound to subscriber %s", a.address, a.subscriber)
	}

	plan, err := a.planSvc.GetPlan(ctx, sub.PlanID)
	if err != nil {
		return err
	}

	if err := a.subSvc.ValidatePayment(ctx, a.subscriber, a.address, plan.Price); err != nil {
		return err
	}

	if err := a.ledger.Transfer(ctx, a.subscriber, a.treasury, plan.Asset, plan.Price); err != nil {
		if errors.Is(err, ErrInsufficientBalance) {
			return errdefs.External(err, "transfer of %d %s from %s rejected", plan.Price, plan.Asset, a.subscriber)
		}
		return errdefs.External(err, "ledger transfer for %s failed", a.subscriber)
	}

	return a.subSvc.ProcessPayment(ctx, a.subscriber, a.address, plan.Price)
}

// TimeUntilNextBilling returns the time remaining until the next payment is due
func (a *LedgerAgent) TimeUntilNextBilling(ctx context.Context) (time.Duration, error) {
	sub, err := a.subSvc.Get(ctx, a.subscriber)
	if err != nil {
		return 0, err
	}
	return time.Until(sub.NextPayment), nil
}
