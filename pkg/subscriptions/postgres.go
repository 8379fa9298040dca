package subscriptions

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lowtide/lowtide/pkg/errdefs"
	"github.com/lowtide/lowtide/pkg/intents"
	"github.com/lowtide/lowtide/pkg/plans"
)

// PostgresService implements Service backed by PostgreSQL. Plan capacity and
// intent validity remain the responsibility of the injected services; this store
// owns the subscription rows and the revenue ledger.
type PostgresService struct {
	db      *sql.DB
	plans   plans.Service
	intents intents.Service
}

// NewPostgresService creates a new PostgresService
func NewPostgresService(db *sql.DB, planSvc plans.Service, intentSvc intents.Service) *PostgresService {
	return &PostgresService{db: db, plans: planSvc, intents: intentSvc}
}

const subColumns = `subscriber, agent, plan_id, start_at, last_payment, next_payment,
	active, access_granted, intent_hash, fee_allowance, created_at, updated_at`

func scanSubscription(row interface{ Scan(...interface{}) error }) (*Subscription, error) {
	sub := &Subscription{}
	var last sql.NullTime
	err := row.Scan(
		&sub.Subscriber, &sub.Agent, &sub.PlanID, &sub.StartAt, &last, &sub.NextPayment,
		&sub.Active, &sub.AccessGranted, &sub.IntentHash, &sub.FeeAllowance,
		&sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if last.Valid {
		sub.LastPayment = &last.Time
	}
	return sub, nil
}

// Start creates a subscription backed by a verified intent
func (s *PostgresService) Start(ctx context.Context, req *StartRequest) (*Subscription, error) {
	if req.Subscriber == "" || req.Agent == "" {
		return nil, errdefs.Validation("subscriber and agent must not be empty")
	}

	plan, err := s.plans.GetPlan(ctx, req.PlanID)
	if err != nil {
		return nil, err
	}
	if err := s.checkIntent(ctx, req, plan); err != nil {
		return nil, err
	}

	var activeCount int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM subscriptions WHERE subscriber = $1 AND active`,
		req.Subscriber).Scan(&activeCount); err != nil {
		return nil, fmt.Errorf("failed to check existing subscription: %w", err)
	}
	if activeCount > 0 {
		return nil, errdefs.Conflict("subscriber %s already has an active subscription", req.Subscriber)
	}

	if err := s.plans.AcquireSlot(ctx, req.PlanID); err != nil {
		return nil, err
	}

	now := time.Now()
	sub := &Subscription{
		Subscriber:  req.Subscriber,
		Agent:       req.Agent,
		PlanID:      req.PlanID,
		StartAt:     now,
		NextPayment: now.Add(plan.Interval),
		Active:      true,
		IntentHash:  req.IntentHash,
	}
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO subscriptions (subscriber, agent, plan_id, start_at, next_payment, active, intent_hash)
		VALUES ($1, $2, $3, $4, $5, TRUE, $6)
		ON CONFLICT (subscriber) DO UPDATE
		SET agent = EXCLUDED.agent, plan_id = EXCLUDED.plan_id, start_at = EXCLUDED.start_at,
		    last_payment = NULL, next_payment = EXCLUDED.next_payment, active = TRUE,
		    access_granted = FALSE, intent_hash = EXCLUDED.intent_hash, updated_at = NOW()
		RETURNING created_at, updated_at
	`, sub.Subscriber, sub.Agent, sub.PlanID, sub.StartAt, sub.NextPayment, sub.IntentHash).
		Scan(&sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		if relErr := s.plans.ReleaseSlot(ctx, req.PlanID); relErr != nil {
			return nil, fmt.Errorf("failed to create subscription (slot not released: %v): %w", relErr, err)
		}
		return nil, fmt.Errorf("failed to create subscription: %w", err)
	}
	return sub, nil
}

func (s *PostgresService) checkIntent(ctx context.Context, req *StartRequest, plan *plans.Plan) error {
	if !s.intents.IsValid(ctx, req.Subscriber) {
		return errdefs.Conflict("subscriber %s has no valid billing intent", req.Subscriber)
	}
	intent, err := s.intents.GetIntent(ctx, req.Subscriber)
	if err != nil {
		return err
	}
	if intent.ContentHash != req.IntentHash {
		return errdefs.Conflict("intent hash does not match the subscriber's live intent")
	}
	if intent.PlanID != plan.ID {
		return errdefs.Conflict("intent is bound to plan %d, not %d", intent.PlanID, plan.ID)
	}
	if intent.Amount != plan.Price {
		return errdefs.Conflict("intent amount %d does not match plan price %d", intent.Amount, plan.Price)
	}
	if intent.Agent != req.Agent {
		return errdefs.Conflict("intent is bound to a different billing agent")
	}
	return nil
}

// Get returns the subscriber's subscription
func (s *PostgresService) Get(ctx context.Context, subscriber string) (*Subscription, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+subColumns+` FROM subscriptions WHERE subscriber = $1`, subscriber)
	sub, err := scanSubscription(row)
	if err == sql.ErrNoRows {
		return nil, errdefs.NotFound("no subscription for subscriber %s", subscriber)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	return sub, nil
}

// ListActive returns all active subscriptions
func (s *PostgresService) ListActive(ctx context.Context) ([]*Subscription, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+subColumns+` FROM subscriptions WHERE active ORDER BY subscriber`)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	defer rows.Close()

	var out []*Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

// ValidatePayment checks a charge without recording it
func (s *PostgresService) ValidatePayment(ctx context.Context, subscriber, callerAgent string, amount int64) error {
	sub, err := s.Get(ctx, subscriber)
	if err != nil {
		return err
	}
	plan, err := s.plans.GetPlan(ctx, sub.PlanID)
	if err != nil {
		return err
	}
	return checkCharge(sub, plan, callerAgent, amount)
}

// ProcessPayment records a successful charge and advances the billing cursor
func (s *PostgresService) ProcessPayment(ctx context.Context, subscriber, callerAgent string, amount int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT `+subColumns+` FROM subscriptions WHERE subscriber = $1 FOR UPDATE`, subscriber)
	sub, err := scanSubscription(row)
	if err == sql.ErrNoRows {
		return errdefs.NotFound("no subscription for subscriber %s", subscriber)
	}
	if err != nil {
		return fmt.Errorf("failed to load subscription: %w", err)
	}

	plan, err := s.plans.GetPlan(ctx, sub.PlanID)
	if err != nil {
		return err
	}

	if err := checkCharge(sub, plan, callerAgent, amount); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE subscriptions
		SET last_payment = NOW(), next_payment = next_payment + $1 * INTERVAL '1 nanosecond',
		    access_granted = TRUE, updated_at = NOW()
		WHERE subscriber = $2
	`, int64(plan.Interval), subscriber); err != nil {
		return fmt.Errorf("failed to advance billing cursor: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO revenue (asset, amount) VALUES ($1, $2)
		ON CONFLICT (asset) DO UPDATE SET amount = revenue.amount + EXCLUDED.amount
	`, plan.Asset, amount); err != nil {
		return fmt.Errorf("failed to accrue revenue: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit payment: %w", err)
	}
	return nil
}

// Cancel deactivates the subscription and releases its plan slot
func (s *PostgresService) Cancel(ctx context.Context, subscriber string) error {
	var planID int64
	err := s.db.QueryRowContext(ctx, `
		UPDATE subscriptions
		SET active = FALSE, access_granted = FALSE, updated_at = NOW()
		WHERE subscriber = $1 AND active
		RETURNING plan_id
	`, subscriber).Scan(&planID)
	if err == sql.ErrNoRows {
		if _, getErr := s.Get(ctx, subscriber); getErr != nil {
			return getErr
		}
		return errdefs.Conflict("subscription for %s is not active", subscriber)
	}
	if err != nil {
		return fmt.Errorf("failed to cancel subscription: %w", err)
	}

	if err := s.plans.ReleaseSlot(ctx, planID); err != nil {
		return fmt.Errorf("release plan slot on cancel: %w", err)
	}
	return nil
}

// Revenue returns accrued revenue for an asset
func (s *PostgresService) Revenue(ctx context.Context, asset string) (int64, error) {
	var amount int64
	err := s.db.QueryRowContext(ctx,
		`SELECT amount FROM revenue WHERE asset = $1`, asset).Scan(&amount)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get revenue: %w", err)
	}
	return amount, nil
}

// SponsorFees credits a subscriber's execution fee allowance
func (s *PostgresService) SponsorFees(ctx context.Context, subscriber string, amount int64) error {
	if amount <= 0 {
		return errdefs.Validation("sponsored amount must be positive, got %d", amount)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE subscriptions SET fee_allowance = fee_allowance + $1, updated_at = NOW()
		 WHERE subscriber = $2`, amount, subscriber)
	if err != nil {
		return fmt.Errorf("failed to sponsor fees: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to sponsor fees: %w", err)
	}
	if affected == 0 {
		return errdefs.NotFound("no subscription for subscriber %s", subscriber)
	}
	return nil
}

// DebitFees consumes sponsored allowance, best effort
func (s *PostgresService) DebitFees(ctx context.Context, subscriber string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, errdefs.Validation("debit amount must be positive, got %d", amount)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var allowance int64
	err = tx.QueryRowContext(ctx,
		`SELECT fee_allowance FROM subscriptions WHERE subscriber = $1 FOR UPDATE`,
		subscriber).Scan(&allowance)
	if err == sql.ErrNoRows {
		return 0, errdefs.NotFound("no subscription for subscriber %s", subscriber)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to load fee allowance: %w", err)
	}

	debited := amount
	if allowance < debited {
		debited = allowance
	}
	if debited > 0 {
		if _, err := tx.ExecContext(ctx,
			`UPDATE subscriptions SET fee_allowance = fee_allowance - $1, updated_at = NOW()
			 WHERE subscriber = $2`, debited, subscriber); err != nil {
			return 0, fmt.Errorf("failed to debit fees: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit fee debit: %w", err)
	}
	return debited, nil
}
