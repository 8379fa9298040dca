package plans

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lowtide/lowtide/pkg/errdefs"
)

// PostgresService implements Service backed by PostgreSQL. Slot accounting relies
// on guarded UPDATEs so concurrent subscribers cannot oversubscribe a plan.
type PostgresService struct {
	db     *sql.DB
	assets map[string]bool
}

// NewPostgresService creates a new PostgresService
func NewPostgresService(db *sql.DB, assets []string) *PostgresService {
	if len(assets) == 0 {
		assets = DefaultSupportedAssets
	}
	supported := make(map[string]bool, len(assets))
	for _, a := range assets {
		supported[a] = true
	}
	return &PostgresService{db: db, assets: supported}
}

// CreatePlan registers a new plan
func (s *PostgresService) CreatePlan(ctx context.Context, req *CreatePlanRequest) (*Plan, error) {
	if req.Name == "" {
		return nil, errdefs.Validation("plan name must not be empty")
	}
	if !s.assets[req.Asset] {
		return nil, errdefs.Validation("unsupported payment asset %q", req.Asset)
	}
	if req.Price <= 0 {
		return nil, errdefs.Validation("plan price must be positive, got %d", req.Price)
	}
	if req.Interval <= 0 {
		return nil, errdefs.Validation("billing interval must be positive, got %v", req.Interval)
	}
	if req.MaxSubscribers <= 0 {
		return nil, errdefs.Validation("plan capacity must be positive, got %d", req.MaxSubscribers)
	}

	query := `
		INSERT INTO plans (name, asset, price, interval_ns, active, max_subscribers, current_subscribers)
		VALUES ($1, $2, $3, $4, TRUE, $5, 0)
		RETURNING id, created_at, updated_at
	`
	plan := &Plan{
		Name:           req.Name,
		Asset:          req.Asset,
		Price:          req.Price,
		Interval:       req.Interval,
		Active:         true,
		MaxSubscribers: req.MaxSubscribers,
	}
	err := s.db.QueryRowContext(ctx, query, plan.Name, plan.Asset, plan.Price,
		int64(plan.Interval), plan.MaxSubscribers).
		Scan(&plan.ID, &plan.CreatedAt, &plan.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create plan: %w", err)
	}
	return plan, nil
}

// GetPlan retrieves a plan by id
func (s *PostgresService) GetPlan(ctx context.Context, id int64) (*Plan, error) {
	query := `
		SELECT id, name, asset, price, interval_ns, active, max_subscribers, current_subscribers,
		       created_at, updated_at
		FROM plans
		WHERE id = $1
	`
	plan := &Plan{}
	var intervalNS int64
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&plan.ID, &plan.Name, &plan.Asset, &plan.Price, &intervalNS, &plan.Active,
		&plan.MaxSubscribers, &plan.CurrentSubscribers, &plan.CreatedAt, &plan.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, errdefs.NotFound("plan %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}
	plan.Interval = time.Duration(intervalNS)
	return plan, nil
}

// ListPlans lists all plans ordered by id
func (s *PostgresService) ListPlans(ctx context.Context) ([]*Plan, error) {
	query := `
		SELECT id, name, asset, price, interval_ns, active, max_subscribers, current_subscribers,
		       created_at, updated_at
		FROM plans
		ORDER BY id
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	defer rows.Close()

	var out []*Plan
	for rows.Next() {
		plan := &Plan{}
		var intervalNS int64
		if err := rows.Scan(
			&plan.ID, &plan.Name, &plan.Asset, &plan.Price, &intervalNS, &plan.Active,
			&plan.MaxSubscribers, &plan.CurrentSubscribers, &plan.CreatedAt, &plan.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan plan: %w", err)
		}
		plan.Interval = time.Duration(intervalNS)
		out = append(out, plan)
	}
	return out, rows.Err()
}

// Pause deactivates a plan
func (s *PostgresService) Pause(ctx context.Context, id int64) error {
	return s.setActive(ctx, id, false)
}

// Resume reactivates a plan
func (s *PostgresService) Resume(ctx context.Context, id int64) error {
	return s.setActive(ctx, id, true)
}

// AcquireSlot claims a capacity slot on an active plan
func (s *PostgresService) AcquireSlot(ctx context.Context, id int64) error {
	query := `
		UPDATE plans
		SET current_subscribers = current_subscribers + 1, updated_at = NOW()
		WHERE id = $1 AND active AND current_subscribers < max_subscribers
	`
	res, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to acquire plan slot: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to acquire plan slot: %w", err)
	}
	if affected == 0 {
		// Distinguish missing, paused and full plans for the caller
		plan, getErr := s.GetPlan(ctx, id)
		if getErr != nil {
			return getErr
		}
		if !plan.Active {
			return errdefs.Conflict("plan %d is paused", id)
		}
		return errdefs.Conflict("plan %d is at capacity (%d/%d)",
			id, plan.CurrentSubscribers, plan.MaxSubscribers)
	}
	return nil
}

// ReleaseSlot returns a previously acquired capacity slot
func (s *PostgresService) ReleaseSlot(ctx context.Context, id int64) error {
	query := `
		UPDATE plans
		SET current_subscribers = current_subscribers - 1, updated_at = NOW()
		WHERE id = $1 AND current_subscribers > 0
	`
	res, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to release plan slot: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to release plan slot: %w", err)
	}
	if affected == 0 {
		if _, getErr := s.GetPlan(ctx, id); getErr != nil {
			return getErr
		}
		return errdefs.Conflict("plan %d has no subscribers to release", id)
	}
	return nil
}

func (s *PostgresService) setActive(ctx context.Context, id int64, active bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE plans SET active = $1, updated_at = NOW() WHERE id = $2`, active, id)
	if err != nil {
		return fmt.Errorf("failed to update plan: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update plan: %w", err)
	}
	if affected == 0 {
		return errdefs.NotFound("plan %d not found", id)
	}
	return nil
}
