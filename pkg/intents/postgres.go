package intents

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lowtide/lowtide/pkg/errdefs"
)

// PostgresService implements Service backed by PostgreSQL. Content hashes live in
// an append-only intent_hashes table so a hash stays bound to its first subscriber
// even after the intent itself is revoked or replaced.
type PostgresService struct {
	db       *sql.DB
	keys     Keyring
	validity time.Duration
}

// NewPostgresService creates a new PostgresService
func NewPostgresService(db *sql.DB, keys Keyring, validity time.Duration) *PostgresService {
	if validity <= 0 {
		validity = DefaultValidity
	}
	return &PostgresService{db: db, keys: keys, validity: validity}
}

const intentColumns = `subscriber, agent, plan_id, amount, interval_ns, start_at, end_at,
	content_hash, verified, revoked, revoke_reason, created_at, updated_at`

func scanIntent(row interface{ Scan(...interface{}) error }) (*Intent, error) {
	intent := &Intent{}
	var intervalNS int64
	var reason sql.NullString
	err := row.Scan(
		&intent.Subscriber, &intent.Agent, &intent.PlanID, &intent.Amount, &intervalNS,
		&intent.StartAt, &intent.EndAt, &intent.ContentHash, &intent.Verified,
		&intent.Revoked, &reason, &intent.CreatedAt, &intent.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	intent.Interval = time.Duration(intervalNS)
	intent.RevokeReason = reason.String
	return intent, nil
}

// CreateIntent records an unverified intent
func (s *PostgresService) CreateIntent(ctx context.Context, req *CreateIntentRequest) (*Intent, error) {
	if req.Subscriber == "" || req.Agent == "" {
		return nil, errdefs.Validation("subscriber and agent must not be empty")
	}
	if req.Amount <= 0 {
		return nil, errdefs.Validation("intent amount must be positive, got %d", req.Amount)
	}
	if req.Interval <= 0 {
		return nil, errdefs.Validation("intent interval must be positive, got %v", req.Interval)
	}
	if req.ContentHash == "" {
		return nil, errdefs.Validation("content hash must not be empty")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Claim the hash; ON CONFLICT DO NOTHING then ownership check catches replays
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO intent_hashes (content_hash, subscriber) VALUES ($1, $2)
		 ON CONFLICT (content_hash) DO NOTHING`,
		req.ContentHash, req.Subscriber); err != nil {
		return nil, fmt.Errorf("failed to claim content hash: %w", err)
	}
	var owner string
	if err := tx.QueryRowContext(ctx,
		`SELECT subscriber FROM intent_hashes WHERE content_hash = $1`,
		req.ContentHash).Scan(&owner); err != nil {
		return nil, fmt.Errorf("failed to check content hash owner: %w", err)
	}
	if owner != req.Subscriber {
		return nil, errdefs.Conflict("content hash already bound to another subscriber")
	}

	var liveCount int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM intents
		 WHERE subscriber = $1 AND NOT revoked AND end_at >= NOW()`,
		req.Subscriber).Scan(&liveCount); err != nil {
		return nil, fmt.Errorf("failed to check live intents: %w", err)
	}
	if liveCount > 0 {
		return nil, errdefs.Conflict("subscriber %s already has a live intent", req.Subscriber)
	}

	now := time.Now()
	intent := &Intent{
		Subscriber:  req.Subscriber,
		Agent:       req.Agent,
		PlanID:      req.PlanID,
		Amount:      req.Amount,
		Interval:    req.Interval,
		StartAt:     now,
		EndAt:       now.Add(s.validity),
		ContentHash: req.ContentHash,
	}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO intents (subscriber, agent, plan_id, amount, interval_ns, start_at, end_at, content_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (subscriber) DO UPDATE
		SET agent = EXCLUDED.agent, plan_id = EXCLUDED.plan_id, amount = EXCLUDED.amount,
		    interval_ns = EXCLUDED.interval_ns, start_at = EXCLUDED.start_at,
		    end_at = EXCLUDED.end_at, content_hash = EXCLUDED.content_hash,
		    verified = FALSE, revoked = FALSE, revoke_reason = NULL, updated_at = NOW()
		RETURNING created_at, updated_at
	`, intent.Subscriber, intent.Agent, intent.PlanID, intent.Amount,
		int64(intent.Interval), intent.StartAt, intent.EndAt, intent.ContentHash).
		Scan(&intent.CreatedAt, &intent.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create intent: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit intent: %w", err)
	}
	return intent, nil
}

// VerifyIntent recomputes the binding hash and checks the subscriber's signature
func (s *PostgresService) VerifyIntent(ctx context.Context, subscriber string, signature []byte) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT `+intentColumns+` FROM intents WHERE subscriber = $1 FOR UPDATE`, subscriber)
	intent, err := scanIntent(row)
	if err == sql.ErrNoRows {
		return errdefs.NotFound("no intent for subscriber %s", subscriber)
	}
	if err != nil {
		return fmt.Errorf("failed to load intent: %w", err)
	}

	if intent.Revoked {
		return errdefs.Conflict("intent for %s is revoked", subscriber)
	}
	if time.Now().After(intent.EndAt) {
		return errdefs.Conflict("intent for %s is past its validity window", subscriber)
	}
	if intent.Verified {
		return errdefs.Conflict("intent for %s is already verified", subscriber)
	}

	recomputed := ContentHash(intent.Subscriber, intent.Agent, intent.PlanID, intent.Amount, intent.Interval)
	if recomputed != intent.ContentHash {
		return errdefs.Authorization("content hash does not bind the intent fields")
	}
	if err := verifySignature(s.keys, subscriber, intent.ContentHash, signature); err != nil {
		return errdefs.Authorization("intent signature verification failed: %v", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE intents SET verified = TRUE, updated_at = NOW() WHERE subscriber = $1`,
		subscriber); err != nil {
		return fmt.Errorf("failed to mark intent verified: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit verification: %w", err)
	}
	return nil
}

// Revoke permanently invalidates the subscriber's intent
func (s *PostgresService) Revoke(ctx context.Context, subscriber, reason string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE intents SET revoked = TRUE, revoke_reason = $1, updated_at = NOW()
		 WHERE subscriber = $2 AND NOT revoked`, reason, subscriber)
	if err != nil {
		return fmt.Errorf("failed to revoke intent: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to revoke intent: %w", err)
	}
	if affected == 0 {
		if _, getErr := s.GetIntent(ctx, subscriber); getErr != nil {
			return getErr
		}
		return errdefs.Conflict("intent for %s is already revoked", subscriber)
	}
	return nil
}

// IsValid reports whether the subscriber holds a verified, unrevoked, unexpired intent
func (s *PostgresService) IsValid(ctx context.Context, subscriber string) bool {
	var valid bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(
			SELECT 1 FROM intents
			WHERE subscriber = $1 AND verified AND NOT revoked AND end_at >= NOW()
		)`, subscriber).Scan(&valid)
	return err == nil && valid
}

// GetIntent returns the subscriber's current intent
func (s *PostgresService) GetIntent(ctx context.Context, subscriber string) (*Intent, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+intentColumns+` FROM intents WHERE subscriber = $1`, subscriber)
	intent, err := scanIntent(row)
	if err == sql.ErrNoRows {
		return nil, errdefs.NotFound("no intent for subscriber %s", subscriber)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get intent: %w", err)
	}
	return intent, nil
}

// CleanupExpired marks expired-but-unrevoked intents revoked for the given subscribers
func (s *PostgresService) CleanupExpired(ctx context.Context, subscribers []string) (int, error) {
	marked := 0
	for _, sub := range subscribers {
		res, err := s.db.ExecContext(ctx,
			`UPDATE intents SET revoked = TRUE, revoke_reason = 'expired', updated_at = NOW()
			 WHERE subscriber = $1 AND NOT revoked AND end_at < NOW()`, sub)
		if err != nil {
			return marked, fmt.Errorf("failed to clean up intent for %s: %w", sub, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return marked, fmt.Errorf("failed to clean up intent for %s: %w", sub, err)
		}
		marked += int(affected)
	}
	return marked, nil
}
