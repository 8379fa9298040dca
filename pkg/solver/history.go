package solver

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// History archives executed renewals in SQLite so per-subscriber execution
// history survives restarts. Appends happen off the billing path.
type History struct {
	db *sql.DB
}

// NewHistory opens (or creates) the archive at path
func NewHistory(path string) (*History, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	h := &History{db: db}
	if err := h.createSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return h, nil
}

// NewHistoryWithDB wraps an existing database handle, used in tests
func NewHistoryWithDB(db *sql.DB) (*History, error) {
	h := &History{db: db}
	if err := h.createSchema(); err != nil {
		return nil, err
	}
	return h, nil
}

func (h *History) createSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS executions (
		id TEXT PRIMARY KEY,
		subscriber TEXT NOT NULL,
		plan_id INTEGER NOT NULL,
		executed_at TIMESTAMP NOT NULL,
		observed_price INTEGER NOT NULL,
		ceiling INTEGER NOT NULL,
		gas_saved INTEGER NOT NULL,
		forced BOOLEAN NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_executions_subscriber ON executions(subscriber, executed_at DESC);
	`
	if _, err := h.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create history schema: %w", err)
	}
	return nil
}

// Append archives one execution
func (h *History) Append(ctx context.Context, record ExecutionRecord) error {
	_, err := h.db.ExecContext(ctx, `
		INSERT INTO executions (id, subscriber, plan_id, executed_at, observed_price, ceiling, gas_saved, forced)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID, record.Subscriber, record.PlanID, record.ExecutedAt,
		record.ObservedPrice, record.Ceiling, record.GasSaved, record.Forced,
	)
	if err != nil {
		return fmt.Errorf("failed to append execution record: %w", err)
	}
	return nil
}

// BySubscriber returns a subscriber's executions, newest first
func (h *History) BySubscriber(ctx context.Context, subscriber string, limit int) ([]ExecutionRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := h.db.QueryContext(ctx, `
		SELECT id, subscriber, plan_id, executed_at, observed_price, ceiling, gas_saved, forced
		FROM executions
		WHERE subscriber = ?
		ORDER BY executed_at DESC
		LIMIT ?`,
		subscriber, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query execution history: %w", err)
	}
	defer rows.Close()

	var records []ExecutionRecord
	for rows.Next() {
		var r ExecutionRecord
		if err := rows.Scan(&r.ID, &r.Subscriber, &r.PlanID, &r.ExecutedAt, &r.ObservedPrice, &r.Ceiling, &r.GasSaved, &r.Forced); err != nil {
			return nil, fmt.Errorf("failed to scan execution record: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Count returns the total number of archived executions
func (h *History) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := h.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM executions`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count execution records: %w", err)
	}
	return count, nil
}

// Close closes the underlying database
func (h *History) Close() error {
	return h.db.Close()
}
