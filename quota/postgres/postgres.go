// Package postgres provides a PostgreSQL-backed UsageStore for infergate.
//
// Counters live in one row per user and day and are incremented with a
// single upsert, which makes it safe for multi-instance deployments and
// durable across restarts.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ineyio/infergate"
)

// Store is a PostgreSQL-backed UsageStore.
type Store struct {
	pool        *pgxpool.Pool
	tablePrefix string
}

var _ infergate.UsageStore = (*Store)(nil)

// Option configures Store.
type Option func(*Store)

// WithTablePrefix sets the table name prefix (default "infergate_").
func WithTablePrefix(prefix string) Option {
	return func(s *Store) { s.tablePrefix = prefix }
}

// New creates a new PostgreSQL-backed UsageStore.
func New(pool *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{
		pool:        pool,
		tablePrefix: "infergate_",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) usageTable() string { return s.tablePrefix + "usage" }

// EnsureSchema creates the required tables if they don't exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	q := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			user_id TEXT NOT NULL,
			day TEXT NOT NULL,
			count BIGINT NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (user_id, day)
		);
	`, s.usageTable())
	_, err := s.pool.Exec(ctx, q)
	if err != nil {
		return fmt.Errorf("infergate/postgres: ensure schema: %w", err)
	}
	return nil
}

// Usage returns the counter for userID on day.
func (s *Store) Usage(ctx context.Context, userID, day string) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT count FROM %s WHERE user_id = $1 AND day = $2`, s.usageTable()),
		userID, day,
	).Scan(&n)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("infergate/postgres: usage: %w", err)
	}
	return n, nil
}

// Increment adds one to the counter and returns the new total.
func (s *Store) Increment(ctx context.Context, userID, day string) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx,
		fmt.Sprintf(`INSERT INTO %s (user_id, day, count) VALUES ($1, $2, 1)
			ON CONFLICT (user_id, day) DO UPDATE SET count = %s.count + 1, updated_at = now()
			RETURNING count`, s.usageTable(), s.usageTable()),
		userID, day,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("infergate/postgres: increment: %w", err)
	}
	return n, nil
}

// IncrementBelow adds one while the counter is below ceiling. The guarded
// upsert returns no row when the ceiling is reached; the current value is
// then read back.
func (s *Store) IncrementBelow(ctx context.Context, userID, day string, ceiling int64) (int64, bool, error) {
	if ceiling <= 0 {
		n, err := s.Usage(ctx, userID, day)
		return n, false, err
	}

	var n int64
	err := s.pool.QueryRow(ctx,
		fmt.Sprintf(`INSERT INTO %s (user_id, day, count) VALUES ($1, $2, 1)
			ON CONFLICT (user_id, day) DO UPDATE SET count = %s.count + 1, updated_at = now()
			WHERE %s.count < $3
			RETURNING count`, s.usageTable(), s.usageTable(), s.usageTable()),
		userID, day, ceiling,
	).Scan(&n)
	if errors.Is(err, pgx.ErrNoRows) {
		n, err := s.Usage(ctx, userID, day)
		return n, false, err
	}
	if err != nil {
		return 0, false, fmt.Errorf("infergate/postgres: increment below: %w", err)
	}
	return n, true, nil
}

// DeleteBefore removes counters for days strictly before day. Day keys are
// ISO dates, so lexical order is chronological.
func (s *Store) DeleteBefore(ctx context.Context, day string) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE day < $1`, s.usageTable()),
		day,
	)
	if err != nil {
		return 0, fmt.Errorf("infergate/postgres: delete before: %w", err)
	}
	return tag.RowsAffected(), nil
}
