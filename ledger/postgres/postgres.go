// Package postgres provides a PostgreSQL-backed LedgerStore for infergate.
//
// Entries are insert-only rows; a BIGSERIAL column records append order so
// that reads are ordered by insertion rather than by timestamp.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ineyio/infergate"
)

// Store is a PostgreSQL-backed LedgerStore.
type Store struct {
	pool        *pgxpool.Pool
	tablePrefix string
}

var _ infergate.LedgerStore = (*Store)(nil)

// Option configures Store.
type Option func(*Store)

// WithTablePrefix sets the table name prefix (default "infergate_").
func WithTablePrefix(prefix string) Option {
	return func(s *Store) { s.tablePrefix = prefix }
}

// New creates a new PostgreSQL-backed LedgerStore.
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

func (s *Store) ledgerTable() string { return s.tablePrefix + "ledger" }

// EnsureSchema creates the required tables if they don't exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	q := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			seq BIGSERIAL PRIMARY KEY,
			id TEXT NOT NULL UNIQUE,
			user_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			amount_usd DOUBLE PRECISION NOT NULL DEFAULT 0,
			metadata JSONB,
			created_at TIMESTAMPTZ NOT NULL
		);
	`, s.ledgerTable())
	_, err := s.pool.Exec(ctx, q)
	if err != nil {
		return fmt.Errorf("infergate/postgres: ensure schema: %w", err)
	}
	return nil
}

// Append inserts entry.
func (s *Store) Append(ctx context.Context, entry infergate.LedgerEntry) error {
	var meta []byte
	if entry.Metadata != nil {
		var err error
		meta, err = json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("infergate/postgres: encode metadata: %w", err)
		}
	}

	_, err := s.pool.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s (id, user_id, event_type, amount_usd, metadata, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)`, s.ledgerTable()),
		entry.ID, entry.UserID, string(entry.EventType), entry.AmountUSD, meta, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("infergate/postgres: append: %w", err)
	}
	return nil
}

// Recent returns up to limit most recent entries, oldest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]infergate.LedgerEntry, error) {
	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT id, user_id, event_type, amount_usd, metadata, created_at FROM (
			SELECT * FROM %s ORDER BY seq DESC LIMIT $1
		) recent ORDER BY seq ASC`, s.ledgerTable()),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("infergate/postgres: recent: %w", err)
	}
	defer rows.Close()

	var out []infergate.LedgerEntry
	for rows.Next() {
		var (
			e         infergate.LedgerEntry
			eventType string
			meta      []byte
		)
		if err := rows.Scan(&e.ID, &e.UserID, &eventType, &e.AmountUSD, &meta, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("infergate/postgres: scan: %w", err)
		}
		e.EventType = infergate.EventType(eventType)
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &e.Metadata); err != nil {
				return nil, fmt.Errorf("infergate/postgres: decode metadata: %w", err)
			}
		}
		e.CreatedAt = e.CreatedAt.UTC()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("infergate/postgres: recent: %w", err)
	}
	return out, nil
}
