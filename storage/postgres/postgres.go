// Package postgres provides a PostgreSQL implementation of the
// reconcile.Store interface. Identity links use an upsert; event
// admission uses INSERT ... ON CONFLICT DO NOTHING so the check and the
// record are one atomic statement.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nattyan-tv/arktsudoi-subscription/pkg/reconcile"
)

// Store implements reconcile.Store using PostgreSQL
type Store struct {
	pool   *pgxpool.Pool
	config Config
}

// Config holds PostgreSQL store configuration
type Config struct {
	// ConnectionString is the PostgreSQL connection string
	ConnectionString string

	// Pool configuration
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		MaxConns:        10,
		MinConns:        2,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
	}
}

// New creates a new PostgreSQL store adapter
func New(ctx context.Context, config Config) (*Store, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required")
	}

	poolConfig, err := pgxpool.ParseConfig(config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}
	if config.MinConns > 0 {
		poolConfig.MinConns = config.MinConns
	}
	if config.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = config.MaxConnLifetime
	}
	if config.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = config.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{
		pool:   pool,
		config: config,
	}, nil
}

// Close closes the PostgreSQL connection pool
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the store's tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS identity_links (
			customer_id TEXT PRIMARY KEY,
			account_id  TEXT NOT NULL,
			updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE TABLE IF NOT EXISTS processed_events (
			event_id     TEXT PRIMARY KEY,
			processed_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Lookup implements reconcile.IdentityStore
func (s *Store) Lookup(ctx context.Context, customerID string) (string, error) {
	var accountID string
	err := s.pool.QueryRow(ctx,
		`SELECT account_id FROM identity_links WHERE customer_id = $1`,
		customerID).Scan(&accountID)

	if err == pgx.ErrNoRows {
		return "", reconcile.ErrCustomerNotLinked
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up identity link: %w", err)
	}
	return accountID, nil
}

// Associate implements reconcile.IdentityStore
func (s *Store) Associate(ctx context.Context, customerID, accountID string) error {
	if customerID == "" || accountID == "" {
		return fmt.Errorf("invalid identity link")
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO identity_links (customer_id, account_id, updated_at)
			VALUES ($1, $2, now())
			ON CONFLICT (customer_id) DO UPDATE SET
				account_id = EXCLUDED.account_id,
				updated_at = EXCLUDED.updated_at`,
		customerID, accountID)
	if err != nil {
		return fmt.Errorf("failed to store identity link: %w", err)
	}
	return nil
}

// Admit implements reconcile.EventLog
func (s *Store) Admit(ctx context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return false, fmt.Errorf("invalid event id")
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO processed_events (event_id) VALUES ($1)
			ON CONFLICT (event_id) DO NOTHING`,
		eventID)
	if err != nil {
		return false, fmt.Errorf("failed to record event id: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// PruneEvents deletes processed-event records older than keep. The
// provider stops redelivering after a few days, so pruning past that
// window does not weaken deduplication. Returns the number of rows
// removed.
func (s *Store) PruneEvents(ctx context.Context, keep time.Duration) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM processed_events WHERE processed_at < now() - $1::interval`,
		fmt.Sprintf("%d seconds", int64(keep.Seconds())))
	if err != nil {
		return 0, fmt.Errorf("failed to prune events: %w", err)
	}
	return tag.RowsAffected(), nil
}
