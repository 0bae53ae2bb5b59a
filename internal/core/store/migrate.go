package store

import (
	"context"
	"fmt"
	"time"
)

// migration is one forward-only schema step. Versions are applied in order
// and recorded in schema_migrations so restarts skip what already ran.
type migration struct {
	version    int
	statements []string
}

var migrations = []migration{
	{version: 1, statements: []string{
		`CREATE TABLE IF NOT EXISTS rate_limits (
			caller_id TEXT NOT NULL,
			endpoint TEXT NOT NULL,
			window_count INTEGER NOT NULL DEFAULT 0,
			window_start INTEGER NOT NULL,
			burst_count INTEGER NOT NULL DEFAULT 0,
			burst_start INTEGER NOT NULL,
			PRIMARY KEY (caller_id, endpoint)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_rate_limits_endpoint ON rate_limits(endpoint)`,
	}},
	{version: 2, statements: []string{
		`CREATE TABLE IF NOT EXISTS response_cache (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			namespace TEXT NOT NULL,
			fingerprint TEXT NOT NULL,
			payload BLOB NOT NULL,
			stored_at INTEGER NOT NULL,
			UNIQUE(namespace, fingerprint)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_response_cache_order ON response_cache(namespace, id)`,
	}},
}

// SchemaVersion is the version Migrate brings a database to.
func SchemaVersion() int {
	return migrations[len(migrations)-1].version
}

// Migrate applies pending migrations, each in its own transaction.
func (s *Store) Migrate(ctx context.Context) error {
	if s == nil || s.DB == nil {
		return errNotOpen
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if _, err := s.DB.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at INTEGER NOT NULL
	)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	current, err := s.AppliedVersion(ctx)
	if err != nil {
		return err
	}
	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := s.apply(ctx, m); err != nil {
			return fmt.Errorf("store migration %d: %w", m.version, err)
		}
	}
	return nil
}

// AppliedVersion returns the highest recorded migration, 0 for a fresh
// database.
func (s *Store) AppliedVersion(ctx context.Context) (int, error) {
	if s == nil || s.DB == nil {
		return 0, errNotOpen
	}
	var version int
	err := s.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return version, nil
}

func (s *Store) apply(ctx context.Context, m migration) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range m.statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`,
		m.version, time.Now().Unix()); err != nil {
		return err
	}
	return tx.Commit()
}
