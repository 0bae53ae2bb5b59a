package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/waypointhq/waypoint/internal/core"
	"github.com/waypointhq/waypoint/internal/core/engine"
)

// GetResponse returns a cached payload while it is live and deletes it once
// expired.
func (s *Store) GetResponse(ctx context.Context, namespace, fingerprint string, policy engine.CachePolicy, now time.Time) ([]byte, bool, error) {
	if s == nil || s.DB == nil {
		return nil, false, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var (
		payload  []byte
		storedAt int64
	)
	row := s.DB.QueryRowContext(ctx, `
		SELECT payload, stored_at
		FROM response_cache
		WHERE namespace = ? AND fingerprint = ?
	`, namespace, fingerprint)
	if err := row.Scan(&payload, &storedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("fetch cached response: %w", err)
	}

	if policy.Expired(time.UnixMilli(storedAt), now) {
		if _, err := s.DB.ExecContext(ctx, `
			DELETE FROM response_cache
			WHERE namespace = ? AND fingerprint = ? AND stored_at = ?
		`, namespace, fingerprint, storedAt); err != nil {
			return nil, false, fmt.Errorf("evict cached response: %w", err)
		}
		return nil, false, nil
	}

	return payload, true, nil
}

// PutResponse replaces the entry for fingerprint with a fresh insertion and
// trims the namespace to the policy capacity, oldest insertion first.
func (s *Store) PutResponse(ctx context.Context, namespace, fingerprint string, payload []byte, policy engine.CachePolicy, now time.Time) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.TrimSpace(namespace) == "" || strings.TrimSpace(fingerprint) == "" {
		return errors.New("namespace and fingerprint are required")
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin cache transaction: %w", err)
	}
	defer tx.Rollback() // nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM response_cache WHERE namespace = ? AND fingerprint = ?
	`, namespace, fingerprint); err != nil {
		return fmt.Errorf("replace cached response: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO response_cache (namespace, fingerprint, payload, stored_at)
		VALUES (?, ?, ?, ?)
	`, namespace, fingerprint, payload, now.UTC().UnixMilli()); err != nil {
		return fmt.Errorf("store cached response: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM response_cache
		WHERE namespace = ? AND id NOT IN (
			SELECT id FROM response_cache WHERE namespace = ? ORDER BY id DESC LIMIT ?
		)
	`, namespace, namespace, policy.Capacity()); err != nil {
		return fmt.Errorf("evict cached responses: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit cached response: %w", err)
	}
	return nil
}

// CacheStats reports entry counts and age bounds per namespace.
func (s *Store) CacheStats(ctx context.Context) ([]core.CacheStats, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	rows, err := s.DB.QueryContext(ctx, `
		SELECT namespace, COUNT(*), MIN(stored_at), MAX(stored_at)
		FROM response_cache
		GROUP BY namespace
		ORDER BY namespace
	`)
	if err != nil {
		return nil, fmt.Errorf("cache stats: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup

	stats := []core.CacheStats{}
	for rows.Next() {
		var (
			stat           core.CacheStats
			oldest, newest int64
		)
		if err := rows.Scan(&stat.Namespace, &stat.Entries, &oldest, &newest); err != nil {
			return nil, fmt.Errorf("scan cache stats: %w", err)
		}
		o := time.UnixMilli(oldest).UTC()
		n := time.UnixMilli(newest).UTC()
		stat.Oldest, stat.Newest = &o, &n
		stats = append(stats, stat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("cache stats: %w", err)
	}
	return stats, nil
}

// PurgeCache removes entries in namespace, or everything when namespace is
// empty.
func (s *Store) PurgeCache(ctx context.Context, namespace string) (int64, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var (
		result sql.Result
		err    error
	)
	if strings.TrimSpace(namespace) == "" {
		result, err = s.DB.ExecContext(ctx, `DELETE FROM response_cache`)
	} else {
		result, err = s.DB.ExecContext(ctx, `DELETE FROM response_cache WHERE namespace = ?`, namespace)
	}
	if err != nil {
		return 0, fmt.Errorf("purge cache: %w", err)
	}
	return result.RowsAffected()
}
