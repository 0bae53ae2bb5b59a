package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/waypointhq/waypoint/internal/core"
)

// likeEscaper escapes LIKE wildcards; operation names such as
// "places_search" contain underscores.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// rateLimitFilter renders q as a WHERE clause over rate_limits.
func rateLimitFilter(q core.RateLimitQuery) (string, []any, error) {
	if err := q.Validate(); err != nil {
		return "", nil, err
	}
	if q.All {
		return "", nil, nil
	}

	var (
		clauses []string
		args    []any
	)
	if caller := strings.TrimSpace(q.CallerID); caller != "" {
		clauses = append(clauses, "caller_id = ?")
		args = append(args, caller)
	}
	switch endpoint, prefix := strings.TrimSpace(q.Endpoint), strings.TrimSpace(q.Prefix); {
	case endpoint != "":
		clauses = append(clauses, "endpoint = ?")
		args = append(args, endpoint)
	case prefix != "":
		clauses = append(clauses, `endpoint LIKE ? ESCAPE '\'`)
		args = append(args, likeEscaper.Replace(prefix)+"%")
	}
	if len(clauses) == 0 {
		return "", nil, core.InvalidInput("rate limit query selects nothing")
	}
	return " WHERE " + strings.Join(clauses, " AND "), args, nil
}

func (s *Store) adminQuery(ctx context.Context, q core.RateLimitQuery) (context.Context, string, []any, error) {
	if s == nil || s.DB == nil {
		return nil, "", nil, errNotOpen
	}
	if ctx == nil {
		ctx = context.Background()
	}
	where, args, err := rateLimitFilter(q)
	return ctx, where, args, err
}

// ListRateLimits returns stored windows matching q, ordered by endpoint
// then caller.
func (s *Store) ListRateLimits(ctx context.Context, q core.RateLimitQuery) ([]core.RateLimitEntry, error) {
	ctx, where, args, err := s.adminQuery(ctx, q)
	if err != nil {
		return nil, err
	}

	rows, err := s.DB.QueryContext(ctx,
		`SELECT caller_id, endpoint, window_count, window_start, burst_count, burst_start FROM rate_limits`+
			where+` ORDER BY endpoint, caller_id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list rate limits: %w", err)
	}
	defer rows.Close() // nolint:errcheck // read-only cursor

	entries := []core.RateLimitEntry{}
	for rows.Next() {
		entry, err := scanRateLimit(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list rate limits: %w", err)
	}
	return entries, nil
}

func scanRateLimit(rows *sql.Rows) (core.RateLimitEntry, error) {
	var (
		entry                   core.RateLimitEntry
		windowStart, burstStart int64
	)
	err := rows.Scan(&entry.CallerID, &entry.Endpoint,
		&entry.Record.WindowCount, &windowStart,
		&entry.Record.BurstCount, &burstStart)
	if err != nil {
		return core.RateLimitEntry{}, fmt.Errorf("scan rate limit: %w", err)
	}
	entry.Record.WindowStart = time.UnixMilli(windowStart).UTC()
	entry.Record.BurstStart = time.UnixMilli(burstStart).UTC()
	return entry, nil
}

func (s *Store) CountRateLimits(ctx context.Context, q core.RateLimitQuery) (int, error) {
	ctx, where, args, err := s.adminQuery(ctx, q)
	if err != nil {
		return 0, err
	}
	var count int
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM rate_limits`+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count rate limits: %w", err)
	}
	return count, nil
}

// ResetRateLimits deletes matching windows so their callers start fresh.
func (s *Store) ResetRateLimits(ctx context.Context, q core.RateLimitQuery) (int64, error) {
	ctx, where, args, err := s.adminQuery(ctx, q)
	if err != nil {
		return 0, err
	}
	result, err := s.DB.ExecContext(ctx, `DELETE FROM rate_limits`+where, args...)
	if err != nil {
		return 0, fmt.Errorf("reset rate limits: %w", err)
	}
	return result.RowsAffected()
}
