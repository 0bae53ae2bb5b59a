package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/waypointhq/waypoint/internal/core"
	"github.com/waypointhq/waypoint/internal/core/engine"
)

// incrementStatement advances both windows in one upsert. SET expressions see
// the row as it was before the update. Times are unix milliseconds.
const incrementStatement = `
	INSERT INTO rate_limits (caller_id, endpoint, window_count, window_start, burst_count, burst_start)
	VALUES (?1, ?2, 1, ?3, 1, ?3)
	ON CONFLICT(caller_id, endpoint) DO UPDATE SET
		window_count = CASE WHEN ?3 - rate_limits.window_start > ?4 THEN 1 ELSE rate_limits.window_count + 1 END,
		window_start = CASE WHEN ?3 - rate_limits.window_start > ?4 THEN ?3 ELSE rate_limits.window_start END,
		burst_count = CASE WHEN ?3 - rate_limits.burst_start > ?5 THEN 1 ELSE rate_limits.burst_count + 1 END,
		burst_start = CASE WHEN ?3 - rate_limits.burst_start > ?5 THEN ?3 ELSE rate_limits.burst_start END
	RETURNING window_count, window_start, burst_count, burst_start
`

// IncrementRateLimit advances the record for key inside a transaction.
func (s *Store) IncrementRateLimit(ctx context.Context, key core.RateLimitKey, limit engine.RateLimit, now time.Time) (core.RateLimitRecord, error) {
	if s == nil || s.DB == nil {
		return core.RateLimitRecord{}, errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	caller := strings.TrimSpace(key.CallerID)
	endpoint := strings.TrimSpace(key.Endpoint)
	if caller == "" || endpoint == "" {
		return core.RateLimitRecord{}, errors.New("caller and endpoint are required")
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return core.RateLimitRecord{}, fmt.Errorf("begin rate limit transaction: %w", err)
	}
	defer tx.Rollback() // nolint:errcheck // no-op after commit

	var (
		windowCount int
		windowStart int64
		burstCount  int
		burstStart  int64
	)
	row := tx.QueryRowContext(ctx, incrementStatement,
		caller, endpoint, now.UTC().UnixMilli(),
		limit.SustainedWindow.Milliseconds(), limit.BurstWindow.Milliseconds())
	if err := row.Scan(&windowCount, &windowStart, &burstCount, &burstStart); err != nil {
		return core.RateLimitRecord{}, fmt.Errorf("increment rate limit: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return core.RateLimitRecord{}, fmt.Errorf("commit rate limit: %w", err)
	}

	return core.RateLimitRecord{
		WindowCount: windowCount,
		WindowStart: time.UnixMilli(windowStart).UTC(),
		BurstCount:  burstCount,
		BurstStart:  time.UnixMilli(burstStart).UTC(),
	}, nil
}
