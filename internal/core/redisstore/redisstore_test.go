package redisstore

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/waypointhq/waypoint/internal/config"
	"github.com/waypointhq/waypoint/internal/core"
	"github.com/waypointhq/waypoint/internal/core/engine"
)

var epoch = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, "test"), mr
}

func TestOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	store, err := Open(context.Background(), config.RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	require.NoError(t, store.Ping(context.Background()))
	require.NoError(t, store.Close())

	_, err = Open(context.Background(), config.RedisConfig{})
	require.Error(t, err)
}

func TestIncrementRateLimitWindows(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()
	key := core.RateLimitKey{CallerID: "user:1", Endpoint: "directions"}
	limit := engine.RateLimit{BurstMax: 2, BurstWindow: 10 * time.Second, SustainedMax: 5, SustainedWindow: time.Minute}

	rec, err := store.IncrementRateLimit(ctx, key, limit, epoch)
	require.NoError(t, err)
	require.Equal(t, core.RateLimitRecord{WindowCount: 1, WindowStart: epoch, BurstCount: 1, BurstStart: epoch}, rec)

	rec, err = store.IncrementRateLimit(ctx, key, limit, epoch.Add(5*time.Second))
	require.NoError(t, err)
	require.Equal(t, 2, rec.WindowCount)
	require.Equal(t, 2, rec.BurstCount)

	rec, err = store.IncrementRateLimit(ctx, key, limit, epoch.Add(11*time.Second))
	require.NoError(t, err)
	require.Equal(t, 3, rec.WindowCount)
	require.Equal(t, 1, rec.BurstCount)
	require.Equal(t, epoch.Add(11*time.Second), rec.BurstStart)
	require.Equal(t, epoch, rec.WindowStart)

	rec, err = store.IncrementRateLimit(ctx, key, limit, epoch.Add(2*time.Minute))
	require.NoError(t, err)
	require.Equal(t, 1, rec.WindowCount)

	require.True(t, mr.TTL("{test:rl:directions:user:1}") > 0)
}

func TestIncrementMatchesEngineAdvance(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	key := core.RateLimitKey{CallerID: "u", Endpoint: "pois"}
	limit := engine.RateLimit{BurstMax: 5, BurstWindow: 10 * time.Second, SustainedMax: 60, SustainedWindow: 10 * time.Minute}

	var expected core.RateLimitRecord
	now := epoch
	for _, step := range []time.Duration{0, time.Second, 9 * time.Second, 10 * time.Second, time.Millisecond, 11 * time.Minute, time.Second} {
		now = now.Add(step)
		expected = engine.AdvanceRecord(expected, limit, now)
		rec, err := store.IncrementRateLimit(ctx, key, limit, now)
		require.NoError(t, err)
		require.Equal(t, expected, rec)
	}
}

func TestIncrementRateLimitConcurrent(t *testing.T) {
	store, _ := newTestStore(t)
	key := core.RateLimitKey{CallerID: "user-1", Endpoint: "places_search"}
	limit := engine.RateLimit{SustainedMax: 10, SustainedWindow: time.Hour}

	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = store.IncrementRateLimit(context.Background(), key, limit, epoch)
		}()
	}
	wg.Wait()

	rec, err := store.IncrementRateLimit(context.Background(), key, limit, epoch)
	require.NoError(t, err)
	require.Equal(t, 31, rec.WindowCount)
}

func TestResponseCacheFIFOAndTTL(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	policy := engine.CachePolicy{TTL: time.Minute, MaxEntries: 3}

	for i := 0; i < 5; i++ {
		require.NoError(t, store.PutResponse(ctx, "directions", fmt.Sprintf("fp-%d", i), []byte(fmt.Sprintf(`{"i":%d}`, i)), policy, epoch))
	}

	for i := 0; i < 5; i++ {
		payload, ok, err := store.GetResponse(ctx, "directions", fmt.Sprintf("fp-%d", i), policy, epoch.Add(30*time.Second))
		require.NoError(t, err)
		require.Equal(t, i >= 2, ok, "fp-%d", i)
		if ok {
			require.JSONEq(t, fmt.Sprintf(`{"i":%d}`, i), string(payload))
		}
	}

	_, ok, err := store.GetResponse(ctx, "directions", "fp-4", policy, epoch.Add(time.Minute))
	require.NoError(t, err)
	require.False(t, ok)

	stats, err := store.CacheStats(ctx)
	require.NoError(t, err)
	require.Equal(t, []core.CacheStats{{Namespace: "directions", Entries: 2}}, stats)
}

func TestResponseCacheOverwriteIsReinsertion(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	policy := engine.CachePolicy{TTL: time.Hour, MaxEntries: 2}

	require.NoError(t, store.PutResponse(ctx, "ns", "a", []byte("a1"), policy, epoch))
	require.NoError(t, store.PutResponse(ctx, "ns", "b", []byte("b"), policy, epoch))
	require.NoError(t, store.PutResponse(ctx, "ns", "a", []byte("a2"), policy, epoch))
	require.NoError(t, store.PutResponse(ctx, "ns", "c", []byte("c"), policy, epoch))

	_, ok, err := store.GetResponse(ctx, "ns", "b", policy, epoch)
	require.NoError(t, err)
	require.False(t, ok)

	payload, ok, err := store.GetResponse(ctx, "ns", "a", policy, epoch)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "a2", string(payload))
}

func TestAdmin(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	limit := engine.RateLimit{SustainedMax: 10, SustainedWindow: time.Minute}
	for _, key := range []core.RateLimitKey{
		{CallerID: "u1", Endpoint: "places_search"},
		{CallerID: "u2", Endpoint: "places_details"},
		{CallerID: "u1", Endpoint: "directions"},
	} {
		_, err := store.IncrementRateLimit(ctx, key, limit, epoch)
		require.NoError(t, err)
	}

	entries, err := store.ListRateLimits(ctx, core.RateLimitQuery{Prefix: "places_"})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "u2", entries[0].CallerID)
	require.Equal(t, 1, entries[0].Record.WindowCount)

	deleted, err := store.ResetRateLimits(ctx, core.RateLimitQuery{CallerID: "u1"})
	require.NoError(t, err)
	require.Equal(t, int64(2), deleted)

	policy := engine.CachePolicy{TTL: time.Hour}
	require.NoError(t, store.PutResponse(ctx, "pois", "x", []byte("x"), policy, epoch))
	require.NoError(t, store.PutResponse(ctx, "elevation", "y", []byte("y"), policy, epoch))

	purged, err := store.PurgeCache(ctx, "pois")
	require.NoError(t, err)
	require.Equal(t, int64(1), purged)

	stats, err := store.CacheStats(ctx)
	require.NoError(t, err)
	require.Equal(t, []core.CacheStats{{Namespace: "elevation", Entries: 1}}, stats)
}
