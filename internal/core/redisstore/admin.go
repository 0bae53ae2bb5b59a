package redisstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/waypointhq/waypoint/internal/core"
)

const scanBatch = 200

// ListRateLimits scans stored records matching q.
func (s *Store) ListRateLimits(ctx context.Context, q core.RateLimitQuery) ([]core.RateLimitEntry, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	keys, err := s.scan(ctx, fmt.Sprintf("{%s:rl:*", s.prefix))
	if err != nil {
		return nil, err
	}

	entries := []core.RateLimitEntry{}
	for _, raw := range keys {
		key, ok := s.parseRateKey(raw)
		if !ok || !q.Matches(key) {
			continue
		}
		values, err := s.client.HMGet(ctx, raw, "window_count", "window_start", "burst_count", "burst_start").Result()
		if err != nil {
			return nil, fmt.Errorf("read rate limit: %w", err)
		}
		rec, ok := decodeRecord(values)
		if !ok {
			continue
		}
		entries = append(entries, core.RateLimitEntry{CallerID: key.CallerID, Endpoint: key.Endpoint, Record: rec})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Endpoint != entries[j].Endpoint {
			return entries[i].Endpoint < entries[j].Endpoint
		}
		return entries[i].CallerID < entries[j].CallerID
	})
	return entries, nil
}

// CountRateLimits counts records matching q.
func (s *Store) CountRateLimits(ctx context.Context, q core.RateLimitQuery) (int, error) {
	entries, err := s.ListRateLimits(ctx, q)
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

// ResetRateLimits deletes records matching q.
func (s *Store) ResetRateLimits(ctx context.Context, q core.RateLimitQuery) (int64, error) {
	entries, err := s.ListRateLimits(ctx, q)
	if err != nil {
		return 0, err
	}
	var deleted int64
	for _, entry := range entries {
		n, err := s.client.Del(ctx, s.rateKey(core.RateLimitKey{CallerID: entry.CallerID, Endpoint: entry.Endpoint})).Result()
		if err != nil {
			return deleted, fmt.Errorf("reset rate limits: %w", err)
		}
		deleted += n
	}
	return deleted, nil
}

// CacheStats reports entry counts per namespace from the insertion indexes.
func (s *Store) CacheStats(ctx context.Context) ([]core.CacheStats, error) {
	indexes, err := s.scan(ctx, fmt.Sprintf("{%s:cache:*}:order", s.prefix))
	if err != nil {
		return nil, err
	}

	stats := make([]core.CacheStats, 0, len(indexes))
	for _, index := range indexes {
		namespace := strings.TrimSuffix(strings.TrimPrefix(index, fmt.Sprintf("{%s:cache:", s.prefix)), "}:order")
		count, err := s.client.ZCard(ctx, index).Result()
		if err != nil {
			return nil, fmt.Errorf("cache stats: %w", err)
		}
		stats = append(stats, core.CacheStats{Namespace: namespace, Entries: int(count)})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Namespace < stats[j].Namespace })
	return stats, nil
}

// PurgeCache removes every entry in namespace, or in all namespaces when
// namespace is empty.
func (s *Store) PurgeCache(ctx context.Context, namespace string) (int64, error) {
	stats, err := s.CacheStats(ctx)
	if err != nil {
		return 0, err
	}

	var purged int64
	for _, stat := range stats {
		if namespace != "" && stat.Namespace != namespace {
			continue
		}
		fingerprints, err := s.client.ZRange(ctx, s.indexKey(stat.Namespace), 0, -1).Result()
		if err != nil {
			return purged, fmt.Errorf("purge cache: %w", err)
		}
		pipe := s.client.TxPipeline()
		for _, fp := range fingerprints {
			pipe.Del(ctx, s.entryKey(stat.Namespace, fp))
		}
		pipe.Del(ctx, s.indexKey(stat.Namespace), s.seqKey(stat.Namespace))
		if _, err := pipe.Exec(ctx); err != nil {
			return purged, fmt.Errorf("purge cache: %w", err)
		}
		purged += int64(len(fingerprints))
	}
	return purged, nil
}

func (s *Store) scan(ctx context.Context, match string) ([]string, error) {
	var (
		cursor uint64
		keys   []string
	)
	for {
		batch, next, err := s.client.Scan(ctx, cursor, match, scanBatch).Result()
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", match, err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *Store) parseRateKey(raw string) (core.RateLimitKey, bool) {
	prefix := fmt.Sprintf("{%s:rl:", s.prefix)
	if !strings.HasPrefix(raw, prefix) || !strings.HasSuffix(raw, "}") {
		return core.RateLimitKey{}, false
	}
	body := strings.TrimSuffix(strings.TrimPrefix(raw, prefix), "}")
	endpoint, caller, ok := strings.Cut(body, ":")
	if !ok {
		return core.RateLimitKey{}, false
	}
	return core.RateLimitKey{CallerID: caller, Endpoint: endpoint}, true
}

func decodeRecord(values []interface{}) (core.RateLimitRecord, bool) {
	if len(values) != 4 {
		return core.RateLimitRecord{}, false
	}
	nums := make([]int64, 4)
	for i, v := range values {
		if v == nil {
			return core.RateLimitRecord{}, false
		}
		n, err := toInt64(v)
		if err != nil {
			return core.RateLimitRecord{}, false
		}
		nums[i] = n
	}
	return core.RateLimitRecord{
		WindowCount: int(nums[0]),
		WindowStart: time.UnixMilli(nums[1]).UTC(),
		BurstCount:  int(nums[2]),
		BurstStart:  time.UnixMilli(nums[3]).UTC(),
	}, true
}
