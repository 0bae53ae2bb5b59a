// Package memstore keeps rate limit records and cached responses in process
// memory. It is only suitable for a single instance.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	gocache "github.com/patrickmn/go-cache"

	"github.com/waypointhq/waypoint/internal/core"
	"github.com/waypointhq/waypoint/internal/core/engine"
)

const keySeparator = "\x1f"

// Store implements engine.RateLimitStore and engine.ResponseCache.
type Store struct {
	mu    sync.Mutex
	rates *gocache.Cache

	cacheMu    sync.Mutex
	namespaces map[string]*lru.Cache[string, entry]
}

type entry struct {
	payload  []byte
	storedAt time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{
		rates:      gocache.New(gocache.NoExpiration, 10*time.Minute),
		namespaces: make(map[string]*lru.Cache[string, entry]),
	}
}

// IncrementRateLimit advances the record for key under the store lock.
func (s *Store) IncrementRateLimit(ctx context.Context, key core.RateLimitKey, limit engine.RateLimit, now time.Time) (core.RateLimitRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := rateKey(key)
	var rec core.RateLimitRecord
	if stored, ok := s.rates.Get(id); ok {
		rec = stored.(core.RateLimitRecord)
	}
	rec = engine.AdvanceRecord(rec, limit, now)

	expiry := 2 * limit.TTL()
	if expiry <= 0 {
		expiry = gocache.NoExpiration
	}
	s.rates.Set(id, rec, expiry)
	return rec, nil
}

// GetResponse returns a live entry, evicting it when expired.
func (s *Store) GetResponse(ctx context.Context, namespace, fingerprint string, policy engine.CachePolicy, now time.Time) ([]byte, bool, error) {
	cache := s.namespace(namespace, policy)

	// Peek keeps the eviction order tied to insertion.
	stored, ok := cache.Peek(fingerprint)
	if !ok {
		return nil, false, nil
	}
	if policy.Expired(stored.storedAt, now) {
		cache.Remove(fingerprint)
		return nil, false, nil
	}
	return stored.payload, true, nil
}

// PutResponse stores payload. Overwriting an existing fingerprint counts as a
// fresh insertion.
func (s *Store) PutResponse(ctx context.Context, namespace, fingerprint string, payload []byte, policy engine.CachePolicy, now time.Time) error {
	cache := s.namespace(namespace, policy)
	cache.Add(fingerprint, entry{payload: append([]byte(nil), payload...), storedAt: now})
	return nil
}

// ListRateLimits returns records matching q, sorted by endpoint then caller.
func (s *Store) ListRateLimits(ctx context.Context, q core.RateLimitQuery) ([]core.RateLimitEntry, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	items := s.rates.Items()
	s.mu.Unlock()

	entries := []core.RateLimitEntry{}
	for id, item := range items {
		key, ok := parseRateKey(id)
		if !ok || !q.Matches(key) {
			continue
		}
		entries = append(entries, core.RateLimitEntry{
			CallerID: key.CallerID,
			Endpoint: key.Endpoint,
			Record:   item.Object.(core.RateLimitRecord),
		})
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
	if err := q.Validate(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for id := range s.rates.Items() {
		key, ok := parseRateKey(id)
		if !ok || !q.Matches(key) {
			continue
		}
		s.rates.Delete(id)
		deleted++
	}
	return deleted, nil
}

// CacheStats reports entry counts per namespace.
func (s *Store) CacheStats(ctx context.Context) ([]core.CacheStats, error) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	stats := make([]core.CacheStats, 0, len(s.namespaces))
	for name, cache := range s.namespaces {
		stat := core.CacheStats{Namespace: name, Entries: cache.Len()}
		for _, key := range cache.Keys() {
			stored, ok := cache.Peek(key)
			if !ok {
				continue
			}
			at := stored.storedAt
			if stat.Oldest == nil || at.Before(*stat.Oldest) {
				stat.Oldest = &at
			}
			if stat.Newest == nil || at.After(*stat.Newest) {
				stat.Newest = &at
			}
		}
		stats = append(stats, stat)
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Namespace < stats[j].Namespace })
	return stats, nil
}

// PurgeCache removes every entry in namespace, or in all namespaces when
// namespace is empty.
func (s *Store) PurgeCache(ctx context.Context, namespace string) (int64, error) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	var purged int64
	for name, cache := range s.namespaces {
		if namespace != "" && name != namespace {
			continue
		}
		purged += int64(cache.Len())
		cache.Purge()
	}
	return purged, nil
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}

func (s *Store) namespace(name string, policy engine.CachePolicy) *lru.Cache[string, entry] {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	size := policy.Capacity()
	cache, ok := s.namespaces[name]
	if !ok {
		// lru.New only fails for non-positive sizes.
		cache, _ = lru.New[string, entry](size)
		s.namespaces[name] = cache
		return cache
	}
	cache.Resize(size)
	return cache
}

func rateKey(key core.RateLimitKey) string {
	return key.Endpoint + keySeparator + key.CallerID
}

func parseRateKey(id string) (core.RateLimitKey, bool) {
	endpoint, caller, ok := strings.Cut(id, keySeparator)
	if !ok {
		return core.RateLimitKey{}, false
	}
	return core.RateLimitKey{CallerID: caller, Endpoint: endpoint}, true
}
