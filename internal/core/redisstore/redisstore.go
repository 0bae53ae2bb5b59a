// Package redisstore shares rate limit records and cached responses between
// instances through Redis. Multi-key updates run as Lua scripts so each one is
// atomic on the server.
package redisstore

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/waypointhq/waypoint/internal/config"
	"github.com/waypointhq/waypoint/internal/core"
	"github.com/waypointhq/waypoint/internal/core/engine"
)

const defaultPrefix = "waypoint"

// Store implements engine.RateLimitStore and engine.ResponseCache.
type Store struct {
	client    redis.UniversalClient
	prefix    string
	increment *redis.Script
	put       *redis.Script
}

// Open connects using cfg and verifies the connection.
func Open(ctx context.Context, cfg config.RedisConfig) (*Store, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, errors.New("redis addr is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	opts := &redis.UniversalOptions{
		Addrs:    strings.Split(addr, ","),
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if cfg.TLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewUniversalClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return New(client, cfg.Prefix), nil
}

// New wraps an existing client.
func New(client redis.UniversalClient, prefix string) *Store {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Store{
		client:    client,
		prefix:    prefix,
		increment: redis.NewScript(incrementScript),
		put:       redis.NewScript(putScript),
	}
}

// Close releases the client.
func (s *Store) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// incrementScript advances both windows of one record. Times are unix
// milliseconds.
const incrementScript = `
local function num(v)
  if v then return tonumber(v) end
  return nil
end

local now = tonumber(ARGV[1])
local sustained_window = tonumber(ARGV[2])
local burst_window = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local rec = redis.call('HMGET', KEYS[1], 'window_count', 'window_start', 'burst_count', 'burst_start')
local wc, ws, bc, bs = num(rec[1]), num(rec[2]), num(rec[3]), num(rec[4])

if not ws or (now - ws) > sustained_window then
  wc = 1
  ws = now
else
  wc = wc + 1
end

if not bs or (now - bs) > burst_window then
  bc = 1
  bs = now
else
  bc = bc + 1
end

redis.call('HSET', KEYS[1], 'window_count', wc, 'window_start', ws, 'burst_count', bc, 'burst_start', bs)
if ttl > 0 then
  redis.call('PEXPIRE', KEYS[1], ttl)
end
return {wc, ws, bc, bs}
`

// IncrementRateLimit runs the increment script for key.
func (s *Store) IncrementRateLimit(ctx context.Context, key core.RateLimitKey, limit engine.RateLimit, now time.Time) (core.RateLimitRecord, error) {
	ttl := 2 * limit.TTL()
	val, err := s.increment.Run(ctx, s.client, []string{s.rateKey(key)},
		now.UnixMilli(),
		limit.SustainedWindow.Milliseconds(),
		limit.BurstWindow.Milliseconds(),
		ttl.Milliseconds(),
	).Result()
	if err != nil {
		return core.RateLimitRecord{}, fmt.Errorf("increment rate limit: %w", err)
	}

	values, ok := val.([]interface{})
	if !ok || len(values) != 4 {
		return core.RateLimitRecord{}, fmt.Errorf("unexpected result from rate limit script: %T", val)
	}
	nums := make([]int64, 4)
	for i, v := range values {
		nums[i], err = toInt64(v)
		if err != nil {
			return core.RateLimitRecord{}, err
		}
	}
	return core.RateLimitRecord{
		WindowCount: int(nums[0]),
		WindowStart: time.UnixMilli(nums[1]).UTC(),
		BurstCount:  int(nums[2]),
		BurstStart:  time.UnixMilli(nums[3]).UTC(),
	}, nil
}

// putScript stores one entry, records its insertion sequence and trims the
// namespace to its capacity. All keys share a hash tag, so the evicted entry
// keys live in the same slot as KEYS.
const putScript = `
local seq = redis.call('INCR', KEYS[3])
redis.call('HSET', KEYS[1], 'payload', ARGV[2], 'stored_at', ARGV[3])
redis.call('ZADD', KEYS[2], seq, ARGV[1])

local max = tonumber(ARGV[4])
local size = redis.call('ZCARD', KEYS[2])
local evicted = 0
if size > max then
  local victims = redis.call('ZRANGE', KEYS[2], 0, size - max - 1)
  for _, fp in ipairs(victims) do
    redis.call('DEL', ARGV[5] .. fp)
    redis.call('ZREM', KEYS[2], fp)
    evicted = evicted + 1
  end
end
return evicted
`

// GetResponse returns a live entry, deleting it when expired.
func (s *Store) GetResponse(ctx context.Context, namespace, fingerprint string, policy engine.CachePolicy, now time.Time) ([]byte, bool, error) {
	key := s.entryKey(namespace, fingerprint)
	values, err := s.client.HMGet(ctx, key, "payload", "stored_at").Result()
	if err != nil {
		return nil, false, fmt.Errorf("read cache entry: %w", err)
	}
	if len(values) != 2 || values[0] == nil || values[1] == nil {
		return nil, false, nil
	}

	storedMillis, err := toInt64(values[1])
	if err != nil {
		return nil, false, err
	}
	if policy.Expired(time.UnixMilli(storedMillis), now) {
		pipe := s.client.TxPipeline()
		pipe.Del(ctx, key)
		pipe.ZRem(ctx, s.indexKey(namespace), fingerprint)
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, false, fmt.Errorf("evict cache entry: %w", err)
		}
		return nil, false, nil
	}

	payload, ok := values[0].(string)
	if !ok {
		return nil, false, fmt.Errorf("unexpected cache payload type %T", values[0])
	}
	return []byte(payload), true, nil
}

// PutResponse stores payload and evicts the oldest insertions beyond capacity.
func (s *Store) PutResponse(ctx context.Context, namespace, fingerprint string, payload []byte, policy engine.CachePolicy, now time.Time) error {
	keys := []string{
		s.entryKey(namespace, fingerprint),
		s.indexKey(namespace),
		s.seqKey(namespace),
	}
	err := s.put.Run(ctx, s.client, keys,
		fingerprint,
		string(payload),
		now.UnixMilli(),
		policy.Capacity(),
		s.entryKey(namespace, ""),
	).Err()
	if err != nil {
		return fmt.Errorf("write cache entry: %w", err)
	}
	return nil
}

func (s *Store) rateKey(key core.RateLimitKey) string {
	return fmt.Sprintf("{%s:rl:%s:%s}", s.prefix, key.Endpoint, key.CallerID)
}

func (s *Store) namespaceTag(namespace string) string {
	return fmt.Sprintf("{%s:cache:%s}", s.prefix, namespace)
}

func (s *Store) entryKey(namespace, fingerprint string) string {
	return s.namespaceTag(namespace) + ":e:" + fingerprint
}

func (s *Store) indexKey(namespace string) string {
	return s.namespaceTag(namespace) + ":order"
}

func (s *Store) seqKey(namespace string) string {
	return s.namespaceTag(namespace) + ":seq"
}

func toInt64(v interface{}) (int64, error) {
	switch val := v.(type) {
	case int64:
		return val, nil
	case string:
		return strconv.ParseInt(val, 10, 64)
	case float64:
		return int64(val), nil
	default:
		return strconv.ParseInt(fmt.Sprintf("%v", v), 10, 64)
	}
}
