package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/waypointhq/waypoint/internal/core"
)

// DefaultMaxEntries bounds a namespace when the policy leaves it unset.
const DefaultMaxEntries = 1000

// CachePolicy configures one operation's response cache. A non-positive TTL
// disables caching for the operation.
type CachePolicy struct {
	TTL        time.Duration
	MaxEntries int
}

// Enabled reports whether responses should be cached.
func (p CachePolicy) Enabled() bool {
	return p.TTL > 0
}

// Capacity returns the effective entry bound.
func (p CachePolicy) Capacity() int {
	if p.MaxEntries <= 0 {
		return DefaultMaxEntries
	}
	return p.MaxEntries
}

// Expired reports whether an entry stored at storedAt is no longer readable.
func (p CachePolicy) Expired(storedAt, now time.Time) bool {
	return now.Sub(storedAt) >= p.TTL
}

// ResponseCache stores encoded responses per namespace. Reads treat expired
// entries as absent and evict them; writes overwrite and evict the
// oldest-inserted entry once the namespace exceeds its capacity.
type ResponseCache interface {
	GetResponse(ctx context.Context, namespace, fingerprint string, policy CachePolicy, now time.Time) ([]byte, bool, error)
	PutResponse(ctx context.Context, namespace, fingerprint string, payload []byte, policy CachePolicy, now time.Time) error
}

// DefaultCachePolicies are the per-operation cache settings.
var DefaultCachePolicies = map[string]CachePolicy{
	core.OpDirections:     {TTL: 10 * time.Minute, MaxEntries: 200},
	core.OpDistanceMatrix: {TTL: 5 * time.Minute, MaxEntries: 200},
	core.OpRouteMatch:     {TTL: 10 * time.Minute, MaxEntries: 200},
	core.OpPlacesSearch:   {TTL: 5 * time.Minute, MaxEntries: 500},
	core.OpPlacesDetails:  {TTL: time.Hour, MaxEntries: 500},
	core.OpPlacesGeocode:  {TTL: 24 * time.Hour, MaxEntries: 500},
	core.OpElevation:      {TTL: time.Hour, MaxEntries: 100},
	core.OpPOIs:           {TTL: 15 * time.Minute, MaxEntries: 200},
	core.OpLinkMetadata:   {TTL: 6 * time.Hour, MaxEntries: 500},
	core.OpRouteMetadata:  {TTL: 6 * time.Hour, MaxEntries: 200},
	core.OpTravelContext:  {TTL: 24 * time.Hour, MaxEntries: 100},
}

// Fingerprint derives a cache key from the semantically relevant request
// fields. Struct field order is fixed and map keys are sorted by the encoder,
// so equal inputs always hash the same.
func Fingerprint(namespace string, fields any) (string, error) {
	payload, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("fingerprint %s: %w", namespace, err)
	}
	sum := sha256.Sum256(append([]byte(namespace+"\x00"), payload...))
	return hex.EncodeToString(sum[:]), nil
}

// SortedSet normalizes a list whose order carries no meaning.
func SortedSet(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
