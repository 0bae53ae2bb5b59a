package core

import (
	"errors"
	"strings"
	"time"
)

// RateLimitKey identifies a rate limit record.
type RateLimitKey struct {
	CallerID string
	Endpoint string
}

// RateLimitRecord captures the two counting windows for one key.
type RateLimitRecord struct {
	WindowCount int       `json:"window_count"`
	WindowStart time.Time `json:"window_start"`
	BurstCount  int       `json:"burst_count"`
	BurstStart  time.Time `json:"burst_start"`
}

// RateLimitEntry is a stored record with its key, for administration.
type RateLimitEntry struct {
	CallerID string          `json:"caller_id"`
	Endpoint string          `json:"endpoint"`
	Record   RateLimitRecord `json:"record"`
}

// RateLimitQuery selects stored rate limit records.
type RateLimitQuery struct {
	All      bool
	Endpoint string
	Prefix   string
	CallerID string
}

// Validate requires an explicit selection.
func (q RateLimitQuery) Validate() error {
	if q.All {
		return nil
	}
	if strings.TrimSpace(q.Endpoint) != "" || strings.TrimSpace(q.Prefix) != "" || strings.TrimSpace(q.CallerID) != "" {
		return nil
	}
	return errors.New("must specify --all, --endpoint, --prefix, or --caller")
}

// Matches applies the query to a key in memory.
func (q RateLimitQuery) Matches(key RateLimitKey) bool {
	if q.All {
		return true
	}
	if caller := strings.TrimSpace(q.CallerID); caller != "" && key.CallerID != caller {
		return false
	}
	if endpoint := strings.TrimSpace(q.Endpoint); endpoint != "" {
		return key.Endpoint == endpoint
	}
	if prefix := strings.TrimSpace(q.Prefix); prefix != "" {
		return strings.HasPrefix(key.Endpoint, prefix)
	}
	return strings.TrimSpace(q.CallerID) != ""
}

// CacheStats describes one cache namespace.
type CacheStats struct {
	Namespace string     `json:"namespace"`
	Entries   int        `json:"entries"`
	Oldest    *time.Time `json:"oldest,omitempty"`
	Newest    *time.Time `json:"newest,omitempty"`
}
