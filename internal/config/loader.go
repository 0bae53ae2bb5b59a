// Package config provides centralized configuration management for waypoint.
// Defaults are registered on a viper instance, overridden by an optional
// config file and WAYPOINT_* environment variables, then decoded with
// mapstructure into a typed Config.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/waypointhq/waypoint/internal/core"
	"github.com/waypointhq/waypoint/internal/core/engine"
)

const (
	// AppName names the binary, config directory and data directory.
	AppName = "waypoint"
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "WAYPOINT"
)

var (
	appConfig *Config
	configMu  sync.RWMutex
)

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "90s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.max_body_bytes", 1<<20)

	// Store defaults
	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.path", "")
	v.SetDefault("store.url", "")
	v.SetDefault("store.auth_token", "")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.username", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", AppName)
	v.SetDefault("redis.tls", false)

	// Cache and rate limit defaults per operation
	v.SetDefault("cache.enabled", true)
	for op, policy := range engine.DefaultCachePolicies {
		v.SetDefault("cache.operations."+op+".ttl", policy.TTL.String())
		v.SetDefault("cache.operations."+op+".max_entries", policy.MaxEntries)
	}
	for op, limit := range engine.DefaultLimits {
		v.SetDefault("rate_limits."+op+".burst_max", limit.BurstMax)
		v.SetDefault("rate_limits."+op+".burst_window", limit.BurstWindow.String())
		v.SetDefault("rate_limits."+op+".sustained_max", limit.SustainedMax)
		v.SetDefault("rate_limits."+op+".sustained_window", limit.SustainedWindow.String())
	}
	v.SetDefault("rate_limit_margin", 1.0)

	// Upstream defaults
	v.SetDefault("upstream.timeout", "10s")
	v.SetDefault("upstream.directions.providers", []string{"google", "mapbox"})
	v.SetDefault("upstream.directions.default_mode", "walking")
	v.SetDefault("upstream.geocode.providers", []string{"google", "mapbox"})
	v.SetDefault("upstream.google.api_key", "")
	v.SetDefault("upstream.google.maps_base_url", "https://maps.googleapis.com/maps/api")
	v.SetDefault("upstream.google.places_base_url", "https://places.googleapis.com/v1")
	v.SetDefault("upstream.mapbox.token", "")
	v.SetDefault("upstream.mapbox.base_url", "https://api.mapbox.com")
	v.SetDefault("upstream.mapbox.terrain_sources", []string{"pngraw", "webp"})
	v.SetDefault("upstream.mapbox.tile_cache_ttl", "1h")
	v.SetDefault("upstream.overpass.endpoints", []string{
		"https://overpass-api.de/api/interpreter",
		"https://overpass.kumi.systems/api/interpreter",
		"https://overpass.openstreetmap.fr/api/interpreter",
	})
	v.SetDefault("upstream.overpass.timeout", "25s")
	v.SetDefault("upstream.openrouter.api_key", "")
	v.SetDefault("upstream.openrouter.base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("upstream.openrouter.models", []string{"anthropic/claude-sonnet-4"})
	v.SetDefault("upstream.openrouter.referer", "")
	v.SetDefault("upstream.openrouter.title", "Waypoint")
	v.SetDefault("upstream.openrouter.temperature", 0.3)
	v.SetDefault("upstream.openrouter.max_tokens", 4000)
	v.SetDefault("upstream.openrouter.timeout", "60s")
	v.SetDefault("upstream.openrouter.prompts_dir", "")
	v.SetDefault("upstream.web.timeout", "10s")
	v.SetDefault("upstream.web.max_body_bytes", 4<<20)
	v.SetDefault("upstream.web.max_redirects", 5)
	v.SetDefault("upstream.web.profiles_file", "")
	v.SetDefault("upstream.web.host_rps", 2.0)
	v.SetDefault("upstream.web.host_burst", 4)
	v.SetDefault("upstream.web.allow_private_networks", false)

	// Blob defaults
	v.SetDefault("blob.bucket", "")
	v.SetDefault("blob.region", "us-east-1")
	v.SetDefault("blob.endpoint", "")
	v.SetDefault("blob.prefix", "waypoint-photos")
	v.SetDefault("blob.public_base_url", "")
	v.SetDefault("blob.access_key_id", "")
	v.SetDefault("blob.secret_access_key", "")
	v.SetDefault("blob.use_path_style", false)

	// Auth defaults
	v.SetDefault("auth.caller_header", "")
	v.SetDefault("auth.api_keys", []string{})

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "STRUCTURED")

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)
	v.SetDefault("metrics.host", "")
	v.SetDefault("metrics.namespace", AppName)

	v.SetDefault("health.enabled", true)
	v.SetDefault("debug.enabled", false)
}

// ConfigureEnv binds WAYPOINT_* variables, mapping nested keys with
// underscores (WAYPOINT_SERVER_PORT -> server.port).
func ConfigureEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load decodes v into a Config, fills derived defaults, validates it and
// stores it as the current configuration.
func Load(v *viper.Viper) (*Config, error) {
	if v == nil {
		v = viper.GetViper()
	}

	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
			mapstructure.StringToFloat64HookFunc(),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if strings.EqualFold(cfg.Store.Driver, "libsql") &&
		strings.TrimSpace(cfg.Store.URL) == "" && strings.TrimSpace(cfg.Store.Path) == "" {
		cfg.Store.Path = DefaultStorePath()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	setConfig(cfg)
	return cfg, nil
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Store.Driver)) {
	case "", "memory", "libsql":
	case "redis":
		if strings.TrimSpace(c.Redis.Addr) == "" {
			return fmt.Errorf("store.driver redis requires redis.addr")
		}
	default:
		return fmt.Errorf("unsupported store driver: %s", c.Store.Driver)
	}
	if c.RateLimitMargin < 0 || c.RateLimitMargin > 1 {
		return fmt.Errorf("rate_limit_margin must be within (0, 1], got %v", c.RateLimitMargin)
	}
	for op, limit := range c.RateLimits {
		if limit.BurstMax < 0 || limit.SustainedMax < 0 || limit.BurstWindow < 0 || limit.SustainedWindow < 0 {
			return fmt.Errorf("rate_limits.%s must not be negative", op)
		}
	}
	for _, pair := range c.Auth.APIKeys {
		if _, _, ok := strings.Cut(pair, "="); !ok {
			return fmt.Errorf("auth.api_keys entries must look like token=caller")
		}
	}
	return nil
}

// RateLimitOverrides converts configured limits for the engine.
func (c *Config) RateLimitOverrides() map[string]engine.RateLimit {
	out := make(map[string]engine.RateLimit, len(c.RateLimits))
	for op, limit := range c.RateLimits {
		out[op] = engine.RateLimit{
			BurstMax:        limit.BurstMax,
			BurstWindow:     limit.BurstWindow,
			SustainedMax:    limit.SustainedMax,
			SustainedWindow: limit.SustainedWindow,
		}
	}
	return out
}

// CachePolicies returns the effective per-operation cache policies. A
// disabled cache yields policies with zero TTL.
func (c *Config) CachePolicies() map[string]engine.CachePolicy {
	out := make(map[string]engine.CachePolicy, len(core.Operations))
	for op, policy := range engine.DefaultCachePolicies {
		out[op] = policy
	}
	for op, policy := range c.Cache.Operations {
		out[op] = engine.CachePolicy{TTL: policy.TTL, MaxEntries: policy.MaxEntries}
	}
	if !c.Cache.Enabled {
		for op := range out {
			out[op] = engine.CachePolicy{}
		}
	}
	return out
}

// APIKeyCallers parses auth.api_keys into a token to caller map.
func (c *Config) APIKeyCallers() map[string]string {
	out := make(map[string]string, len(c.Auth.APIKeys))
	for _, pair := range c.Auth.APIKeys {
		token, caller, ok := strings.Cut(pair, "=")
		token, caller = strings.TrimSpace(token), strings.TrimSpace(caller)
		if !ok || token == "" || caller == "" {
			continue
		}
		out[token] = caller
	}
	return out
}

// AttemptTimeout returns d, or the upstream default when d is unset.
func (c *Config) AttemptTimeout(d time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	if c.Upstream.Timeout > 0 {
		return c.Upstream.Timeout
	}
	return 10 * time.Second
}

// GetConfig returns the current application configuration (thread-safe)
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

func setConfig(cfg *Config) {
	configMu.Lock()
	defer configMu.Unlock()
	appConfig = cfg
}

// DefaultConfigDir returns the XDG-compliant config directory.
func DefaultConfigDir() string {
	return gfconfig.GetAppConfigDir(AppName)
}

// DefaultConfigPath returns the XDG-compliant path to the user config file.
func DefaultConfigPath() string {
	configDir := DefaultConfigDir()
	if strings.TrimSpace(configDir) == "" {
		return ""
	}
	return filepath.Join(configDir, "config.yaml")
}

// DefaultStorePath returns the XDG-compliant path to the database file.
func DefaultStorePath() string {
	dataDir := gfconfig.GetAppDataDir(AppName)
	if strings.TrimSpace(dataDir) == "" {
		return "./" + AppName + ".db"
	}
	return filepath.Join(dataDir, AppName+".db")
}
