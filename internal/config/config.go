package config

import (
	"time"
)

// Config represents the complete application configuration. Values come from
// built-in defaults, an optional YAML file and WAYPOINT_* environment
// variables, in increasing order of precedence.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Store    StoreConfig    `mapstructure:"store"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Upstream UpstreamConfig `mapstructure:"upstream"`
	Blob     BlobConfig     `mapstructure:"blob"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Health   HealthConfig   `mapstructure:"health"`
	Debug    DebugConfig    `mapstructure:"debug"`

	RateLimits      map[string]RateLimitConfig `mapstructure:"rate_limits"`
	RateLimitMargin float64                    `mapstructure:"rate_limit_margin"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
}

// StoreConfig selects the state backend for rate limits and cached responses.
// Driver is one of memory, libsql or redis.
type StoreConfig struct {
	Driver    string `mapstructure:"driver"`
	Path      string `mapstructure:"path"`
	URL       string `mapstructure:"url"`
	AuthToken string `mapstructure:"auth_token"`
}

// RedisConfig configures the redis store driver.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
	TLS      bool   `mapstructure:"tls"`
}

// CacheConfig contains per-operation response cache settings.
type CacheConfig struct {
	Enabled    bool                         `mapstructure:"enabled"`
	Operations map[string]CachePolicyConfig `mapstructure:"operations"`
}

// CachePolicyConfig bounds one operation's cache.
type CachePolicyConfig struct {
	TTL        time.Duration `mapstructure:"ttl"`
	MaxEntries int           `mapstructure:"max_entries"`
}

// RateLimitConfig holds the burst and sustained windows for one operation.
type RateLimitConfig struct {
	BurstMax        int           `mapstructure:"burst_max"`
	BurstWindow     time.Duration `mapstructure:"burst_window"`
	SustainedMax    int           `mapstructure:"sustained_max"`
	SustainedWindow time.Duration `mapstructure:"sustained_window"`
}

// UpstreamConfig configures the third-party collaborators.
type UpstreamConfig struct {
	// Timeout bounds a single attempt unless a collaborator sets its own.
	Timeout    time.Duration    `mapstructure:"timeout"`
	Directions DirectionsConfig `mapstructure:"directions"`
	Geocode    GeocodeConfig    `mapstructure:"geocode"`
	Google     GoogleConfig     `mapstructure:"google"`
	Mapbox     MapboxConfig     `mapstructure:"mapbox"`
	Overpass   OverpassConfig   `mapstructure:"overpass"`
	OpenRouter OpenRouterConfig `mapstructure:"openrouter"`
	Web        WebConfig        `mapstructure:"web"`
}

// DirectionsConfig orders the routing providers.
type DirectionsConfig struct {
	Providers   []string `mapstructure:"providers"`
	DefaultMode string   `mapstructure:"default_mode"`
}

// GeocodeConfig orders the geocoding providers.
type GeocodeConfig struct {
	Providers []string `mapstructure:"providers"`
}

// GoogleConfig contains Google Maps Platform settings.
type GoogleConfig struct {
	APIKey        string `mapstructure:"api_key"`
	MapsBaseURL   string `mapstructure:"maps_base_url"`
	PlacesBaseURL string `mapstructure:"places_base_url"`
}

// MapboxConfig contains Mapbox settings.
type MapboxConfig struct {
	Token          string        `mapstructure:"token"`
	BaseURL        string        `mapstructure:"base_url"`
	TerrainSources []string      `mapstructure:"terrain_sources"`
	TileCacheTTL   time.Duration `mapstructure:"tile_cache_ttl"`
}

// OverpassConfig lists Overpass interpreter endpoints in fallback order.
type OverpassConfig struct {
	Endpoints []string      `mapstructure:"endpoints"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// OpenRouterConfig configures the chat completion provider.
type OpenRouterConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Models      []string      `mapstructure:"models"`
	Referer     string        `mapstructure:"referer"`
	Title       string        `mapstructure:"title"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
	PromptsDir  string        `mapstructure:"prompts_dir"`
}

// WebConfig configures page fetching for metadata scraping.
type WebConfig struct {
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxBodyBytes int64         `mapstructure:"max_body_bytes"`
	MaxRedirects int           `mapstructure:"max_redirects"`
	ProfilesFile string        `mapstructure:"profiles_file"`
	HostRPS      float64       `mapstructure:"host_rps"`
	HostBurst    int           `mapstructure:"host_burst"`

	// AllowPrivateNetworks lets caller URLs reach loopback and private
	// addresses. Only for local development.
	AllowPrivateNetworks bool `mapstructure:"allow_private_networks"`
}

// BlobConfig configures the S3-compatible bucket used for cached photos.
type BlobConfig struct {
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	Prefix          string `mapstructure:"prefix"`
	PublicBaseURL   string `mapstructure:"public_base_url"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UsePathStyle    bool   `mapstructure:"use_path_style"`
}

// AuthConfig controls how the caller identity is established.
type AuthConfig struct {
	// CallerHeader names a header set by a trusted gateway. Empty disables it.
	CallerHeader string `mapstructure:"caller_header"`
	// APIKeys maps bearer tokens to caller IDs as "token=caller" pairs.
	APIKeys []string `mapstructure:"api_keys"`
}

// LoggingConfig contains logging configuration
// Supports progressive logging profiles per Fulmen Forge Workhorse Standard:
// - SIMPLE: Console output only, minimal configuration (CLI tools)
// - STRUCTURED: Structured sinks, correlation IDs (API services)
type LoggingConfig struct {
	// Level controls the minimum log level
	// Valid values: trace, debug, info, warn, error
	Level string `mapstructure:"level"`

	// Profile selects the logging complexity level
	Profile string `mapstructure:"profile"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// Port is the dedicated metrics endpoint port (Prometheus format)
	Port int `mapstructure:"port"`

	Host      string `mapstructure:"host"`
	Namespace string `mapstructure:"namespace"`
}

// HealthConfig contains health check configuration
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// DebugConfig contains debug configuration
type DebugConfig struct {
	Enabled bool `mapstructure:"enabled"`
}
