package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waypointhq/waypoint/internal/core"
)

func newViper(t *testing.T) *viper.Viper {
	t.Helper()
	v := viper.New()
	ConfigureEnv(v)
	SetDefaults(v)
	return v
}

func TestLoad(t *testing.T) {
	t.Run("LoadDefaults", func(t *testing.T) {
		cfg, err := Load(newViper(t))
		require.NoError(t, err)

		// Verify server defaults
		assert.Equal(t, "localhost", cfg.Server.Host)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
		assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)

		// Verify store defaults
		assert.Equal(t, "memory", cfg.Store.Driver)
		assert.Equal(t, "", cfg.Store.Path)

		// Verify operation defaults
		require.Contains(t, cfg.RateLimits, core.OpDirections)
		assert.Equal(t, 100, cfg.RateLimits[core.OpDirections].SustainedMax)
		assert.Equal(t, 5*time.Minute, cfg.RateLimits[core.OpDirections].SustainedWindow)
		assert.Equal(t, 10*time.Minute, cfg.Cache.Operations[core.OpDirections].TTL)
		assert.Equal(t, 200, cfg.Cache.Operations[core.OpDirections].MaxEntries)
		assert.Equal(t, time.Hour, cfg.RateLimits[core.OpRouteMatch].SustainedWindow)
		assert.Equal(t, 5*time.Minute, cfg.Cache.Operations[core.OpDistanceMatrix].TTL)

		assert.Equal(t, []string{"google", "mapbox"}, cfg.Upstream.Directions.Providers)
		assert.Len(t, cfg.Upstream.Overpass.Endpoints, 3)
		assert.Equal(t, 25*time.Second, cfg.Upstream.Overpass.Timeout)
		assert.Equal(t, 0.3, cfg.Upstream.OpenRouter.Temperature)

		assert.Equal(t, "info", cfg.Logging.Level)
		assert.True(t, cfg.Metrics.Enabled)
		assert.Equal(t, 9090, cfg.Metrics.Port)
	})

	t.Run("LibsqlDefaultsStorePath", func(t *testing.T) {
		v := newViper(t)
		v.Set("store.driver", "libsql")
		cfg, err := Load(v)
		require.NoError(t, err)
		assert.Equal(t, DefaultStorePath(), cfg.Store.Path)
	})

	t.Run("EnvOverrides", func(t *testing.T) {
		t.Setenv("WAYPOINT_SERVER_PORT", "3000")
		t.Setenv("WAYPOINT_LOGGING_LEVEL", "warn")
		t.Setenv("WAYPOINT_RATE_LIMIT_MARGIN", "0.8")
		t.Setenv("WAYPOINT_RATE_LIMITS_POIS_SUSTAINED_MAX", "7")
		t.Setenv("WAYPOINT_AUTH_API_KEYS", "tok-a=alice,tok-b=bob")

		cfg, err := Load(newViper(t))
		require.NoError(t, err)
		assert.Equal(t, 3000, cfg.Server.Port)
		assert.Equal(t, "warn", cfg.Logging.Level)
		assert.Equal(t, 0.8, cfg.RateLimitMargin)
		assert.Equal(t, 7, cfg.RateLimits[core.OpPOIs].SustainedMax)
		assert.Equal(t, map[string]string{"tok-a": "alice", "tok-b": "bob"}, cfg.APIKeyCallers())
	})

	t.Run("ConfigFile", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
store:
  driver: redis
redis:
  addr: localhost:6379
cache:
  operations:
    pois:
      ttl: 1m
      max_entries: 5
`), 0o600))

		v := newViper(t)
		v.SetConfigFile(path)
		require.NoError(t, v.ReadInConfig())

		cfg, err := Load(v)
		require.NoError(t, err)
		assert.Equal(t, "redis", cfg.Store.Driver)
		policies := cfg.CachePolicies()
		assert.Equal(t, time.Minute, policies[core.OpPOIs].TTL)
		assert.Equal(t, 5, policies[core.OpPOIs].MaxEntries)
		assert.Equal(t, 10*time.Minute, policies[core.OpDirections].TTL)
	})

	t.Run("Invalid", func(t *testing.T) {
		v := newViper(t)
		v.Set("store.driver", "redis")
		_, err := Load(v)
		require.Error(t, err)

		v = newViper(t)
		v.Set("store.driver", "mongo")
		_, err = Load(v)
		require.Error(t, err)

		v = newViper(t)
		v.Set("auth.api_keys", []string{"missing-separator"})
		_, err = Load(v)
		require.Error(t, err)
	})
}

func TestCachePoliciesDisabled(t *testing.T) {
	v := newViper(t)
	v.Set("cache.enabled", false)
	cfg, err := Load(v)
	require.NoError(t, err)
	for _, policy := range cfg.CachePolicies() {
		assert.False(t, policy.Enabled())
	}
}

func TestGetConfig(t *testing.T) {
	cfg, err := Load(newViper(t))
	require.NoError(t, err)

	retrieved := GetConfig()
	require.NotNil(t, retrieved)
	assert.Equal(t, cfg.Server.Port, retrieved.Server.Port)
}

func TestRateLimitOverrides(t *testing.T) {
	cfg, err := Load(newViper(t))
	require.NoError(t, err)
	overrides := cfg.RateLimitOverrides()
	assert.Equal(t, 3, overrides[core.OpTravelContext].BurstMax)
	assert.Equal(t, time.Minute, overrides[core.OpTravelContext].BurstWindow)
}
