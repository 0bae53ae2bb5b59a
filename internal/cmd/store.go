package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/waypointhq/waypoint/internal/config"
	"github.com/waypointhq/waypoint/internal/core"
	"github.com/waypointhq/waypoint/internal/core/engine"
	"github.com/waypointhq/waypoint/internal/core/memstore"
	"github.com/waypointhq/waypoint/internal/core/redisstore"
	"github.com/waypointhq/waypoint/internal/core/store"
	errwrap "github.com/waypointhq/waypoint/internal/errors"
)

// stateStore backs the rate limiter and the response cache, and serves the
// administration commands.
type stateStore interface {
	engine.RateLimitStore
	engine.ResponseCache
	ListRateLimits(ctx context.Context, q core.RateLimitQuery) ([]core.RateLimitEntry, error)
	CountRateLimits(ctx context.Context, q core.RateLimitQuery) (int, error)
	ResetRateLimits(ctx context.Context, q core.RateLimitQuery) (int64, error)
	CacheStats(ctx context.Context) ([]core.CacheStats, error)
	PurgeCache(ctx context.Context, namespace string) (int64, error)
	Close() error
}

type pinger interface {
	Ping(ctx context.Context) error
}

func loadConfig(ctx context.Context) (*config.Config, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, errwrap.WrapConfigInvalid(ctx, err, "load config")
	}
	return cfg, nil
}

// openStore opens the configured state backend. libsql databases are
// migrated before use.
func openStore(ctx context.Context, cfg *config.Config) (stateStore, error) {
	switch driver := strings.ToLower(strings.TrimSpace(cfg.Store.Driver)); driver {
	case "", "memory":
		return memstore.New(), nil
	case "libsql":
		db, err := store.Open(ctx, cfg.Store)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
		return db, nil
	case "redis":
		rs, err := redisstore.Open(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		return rs, nil
	default:
		return nil, fmt.Errorf("unsupported store driver: %s", driver)
	}
}

// pingStore checks backends that hold a connection. The memory store has
// nothing to check.
func pingStore(ctx context.Context, st stateStore) error {
	p, ok := st.(pinger)
	if !ok {
		return nil
	}
	return p.Ping(ctx)
}
