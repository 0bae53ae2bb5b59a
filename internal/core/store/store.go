// Package store persists rate limit windows and cached responses in libsql,
// either in a local SQLite file or on a remote Turso database.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/waypointhq/waypoint/internal/config"
)

const sqlDriver = "libsql"

const memoryPath = ":memory:"

var errNotOpen = errors.New("state store is not open")

type Store struct {
	DB     *sql.DB
	remote bool
}

// target is a resolved connection string. Local targets share one
// connection: SQLite serialises writers anyway, and a second connection
// to ":memory:" would see an empty database.
type target struct {
	dsn   string
	local bool
}

// Open connects to the configured database and verifies it answers. Call
// Migrate before use.
func Open(ctx context.Context, cfg config.StoreConfig) (*Store, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if d := strings.ToLower(strings.TrimSpace(cfg.Driver)); d != "" && d != sqlDriver {
		return nil, fmt.Errorf("libsql store cannot serve driver %q", cfg.Driver)
	}

	t, err := resolveTarget(cfg)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(sqlDriver, t.dsn)
	if err != nil {
		return nil, fmt.Errorf("open libsql store: %w", err)
	}
	if t.local {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping libsql store: %w", err)
	}
	return &Store{DB: db, remote: !t.local}, nil
}

func (s *Store) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.DB == nil {
		return errNotOpen
	}
	return s.DB.PingContext(ctx)
}

// Remote reports whether the store talks to a libsql server rather than a
// local file.
func (s *Store) Remote() bool {
	return s != nil && s.remote
}

func resolveTarget(cfg config.StoreConfig) (target, error) {
	if raw := strings.TrimSpace(cfg.URL); raw != "" {
		dsn, err := withAuthToken(raw, cfg.AuthToken)
		return target{dsn: dsn}, err
	}

	path := strings.TrimSpace(cfg.Path)
	switch {
	case path == "":
		return target{}, errors.New("store.path or store.url is required for the libsql driver")
	case path == memoryPath:
		return target{dsn: memoryPath, local: true}, nil
	case strings.HasPrefix(path, "libsql:"), strings.HasPrefix(path, "http:"), strings.HasPrefix(path, "https:"):
		dsn, err := withAuthToken(path, cfg.AuthToken)
		return target{dsn: dsn}, err
	case strings.HasPrefix(path, "file:"):
		local, err := fileURLPath(path)
		if err != nil {
			return target{}, err
		}
		if err := ensureParentDir(local); err != nil {
			return target{}, err
		}
		return target{dsn: path, local: true}, nil
	default:
		if err := ensureParentDir(path); err != nil {
			return target{}, err
		}
		return target{dsn: "file:" + filepath.Clean(path), local: true}, nil
	}
}

// withAuthToken adds the Turso token as the authToken query parameter
// unless the URL already carries one.
func withAuthToken(raw, token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return raw, nil
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid store url: %w", err)
	}
	q := parsed.Query()
	if q.Get("authToken") != "" {
		return raw, nil
	}
	q.Set("authToken", token)
	parsed.RawQuery = q.Encode()
	return parsed.String(), nil
}

func fileURLPath(dsn string) (string, error) {
	parsed, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("invalid store path: %w", err)
	}
	if parsed.Path != "" {
		return strings.TrimPrefix(parsed.Path, "//"), nil
	}
	return strings.TrimPrefix(parsed.Opaque, "//"), nil
}

func ensureParentDir(path string) error {
	dir := filepath.Dir(filepath.Clean(path))
	if dir == "." || dir == string(filepath.Separator) {
		return nil
	}
	// #nosec G301 -- state directory is shared with the operator account
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create store directory: %w", err)
	}
	return nil
}
