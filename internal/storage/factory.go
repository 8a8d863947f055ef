package storage

import (
	"fmt"
	"net/url"
	"strings"
	"sync"

	"survey-sync/internal/common/config"
	"survey-sync/internal/common/database"
)

// BackendFactory builds a backend from a DSN with a registered scheme.
type BackendFactory func(dsn, namespace string) (Backend, error)

var (
	factoriesMu sync.RWMutex
	factories   = map[string]BackendFactory{}
)

// RegisterBackendFactory plugs an extra scheme into BuildBackendFromDSN.
func RegisterBackendFactory(scheme string, factory BackendFactory) {
	scheme = strings.ToLower(strings.TrimSpace(scheme))
	if scheme == "" || factory == nil {
		return
	}
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[scheme] = factory
}

func lookupFactory(scheme string) (BackendFactory, bool) {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	f, ok := factories[scheme]
	return f, ok
}

// BuildBackendFromDSN understands file://, memory://, redis:// and
// postgres:// DSNs. A bare path is treated as a file backend directory.
func BuildBackendFromDSN(dsn, namespace string) (Backend, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("empty storage dsn")
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse storage dsn: %w", err)
	}
	scheme := strings.ToLower(parsed.Scheme)
	if factory, ok := lookupFactory(scheme); ok {
		return factory(dsn, namespace)
	}

	switch scheme {
	case "", "file":
		dir, err := dsnPath(parsed, dsn)
		if err != nil {
			return nil, err
		}
		return NewFileBackend(dir), nil
	case "memory", "mem":
		return NewMemoryBackend(), nil
	case "redis", "rediss":
		client, err := database.NewRedisFromURL(dsn)
		if err != nil {
			return nil, err
		}
		return NewRedisBackend(client.Client, namespace), nil
	case "postgres", "postgresql":
		client, err := database.NewPostgresFromDSN(dsn)
		if err != nil {
			return nil, err
		}
		return NewPostgresBackend(client.DB, namespace), nil
	default:
		return nil, fmt.Errorf("unsupported storage scheme: %s", scheme)
	}
}

// NewBackend picks the backend from configuration. storage.dsn wins over
// storage.backend.
func NewBackend(cfg *config.Config) (Backend, error) {
	if cfg.Storage.DSN != "" {
		return BuildBackendFromDSN(cfg.Storage.DSN, cfg.Storage.Namespace)
	}
	switch cfg.Storage.Backend {
	case "", "file":
		return NewFileBackend(cfg.Storage.DataDir), nil
	case "memory":
		return NewMemoryBackend(), nil
	case "redis":
		return NewRedisBackend(database.NewRedis(cfg.Database.Redis).Client, cfg.Storage.Namespace), nil
	case "postgres":
		client, err := database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return nil, err
		}
		return NewPostgresBackend(client.DB, cfg.Storage.Namespace), nil
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", cfg.Storage.Backend)
	}
}

func dsnPath(parsed *url.URL, raw string) (string, error) {
	if parsed.Scheme == "" {
		return raw, nil
	}
	path := strings.TrimSpace(parsed.Path)
	if path == "" {
		path = strings.TrimSpace(parsed.Opaque)
	}
	if parsed.Host != "" && parsed.Host != "localhost" {
		path = parsed.Host + path
	}
	if path == "" {
		return "", fmt.Errorf("file dsn %q has no path", raw)
	}
	return path, nil
}
