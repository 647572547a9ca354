package repo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"persian-connect/internal/cache"
)

// Storage drivers accepted by Open.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
	DriverMemory   = "memory"
)

// OpenConfig selects and configures a storage backend.
type OpenConfig struct {
	Driver      string
	DSN         string // sqlite path or postgres url
	Schema      string
	RedisPrefix string
}

// Open connects the configured backend. The redis driver reuses the shared cache client.
func Open(ctx context.Context, cfg OpenConfig, redis *cache.Redis, logger *slog.Logger) (Repository, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case DriverSQLite, "":
		if dir := filepath.Dir(cfg.DSN); cfg.DSN != "" && !strings.HasPrefix(cfg.DSN, "file:") && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create sqlite dir: %w", err)
			}
		}
		r, err := NewSQLite(ctx, cfg.DSN, logger)
		if err != nil {
			return nil, err
		}
		return r, nil
	case DriverPostgres, "postgresql":
		r, err := NewPostgres(ctx, cfg.DSN, cfg.Schema, logger)
		if err != nil {
			return nil, err
		}
		return r, nil
	case DriverRedis:
		if redis == nil {
			return nil, errors.New("redis storage requires a redis connection")
		}
		return NewRedis(redis, cfg.RedisPrefix, logger), nil
	case DriverMemory:
		logger.Warn("using in-memory storage, data is lost on restart")
		return NewMemory(nil), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
