package repo

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"

	"persian-connect/internal/cache"
)

var _ Repository = (*RedisRepository)(nil)

// RedisRepository stores each collection under its own Redis key, prefixed per deployment.
type RedisRepository struct {
	redis  *cache.Redis
	prefix string
	logger *slog.Logger
}

// NewRedis returns a repository backed by the given Redis wrapper.
func NewRedis(redis *cache.Redis, prefix string, logger *slog.Logger) *RedisRepository {
	return &RedisRepository{
		redis:  redis,
		prefix: prefix,
		logger: logger.With("component", "repo_redis"),
	}
}

func (r *RedisRepository) key(name string) string {
	if r.prefix == "" {
		return name
	}
	return r.prefix + ":" + name
}

// Close is a no-op; the Redis client is owned by the caller.
func (r *RedisRepository) Close() {}

// Ping verifies Redis connectivity.
func (r *RedisRepository) Ping(ctx context.Context) error {
	return r.redis.Ping(ctx)
}

// RunMigrations is a no-op, Redis keys need no schema.
func (r *RedisRepository) RunMigrations(context.Context, fs.FS) error { return nil }

// Load reads every stored collection.
func (r *RedisRepository) Load(ctx context.Context) (Snapshot, error) {
	keys := make([]string, len(Keys))
	for i, k := range Keys {
		keys[i] = r.key(k)
	}
	values, err := r.redis.GetMany(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("load collections: %w", err)
	}
	snapshot := Snapshot{}
	for _, k := range Keys {
		if v, ok := values[r.key(k)]; ok {
			snapshot[k] = v
		}
	}
	return snapshot, nil
}

// SaveAll writes every collection in one MULTI/EXEC block.
func (r *RedisRepository) SaveAll(ctx context.Context, snapshot Snapshot) error {
	values := make(map[string][]byte, len(snapshot))
	for k, v := range snapshot {
		values[r.key(k)] = v
	}
	if err := r.redis.SetMany(ctx, values, 0); err != nil {
		return fmt.Errorf("save collections: %w", err)
	}
	return nil
}
