package repo

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"persian-connect/internal/cache"
	"persian-connect/migrations"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleSnapshot() Snapshot {
	return Snapshot{
		KeyUsers: []byte(`[{"id":"u1","email":"a@example.com"}]`),
		KeyAds:   []byte(`[{"id":"a1","title":"فرش","userId":"u1"}]`),
		KeyChats: []byte(`[]`),
	}
}

// exerciseRepository checks the Load/SaveAll contract every backend must meet.
func exerciseRepository(t *testing.T, r Repository) {
	t.Helper()
	ctx := context.Background()

	empty, err := r.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty, "fresh storage has no collections")

	require.NoError(t, r.SaveAll(ctx, sampleSnapshot()))
	got, err := r.Load(ctx)
	require.NoError(t, err)
	assert.True(t, sampleSnapshot().Equal(got), "got %v", got)

	update := Snapshot{KeyAds: []byte(`[]`), KeyPayments: []byte(`[{"id":"p1"}]`)}
	require.NoError(t, r.SaveAll(ctx, update))
	got, err = r.Load(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(got[KeyAds]))
	assert.JSONEq(t, `[{"id":"p1"}]`, string(got[KeyPayments]))
	assert.JSONEq(t, `[{"id":"u1","email":"a@example.com"}]`, string(got[KeyUsers]), "collections absent from a save are kept")
}

func TestSQLiteRepository(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "market.db")
	r, err := NewSQLite(ctx, path, testLogger())
	require.NoError(t, err)
	defer r.Close()

	require.NoError(t, r.RunMigrations(ctx, migrations.Files))
	require.NoError(t, r.Ping(ctx))
	exerciseRepository(t, r)

	// Data survives reopening the file.
	r.Close()
	reopened, err := NewSQLite(ctx, path, testLogger())
	require.NoError(t, err)
	defer reopened.Close()
	require.NoError(t, reopened.RunMigrations(ctx, migrations.Files))
	got, err := reopened.Load(ctx)
	require.NoError(t, err)
	assert.Contains(t, got, KeyPayments)
}

func TestNewSQLiteRejectsEmptyPath(t *testing.T) {
	_, err := NewSQLite(context.Background(), "  ", testLogger())
	assert.Error(t, err)
}

func newMiniRedis(t *testing.T) (*miniredis.Miniredis, *cache.Redis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rc := cache.NewFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), testLogger())
	t.Cleanup(func() { _ = rc.Close() })
	return mr, rc
}

func TestRedisRepository(t *testing.T) {
	mr, rc := newMiniRedis(t)
	r := NewRedis(rc, "pc", testLogger())
	require.NoError(t, r.Ping(context.Background()))
	exerciseRepository(t, r)

	raw, err := mr.Get("pc:users")
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"u1","email":"a@example.com"}]`, raw)
}

func TestMemoryRepository(t *testing.T) {
	r := NewMemory(nil)
	exerciseRepository(t, r)
	assert.Equal(t, 2, r.Saves())

	r.FailSaves(true)
	err := r.SaveAll(context.Background(), sampleSnapshot())
	assert.True(t, errors.Is(err, ErrInjected))
	assert.Equal(t, 2, r.Saves())
}

func TestMemoryRepositoryIsolatesCallers(t *testing.T) {
	snap := sampleSnapshot()
	r := NewMemory(snap)
	snap[KeyUsers][2] = 'X'

	got, err := r.Load(context.Background())
	require.NoError(t, err)
	got[KeyAds] = nil

	again, err := r.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, sampleSnapshot().Equal(again))
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	_, rc := newMiniRedis(t)

	mem, err := Open(ctx, OpenConfig{Driver: "memory"}, nil, testLogger())
	require.NoError(t, err)
	assert.IsType(t, &MemoryRepository{}, mem)

	rr, err := Open(ctx, OpenConfig{Driver: "Redis", RedisPrefix: "x"}, rc, testLogger())
	require.NoError(t, err)
	assert.IsType(t, &RedisRepository{}, rr)

	_, err = Open(ctx, OpenConfig{Driver: "redis"}, nil, testLogger())
	assert.Error(t, err)

	sq, err := Open(ctx, OpenConfig{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "nested", "dir", "m.db")}, nil, testLogger())
	require.NoError(t, err)
	sq.Close()

	_, err = Open(ctx, OpenConfig{Driver: "mongo"}, nil, testLogger())
	assert.Error(t, err)
}
