package repo

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

var _ Repository = (*SQLiteRepository)(nil)

// SQLiteRepository provides access to a local SQLite database.
type SQLiteRepository struct {
	db     *sqlx.DB
	logger *slog.Logger
}

type collectionRow struct {
	Key  string `db:"key"`
	Data string `db:"data"`
}

// NewSQLite opens a new connection to the SQLite database.
func NewSQLite(ctx context.Context, databasePath string, logger *slog.Logger) (*SQLiteRepository, error) {
	path := strings.TrimSpace(databasePath)
	if path == "" {
		return nil, fmt.Errorf("sqlite database path is empty")
	}
	dsn := path
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	dsn = fmt.Sprintf("%s%s_pragma=busy_timeout=10000&_pragma=journal_mode=WAL", dsn, sep)

	db, err := sqlx.ConnectContext(ctx, "sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	return &SQLiteRepository{
		db:     db,
		logger: logger.With("component", "repo_sqlite"),
	}, nil
}

// Close releases the database connection.
func (r *SQLiteRepository) Close() {
	if r.db != nil {
		r.db.Close()
	}
}

// Ping ensures the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// RunMigrations applies the sqlite/ goose migrations from filesystem.
func (r *SQLiteRepository) RunMigrations(ctx context.Context, filesystem fs.FS) error {
	goose.SetBaseFS(filesystem)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect(string(goose.DialectSQLite3)); err != nil {
		return fmt.Errorf("set migration dialect: %w", err)
	}
	if err := goose.UpContext(ctx, r.db.DB, "sqlite"); err != nil {
		return fmt.Errorf("apply migration: %w", err)
	}
	return nil
}

// Load reads every stored collection.
func (r *SQLiteRepository) Load(ctx context.Context) (Snapshot, error) {
	var rows []collectionRow
	if err := r.db.SelectContext(ctx, &rows, `SELECT key, data FROM collections`); err != nil {
		return nil, fmt.Errorf("load collections: %w", err)
	}
	snapshot := make(Snapshot, len(rows))
	for _, row := range rows {
		snapshot[row.Key] = []byte(row.Data)
	}
	return snapshot, nil
}

// SaveAll upserts every collection of the snapshot in a single transaction.
func (r *SQLiteRepository) SaveAll(ctx context.Context, snapshot Snapshot) error {
	const q = `
INSERT INTO collections (key, data, updated_at)
VALUES (?, ?, CURRENT_TIMESTAMP)
ON CONFLICT (key) DO UPDATE SET
    data = excluded.data,
    updated_at = CURRENT_TIMESTAMP;
`
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer tx.Rollback()

	for _, key := range Keys {
		data, ok := snapshot[key]
		if !ok {
			continue
		}
		if _, err := tx.ExecContext(ctx, q, key, string(data)); err != nil {
			return fmt.Errorf("save collection %s: %w", key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save: %w", err)
	}
	return nil
}
