package repo

import (
	"context"
	"io/fs"
)

// Repository defines the interface for data persistence.
//
// Each collection is stored as one JSON array under its key, the same layout the web client
// kept in local storage, so records written by one backend can be copied into another as-is.
type Repository interface {
	// Lifecycle
	Close()
	Ping(ctx context.Context) error
	RunMigrations(ctx context.Context, filesystem fs.FS) error

	// Collections
	Load(ctx context.Context) (Snapshot, error)
	SaveAll(ctx context.Context, snapshot Snapshot) error
}
