package repo

import (
	"context"
	"errors"
	"io/fs"
	"sync"
)

// ErrInjected is returned by MemoryRepository when a failure was requested with FailSaves.
var ErrInjected = errors.New("injected repository failure")

// MemoryRepository keeps collections in process memory. It backs tests and ephemeral runs.
type MemoryRepository struct {
	mu        sync.Mutex
	data      Snapshot
	saves     int
	failSaves bool
}

// NewMemory returns an empty in-memory repository, optionally pre-populated.
func NewMemory(initial Snapshot) *MemoryRepository {
	if initial == nil {
		initial = Snapshot{}
	}
	return &MemoryRepository{data: initial.Clone()}
}

// Close is a no-op.
func (r *MemoryRepository) Close() {}

// Ping always succeeds.
func (r *MemoryRepository) Ping(context.Context) error { return nil }

// RunMigrations is a no-op.
func (r *MemoryRepository) RunMigrations(context.Context, fs.FS) error { return nil }

// Load returns a copy of the stored collections.
func (r *MemoryRepository) Load(context.Context) (Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.data.Clone(), nil
}

// SaveAll merges a copy of snapshot into the stored collections.
func (r *MemoryRepository) SaveAll(_ context.Context, snapshot Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failSaves {
		return ErrInjected
	}
	for k, v := range snapshot.Clone() {
		r.data[k] = v
	}
	r.saves++
	return nil
}

// Saves returns how many successful SaveAll calls were made.
func (r *MemoryRepository) Saves() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saves
}

// FailSaves makes subsequent SaveAll calls fail (or succeed again).
func (r *MemoryRepository) FailSaves(fail bool) {
	r.mu.Lock()
	r.failSaves = fail
	r.mu.Unlock()
}
