// Package store provides persistence backends for the Task Registry:
// an in-memory store for tests and single-process deployments, and a
// sqlite-backed store for durability across restarts (§4.3).
package store

import (
	"context"

	"github.com/coordcore/core/internal/task"
)

// Store is the persistence contract the Registry drives. Implementations
// need not enforce the state machine themselves — the Registry is the
// sole mutator and linearizes all transitions before calling Save.
type Store interface {
	// Save upserts the task in its entirety (including history).
	Save(ctx context.Context, t *task.Task) error
	// Get returns the task by id, or (nil, nil) if absent.
	Get(ctx context.Context, taskID string) (*task.Task, error)
	// List returns tasks matching filter.
	List(ctx context.Context, filter task.Filter) ([]*task.Task, error)
	// All returns every task, used for startup recovery and stuck-task scans.
	All(ctx context.Context) ([]*task.Task, error)
	// Close releases any held resources.
	Close() error
}
