package tasks

import (
	"context"
	"errors"
)

var (
	// ErrNotFound means the task id does not exist in the store.
	ErrNotFound = errors.New("task not found")
	// ErrStoreUnavailable means the backing store could not be reached.
	ErrStoreUnavailable = errors.New("task store unavailable")
)

// Store is the persistence adapter for tasks. The engine depends on this
// interface only; the backing store assigns ids and maintains timestamps
// (UpdatedAt is refreshed on every successful Update).
type Store interface {
	// Create persists a new task and returns it with id and timestamps set.
	Create(ctx context.Context, t Task) (Task, error)

	// Get returns one task by id.
	Get(ctx context.Context, id int) (Task, error)

	// List returns tasks ordered by priority descending, then creation
	// time descending. With includeCompleted false, completed tasks are
	// filtered out.
	List(ctx context.Context, includeCompleted bool) ([]Task, error)

	// Update applies a partial update and returns the updated task.
	Update(ctx context.Context, id int, upd Update) (Task, error)

	// Delete removes one task by id.
	Delete(ctx context.Context, id int) error

	// DeleteCompleted removes all completed tasks in one batch and
	// returns the number removed.
	DeleteCompleted(ctx context.Context) (int, error)
}
