package action

import "context"

// Store defines the interface for durably persisting queued actions.
// Implementations must keep enqueue order observable through Load and must
// treat unreadable persisted state as an empty queue rather than an error.
type Store interface {
	// Load returns all persisted actions in enqueue order.
	Load(ctx context.Context) ([]*Action, error)

	// Append adds one action, preserving existing entries.
	Append(ctx context.Context, a *Action) error

	// Remove deletes one entry by id; no-op if absent.
	Remove(ctx context.Context, id int64) error

	// Update applies a field-level mutation to one entry; no-op if absent.
	Update(ctx context.Context, id int64, mutate func(*Action)) error

	// ListByStatus returns up to limit actions in the given states, oldest
	// first by enqueue order.
	ListByStatus(ctx context.Context, statuses []Status, limit int) ([]*Action, error)
}
