package history

import "context"

// maxEntries caps stored history; older entries are pruned on insert.
const maxEntries = 500

// Repository persists scan history entries.
type Repository interface {
	// Add stores an entry and prunes history beyond the retention cap.
	Add(ctx context.Context, e *Entry) error

	// List returns up to limit entries, newest first. limit <= 0 means all
	// retained entries.
	List(ctx context.Context, limit int) ([]Entry, error)

	// Clear removes all entries.
	Clear(ctx context.Context) error
}
