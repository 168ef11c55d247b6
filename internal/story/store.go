package story

import "context"

// Table names a story table in the local store.
type Table string

const (
	// TableStories is the read-through cache of the latest server snapshot.
	TableStories Table = "stories"
	// TableSavedStories holds user-curated favorites. Its lifecycle is
	// independent of TableStories.
	TableSavedStories Table = "saved_stories"
)

// Store is the local persistent store. Story tables are keyed by story ID,
// the queue by pending entry ID, and auth by an explicit key.
// Records are replaced wholesale on put; there are no partial updates.
type Store interface {
	// Open opens the store, creating the schema on first use. It is safe to
	// call repeatedly and concurrently; every caller observes the same
	// connection. Failures wrap ErrStorageUnavailable.
	Open(ctx context.Context) error

	// Story tables

	// PutStory upserts a story by ID. Failures wrap ErrStorageWrite.
	PutStory(ctx context.Context, table Table, s *Story) error

	// GetAllStories returns every story in a table in no particular order.
	GetAllStories(ctx context.Context, table Table) ([]*Story, error)

	// GetStory returns nil, nil when the story is absent.
	GetStory(ctx context.Context, table Table, id string) (*Story, error)

	// DeleteStory removes a story. Deleting an absent story is not an error.
	DeleteStory(ctx context.Context, table Table, id string) error

	// Pending write queue

	// PutPending upserts a queue entry. New entries are given the next
	// sequence number; replacing an entry keeps its sequence.
	PutPending(ctx context.Context, p *PendingStory) error

	// GetPendingStories returns all queue entries ordered by sequence.
	GetPendingStories(ctx context.Context) ([]*PendingStory, error)

	// GetPendingStory returns nil, nil when the entry is absent.
	GetPendingStory(ctx context.Context, id string) (*PendingStory, error)

	// DeletePending removes a queue entry. Deleting an absent entry is not an error.
	DeletePending(ctx context.Context, id string) error

	// Auth slot

	PutAuth(ctx context.Context, key, value string) error

	// GetAuth returns ok=false when the key is absent.
	GetAuth(ctx context.Context, key string) (value string, ok bool, err error)

	DeleteAuth(ctx context.Context, key string) error

	// Close closes the database connection.
	Close() error
}
