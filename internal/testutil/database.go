package testutil

import (
	"context"
	"testing"

	"storysync/internal/database"
	"storysync/internal/story"
)

// NewTestStore creates a new in-memory SQLite store with schema applied.
// The store is automatically closed when the test completes.
func NewTestStore(t *testing.T) *database.SQLiteStore {
	t.Helper()

	db := database.NewSQLiteStore(":memory:", nil, FixedClock())
	if err := db.Open(context.Background()); err != nil {
		t.Fatalf("failed to open store: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

// FailingStore is a story.Store whose every operation fails with Err.
type FailingStore struct {
	Err error
}

func (f FailingStore) Open(context.Context) error { return f.Err }
func (f FailingStore) PutStory(context.Context, story.Table, *story.Story) error {
	return f.Err
}
func (f FailingStore) GetAllStories(context.Context, story.Table) ([]*story.Story, error) {
	return nil, f.Err
}
func (f FailingStore) GetStory(context.Context, story.Table, string) (*story.Story, error) {
	return nil, f.Err
}
func (f FailingStore) DeleteStory(context.Context, story.Table, string) error { return f.Err }
func (f FailingStore) PutPending(context.Context, *story.PendingStory) error { return f.Err }
func (f FailingStore) GetPendingStories(context.Context) ([]*story.PendingStory, error) {
	return nil, f.Err
}
func (f FailingStore) GetPendingStory(context.Context, string) (*story.PendingStory, error) {
	return nil, f.Err
}
func (f FailingStore) DeletePending(context.Context, string) error { return f.Err }
func (f FailingStore) PutAuth(context.Context, string, string) error { return f.Err }
func (f FailingStore) GetAuth(context.Context, string) (string, bool, error) {
	return "", false, f.Err
}
func (f FailingStore) DeleteAuth(context.Context, string) error { return f.Err }
func (f FailingStore) Close() error { return nil }

var _ story.Store = FailingStore{}
