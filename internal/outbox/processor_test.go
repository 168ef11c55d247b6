package outbox_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"storysync/internal/auth"
	"storysync/internal/outbox"
	"storysync/internal/story"
	"storysync/internal/testutil"
)

type fixture struct {
	store     story.Store
	api       *testutil.FakeAPI
	tokens    *auth.MemoryTokenStore
	notifier  *testutil.RecordingNotifier
	session   *story.SessionGuard
	repo      *story.Repository
	processor *outbox.Processor
}

func newFixture(t *testing.T, token string) *fixture {
	t.Helper()
	f := &fixture{
		store:    testutil.NewTestStore(t),
		api:      testutil.NewFakeAPI(),
		tokens:   auth.NewMemoryTokenStore(token),
		notifier: testutil.NewRecordingNotifier(),
	}
	logger := story.NewNopLogger()
	f.session = story.NewSessionGuard(f.tokens, f.notifier, logger)
	f.repo = story.NewRepository(f.store, f.api, f.session, &testutil.StaticResolver{Name: "Jakarta"},
		testutil.NewConnectivity(true), f.notifier, logger, testutil.FixedClock())
	f.processor = outbox.NewProcessor(f.store, f.api, f.session, f.repo, f.notifier, logger)
	return f
}

func (f *fixture) enqueue(t *testing.T, id, description string) {
	t.Helper()
	n := story.NewStory{
		Description: description,
		Photo:       &story.Photo{Name: "p.jpg", ContentType: "image/jpeg", Data: []byte("img-" + id)},
	}
	if err := f.store.PutPending(context.Background(), story.NewPendingStory(id, n, time.Now())); err != nil {
		t.Fatalf("PutPending(%s) error = %v", id, err)
	}
}

func (f *fixture) pendingIDs(t *testing.T) []string {
	t.Helper()
	entries, err := f.store.GetPendingStories(context.Background())
	if err != nil {
		t.Fatalf("GetPendingStories() error = %v", err)
	}
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	return ids
}

func TestProcessor_Process(t *testing.T) {
	ctx := context.Background()

	t.Run("empty queue", func(t *testing.T) {
		f := newFixture(t, "tok")

		report, err := f.processor.Process(ctx)
		if err != nil || report.Sent+report.Skipped+report.Failed != 0 {
			t.Errorf("Process() = %+v, %v", report, err)
		}
	})

	t.Run("sends in sequence order and empties the queue", func(t *testing.T) {
		f := newFixture(t, "tok")
		f.enqueue(t, "offline-3", "third")
		f.enqueue(t, "offline-1", "first")

		report, err := f.processor.Process(ctx)
		if err != nil {
			t.Fatalf("Process() error = %v", err)
		}
		if report.Sent != 2 || len(report.Pending) != 0 {
			t.Errorf("report = %+v, want 2 sent", report)
		}
		if got := f.pendingIDs(t); len(got) != 0 {
			t.Errorf("queue = %v, want empty", got)
		}
		if len(f.api.Added) != 2 || f.api.Added[0].Description != "third" || f.api.Added[1].Description != "first" {
			t.Errorf("sent = %+v, want enqueue order", f.api.Added)
		}
		if string(f.api.Added[0].Photo.Data) != "img-offline-3" {
			t.Errorf("photo = %q, want the stored bytes", f.api.Added[0].Photo.Data)
		}
		if f.api.AddTokens[0] != "tok" {
			t.Errorf("token = %q, want tok", f.api.AddTokens[0])
		}

		cached, _ := f.store.GetAllStories(ctx, story.TableStories)
		if len(cached) != 2 || cached[0].Content == "" {
			t.Errorf("cached = %+v, want two transformed stories", cached)
		}
		if f.notifier.Count(story.KindSuccess) != 2 {
			t.Errorf("success notifications = %d, want 2", f.notifier.Count(story.KindSuccess))
		}
	})

	t.Run("no token leaves entries pending", func(t *testing.T) {
		f := newFixture(t, "")
		f.enqueue(t, "offline-1", "a")

		report, err := f.processor.Process(ctx)
		if err != nil {
			t.Fatalf("Process() error = %v", err)
		}
		if report.Skipped != 1 || len(report.Pending) != 1 {
			t.Errorf("report = %+v, want 1 skipped", report)
		}
		if got := f.pendingIDs(t); len(got) != 1 || got[0] != "offline-1" {
			t.Errorf("queue = %v, want offline-1", got)
		}
		if len(f.api.AddTokens) != 0 {
			t.Error("story sent without a token")
		}
	})

	t.Run("a failing entry does not stop the others", func(t *testing.T) {
		f := newFixture(t, "tok")
		f.api.AddFunc = func(token string, n story.NewStory) (*story.Story, error) {
			if n.Description == "bad" {
				return nil, &story.RemoteRejectedError{Status: 400, Message: "photo too large"}
			}
			return &story.Story{ID: "srv-" + n.Description, Description: n.Description}, nil
		}
		f.enqueue(t, "offline-1", "one")
		f.enqueue(t, "offline-2", "bad")
		f.enqueue(t, "offline-3", "three")

		report, err := f.processor.Process(ctx)
		if err != nil {
			t.Fatalf("Process() error = %v", err)
		}
		if report.Sent != 2 || report.Failed != 1 {
			t.Errorf("report = %+v, want 2 sent 1 failed", report)
		}
		if got := f.pendingIDs(t); len(got) != 1 || got[0] != "offline-2" {
			t.Errorf("queue = %v, want only offline-2", got)
		}
		if f.notifier.Count(story.KindError) != 1 {
			t.Errorf("error notifications = %d, want 1", f.notifier.Count(story.KindError))
		}
	})

	t.Run("unreachable service keeps every entry", func(t *testing.T) {
		f := newFixture(t, "tok")
		f.api.AddErr = story.ErrRemoteUnreachable
		f.enqueue(t, "offline-1", "a")
		f.enqueue(t, "offline-2", "b")

		report, _ := f.processor.Process(ctx)
		if report.Failed != 2 {
			t.Errorf("report = %+v, want 2 failed", report)
		}
		if got := f.pendingIDs(t); len(got) != 2 {
			t.Errorf("queue = %v, want both entries", got)
		}
	})

	for _, status := range []int{401, 403} {
		t.Run(fmt.Sprintf("status %d clears the token and keeps the entry", status), func(t *testing.T) {
			f := newFixture(t, "tok")
			f.api.AddErr = &story.RemoteRejectedError{Status: status}
			f.enqueue(t, "offline-1", "a")
			f.enqueue(t, "offline-2", "b")

			report, err := f.processor.Process(ctx)
			if err != nil {
				t.Fatalf("Process() error = %v", err)
			}
			if token, _ := f.tokens.Token(ctx); token != "" {
				t.Errorf("token = %q, want cleared", token)
			}
			if got := f.pendingIDs(t); len(got) != 2 {
				t.Errorf("queue = %v, want both entries kept", got)
			}
			// The second entry finds no token and is skipped without a request.
			if report.Skipped != 2 || len(f.api.AddTokens) != 1 {
				t.Errorf("report = %+v after %d requests", report, len(f.api.AddTokens))
			}
			if f.notifier.Count(story.KindSessionExpired) != 1 {
				t.Errorf("session notifications = %d, want 1", f.notifier.Count(story.KindSessionExpired))
			}
		})
	}

	t.Run("unreadable queue is an error", func(t *testing.T) {
		f := newFixture(t, "tok")
		p := outbox.NewProcessor(testutil.FailingStore{Err: story.ErrStorageUnavailable}, f.api, f.session, f.repo, f.notifier, story.NewNopLogger())

		if _, err := p.Process(ctx); !errors.Is(err, story.ErrStorageUnavailable) {
			t.Errorf("Process() error = %v, want ErrStorageUnavailable", err)
		}
	})
}

func TestProcessor_Run(t *testing.T) {
	f := newFixture(t, "tok")
	f.enqueue(t, "offline-1", "a")

	ctx, cancel := context.WithCancel(context.Background())
	regained := make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- f.processor.Run(ctx, regained) }()

	regained <- struct{}{}
	// A second signal is only received once the first pass has finished.
	regained <- struct{}{}

	if got := f.pendingIDs(t); len(got) != 0 {
		t.Errorf("queue after regain = %v, want empty", got)
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
}
