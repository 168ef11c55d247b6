package outbox

import (
	"context"
	"errors"
	"fmt"

	"storysync/internal/story"
)

// Result is the outcome of Submit: exactly one of Story and Queued is set,
// unless the server accepted the story without echoing it back.
type Result struct {
	Story  *story.Story
	Queued *story.PendingStory
}

// Sender sends a story immediately. *story.Repository implements it.
type Sender interface {
	AddStory(ctx context.Context, n story.NewStory) (*story.Story, error)
}

// Outbox is the offline-tolerant write path. While offline, or when the
// service cannot be reached, new stories are queued instead of rejected.
// A story the service refuses is not queued; resending it would fail again.
type Outbox struct {
	sender   Sender
	store    story.Store
	conn     story.Connectivity
	ids      story.IDGenerator
	clock    story.Clock
	notifier story.Notifier
	logger   story.Logger
}

func New(sender Sender, store story.Store, conn story.Connectivity, ids story.IDGenerator, clock story.Clock, notifier story.Notifier, logger story.Logger) *Outbox {
	return &Outbox{
		sender:   sender,
		store:    store,
		conn:     conn,
		ids:      ids,
		clock:    clock,
		notifier: notifier,
		logger:   logger,
	}
}

func (o *Outbox) Submit(ctx context.Context, n story.NewStory) (Result, error) {
	if err := n.Validate(); err != nil {
		return Result{}, err
	}

	if o.conn.Online() {
		created, err := o.sender.AddStory(ctx, n)
		switch {
		case err == nil:
			return Result{Story: created}, nil
		case errors.Is(err, story.ErrRemoteUnreachable), errors.Is(err, story.ErrOfflineWriteRejected):
			o.logger.Info("story could not be sent, queueing", "error", err)
		default:
			return Result{}, err
		}
	}

	queued, err := o.enqueue(ctx, n)
	if err != nil {
		return Result{}, err
	}
	o.notifier.Notify(story.KindInfo, "You are offline. The story will be sent when you are back online.")
	return Result{Queued: queued}, nil
}

// enqueue stores n under a fresh offline id. The generator is strictly
// increasing within a process; ids already in the queue from an earlier
// process are skipped.
func (o *Outbox) enqueue(ctx context.Context, n story.NewStory) (*story.PendingStory, error) {
	const attempts = 10

	for range attempts {
		id := o.ids.New()
		existing, err := o.store.GetPendingStory(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("checking queue: %w", err)
		}
		if existing != nil {
			continue
		}

		pending := story.NewPendingStory(id, n, o.clock.Now())
		if err := o.store.PutPending(ctx, pending); err != nil {
			return nil, fmt.Errorf("queueing story: %w", err)
		}
		o.logger.Info("story queued", "id", id, "seq", pending.Seq)
		return pending, nil
	}
	return nil, fmt.Errorf("queueing story: no free id after %d attempts", attempts)
}

// Pending lists queued stories in replay order.
func (o *Outbox) Pending(ctx context.Context) ([]*story.PendingStory, error) {
	pending, err := o.store.GetPendingStories(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing queue: %w", err)
	}
	return pending, nil
}

// Discard removes a queued story without sending it.
func (o *Outbox) Discard(ctx context.Context, id string) error {
	existing, err := o.store.GetPendingStory(ctx, id)
	if err != nil {
		return fmt.Errorf("checking queue: %w", err)
	}
	if existing == nil {
		return fmt.Errorf("%w: no queued story %s", story.ErrNotFound, id)
	}
	if err := o.store.DeletePending(ctx, id); err != nil {
		return fmt.Errorf("discarding queued story: %w", err)
	}
	o.logger.Info("queued story discarded", "id", id)
	return nil
}
