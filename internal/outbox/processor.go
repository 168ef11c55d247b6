// Package outbox delivers stories that were written while offline.
//
// Submit accepts a new story and either sends it or parks it in the local
// store's queue. Processor replays the queue when connectivity comes back.
// A queue entry is either pending (present) or done (deleted); nothing
// in between is persisted, so an interrupted replay is simply retried on
// the next trigger.
package outbox

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"storysync/internal/story"
)

// Transformer normalizes a story for the cache.
type Transformer interface {
	Transform(ctx context.Context, s *story.Story) *story.Story
}

// Report summarizes one replay pass.
type Report struct {
	Sent    int
	Skipped int // no usable session
	Failed  int
	// Pending lists the ids still queued after the pass, in replay order.
	Pending []string
}

// Processor replays queued stories against the remote API.
type Processor struct {
	store       story.Store
	api         story.API
	session     *story.SessionGuard
	transformer Transformer
	notifier    story.Notifier
	logger      story.Logger

	mu sync.Mutex
}

func NewProcessor(store story.Store, api story.API, session *story.SessionGuard, transformer Transformer, notifier story.Notifier, logger story.Logger) *Processor {
	return &Processor{
		store:       store,
		api:         api,
		session:     session,
		transformer: transformer,
		notifier:    notifier,
		logger:      logger,
	}
}

// Process makes one pass over the queue in sequence order. Each entry is
// handled on its own: a failure leaves that entry pending and moves on.
// Only one pass runs at a time; a second caller waits for the first.
// The returned error is non-nil only when the queue itself cannot be read.
func (p *Processor) Process(ctx context.Context) (Report, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var report Report

	entries, err := p.store.GetPendingStories(ctx)
	if err != nil {
		return report, fmt.Errorf("reading story queue: %w", err)
	}
	if len(entries) == 0 {
		return report, nil
	}
	p.logger.Info("replaying story queue", "entries", len(entries))

	for i, entry := range entries {
		if err := ctx.Err(); err != nil {
			for _, rest := range entries[i:] {
				report.Pending = append(report.Pending, rest.ID)
			}
			return report, err
		}

		switch p.replay(ctx, entry) {
		case outcomeSent:
			report.Sent++
		case outcomeSkipped:
			report.Skipped++
			report.Pending = append(report.Pending, entry.ID)
		case outcomeFailed:
			report.Failed++
			report.Pending = append(report.Pending, entry.ID)
		}
	}

	p.logger.Info("story queue replayed", "sent", report.Sent, "skipped", report.Skipped, "failed", report.Failed)
	return report, nil
}

type outcome int

const (
	outcomeSent outcome = iota
	outcomeSkipped
	outcomeFailed
)

func (p *Processor) replay(ctx context.Context, entry *story.PendingStory) outcome {
	token, err := p.session.Token(ctx)
	if err != nil {
		p.logger.Warn("reading token for queued story", "id", entry.ID, "error", err)
	}
	if token == "" {
		p.logger.Info("no session, leaving queued story pending", "id", entry.ID)
		return outcomeSkipped
	}

	payload, err := entry.NewStory()
	if err != nil {
		p.logger.Error("queued story is unreadable", "id", entry.ID, "error", err)
		p.notifier.Notify(story.KindError, "A queued story could not be read and was not sent")
		return outcomeFailed
	}

	created, err := p.api.AddStory(ctx, token, payload)
	if err != nil {
		if story.IsSessionRejected(err) {
			p.logger.Warn("session rejected while sending queued story", "id", entry.ID, "status", story.StatusOf(err))
			p.session.Invalidate(ctx, token)
			return outcomeSkipped
		}
		p.logger.Warn("sending queued story failed", "id", entry.ID, "error", err)
		p.notifier.Notify(story.KindError, failureMessage(err))
		return outcomeFailed
	}

	if err := p.store.DeletePending(ctx, entry.ID); err != nil {
		// The server has the story; the entry will be sent again next pass.
		p.logger.Error("removing sent story from queue", "id", entry.ID, "error", err)
	}
	if created != nil && created.ID != "" {
		if err := p.store.PutStory(ctx, story.TableStories, p.transformer.Transform(ctx, created)); err != nil {
			p.logger.Warn("caching sent story", "id", created.ID, "error", err)
		}
	}
	p.logger.Info("queued story sent", "id", entry.ID)
	p.notifier.Notify(story.KindSuccess, "Offline story sent")
	return outcomeSent
}

func failureMessage(err error) string {
	if errors.Is(err, story.ErrRemoteUnreachable) {
		return "Could not send an offline story, it will be retried when you are back online"
	}
	return "Could not send an offline story: " + err.Error()
}

// Run replays the queue every time regained fires, until ctx is done.
func (p *Processor) Run(ctx context.Context, regained <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-regained:
			if !ok {
				return nil
			}
			if _, err := p.Process(ctx); err != nil && ctx.Err() == nil {
				p.logger.Error("replaying story queue", "error", err)
			}
		}
	}
}
