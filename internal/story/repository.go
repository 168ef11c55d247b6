package story

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	// DefaultFreshnessTimeout is how long a read waits for the network
	// before answering from cache.
	DefaultFreshnessTimeout = 10 * time.Second

	defaultTransformLimit = 8
)

// Repository reconciles the local store and the remote API for every read
// and write the client makes, and normalizes records with Transform before
// handing them out.
type Repository struct {
	store     Store
	api       API
	session   *SessionGuard
	resolver  LocationResolver
	conn      Connectivity
	notifier  Notifier
	logger    Logger
	clock     Clock
	freshness time.Duration

	refreshes sync.WaitGroup
}

// NewRepository creates a Repository with the provided dependencies.
func NewRepository(store Store, api API, session *SessionGuard, resolver LocationResolver, conn Connectivity, notifier Notifier, logger Logger, clock Clock) *Repository {
	return &Repository{
		store:     store,
		api:       api,
		session:   session,
		resolver:  resolver,
		conn:      conn,
		notifier:  notifier,
		logger:    logger,
		clock:     clock,
		freshness: DefaultFreshnessTimeout,
	}
}

// SetFreshnessTimeout changes how long reads wait for the network when a
// cached answer is available. Zero or negative waits indefinitely.
func (r *Repository) SetFreshnessTimeout(d time.Duration) {
	r.freshness = d
}

// Wait blocks until network refreshes that outlived their caller have
// finished updating the cache.
func (r *Repository) Wait() {
	r.refreshes.Wait()
}

// Transform resolves the story's location and applies Transform.
func (r *Repository) Transform(ctx context.Context, s *Story) *Story {
	location := UnknownLocation
	if s.HasCoordinates() {
		location = r.resolver.Resolve(ctx, *s.Lat, *s.Lon)
	}
	return Transform(s, location, r.clock.Now())
}

// transformAll transforms stories concurrently, dropping nil entries.
func (r *Repository) transformAll(ctx context.Context, stories []*Story) []*Story {
	out := make([]*Story, len(stories))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(defaultTransformLimit)
	for i, s := range stories {
		if s == nil {
			continue
		}
		g.Go(func() error {
			out[i] = r.Transform(gctx, s)
			return nil
		})
	}
	_ = g.Wait()

	result := make([]*Story, 0, len(out))
	for _, s := range out {
		if s != nil {
			result = append(result, s)
		}
	}
	return result
}

// GetStories returns the story feed.
func (r *Repository) GetStories(ctx context.Context) ([]*Story, error) {
	return r.listStories(ctx, false)
}

// GetStoriesWithLocation returns the story feed with coordinates included.
func (r *Repository) GetStoriesWithLocation(ctx context.Context) ([]*Story, error) {
	return r.listStories(ctx, true)
}

func (r *Repository) listStories(ctx context.Context, withLocation bool) ([]*Story, error) {
	cached := r.cachedStories(ctx)

	if !r.conn.Online() && len(cached) > 0 {
		r.notifier.Notify(KindInfo, "Loaded stories from cache (you are offline)")
		return r.transformAll(ctx, cached), nil
	}

	token, err := r.session.Token(ctx)
	if err != nil {
		r.logger.Warn("reading token", "error", err)
	}

	fresh, timedOut, err := awaitFresh(r, ctx, len(cached) > 0, func(fctx context.Context) ([]*Story, error) {
		return r.refreshStories(fctx, token, withLocation)
	})

	switch {
	case errors.Is(err, ErrSessionExpired):
		return nil, err
	case timedOut:
		r.notifier.Notify(KindInfo, "Server is slow, loaded stories from cache")
		return r.transformAll(ctx, cached), nil
	case err != nil:
		r.logger.Warn("fetching stories", "error", err)
		if len(cached) > 0 {
			r.notifier.Notify(KindError, "Could not reach the server, loaded stories from cache")
			return r.transformAll(ctx, cached), nil
		}
		return nil, fmt.Errorf("fetching stories: %w", err)
	case len(fresh) > 0:
		return fresh, nil
	case len(cached) > 0:
		r.notifier.Notify(KindInfo, "Server returned no stories, loaded stories from cache")
		return r.transformAll(ctx, cached), nil
	default:
		return []*Story{}, nil
	}
}

// refreshStories fetches the feed, transforms it and writes every item into
// the stories cache. An empty feed returns nil, nil.
func (r *Repository) refreshStories(ctx context.Context, token string, withLocation bool) ([]*Story, error) {
	raw, err := r.api.ListStories(ctx, token, withLocation)
	if err != nil {
		return nil, r.remoteError(ctx, token, err)
	}
	if len(raw) == 0 {
		return nil, nil
	}

	stories := r.transformAll(ctx, raw)
	for _, s := range stories {
		if err := r.store.PutStory(ctx, TableStories, s); err != nil {
			r.logger.Warn("caching story", "id", s.ID, "error", err)
		}
	}
	r.logger.Debug("stories refreshed", "count", len(stories))
	return stories, nil
}

// GetStoryDetail returns a single story.
func (r *Repository) GetStoryDetail(ctx context.Context, id string) (*Story, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: empty id", ErrInvalidStory)
	}

	cached := r.cachedStory(ctx, id)

	if !r.conn.Online() && cached != nil {
		r.notifier.Notify(KindInfo, "Loaded story from cache (you are offline)")
		return r.Transform(ctx, cached), nil
	}

	token, err := r.session.Token(ctx)
	if err != nil {
		r.logger.Warn("reading token", "error", err)
	}

	fresh, timedOut, err := awaitFresh(r, ctx, cached != nil, func(fctx context.Context) (*Story, error) {
		return r.refreshStory(fctx, token, id)
	})

	switch {
	case errors.Is(err, ErrSessionExpired):
		return nil, err
	case timedOut:
		r.notifier.Notify(KindInfo, "Server is slow, loaded story from cache")
		return r.Transform(ctx, cached), nil
	case err != nil:
		r.logger.Warn("fetching story", "id", id, "error", err)
		if cached != nil {
			r.notifier.Notify(KindError, "Could not reach the server, loaded story from cache")
			return r.Transform(ctx, cached), nil
		}
		if StatusOf(err) == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("fetching story %s: %w", id, err)
	case fresh != nil:
		return fresh, nil
	case cached != nil:
		return r.Transform(ctx, cached), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
}

func (r *Repository) refreshStory(ctx context.Context, token, id string) (*Story, error) {
	raw, err := r.api.GetStory(ctx, token, id)
	if err != nil {
		return nil, r.remoteError(ctx, token, err)
	}
	if raw == nil {
		return nil, nil
	}

	s := r.Transform(ctx, raw)
	if err := r.store.PutStory(ctx, TableStories, s); err != nil {
		r.logger.Warn("caching story", "id", s.ID, "error", err)
	}
	return s, nil
}

// AddStory sends a new story to the server. It never queues: while offline
// it fails with ErrOfflineWriteRejected.
func (r *Repository) AddStory(ctx context.Context, n NewStory) (*Story, error) {
	if err := n.Validate(); err != nil {
		return nil, err
	}

	if !r.conn.Online() {
		r.notifier.Notify(KindInfo, "You are offline. The story was not sent.")
		return nil, ErrOfflineWriteRejected
	}

	token, err := r.session.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading token: %w", err)
	}
	if token == "" {
		return nil, ErrNotAuthenticated
	}

	created, err := r.api.AddStory(ctx, token, n)
	if err != nil {
		return nil, r.remoteError(ctx, token, err)
	}
	r.notifier.Notify(KindSuccess, "Story added")

	if created == nil || created.ID == "" {
		return created, nil
	}
	s := r.Transform(ctx, created)
	if err := r.store.PutStory(ctx, TableStories, s); err != nil {
		r.logger.Warn("caching new story", "id", s.ID, "error", err)
	}
	return s, nil
}

// SaveStory adds a story to the saved list. It reports false without
// writing when a story with the same ID is already saved.
func (r *Repository) SaveStory(ctx context.Context, s *Story) (bool, error) {
	if s == nil || s.ID == "" {
		return false, fmt.Errorf("%w: missing id", ErrInvalidStory)
	}

	saved, err := r.store.GetAllStories(ctx, TableSavedStories)
	if err != nil {
		return false, fmt.Errorf("reading saved stories: %w", err)
	}
	for _, existing := range saved {
		if existing.ID == s.ID {
			r.notifier.Notify(KindInfo, "Story is already saved")
			return false, nil
		}
	}

	if err := r.store.PutStory(ctx, TableSavedStories, r.Transform(ctx, s)); err != nil {
		return false, fmt.Errorf("saving story: %w", err)
	}
	r.notifier.Notify(KindSuccess, "Story saved")
	r.logger.Info("story saved", "id", s.ID)
	return true, nil
}

// DeleteSavedStory removes a story from the saved list.
func (r *Repository) DeleteSavedStory(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidStory)
	}
	if err := r.store.DeleteStory(ctx, TableSavedStories, id); err != nil {
		return fmt.Errorf("deleting saved story: %w", err)
	}
	r.notifier.Notify(KindSuccess, "Story removed from saved stories")
	r.logger.Info("saved story deleted", "id", id)
	return nil
}

// GetSavedStories returns the saved list. A storage fault yields an empty list.
func (r *Repository) GetSavedStories(ctx context.Context) ([]*Story, error) {
	saved, err := r.store.GetAllStories(ctx, TableSavedStories)
	if err != nil {
		r.logger.Warn("reading saved stories", "error", err)
		return []*Story{}, nil
	}
	sortByDate(saved)
	return r.transformAll(ctx, saved), nil
}

// Login exchanges credentials for a token and stores it.
func (r *Repository) Login(ctx context.Context, email, password string) error {
	token, err := r.api.Login(ctx, email, password)
	if err != nil {
		return err
	}
	if token == "" {
		return fmt.Errorf("login response did not contain a token")
	}
	if err := r.session.Begin(ctx, token); err != nil {
		return err
	}
	r.logger.Info("logged in", "email", email)
	return nil
}

// Register creates an account.
func (r *Repository) Register(ctx context.Context, name, email, password string) error {
	if err := r.api.Register(ctx, name, email, password); err != nil {
		return err
	}
	r.logger.Info("registered", "email", email)
	return nil
}

// Logout clears the stored token.
func (r *Repository) Logout(ctx context.Context) error {
	return r.session.End(ctx)
}

// remoteError turns a 401 into ErrSessionExpired after invalidating the
// session; other errors pass through unchanged.
func (r *Repository) remoteError(ctx context.Context, token string, err error) error {
	if IsUnauthorized(err) {
		r.session.Invalidate(ctx, token)
		return fmt.Errorf("%w: %w", ErrSessionExpired, err)
	}
	return err
}

// cachedStories reads the stories table, treating a storage fault as an
// empty cache.
func (r *Repository) cachedStories(ctx context.Context) []*Story {
	stories, err := r.store.GetAllStories(ctx, TableStories)
	if err != nil {
		r.logger.Warn("reading cached stories", "error", err)
		return nil
	}
	sortByDate(stories)
	return stories
}

func (r *Repository) cachedStory(ctx context.Context, id string) *Story {
	s, err := r.store.GetStory(ctx, TableStories, id)
	if err != nil {
		r.logger.Warn("reading cached story", "id", id, "error", err)
		return nil
	}
	return s
}

type fetchResult[T any] struct {
	value T
	err   error
}

// awaitFresh runs fetch on a context detached from the caller and waits for
// it. When haveCache is set the wait is bounded by the freshness timeout;
// on timeout it reports timedOut and the fetch keeps running in the
// background, where it still updates the cache.
func awaitFresh[T any](r *Repository, ctx context.Context, haveCache bool, fetch func(context.Context) (T, error)) (value T, timedOut bool, err error) {
	results := make(chan fetchResult[T], 1)
	fctx := context.WithoutCancel(ctx)

	r.refreshes.Add(1)
	go func() {
		defer r.refreshes.Done()
		v, err := fetch(fctx)
		results <- fetchResult[T]{value: v, err: err}
	}()

	if !haveCache || r.freshness <= 0 {
		res := <-results
		return res.value, false, res.err
	}

	timer := time.NewTimer(r.freshness)
	defer timer.Stop()

	select {
	case res := <-results:
		return res.value, false, res.err
	case <-timer.C:
		r.logger.Debug("network slower than freshness timeout, answering from cache", "timeout", r.freshness)
		return value, true, nil
	}
}

// sortByDate orders stories newest first so cached reads are stable.
func sortByDate(stories []*Story) {
	sort.SliceStable(stories, func(i, j int) bool {
		return storyTime(stories[i]) > storyTime(stories[j])
	})
}

func storyTime(s *Story) string {
	return firstNonEmpty(s.CreatedAt, s.Date)
}
