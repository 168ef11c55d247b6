package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"storysync/internal/api"
	"storysync/internal/auth"
	"storysync/internal/config"
	"storysync/internal/database"
	"storysync/internal/fs"
	"storysync/internal/geocode"
	"storysync/internal/netstate"
	"storysync/internal/notify"
	"storysync/internal/outbox"
	"storysync/internal/story"
)

// Options adjust how an App is wired for one invocation.
type Options struct {
	// Offline forces the disconnected state regardless of configuration.
	Offline bool
	// Out receives user-facing notifications. Nil discards them.
	Out io.Writer
}

// App is the application layer between the CLI and the story subsystem.
// It constructs all dependencies from config, exposes the operations the
// CLI needs and manages the store lifecycle on Close.
type App struct {
	op        *Operation
	logger    story.Logger
	store     *database.SQLiteStore
	session   *story.SessionGuard
	client    *api.Client
	conn      story.Connectivity
	monitor   *netstate.Monitor // nil for static connectivity
	repo      *story.Repository
	outbox    *outbox.Outbox
	processor *outbox.Processor
	photos    *fs.PhotoLoader
	logFile   *os.File
}

// New creates a fully wired App from the given config.
// operation names the CLI command being run (e.g. "sync", "add").
// The caller must call Close when done.
func New(cfg *config.Config, operation string, opts Options) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	clock := story.RealClock{}
	op := NewOperation(operation, clock.Now())
	slogger, logFile, err := newLogger(cfg.LogDir, op.ID())
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: slogger}
	logger.Debug("operation started", "operation", op.Name, "device", cfg.DeviceID)

	var notifier story.Notifier = notify.NewLog(logger)
	if opts.Out != nil {
		notifier = notify.Multi{notifier, notify.NewWriter(opts.Out)}
	}

	store, err := database.NewStoreFromConfig(cfg.Database, cfg.DeviceID, logger, clock)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("creating store: %w", err)
	}

	tokens, err := auth.NewTokenStoreFromConfig(cfg.Token, store, logger)
	if err != nil {
		store.Close()
		logFile.Close()
		return nil, fmt.Errorf("creating token store: %w", err)
	}

	resolver, err := geocode.NewResolverFromConfig(cfg.Geocoder, logger)
	if err != nil {
		store.Close()
		logFile.Close()
		return nil, fmt.Errorf("creating location resolver: %w", err)
	}

	client := api.NewClient(cfg.API.BaseURL, cfg.API.Timeout(), logger)

	connCfg := cfg.Connectivity
	if opts.Offline {
		connCfg = config.ConnectivityConfig{Type: "static", Online: false}
	}
	conn := netstate.NewFromConfig(connCfg, client.Ping, logger)
	monitor, _ := conn.(*netstate.Monitor)
	if monitor != nil {
		// One probe up front, bounded by the probe timeout, so offline reads
		// go straight to the cache.
		monitor.Check(context.Background())
	}

	session := story.NewSessionGuard(tokens, notifier, logger)
	repo := story.NewRepository(store, client, session, resolver, conn, notifier, logger, clock)
	repo.SetFreshnessTimeout(cfg.API.Freshness())

	return &App{
		op:        op,
		logger:    logger,
		store:     store,
		session:   session,
		client:    client,
		conn:      conn,
		monitor:   monitor,
		repo:      repo,
		outbox:    outbox.New(repo, store, conn, story.NewOfflineIDGenerator(clock), clock, notifier, logger),
		processor: outbox.NewProcessor(store, client, session, repo, notifier, logger),
		photos:    fs.NewPhotoLoader(),
		logFile:   logFile,
	}, nil
}

func (a *App) Register(ctx context.Context, name, email, password string) error {
	return a.repo.Register(ctx, name, email, password)
}

func (a *App) Login(ctx context.Context, email, password string) error {
	return a.repo.Login(ctx, email, password)
}

func (a *App) Logout(ctx context.Context) error {
	return a.repo.Logout(ctx)
}

// Status describes the local state without contacting the service.
type Status struct {
	LoggedIn bool
	// ExpiresAt is the token's own expiry claim, when it carries one.
	ExpiresAt time.Time
	Online    bool
	Pending   int
	Cached    int
	Saved     int
}

// Expired reports whether the token's expiry claim has passed at now.
func (s Status) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

func (a *App) Status(ctx context.Context) (Status, error) {
	var st Status

	token, err := a.session.Token(ctx)
	if err != nil {
		return st, fmt.Errorf("reading token: %w", err)
	}
	if token != "" {
		st.LoggedIn = true
		if exp, ok, err := auth.ExpiresAt(token); err != nil {
			a.logger.Debug("token has no readable expiry", "error", err)
		} else if ok {
			st.ExpiresAt = exp
		}
	}

	st.Online = a.conn.Online()

	pending, err := a.outbox.Pending(ctx)
	if err != nil {
		return st, err
	}
	st.Pending = len(pending)

	cached, err := a.store.GetAllStories(ctx, story.TableStories)
	if err != nil {
		return st, fmt.Errorf("reading cache: %w", err)
	}
	st.Cached = len(cached)

	saved, err := a.store.GetAllStories(ctx, story.TableSavedStories)
	if err != nil {
		return st, fmt.Errorf("reading saved stories: %w", err)
	}
	st.Saved = len(saved)

	return st, nil
}

// Stories returns the story feed, optionally with coordinates.
func (a *App) Stories(ctx context.Context, withLocation bool) ([]*story.Story, error) {
	if withLocation {
		return a.repo.GetStoriesWithLocation(ctx)
	}
	return a.repo.GetStories(ctx)
}

func (a *App) Story(ctx context.Context, id string) (*story.Story, error) {
	return a.repo.GetStoryDetail(ctx, id)
}

// AddRequest is a story submission from the CLI.
type AddRequest struct {
	Description string
	PhotoPath   string
	Lat, Lon    *float64
}

// Add loads the photo and submits the story through the outbox, so it is
// queued rather than lost when the service cannot be reached.
func (a *App) Add(ctx context.Context, req AddRequest) (outbox.Result, error) {
	photo, err := a.photos.Load(req.PhotoPath)
	if err != nil {
		return outbox.Result{}, fmt.Errorf("loading photo: %w", err)
	}
	return a.outbox.Submit(ctx, story.NewStory{
		Description: req.Description,
		Photo:       photo,
		Lat:         req.Lat,
		Lon:         req.Lon,
	})
}

// Save bookmarks the story with the given id. It returns false if the
// story was already saved.
func (a *App) Save(ctx context.Context, id string) (bool, error) {
	s, err := a.repo.GetStoryDetail(ctx, id)
	if err != nil {
		return false, err
	}
	return a.repo.SaveStory(ctx, s)
}

func (a *App) Unsave(ctx context.Context, id string) error {
	return a.repo.DeleteSavedStory(ctx, id)
}

func (a *App) Saved(ctx context.Context) ([]*story.Story, error) {
	return a.repo.GetSavedStories(ctx)
}

// Queue lists stories waiting to be sent.
func (a *App) Queue(ctx context.Context) ([]*story.PendingStory, error) {
	return a.outbox.Pending(ctx)
}

func (a *App) Discard(ctx context.Context, id string) error {
	return a.outbox.Discard(ctx, id)
}

// Sync makes one replay pass over the queue.
func (a *App) Sync(ctx context.Context) (outbox.Report, error) {
	return a.processor.Process(ctx)
}

// Watch keeps probing connectivity and replays the queue whenever it comes
// back, until ctx is done. It starts with a pass if New found the service
// reachable. With static connectivity it makes a single pass.
func (a *App) Watch(ctx context.Context) error {
	if a.monitor == nil {
		if !a.conn.Online() {
			return errors.New("nothing to watch while forced offline")
		}
		_, err := a.processor.Process(ctx)
		return err
	}

	if a.monitor.Online() {
		if _, err := a.processor.Process(ctx); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.monitor.Run(gctx) })
	g.Go(func() error { return a.processor.Run(gctx, a.monitor.Regained()) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (a *App) PushSubscribe(ctx context.Context, sub api.PushSubscription) error {
	return a.withToken(ctx, func(token string) error {
		return a.client.SubscribePush(ctx, token, sub)
	})
}

func (a *App) PushUnsubscribe(ctx context.Context, endpoint string) error {
	return a.withToken(ctx, func(token string) error {
		return a.client.UnsubscribePush(ctx, token, endpoint)
	})
}

// withToken runs fn with the current token and invalidates the session if
// the service rejects it.
func (a *App) withToken(ctx context.Context, fn func(token string) error) error {
	token, err := a.session.Token(ctx)
	if err != nil {
		return fmt.Errorf("reading token: %w", err)
	}
	if token == "" {
		return story.ErrNotAuthenticated
	}
	if err := fn(token); err != nil {
		if story.IsUnauthorized(err) {
			a.session.Invalidate(ctx, token)
			return fmt.Errorf("%w: %w", story.ErrSessionExpired, err)
		}
		return err
	}
	return nil
}

// Close waits for background refreshes to land in the cache, then closes
// the store and the log file.
func (a *App) Close() error {
	a.repo.Wait()

	var firstErr error
	if err := a.store.Close(); err != nil {
		firstErr = fmt.Errorf("closing store: %w", err)
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}
