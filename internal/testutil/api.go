package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"storysync/internal/story"
)

// FakeAPI is an in-memory story.API. Behaviour is configured through its
// exported fields before use; calls are recorded and safe for concurrent use.
type FakeAPI struct {
	mu sync.Mutex

	// Stories is the feed returned by ListStories and searched by GetStory.
	Stories []*story.Story
	// ListErr, GetErr and AddErr, when set, are returned by the matching call.
	ListErr error
	GetErr  error
	AddErr  error
	// AddFunc, when set, replaces the default AddStory behaviour.
	AddFunc func(token string, n story.NewStory) (*story.Story, error)
	// Gate, when set, blocks ListStories and GetStory until it is closed.
	Gate chan struct{}

	// LoginToken is returned by Login. LoginErr and RegisterErr fail the calls.
	LoginToken  string
	LoginErr    error
	RegisterErr error

	ListCalls int
	GetCalls  int
	AddTokens []string
	Added     []story.NewStory

	created   int
	createdAt time.Time
}

// NewFakeAPI returns a FakeAPI serving stories.
func NewFakeAPI(stories ...*story.Story) *FakeAPI {
	return &FakeAPI{
		Stories:    stories,
		LoginToken: "token-1",
		createdAt:  time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
	}
}

func (f *FakeAPI) Login(ctx context.Context, email, password string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.LoginErr != nil {
		return "", f.LoginErr
	}
	return f.LoginToken, nil
}

func (f *FakeAPI) Register(ctx context.Context, name, email, password string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.RegisterErr
}

func (f *FakeAPI) ListStories(ctx context.Context, token string, withLocation bool) ([]*story.Story, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.ListCalls++
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	out := make([]*story.Story, len(f.Stories))
	for i, s := range f.Stories {
		out[i] = s.Clone()
	}
	return out, nil
}

func (f *FakeAPI) GetStory(ctx context.Context, token, id string) (*story.Story, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.GetCalls++
	if f.GetErr != nil {
		return nil, f.GetErr
	}
	for _, s := range f.Stories {
		if s.ID == id {
			return s.Clone(), nil
		}
	}
	return nil, &story.RemoteRejectedError{Status: 404, Message: "Story not found"}
}

func (f *FakeAPI) AddStory(ctx context.Context, token string, n story.NewStory) (*story.Story, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.AddTokens = append(f.AddTokens, token)

	if f.AddFunc != nil {
		s, err := f.AddFunc(token, n)
		if err == nil {
			f.Added = append(f.Added, n)
		}
		return s, err
	}
	if f.AddErr != nil {
		return nil, f.AddErr
	}

	f.Added = append(f.Added, n)
	f.created++
	return &story.Story{
		ID:          fmt.Sprintf("story-%d", f.created),
		Name:        "Tester",
		Description: n.Description,
		PhotoURL:    fmt.Sprintf("https://photos.example.test/%d.jpg", f.created),
		CreatedAt:   f.createdAt.Format(time.RFC3339),
		Lat:         n.Lat,
		Lon:         n.Lon,
	}, nil
}

// AddedCount returns how many stories were accepted.
func (f *FakeAPI) AddedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Added)
}

func (f *FakeAPI) wait(ctx context.Context) error {
	f.mu.Lock()
	gate := f.Gate
	f.mu.Unlock()
	if gate == nil {
		return nil
	}
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", story.ErrRemoteUnreachable, ctx.Err())
	}
}

var _ story.API = (*FakeAPI)(nil)

// StaticResolver resolves every coordinate to Name, counting calls.
type StaticResolver struct {
	Name string

	mu    sync.Mutex
	calls int
}

func (r *StaticResolver) Resolve(ctx context.Context, lat, lon float64) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return r.Name
}

func (r *StaticResolver) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// Connectivity is a settable story.Connectivity.
type Connectivity struct {
	mu     sync.Mutex
	online bool
}

func NewConnectivity(online bool) *Connectivity {
	return &Connectivity{online: online}
}

func (c *Connectivity) Online() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.online
}

func (c *Connectivity) Set(online bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.online = online
}
