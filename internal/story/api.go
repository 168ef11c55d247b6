package story

import "context"

// API is the remote story service.
// Transport failures wrap ErrRemoteUnreachable; non-2xx responses are
// returned as *RemoteRejectedError.
type API interface {
	// Login returns the bearer token for the account.
	Login(ctx context.Context, email, password string) (string, error)

	Register(ctx context.Context, name, email, password string) error

	// ListStories returns the story feed. withLocation asks the server to
	// include coordinates.
	ListStories(ctx context.Context, token string, withLocation bool) ([]*Story, error)

	// GetStory returns a single story. A missing story is a 404 rejection.
	GetStory(ctx context.Context, token, id string) (*Story, error)

	// AddStory creates a story and returns the server's record, which may
	// be nil if the server does not echo it back.
	AddStory(ctx context.Context, token string, s NewStory) (*Story, error)
}

// LocationResolver turns coordinates into a place name. It never fails;
// when it cannot resolve a name it returns the formatted coordinates.
type LocationResolver interface {
	Resolve(ctx context.Context, lat, lon float64) string
}

// Connectivity reports whether the network is believed to be reachable.
type Connectivity interface {
	Online() bool
}

// TokenStore holds the single bearer token. An empty token means
// unauthenticated.
type TokenStore interface {
	Token(ctx context.Context) (string, error)
	SetToken(ctx context.Context, token string) error
	ClearToken(ctx context.Context) error
}
