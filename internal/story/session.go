package story

import (
	"context"
	"fmt"
	"sync"
)

// SessionGuard owns the token store on behalf of every component that talks
// to the remote API. When a request comes back 401 the guard clears the
// token, but only if it is still the token the request was sent with, so
// overlapping calls that all saw the same 401 clear it and notify once.
type SessionGuard struct {
	tokens   TokenStore
	notifier Notifier
	logger   Logger
	mu       sync.Mutex
}

func NewSessionGuard(tokens TokenStore, notifier Notifier, logger Logger) *SessionGuard {
	return &SessionGuard{tokens: tokens, notifier: notifier, logger: logger}
}

// Token returns the current bearer token, or "" when logged out.
func (g *SessionGuard) Token(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.tokens.Token(ctx)
}

// Begin stores a freshly issued token.
func (g *SessionGuard) Begin(ctx context.Context, token string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.tokens.SetToken(ctx, token); err != nil {
		return fmt.Errorf("storing token: %w", err)
	}
	return nil
}

// End clears the token on an explicit logout.
func (g *SessionGuard) End(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.tokens.ClearToken(ctx); err != nil {
		return fmt.Errorf("clearing token: %w", err)
	}
	return nil
}

// Invalidate handles a session rejection for a request sent with token.
// It returns true only for the call that actually cleared the token.
func (g *SessionGuard) Invalidate(ctx context.Context, token string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if token == "" {
		return false
	}
	current, err := g.tokens.Token(ctx)
	if err != nil {
		g.logger.Warn("reading token during invalidation", "error", err)
		return false
	}
	if current != token {
		return false
	}

	if err := g.tokens.ClearToken(ctx); err != nil {
		g.logger.Error("clearing rejected token", "error", err)
		return false
	}
	g.logger.Info("session invalidated")
	g.notifier.Notify(KindSessionExpired, "Your session has expired. Please log in again.")
	return true
}
