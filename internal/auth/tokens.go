// Package auth keeps the session token. The token file is the primary slot
// and the local store's auth table the secondary one; ChainTokenStore reads
// them in that order and writes both.
package auth

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"storysync/internal/config"
	"storysync/internal/story"
)

// TokenKey is the auth slot the token is stored under.
const TokenKey = "current_user_token"

// FileTokenStore keeps the token in a single file readable only by the owner.
type FileTokenStore struct {
	path string
	mu   sync.Mutex
}

var _ story.TokenStore = (*FileTokenStore)(nil)

func NewFileTokenStore(path string) *FileTokenStore {
	return &FileTokenStore{path: path}
}

func (s *FileTokenStore) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("reading token file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func (s *FileTokenStore) SetToken(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("creating token directory: %w", err)
	}
	if err := os.WriteFile(s.path, []byte(token+"\n"), 0o600); err != nil {
		return fmt.Errorf("writing token file: %w", err)
	}
	return nil
}

func (s *FileTokenStore) ClearToken(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing token file: %w", err)
	}
	return nil
}

// StoreTokenStore keeps the token in the local store's auth table.
type StoreTokenStore struct {
	store story.Store
}

var _ story.TokenStore = (*StoreTokenStore)(nil)

func NewStoreTokenStore(store story.Store) *StoreTokenStore {
	return &StoreTokenStore{store: store}
}

func (s *StoreTokenStore) Token(ctx context.Context) (string, error) {
	value, _, err := s.store.GetAuth(ctx, TokenKey)
	if err != nil {
		return "", fmt.Errorf("reading stored token: %w", err)
	}
	return value, nil
}

func (s *StoreTokenStore) SetToken(ctx context.Context, token string) error {
	return s.store.PutAuth(ctx, TokenKey, token)
}

func (s *StoreTokenStore) ClearToken(ctx context.Context) error {
	return s.store.DeleteAuth(ctx, TokenKey)
}

// MemoryTokenStore keeps the token in memory. Used for tests and for
// configurations that should not persist a session.
type MemoryTokenStore struct {
	mu    sync.Mutex
	token string
}

var _ story.TokenStore = (*MemoryTokenStore)(nil)

func NewMemoryTokenStore(token string) *MemoryTokenStore {
	return &MemoryTokenStore{token: token}
}

func (s *MemoryTokenStore) Token(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, nil
}

func (s *MemoryTokenStore) SetToken(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	return nil
}

func (s *MemoryTokenStore) ClearToken(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	return nil
}

// ChainTokenStore reads the first non-empty token from its stores in order
// and writes or clears every store. A store that fails to read is skipped
// so a broken secondary slot cannot hide a good primary one.
type ChainTokenStore struct {
	stores []story.TokenStore
	logger story.Logger
}

var _ story.TokenStore = (*ChainTokenStore)(nil)

func NewChainTokenStore(logger story.Logger, stores ...story.TokenStore) *ChainTokenStore {
	return &ChainTokenStore{stores: stores, logger: logger}
}

func (c *ChainTokenStore) Token(ctx context.Context) (string, error) {
	var errs []error
	for i, s := range c.stores {
		token, err := s.Token(ctx)
		if err != nil {
			c.logger.Warn("token slot unreadable", "slot", i, "error", err)
			errs = append(errs, err)
			continue
		}
		if token != "" {
			return token, nil
		}
	}
	if len(errs) == len(c.stores) && len(errs) > 0 {
		return "", errors.Join(errs...)
	}
	return "", nil
}

func (c *ChainTokenStore) SetToken(ctx context.Context, token string) error {
	var errs []error
	for _, s := range c.stores {
		if err := s.SetToken(ctx, token); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ClearToken clears every slot, reporting all failures together.
func (c *ChainTokenStore) ClearToken(ctx context.Context) error {
	var errs []error
	for _, s := range c.stores {
		if err := s.ClearToken(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NewTokenStoreFromConfig builds the chain for cfg: the configured primary
// slot followed by the local store.
func NewTokenStoreFromConfig(cfg config.TokenConfig, store story.Store, logger story.Logger) (*ChainTokenStore, error) {
	var primary story.TokenStore
	switch cfg.Type {
	case "file":
		if cfg.Path == "" {
			return nil, fmt.Errorf("path required for file token store")
		}
		primary = NewFileTokenStore(cfg.Path)
	case "memory":
		primary = NewMemoryTokenStore("")
	default:
		return nil, fmt.Errorf("unknown token store type: %s", cfg.Type)
	}
	return NewChainTokenStore(logger, primary, NewStoreTokenStore(store)), nil
}
