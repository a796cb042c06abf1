package cache

import (
	"context"
	"log/slog"
	"sync"

	"github.com/mcoot/skirmish/internal/model"
	"github.com/mcoot/skirmish/internal/storage"
)

// Cache is a write-back account cache in front of a backend store.
// Reads fill the cache, writes only mark the account dirty; Flush persists dirty accounts.
type Cache struct {
	backend storage.AccountStore
	logger  *slog.Logger

	mu       sync.Mutex
	accounts map[model.AccountID]*model.Account
	dirty    map[model.AccountID]struct{}
}

// Ensure Cache implements the interface
var _ storage.AccountStore = (*Cache)(nil)

// New creates a cache over backend
func New(backend storage.AccountStore, logger *slog.Logger) *Cache {
	return &Cache{
		backend:  backend,
		logger:   logger.With(slog.String("component", "account-cache")),
		accounts: make(map[model.AccountID]*model.Account),
		dirty:    make(map[model.AccountID]struct{}),
	}
}

// CreateAccount is written through so the new id is durable immediately
func (c *Cache) CreateAccount(ctx context.Context, acc *model.Account) error {
	if err := c.backend.CreateAccount(ctx, acc); err != nil {
		return err
	}
	c.mu.Lock()
	c.accounts[acc.ID] = acc.Clone()
	c.mu.Unlock()
	return nil
}

func (c *Cache) GetAccount(ctx context.Context, id model.AccountID) (*model.Account, error) {
	c.mu.Lock()
	if acc, ok := c.accounts[id]; ok {
		c.mu.Unlock()
		return acc.Clone(), nil
	}
	c.mu.Unlock()

	acc, err := c.backend.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// A concurrent write may have filled the entry while we loaded
	if cached, ok := c.accounts[id]; ok {
		return cached.Clone(), nil
	}
	c.accounts[id] = acc.Clone()
	return acc, nil
}

// SaveAccount updates the cached copy and defers the backend write to Flush
func (c *Cache) SaveAccount(ctx context.Context, acc *model.Account) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accounts[acc.ID] = acc.Clone()
	c.dirty[acc.ID] = struct{}{}
	return nil
}

// Update loads the account, applies fn and marks it dirty
func (c *Cache) Update(ctx context.Context, id model.AccountID, fn func(*model.Account)) (*model.Account, error) {
	acc, err := c.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if cached, ok := c.accounts[id]; ok {
		acc = cached
	}
	fn(acc)
	c.accounts[id] = acc
	c.dirty[id] = struct{}{}
	return acc.Clone(), nil
}

// TopByTrophies reads from the backend, so it reflects the last flush
func (c *Cache) TopByTrophies(ctx context.Context, limit int) ([]*model.Account, error) {
	return c.backend.TopByTrophies(ctx, limit)
}

// DirtyCount returns the number of accounts waiting to be flushed
func (c *Cache) DirtyCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.dirty)
}

// Flush writes every dirty account to the backend. A failed save is logged and the
// account stays dirty for the next flush; the remaining accounts are still written.
func (c *Cache) Flush(ctx context.Context) (int, error) {
	c.mu.Lock()
	pending := make([]*model.Account, 0, len(c.dirty))
	for id := range c.dirty {
		pending = append(pending, c.accounts[id].Clone())
	}
	c.dirty = make(map[model.AccountID]struct{})
	c.mu.Unlock()

	saved := 0
	for _, acc := range pending {
		if err := ctx.Err(); err != nil {
			c.markDirty(acc.ID)
			continue
		}
		if err := c.backend.SaveAccount(ctx, acc); err != nil {
			c.logger.Warn("failed to flush account",
				slog.Int64("account_id", int64(acc.ID)),
				slog.String("error", err.Error()))
			c.markDirty(acc.ID)
			continue
		}
		saved++
	}
	return saved, ctx.Err()
}

func (c *Cache) markDirty(id model.AccountID) {
	c.mu.Lock()
	c.dirty[id] = struct{}{}
	c.mu.Unlock()
}
