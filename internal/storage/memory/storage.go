package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/mcoot/skirmish/internal/model"
	"github.com/mcoot/skirmish/internal/storage"
)

// Storage is an in-memory implementation of the account store
type Storage struct {
	mu sync.RWMutex

	accounts map[model.AccountID]*model.Account
	nextID   model.AccountID
}

// New creates a new in-memory storage instance
func New() *Storage {
	return &Storage{
		accounts: make(map[model.AccountID]*model.Account),
		nextID:   1,
	}
}

// Ensure Storage implements the interface
var _ storage.AccountStore = (*Storage)(nil)

func (s *Storage) CreateAccount(ctx context.Context, acc *model.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc.ID = s.nextID
	s.nextID++
	s.accounts[acc.ID] = acc.Clone()
	return nil
}

func (s *Storage) GetAccount(ctx context.Context, id model.AccountID) (*model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acc, ok := s.accounts[id]
	if !ok {
		return nil, model.ErrAccountNotFound
	}
	return acc.Clone(), nil
}

func (s *Storage) SaveAccount(ctx context.Context, acc *model.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if acc.ID >= s.nextID {
		s.nextID = acc.ID + 1
	}
	s.accounts[acc.ID] = acc.Clone()
	return nil
}

func (s *Storage) TopByTrophies(ctx context.Context, limit int) ([]*model.Account, error) {
	s.mu.RLock()
	all := make([]*model.Account, 0, len(s.accounts))
	for _, acc := range s.accounts {
		all = append(all, acc.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].Trophies != all[j].Trophies {
			return all[i].Trophies > all[j].Trophies
		}
		return all[i].ID < all[j].ID
	})
	if limit >= 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}
